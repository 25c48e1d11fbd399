package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"example.com/replicated-kv/common"
	"example.com/replicated-kv/internal/client"
	"example.com/replicated-kv/internal/cluster"
	"example.com/replicated-kv/internal/lb"
	"example.com/replicated-kv/internal/util"
)

const defaultCluster = "a=127.0.0.1:10097,b=127.0.0.1:10098,c=127.0.0.1:10099"

// Commands are read from stdin, one per line:
//
//	put <key> <value>
//	get <key>
func main() {
	clusterSpec := flag.String("cluster", "", "replicas as id=host:port,... (default: env CLUSTER or "+defaultCluster+")")
	algo := flag.String("algo", "random", "replica choice: random|rr")
	timeout := flag.Duration("timeout", client.DefaultTimeout, "per-request timeout")
	retries := flag.Int("retries", 1, "GET attempts when a replica is stale or unreachable")
	flag.Parse()

	spec := *clusterSpec
	if spec == "" {
		spec = util.Env("CLUSTER", defaultCluster)
	}
	replicas, err := cluster.ParseReplicas(spec)
	if err != nil {
		log.Fatalf("cluster: %v", err)
	}
	picker, err := lb.New(*algo, replicas)
	if err != nil {
		log.Fatalf("%v", err)
	}
	cli := client.New(picker, *timeout)

	fmt.Printf("Session started (%s over %d replicas).\n", picker.Name(), len(replicas))

	ctx := context.Background()
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch {
		case strings.EqualFold(fields[0], "put") && len(fields) >= 3:
			value := strings.Join(fields[2:], " ")
			res, err := cli.Put(ctx, fields[1], value)
			if err != nil {
				fmt.Printf("PUT %s failed: %v\n", fields[1], err)
				continue
			}
			fmt.Printf("PUT_OK key: %s value: %s timestamp: %d via %s@%s\n",
				res.Key, res.Value, res.Timestamp, res.Replica.ID, res.Replica.Addr)

		case strings.EqualFold(fields[0], "get") && len(fields) == 2:
			res, err := cli.GetRetry(ctx, fields[1], *retries)
			if err != nil {
				fmt.Printf("GET %s failed: %v\n", fields[1], err)
				continue
			}
			printGet(res, cli)

		default:
			fmt.Println("usage: put <key> <value> | get <key>")
		}
	}
	if err := sc.Err(); err != nil {
		log.Fatalf("read commands: %v", err)
	}
}

func printGet(res client.Result, cli *client.Client) {
	switch res.Kind {
	case common.KindNull:
		fmt.Printf("NULL key: %s via %s\n", res.Key, res.Replica.ID)
	case common.KindTryOther:
		fmt.Printf("TRY_OTHER_SERVER_OR_LATER key: %s via %s\n", res.Key, res.Replica.ID)
	default:
		obs, _ := cli.Cached(res.Key)
		fmt.Printf("GET key: %s value: %s via %s@%s, my timestamp %d, server timestamp %d (now %d)\n",
			res.Key, res.Value, res.Replica.ID, res.Replica.Addr, obs.Timestamp, res.Timestamp, time.Now().UnixNano())
	}
}
