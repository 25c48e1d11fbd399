package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"example.com/replicated-kv/internal/cluster"
	"example.com/replicated-kv/internal/server"
	"example.com/replicated-kv/internal/store"
	"example.com/replicated-kv/internal/util"
)

const defaultCluster = "a=127.0.0.1:10097,b=127.0.0.1:10098,c=127.0.0.1:10099"

func main() {
	instanceID := flag.String("id", "", "replica id (default: env INSTANCE_ID)")
	listen := flag.String("listen", "", "listen address (default: the replica's cluster address)")
	clusterSpec := flag.String("cluster", "", "replicas as id=host:port,... (default: env CLUSTER or "+defaultCluster+")")
	leaderID := flag.String("leader", "", "leader replica id (default: env LEADER_ID or lowest id)")
	replDelay := flag.Duration("replication-delay", 0, "pause before each REPLICATION send (env REPLICATION_DELAY)")
	replTimeout := flag.Duration("replication-timeout", server.DefaultReplicationTimeout, "per-replica REPLICATION timeout")
	reqTimeout := flag.Duration("request-timeout", server.DefaultRequestTimeout, "per-connection read/write and forwarding timeout")
	maxConns := flag.Int("max-conns", 0, "max concurrently served connections (default: env MAX_CONNS or 256)")
	flag.Parse()

	id := *instanceID
	if id == "" {
		id = util.Env("INSTANCE_ID", "")
	}
	if id == "" {
		log.Fatalf("missing -id")
	}

	spec := *clusterSpec
	if spec == "" {
		spec = util.Env("CLUSTER", defaultCluster)
	}
	leader := *leaderID
	if leader == "" {
		leader = util.Env("LEADER_ID", "")
	}
	topo, err := cluster.Parse(spec, leader)
	if err != nil {
		log.Fatalf("cluster: %v", err)
	}

	delay := *replDelay
	if delay == 0 {
		delay = util.EnvDuration("REPLICATION_DELAY", 0)
	}
	conns := *maxConns
	if conns == 0 {
		conns = util.EnvInt("MAX_CONNS", server.DefaultMaxConns)
	}

	st := store.New()
	srv, err := server.New(server.Config{
		ID:                 id,
		Topology:           topo,
		ReplicationDelay:   delay,
		ReplicationTimeout: *replTimeout,
		RequestTimeout:     *reqTimeout,
		MaxConns:           conns,
	}, st)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	go func() {
		if err := srv.ListenAndServe(*listen); err != nil && !errors.Is(err, server.ErrServerClosed) {
			log.Fatalf("[kv %s] serve: %v", id, err)
		}
	}()

	util.WaitForShutdown(3*time.Second, func(ctx context.Context) {
		log.Printf("[kv %s] shutting down with %d keys %s...", id, st.Len(), keySummary(st.Keys(), 10))
		done := make(chan struct{})
		go func() {
			srv.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			log.Printf("[kv %s] shutdown: %v", id, ctx.Err())
		}
	})
}

// keySummary lists up to limit keys in order, noting how many were left out.
func keySummary(keys []string, limit int) string {
	if len(keys) <= limit {
		return "[" + strings.Join(keys, " ") + "]"
	}
	return fmt.Sprintf("[%s ... +%d more]", strings.Join(keys[:limit], " "), len(keys)-limit)
}
