// Package client issues PUT and GET requests against randomly chosen
// replicas and remembers, per key, the last write it saw acknowledged.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"example.com/replicated-kv/common"
	"example.com/replicated-kv/internal/lb"
	"example.com/replicated-kv/internal/transport"
)

// ErrWriteFailed is wrapped when a replica answered a PUT with ERROR.
var ErrWriteFailed = errors.New("write failed")

const DefaultTimeout = 15 * time.Second

// Observation is what the client last saw acknowledged for a key.
type Observation struct {
	Value     string
	Timestamp int64
}

// Result describes one completed exchange.
type Result struct {
	Kind      common.Kind
	Key       string
	Value     string
	Timestamp int64
	Replica   common.Instance
}

type Client struct {
	picker  lb.Picker
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]Observation
}

// New returns a client that sends each request to the replica picker
// chooses. timeout bounds a single exchange; zero means DefaultTimeout.
func New(picker lb.Picker, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		picker:  picker,
		timeout: timeout,
		cache:   make(map[string]Observation),
	}
}

// Cached returns the freshness entry for key.
func (c *Client) Cached(key string) (Observation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.cache[key]
	return o, ok
}

func (c *Client) exchange(ctx context.Context, req common.Message) (common.Message, common.Instance, error) {
	replica, err := c.picker.Pick()
	if err != nil {
		return common.Message{}, common.Instance{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := transport.RoundTrip(ctx, replica.Addr, req)
	return resp, replica, err
}

// Put writes key=value through a random replica. On PUT_OK the freshness
// cache is updated with the committed value and timestamp.
func (c *Client) Put(ctx context.Context, key, value string) (Result, error) {
	resp, replica, err := c.exchange(ctx, common.NewMessage(common.KindPut, key, common.NewValue(value, 0)))
	if err != nil {
		return Result{Replica: replica}, fmt.Errorf("put %q via %s: %w", key, replica.ID, err)
	}

	res := Result{
		Kind:      resp.Kind,
		Key:       resp.KeyOr(key),
		Value:     resp.Value.PayloadOr(""),
		Timestamp: resp.Value.TS(),
		Replica:   replica,
	}
	switch resp.Kind {
	case common.KindPutOK:
		c.mu.Lock()
		c.cache[key] = Observation{Value: res.Value, Timestamp: res.Timestamp}
		c.mu.Unlock()
		return res, nil
	case common.KindError:
		return res, fmt.Errorf("put %q via %s: %w: %s", key, replica.ID, ErrWriteFailed, res.Value)
	}
	return res, fmt.Errorf("put %q via %s: unexpected reply %s", key, replica.ID, resp.Kind)
}

// Get reads key from a random replica, sending the cached timestamp for
// key (0 when none) so a lagging replica can refuse. The result kind is
// one of NULL, TRY_OTHER_SERVER_OR_LATER or GET_OK. GET results never
// update the freshness cache.
func (c *Client) Get(ctx context.Context, key string) (Result, error) {
	obs, ok := c.Cached(key)
	v := &common.Value{Timestamp: &obs.Timestamp}
	if ok {
		v.Payload = &obs.Value
	}

	resp, replica, err := c.exchange(ctx, common.NewMessage(common.KindGet, key, v))
	if err != nil {
		return Result{Replica: replica}, fmt.Errorf("get %q via %s: %w", key, replica.ID, err)
	}

	res := Result{Kind: resp.Kind, Key: key, Replica: replica}
	switch resp.Kind {
	case common.KindNull, common.KindTryOther:
		return res, nil
	case common.KindGetOK:
		res.Value = resp.Value.PayloadOr("")
		res.Timestamp = resp.Value.TS()
		return res, nil
	}
	return res, fmt.Errorf("get %q via %s: unexpected reply %s", key, replica.ID, resp.Kind)
}

// GetRetry calls Get up to attempts times, picking a new replica after a
// TRY_OTHER_SERVER_OR_LATER answer or a connection failure, with a short
// growing pause in between.
func (c *Client) GetRetry(ctx context.Context, key string, attempts int) (Result, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		res Result
		err error
	)
	for i := 0; i < attempts; i++ {
		if i > 0 {
			t := time.NewTimer(time.Duration(i) * 50 * time.Millisecond)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return res, ctx.Err()
			}
		}
		res, err = c.Get(ctx, key)
		var ce *common.ConnectionError
		switch {
		case err == nil && res.Kind != common.KindTryOther:
			return res, nil
		case err != nil && !errors.As(err, &ce):
			return res, err
		}
	}
	return res, err
}
