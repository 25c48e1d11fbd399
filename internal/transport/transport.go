// Package transport performs one request/response exchange per TCP
// connection.
package transport

import (
	"context"
	"net"
	"time"

	"example.com/replicated-kv/common"
)

// RoundTrip dials addr, sends req and waits for exactly one response. The
// connection is closed on every return path. Cancelling ctx aborts a
// pending dial, write or read.
//
// Network failures come back as *common.ConnectionError; a malformed reply
// comes back as *common.DecodeError.
func RoundTrip(ctx context.Context, addr string, req common.Message) (common.Message, error) {
	b, err := common.Encode(req)
	if err != nil {
		return common.Message{}, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return common.Message{}, &common.ConnectionError{Op: "dial", Addr: addr, Err: err}
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(b); err != nil {
		return common.Message{}, &common.ConnectionError{Op: "write", Addr: addr, Err: ctxErr(ctx, err)}
	}
	resp, err := common.ReadMessage(conn)
	if err != nil {
		if common.IsDecodeError(err) {
			return common.Message{}, err
		}
		return common.Message{}, &common.ConnectionError{Op: "read", Addr: addr, Err: ctxErr(ctx, err)}
	}
	return resp, nil
}

// ctxErr prefers the context's reason over the deadline error it caused.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	// the conn deadline can fire a moment before the context's own timer
	if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
		return context.DeadlineExceeded
	}
	return err
}
