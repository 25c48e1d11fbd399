package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMessageTooLarge is wrapped by DecodeError when a peer sends more than
// MaxMessageSize bytes, and returned by Encode for oversized records.
var ErrMessageTooLarge = fmt.Errorf("message exceeds %d bytes", MaxMessageSize)

// DecodeError reports a malformed, empty or oversized wire payload.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode message: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err (or anything it wraps) is a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// ConnectionError reports a peer that was unreachable or failed mid-exchange.
type ConnectionError struct {
	Op   string // "dial", "write", "read"
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}
func (e *ConnectionError) Unwrap() error { return e.Err }

// ReplicationFailure lists the replicas that did not acknowledge a write.
type ReplicationFailure struct {
	Key    string
	Failed map[string]error // replica id -> cause
}

func (e *ReplicationFailure) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failed[id]))
	}
	return fmt.Sprintf("replicate key %q: %d replica(s) failed (%s)", e.Key, len(ids), strings.Join(parts, "; "))
}
