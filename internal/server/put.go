package server

import (
	"context"
	"errors"
	"fmt"
	"math"

	"example.com/replicated-kv/common"
	"example.com/replicated-kv/internal/transport"
)

// leaderPut commits the write locally, replicates it to every other
// replica and reports PUT_OK only when all of them acknowledged. The local
// commit stays in place when replication fails; the client gets ERROR.
//
// Writes to the same key are replicated one at a time, in commit order.
func (s *Server) leaderPut(ctx context.Context, req common.Message) common.Message {
	key, payload, err := requireEntry(req)
	if err == nil {
		err = checkReplicable(key, payload)
	}
	if err != nil {
		s.lg.Printf("reject PUT: %v", err)
		return errorReply(req.Key, err.Error())
	}
	s.lg.Printf("PUT key:%s value:%s", key, payload)

	unlock := s.keyLocks.lock(key)
	defer unlock()

	ts := s.commit(key, payload)
	if err := s.replicate(ctx, key, payload, ts); err != nil {
		s.lg.Printf("PUT key:%s ts:%d committed locally, not acknowledged: %v", key, ts, err)
		return errorReply(&key, err.Error())
	}

	s.lg.Printf("PUT_OK key:%s ts:%d", key, ts)
	return common.NewMessage(common.KindPutOK, key, common.NewValue(payload, ts))
}

var errTooLargeToReplicate = errors.New("value too large to replicate")

// checkReplicable fails when the REPLICATION carrying key and payload
// would exceed the message size limit, whatever its timestamp.
func checkReplicable(key, payload string) error {
	m := common.NewMessage(common.KindReplication, key, common.NewValue(payload, math.MaxInt64))
	if _, err := common.Encode(m); err != nil {
		if errors.Is(err, common.ErrMessageTooLarge) {
			return errTooLargeToReplicate
		}
		return err
	}
	return nil
}

// commit stamps the write and stores it. Timestamps are Unix nanoseconds,
// strictly increasing within this process.
func (s *Server) commit(key, payload string) int64 {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	ts := s.cfg.Now().UnixNano()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	s.store.Write(key, payload, ts)
	return ts
}

// forwardPut relays a PUT verbatim to the leader and hands the leader's
// answer back. It never writes locally.
func (s *Server) forwardPut(ctx context.Context, req common.Message) common.Message {
	leader := s.topo.Leader()
	s.lg.Printf("forward PUT key:%s to leader %s", req.KeyOr("<nil>"), leader.ID)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	resp, err := transport.RoundTrip(ctx, leader.Addr, req)
	if err != nil {
		s.lg.Printf("forward PUT key:%s: %v", req.KeyOr("<nil>"), err)
		return errorReply(req.Key, fmt.Sprintf("leader %s: %v", leader.ID, err))
	}

	switch resp.Kind {
	case common.KindPutOK:
		return common.Message{Kind: common.KindPutOK, Key: resp.Key, Value: resp.Value}
	case common.KindError:
		return resp
	}
	s.lg.Printf("forward PUT key:%s: unexpected leader reply %s", req.KeyOr("<nil>"), resp.Kind)
	return errorReply(req.Key, fmt.Sprintf("leader %s replied %s", leader.ID, resp.Kind))
}
