package server

import (
	"context"
	"fmt"
	"time"

	"example.com/replicated-kv/common"
	"example.com/replicated-kv/internal/transport"
)

// replicate sends REPLICATION to every peer in parallel and waits for all
// of them. It fails unless every peer answered REPLICATION_OK within
// ReplicationTimeout, counted after ReplicationDelay.
func (s *Server) replicate(ctx context.Context, key, payload string, ts int64) error {
	peers := s.topo.Peers(s.self.ID)
	msg := common.NewMessage(common.KindReplication, key, common.NewValue(payload, ts))

	type result struct {
		id  string
		err error
	}
	results := make(chan result, len(peers))
	for _, p := range peers {
		go func(p common.Instance) {
			results <- result{id: p.ID, err: s.replicateTo(ctx, p, msg)}
		}(p)
	}

	failed := make(map[string]error)
	for range peers {
		r := <-results
		if r.err != nil {
			s.lg.Printf("replicate key:%s to %s: %v", key, r.id, r.err)
			failed[r.id] = r.err
		}
	}
	if len(failed) > 0 {
		return &common.ReplicationFailure{Key: key, Failed: failed}
	}
	return nil
}

func (s *Server) replicateTo(ctx context.Context, peer common.Instance, msg common.Message) error {
	if d := s.cfg.ReplicationDelay; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReplicationTimeout)
	defer cancel()

	resp, err := transport.RoundTrip(ctx, peer.Addr, msg)
	if err != nil {
		return err
	}
	if resp.Kind != common.KindReplicationOK {
		return fmt.Errorf("unexpected reply %s", resp.Kind)
	}
	return nil
}

// applyReplication overwrites the local entry with whatever the leader
// sent. No timestamp comparison is made: the leader is trusted as the only
// writer.
func (s *Server) applyReplication(req common.Message) common.Message {
	key, payload, err := requireEntry(req)
	if err != nil {
		s.lg.Printf("reject REPLICATION: %v", err)
		return errorReply(req.Key, err.Error())
	}
	ts := req.Value.TS()
	s.store.Write(key, payload, ts)

	s.lg.Printf("REPLICATION key:%s value:%s ts:%d", key, payload, ts)
	return common.Message{Kind: common.KindReplicationOK}
}
