// Package server implements one replica: it accepts connections, decodes a
// single request from each and routes it to the write, forwarding,
// replication or read path.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"example.com/replicated-kv/common"
	"example.com/replicated-kv/internal/cluster"
	"example.com/replicated-kv/internal/netutil"
	"example.com/replicated-kv/internal/store"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("server closed")

const (
	DefaultReplicationTimeout = 5 * time.Second
	DefaultRequestTimeout     = 10 * time.Second
	DefaultMaxConns           = 256
)

type Config struct {
	ID       string
	Topology *cluster.Topology

	// ReplicationDelay is waited before each REPLICATION send. Throttling
	// only; zero disables it.
	ReplicationDelay time.Duration
	// ReplicationTimeout bounds one replica's REPLICATION exchange. It
	// starts once ReplicationDelay has passed.
	ReplicationTimeout time.Duration
	// RequestTimeout bounds reads and writes on accepted connections and
	// the forwarding of a PUT to the leader.
	RequestTimeout time.Duration
	// MaxConns caps concurrently served connections.
	MaxConns int

	Logger *log.Logger
	Now    func() time.Time
}

func (c Config) withDefaults() Config {
	if c.ReplicationTimeout <= 0 {
		c.ReplicationTimeout = DefaultReplicationTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stderr, fmt.Sprintf("[kv %s] ", c.ID), log.LstdFlags|log.Lmicroseconds)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type Server struct {
	cfg   Config
	self  common.Instance
	topo  *cluster.Topology
	store *store.Store
	lg    *log.Logger

	// commitMu orders leader timestamps with their local writes.
	commitMu sync.Mutex
	lastTS   int64
	keyLocks keyLocks

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

// New returns a replica serving st. st is owned by the caller and may be
// inspected while the server runs.
func New(cfg Config, st *store.Store) (*Server, error) {
	if cfg.Topology == nil {
		return nil, errors.New("server: missing topology")
	}
	self, ok := cfg.Topology.Lookup(cfg.ID)
	if !ok {
		return nil, fmt.Errorf("server: %q is not a replica of the cluster", cfg.ID)
	}
	if st == nil {
		st = store.New()
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		self:   self,
		topo:   cfg.Topology,
		store:  st,
		lg:     cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (s *Server) Store() *store.Store { return s.store }

func (s *Server) IsLeader() bool { return s.topo.IsLeader(s.self.ID) }

func (s *Server) role() string {
	if s.IsLeader() {
		return "leader"
	}
	return "follower"
}

// ListenAndServe listens on addr (the replica's own address when empty).
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = s.self.Addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close. Each connection is handled
// on its own goroutine; at most MaxConns are open at once.
func (s *Server) Serve(ln net.Listener) error {
	ln = netutil.NewLimitListener(ln, s.cfg.MaxConns, s.cfg.RequestTimeout, s.cfg.RequestTimeout)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	s.lg.Printf("listening on %s as %s (leader=%s@%s)", ln.Addr(), s.role(), s.topo.Leader().ID, s.topo.Leader().Addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || netutil.IsClosedConnectionError(err) {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.lg.Printf("accept: %v", err)
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return err
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting, cancels outbound replication and forwarding, and
// waits for in-flight connections to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr().String()

	req, err := common.ReadMessage(conn)
	if err != nil {
		if common.IsDecodeError(err) {
			s.lg.Printf("drop request from %s: %v", peer, err)
		} else {
			s.lg.Printf("read request from %s: %v", peer, err)
		}
		return
	}

	var resp common.Message
	switch req.Kind {
	case common.KindPut:
		if s.IsLeader() {
			resp = s.leaderPut(s.ctx, req)
		} else {
			resp = s.forwardPut(s.ctx, req)
		}
	case common.KindGet:
		resp = s.get(req)
	case common.KindReplication:
		resp = s.applyReplication(req)
	default:
		s.lg.Printf("INVALID_OPTION %s from %s", req.Kind, peer)
		return
	}

	if err := s.reply(conn, resp); err != nil {
		s.lg.Printf("reply %s to %s: %v", resp.Kind, peer, err)
	}
}

// reply writes resp, degrading to a keyless ERROR when resp would not fit
// in one message.
func (s *Server) reply(conn net.Conn, resp common.Message) error {
	err := common.WriteMessage(conn, resp)
	if errors.Is(err, common.ErrMessageTooLarge) {
		return common.WriteMessage(conn, errorReply(nil, "response exceeds message size limit"))
	}
	return err
}

const maxReasonLen = 256

func errorReply(key *string, reason string) common.Message {
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	return common.Message{Kind: common.KindError, Key: key, Value: common.NewValue(reason, 0)}
}

// requireEntry checks that m carries a key and a payload.
func requireEntry(m common.Message) (key, payload string, err error) {
	if m.Key == nil {
		return "", "", errors.New("missing key")
	}
	if m.Value == nil || m.Value.Payload == nil {
		return "", "", errors.New("missing value")
	}
	return *m.Key, *m.Value.Payload, nil
}
