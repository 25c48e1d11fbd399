// Package lb chooses which replica a client request goes to.
package lb

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"example.com/replicated-kv/common"
)

var ErrNoReplicas = errors.New("no replicas")

type Picker interface {
	Pick() (common.Instance, error)
	Name() string
}

// New returns the picker registered under algo ("random" or "rr").
func New(algo string, replicas []common.Instance) (Picker, error) {
	switch algo {
	case "", "random":
		return NewRandom(replicas, time.Now().UnixNano()), nil
	case "rr":
		return NewRoundRobin(replicas), nil
	}
	return nil, fmt.Errorf("unknown algo %q", algo)
}

// -------- Random (uniform) --------

type RandomPicker struct {
	replicas []common.Instance

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandom(replicas []common.Instance, seed int64) *RandomPicker {
	return &RandomPicker{
		replicas: append([]common.Instance(nil), replicas...),
		rnd:      rand.New(rand.NewSource(seed)),
	}
}

func (p *RandomPicker) Name() string { return "random" }

func (p *RandomPicker) Pick() (common.Instance, error) {
	if len(p.replicas) == 0 {
		return common.Instance{}, ErrNoReplicas
	}
	p.mu.Lock()
	i := p.rnd.Intn(len(p.replicas))
	p.mu.Unlock()
	return p.replicas[i], nil
}

// -------- Round-robin --------

type RoundRobinPicker struct {
	replicas []common.Instance
	idx      uint64
}

func NewRoundRobin(replicas []common.Instance) *RoundRobinPicker {
	return &RoundRobinPicker{replicas: append([]common.Instance(nil), replicas...)}
}

func (p *RoundRobinPicker) Name() string { return "round_robin" }

func (p *RoundRobinPicker) Pick() (common.Instance, error) {
	if len(p.replicas) == 0 {
		return common.Instance{}, ErrNoReplicas
	}
	i := atomic.AddUint64(&p.idx, 1)
	return p.replicas[int((i-1)%uint64(len(p.replicas)))], nil
}

// -------- Fixed --------

// Fixed always returns the same replica. Tests use it to aim a request at
// a particular server.
type Fixed common.Instance

func (f Fixed) Name() string { return "fixed" }

func (f Fixed) Pick() (common.Instance, error) { return common.Instance(f), nil }
