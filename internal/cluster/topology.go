// Package cluster describes the static replica set and its leader.
package cluster

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"example.com/replicated-kv/common"
)

// Size is the number of replicas every topology must have.
const Size = 3

// Topology is the fixed replica set plus the designated leader. It is
// immutable after New.
type Topology struct {
	replicas []common.Instance // sorted by ID
	leader   common.Instance
}

// New validates replicas and picks the leader. An empty leaderID selects
// the replica with the lowest ID.
func New(replicas []common.Instance, leaderID string) (*Topology, error) {
	if len(replicas) != Size {
		return nil, fmt.Errorf("cluster needs exactly %d replicas, got %d", Size, len(replicas))
	}
	ids := make(map[string]struct{}, len(replicas))
	addrs := make(map[string]struct{}, len(replicas))
	for _, r := range replicas {
		if r.ID == "" || r.Addr == "" {
			return nil, fmt.Errorf("invalid replica %+v", r)
		}
		if _, dup := ids[r.ID]; dup {
			return nil, fmt.Errorf("duplicate replica id %q", r.ID)
		}
		if _, dup := addrs[r.Addr]; dup {
			return nil, fmt.Errorf("duplicate replica addr %q", r.Addr)
		}
		ids[r.ID] = struct{}{}
		addrs[r.Addr] = struct{}{}
	}

	sorted := append([]common.Instance(nil), replicas...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	t := &Topology{replicas: sorted}
	if leaderID == "" {
		t.leader = sorted[0]
		return t, nil
	}
	leader, ok := t.Lookup(leaderID)
	if !ok {
		return nil, fmt.Errorf("leader %q is not a replica", leaderID)
	}
	t.leader = leader
	return t, nil
}

// Parse builds a topology from "id=host:port,id=host:port,..." form.
func Parse(spec, leaderID string) (*Topology, error) {
	replicas, err := ParseReplicas(spec)
	if err != nil {
		return nil, err
	}
	return New(replicas, leaderID)
}

// ParseReplicas parses "id=host:port" pairs separated by commas.
func ParseReplicas(spec string) ([]common.Instance, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("empty cluster spec")
	}
	var out []common.Instance
	for _, part := range strings.Split(spec, ",") {
		id, addr, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("bad replica %q (want id=host:port)", part)
		}
		out = append(out, common.Instance{ID: strings.TrimSpace(id), Addr: strings.TrimSpace(addr)})
	}
	return out, nil
}

// Replicas returns every replica, ordered by ID.
func (t *Topology) Replicas() []common.Instance {
	return append([]common.Instance(nil), t.replicas...)
}

// Leader returns the designated leader.
func (t *Topology) Leader() common.Instance { return t.leader }

// IsLeader reports whether id is the leader.
func (t *Topology) IsLeader(id string) bool { return t.leader.ID == id }

// Lookup finds a replica by ID.
func (t *Topology) Lookup(id string) (common.Instance, bool) {
	for _, r := range t.replicas {
		if r.ID == id {
			return r, true
		}
	}
	return common.Instance{}, false
}

// Peers returns every replica except self.
func (t *Topology) Peers(self string) []common.Instance {
	out := make([]common.Instance, 0, len(t.replicas))
	for _, r := range t.replicas {
		if r.ID != self {
			out = append(out, r)
		}
	}
	return out
}
