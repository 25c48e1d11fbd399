package lb

import (
	"testing"

	"example.com/replicated-kv/common"
	"github.com/coreos/etcd/pkg/testutil"
)

var replicas = []common.Instance{
	{ID: "a", Addr: "h:1"},
	{ID: "b", Addr: "h:2"},
	{ID: "c", Addr: "h:3"},
}

func TestRoundRobin(t *testing.T) {
	p := NewRoundRobin(replicas)
	var got []string
	for i := 0; i < 6; i++ {
		r, err := p.Pick()
		testutil.AssertNil(t, err)
		got = append(got, r.ID)
	}
	testutil.AssertEqual(t, []string{"a", "b", "c", "a", "b", "c"}, got)
}

func TestRandomCoversAllReplicas(t *testing.T) {
	p := NewRandom(replicas, 1)
	seen := map[string]int{}
	for i := 0; i < 300; i++ {
		r, err := p.Pick()
		testutil.AssertNil(t, err)
		seen[r.ID]++
	}
	for _, r := range replicas {
		if seen[r.ID] == 0 {
			t.Fatalf("replica %s never picked: %v", r.ID, seen)
		}
	}
}

func TestEmpty(t *testing.T) {
	for _, p := range []Picker{NewRandom(nil, 1), NewRoundRobin(nil)} {
		_, err := p.Pick()
		testutil.AssertEqual(t, ErrNoReplicas, err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		algo string
		name string
		ok   bool
	}{
		{"", "random", true},
		{"random", "random", true},
		{"rr", "round_robin", true},
		{"wrr", "", false},
	}
	for i, tt := range tests {
		p, err := New(tt.algo, replicas)
		if (err == nil) != tt.ok {
			t.Fatalf("#%d: err = %v, want ok=%v", i, err, tt.ok)
		}
		if tt.ok && p.Name() != tt.name {
			t.Fatalf("#%d: name = %q, want %q", i, p.Name(), tt.name)
		}
	}
}

func TestFixed(t *testing.T) {
	p := Fixed(replicas[1])
	r, err := p.Pick()
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, "b", r.ID)
}
