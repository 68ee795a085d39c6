package inventory

import (
	"tradepost/internal/models"
	"tradepost/internal/prototype"
)

// Counter aggregates unit counts three ways.
type Counter struct {
	ByStackType map[string]int64
	ByProto     map[string]int64
	// ByAncestor counts every unit once under its own prototype and once under each ancestor.
	ByAncestor map[string]int64
}

func newCounter() Counter {
	return Counter{
		ByStackType: make(map[string]int64),
		ByProto:     make(map[string]int64),
		ByAncestor:  make(map[string]int64),
	}
}

func (c Counter) add(reg *prototype.Registry, e Entry) {
	n := int64(e.Count)
	if e.StackType != "" {
		c.ByStackType[e.StackType] += n
	}
	c.ByProto[e.Proto] += n
	for _, a := range reg.Ancestors(e.Proto) {
		c.ByAncestor[a] += n
	}
}

// Matching returns how many units match proto under the given match mode.
func (c Counter) Matching(proto string, match models.MatchMode) int64 {
	if match == models.MatchDescendant {
		return c.ByAncestor[proto]
	}
	return c.ByProto[proto]
}

// Snapshot is the aggregated view of a holder. Owned includes protected equipment; Takeable does not.
type Snapshot struct {
	Holder   uint64
	Owned    Counter
	Takeable Counter
}

func buildSnapshot(reg *prototype.Registry, holder uint64, entries []Entry) *Snapshot {
	s := &Snapshot{Holder: holder, Owned: newCounter(), Takeable: newCounter()}
	for _, e := range entries {
		s.Owned.add(reg, e)
		if !e.Protected {
			s.Takeable.add(reg, e)
		}
	}
	return s
}
