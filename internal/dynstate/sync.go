package dynstate

import (
	"sort"

	"tradepost/internal/models"
)

// State is the mutable part of a store as one holder sees it.
type State struct {
	StoreID   string
	Balances  map[string]int64
	Stock     map[string]int
	Owned     map[string]int
	Contracts map[string]models.ContractProgress
}

// Synchronizer remembers the last state pushed to each session and emits only changes.
type Synchronizer struct {
	last map[string]State
}

// NewSynchronizer creates an empty synchronizer.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{last: make(map[string]State)}
}

// Diff compares next with what the session last received. It returns false when nothing changed.
func (s *Synchronizer) Diff(session string, next State) (*models.DynamicStateEvent, bool) {
	prev, seen := s.last[session]
	if seen && prev.StoreID != next.StoreID {
		seen = false
		prev = State{}
	}
	ev := &models.DynamicStateEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeDynamicState},
		Session:   session,
		StoreID:   next.StoreID,
		Balances:  diffMap(prev.Balances, next.Balances),
		Stock:     diffMap(prev.Stock, next.Stock),
		Owned:     diffMap(prev.Owned, next.Owned),
		Contracts: diffMap(prev.Contracts, next.Contracts),
	}
	for id := range prev.Contracts {
		if _, ok := next.Contracts[id]; !ok {
			ev.Removed = append(ev.Removed, id)
		}
	}
	sort.Strings(ev.Removed)
	s.last[session] = clone(next)

	changed := !seen || len(ev.Balances) > 0 || len(ev.Stock) > 0 || len(ev.Owned) > 0 ||
		len(ev.Contracts) > 0 || len(ev.Removed) > 0
	if !changed {
		return nil, false
	}
	return ev, true
}

// Forget drops a session so its next Diff is a full state.
func (s *Synchronizer) Forget(session string) {
	delete(s.last, session)
}

func diffMap[V comparable](prev, next map[string]V) map[string]V {
	var out map[string]V
	for k, v := range next {
		if old, ok := prev[k]; ok && old == v {
			continue
		}
		if out == nil {
			out = make(map[string]V)
		}
		out[k] = v
	}
	return out
}

func copyMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clone(st State) State {
	return State{
		StoreID:   st.StoreID,
		Balances:  copyMap(st.Balances),
		Stock:     copyMap(st.Stock),
		Owned:     copyMap(st.Owned),
		Contracts: copyMap(st.Contracts),
	}
}
