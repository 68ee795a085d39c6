package dynstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/models"
)

func state() State {
	return State{
		StoreID:  "s",
		Balances: map[string]int64{"Credits": 45},
		Stock:    map[string]int{"buy-widget": 5},
		Owned:    map[string]int{"sell-gold": 0},
		Contracts: map[string]models.ContractProgress{
			"fetch": {Progress: 0, Required: 3},
		},
	}
}

func TestFirstDiffIsFullState(t *testing.T) {
	s := NewSynchronizer()
	ev, ok := s.Diff("alice", state())
	require.True(t, ok)
	assert.Equal(t, int64(45), ev.Balances["Credits"])
	assert.Equal(t, 5, ev.Stock["buy-widget"])
	assert.Contains(t, ev.Owned, "sell-gold")
	assert.Equal(t, "alice", ev.Session)
}

func TestUnchangedStateIsNotResent(t *testing.T) {
	s := NewSynchronizer()
	_, ok := s.Diff("alice", state())
	require.True(t, ok)

	_, ok = s.Diff("alice", state())
	assert.False(t, ok)
}

func TestDiffCarriesOnlyChanges(t *testing.T) {
	s := NewSynchronizer()
	s.Diff("alice", state())

	next := state()
	next.Balances["Credits"] = 5
	next.Stock["buy-widget"] = 1
	delete(next.Contracts, "fetch")
	next.Contracts["ore-mix"] = models.ContractProgress{Required: 5}

	ev, ok := s.Diff("alice", next)
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"Credits": 5}, ev.Balances)
	assert.Equal(t, map[string]int{"buy-widget": 1}, ev.Stock)
	assert.Nil(t, ev.Owned)
	assert.Equal(t, []string{"fetch"}, ev.Removed)
	assert.Contains(t, ev.Contracts, "ore-mix")
}

func TestSessionsAndStoresAreIndependent(t *testing.T) {
	s := NewSynchronizer()
	s.Diff("alice", state())

	_, ok := s.Diff("bob", state())
	assert.True(t, ok)

	other := state()
	other.StoreID = "t"
	ev, ok := s.Diff("alice", other)
	require.True(t, ok)
	assert.Empty(t, ev.Removed)
	assert.Equal(t, int64(45), ev.Balances["Credits"])

	s.Forget("alice")
	_, ok = s.Diff("alice", other)
	assert.True(t, ok)
}

func TestCallerMutationsDoNotLeakIntoHistory(t *testing.T) {
	s := NewSynchronizer()
	st := state()
	s.Diff("alice", st)
	st.Balances["Credits"] = 1

	ev, ok := s.Diff("alice", st)
	require.True(t, ok)
	assert.Equal(t, int64(1), ev.Balances["Credits"])
}
