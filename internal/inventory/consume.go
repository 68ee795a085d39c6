package inventory

import "tradepost/internal/world"

// Consume removes up to amount units from entries in order. Stacks are decremented and
// deleted at zero; singular items are deleted. It returns the number of units removed.
func Consume(store world.EntityStore, entries []Entry, amount int) int {
	removed := 0
	for _, e := range entries {
		if removed >= amount {
			break
		}
		live, ok := store.Get(e.ID)
		if !ok {
			continue
		}
		if live.Stack == nil {
			store.Delete(e.ID)
			removed++
			continue
		}
		need := amount - removed
		if live.Stack.Count <= need {
			removed += live.Stack.Count
			store.Delete(e.ID)
			continue
		}
		if store.SetStackCount(e.ID, live.Stack.Count-need) {
			removed += need
		}
	}
	return removed
}
