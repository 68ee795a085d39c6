package currency

import (
	"sort"

	"go.uber.org/zap"

	"tradepost/internal/inventory"
	"tradepost/internal/prototype"
	"tradepost/internal/world"
)

// StackHandler backs currencies that are stack types: the balance is the holder's
// takeable unit count of that stack type.
type StackHandler struct {
	protos *prototype.Registry
	store  world.EntityStore
	index  *inventory.Index
	queue  *world.DeferredQueue
	logger *zap.Logger
}

// NewStackHandler creates the stack-type currency handler.
func NewStackHandler(protos *prototype.Registry, store world.EntityStore, index *inventory.Index, queue *world.DeferredQueue, logger *zap.Logger) *StackHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StackHandler{protos: protos, store: store, index: index, queue: queue, logger: logger}
}

// CanHandle accepts any stack type whose spawn prototype exists.
func (h *StackHandler) CanHandle(currency string) bool {
	st, ok := h.protos.StackType(currency)
	if !ok {
		return false
	}
	_, ok = h.protos.Entity(st.Spawn)
	return ok
}

// TryGetBalance implements Handler.
func (h *StackHandler) TryGetBalance(snap *inventory.Snapshot, currency string) (int64, bool) {
	return snap.Takeable.ByStackType[currency], true
}

// TryTake drains the smallest stacks first and takes nothing unless the full amount is there.
func (h *StackHandler) TryTake(holder world.EntityID, currency string, amount int64) bool {
	if amount <= 0 {
		return amount == 0
	}
	var stacks []inventory.Entry
	var total int64
	for _, e := range h.index.TakeableItems(holder) {
		if e.StackType == currency {
			stacks = append(stacks, e)
			total += int64(e.Count)
		}
	}
	if total < amount {
		return false
	}
	sort.SliceStable(stacks, func(i, j int) bool { return stacks[i].Count < stacks[j].Count })
	removed := inventory.Consume(h.store, stacks, int(amount))
	if int64(removed) != amount {
		h.logger.Error("Currency take came up short",
			zap.String("currency", currency),
			zap.Int64("amount", amount),
			zap.Int("removed", removed))
		return false
	}
	return true
}

// Spawns reports how many new chunks Give would spawn for amount once the holder's
// existing stacks are topped up.
func (h *StackHandler) Spawns(holder world.EntityID, currency string, amount int64) (int64, bool) {
	st, ok := h.protos.StackType(currency)
	if !ok {
		return 0, false
	}
	if amount <= 0 {
		return 0, true
	}
	rest := amount
	for _, e := range h.index.TakeableItems(holder) {
		if e.StackType != currency {
			continue
		}
		if live, ok := h.store.Get(e.ID); ok && live.Stack != nil {
			rest -= int64(live.Stack.Room())
		}
		if rest <= 0 {
			return 0, true
		}
	}
	if st.MaxCount <= 0 {
		return 1, true
	}
	chunk := int64(st.MaxCount)
	return (rest + chunk - 1) / chunk, true
}

// Give tops up existing stacks before spawning new chunks next to the holder.
// Spawned chunks are picked up on the next tick.
func (h *StackHandler) Give(holder world.EntityID, currency string, amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	st, ok := h.protos.StackType(currency)
	if !ok {
		h.logger.Warn("Unknown currency stack type", zap.String("currency", currency))
		return 0
	}
	remaining := amount

	for _, e := range h.index.TakeableItems(holder) {
		if remaining == 0 {
			break
		}
		if e.StackType != currency {
			continue
		}
		live, ok := h.store.Get(e.ID)
		if !ok || live.Stack == nil {
			continue
		}
		room := int64(live.Stack.Room())
		if room <= 0 {
			continue
		}
		add := minInt64(remaining, room)
		if h.store.SetStackCount(e.ID, live.Stack.Count+int(add)) {
			remaining -= add
		}
	}

	if remaining > 0 {
		at := world.Coordinates{}
		if root, ok := h.store.Get(h.store.Root(holder)); ok {
			at = root.Coords
		}
		spawned, delivered := world.SpawnUnits(h.store, st.Spawn, at, int(remaining))
		world.PickupLater(h.queue, h.store, holder, spawned)
		remaining -= int64(delivered)
	}
	return amount - remaining
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
