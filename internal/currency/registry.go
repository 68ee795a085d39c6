package currency

import (
	"go.uber.org/zap"

	"tradepost/internal/inventory"
	"tradepost/internal/prototype"
	"tradepost/internal/world"
)

// Handler moves one family of currencies in and out of holders.
type Handler interface {
	CanHandle(currency string) bool
	TryGetBalance(snap *inventory.Snapshot, currency string) (int64, bool)
	TryTake(holder world.EntityID, currency string, amount int64) bool
	Give(holder world.EntityID, currency string, amount int64) int64
	// Spawns reports how many new entities Give needs to deliver amount in full.
	Spawns(holder world.EntityID, currency string, amount int64) (int64, bool)
}

// MaxPayoutSpawns bounds the entities one payout may spawn.
const MaxPayoutSpawns = 4096

// Registry resolves currency ids to handlers. Resolutions, including misses, are
// cached until prototypes reload.
type Registry struct {
	handlers []Handler
	resolved map[string]Handler
	logger   *zap.Logger
}

// NewRegistry creates an empty registry that invalidates its cache on prototype reload.
func NewRegistry(protos *prototype.Registry, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{resolved: make(map[string]Handler), logger: logger}
	if protos != nil {
		protos.OnReload(r.invalidate)
	}
	return r
}

func (r *Registry) invalidate() {
	r.resolved = make(map[string]Handler)
}

// Register appends a handler. Earlier handlers win.
func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
	r.invalidate()
}

// Resolve finds the handler for a currency.
func (r *Registry) Resolve(currency string) (Handler, bool) {
	if h, ok := r.resolved[currency]; ok {
		return h, h != nil
	}
	var found Handler
	for _, h := range r.handlers {
		if h.CanHandle(currency) {
			found = h
			break
		}
	}
	if found == nil {
		r.logger.Warn("No handler for currency", zap.String("currency", currency))
	}
	r.resolved[currency] = found
	return found, found != nil
}

// CanHandle reports whether any handler accepts the currency.
func (r *Registry) CanHandle(currency string) bool {
	_, ok := r.Resolve(currency)
	return ok
}

// TryGetBalance reads a balance from a snapshot.
func (r *Registry) TryGetBalance(snap *inventory.Snapshot, currency string) (int64, bool) {
	h, ok := r.Resolve(currency)
	if !ok || snap == nil {
		return 0, false
	}
	return h.TryGetBalance(snap, currency)
}

// TryTake removes exactly amount or nothing.
func (r *Registry) TryTake(holder world.EntityID, currency string, amount int64) bool {
	h, ok := r.Resolve(currency)
	if !ok {
		return false
	}
	return h.TryTake(holder, currency, amount)
}

// Give credits up to amount and returns what was actually handed out.
func (r *Registry) Give(holder world.EntityID, currency string, amount int64) int64 {
	h, ok := r.Resolve(currency)
	if !ok {
		return 0
	}
	return h.Give(holder, currency, amount)
}

// CanGive reports whether every payout can be delivered to holder in full, given free
// spawn slots (-1 for unlimited). Payouts are checked together since they share slots.
func (r *Registry) CanGive(holder world.EntityID, payouts map[string]int64, free int) bool {
	var need int64
	for c, amount := range payouts {
		if amount <= 0 {
			continue
		}
		h, ok := r.Resolve(c)
		if !ok {
			return false
		}
		n, ok := h.Spawns(holder, c, amount)
		if !ok {
			return false
		}
		need += n
		if need > MaxPayoutSpawns {
			r.logger.Warn("Payout needs too many spawns",
				zap.String("currency", c), zap.Int64("amount", amount), zap.Int64("spawns", need))
			return false
		}
	}
	return free < 0 || need <= int64(free)
}

// Balances reads several balances at once; unknown currencies are skipped.
func (r *Registry) Balances(snap *inventory.Snapshot, currencies []string) map[string]int64 {
	out := make(map[string]int64, len(currencies))
	for _, c := range currencies {
		if b, ok := r.TryGetBalance(snap, c); ok {
			out[c] = b
		}
	}
	return out
}
