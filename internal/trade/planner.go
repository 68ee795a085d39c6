package trade

import (
	"math"

	"go.uber.org/zap"

	"tradepost/internal/currency"
	"tradepost/internal/inventory"
	"tradepost/internal/models"
	"tradepost/internal/prototype"
	"tradepost/internal/world"
)

// Step is one executed (listing, currency) leg of a trade.
type Step struct {
	ListingID string `json:"listing_id"`
	Currency  string `json:"currency"`
	Price     int64  `json:"price"`
	Count     int    `json:"count"`
	Amount    int64  `json:"amount"`
}

// Result is the outcome of a buy, sell or mass-sell. Failure is empty on success.
type Result struct {
	OK        bool
	Failure   models.TradeFailure
	ListingID string
	Currency  string
	// Count is purchases delivered for a buy and purchases paid for a sell.
	Count    int
	Amount   int64
	Refunded int64
	Earned   map[string]int64
	Steps    []Step
}

func fail(listing string, reason models.TradeFailure) Result {
	return Result{ListingID: listing, Failure: reason}
}

// Planner executes trades against a store's listings. It is not safe for concurrent use.
type Planner struct {
	protos     *prototype.Registry
	store      world.EntityStore
	index      *inventory.Index
	currencies *currency.Registry
	queue      *world.DeferredQueue
	logger     *zap.Logger
}

// NewPlanner wires a planner to its collaborators.
func NewPlanner(protos *prototype.Registry, store world.EntityStore, index *inventory.Index, currencies *currency.Registry, queue *world.DeferredQueue, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		protos:     protos,
		store:      store,
		index:      index,
		currencies: currencies,
		queue:      queue,
		logger:     logger,
	}
}

// currencyOrder lists the listing's priced currencies, store whitelist order first,
// then the rest by id.
func currencyOrder(s *models.Store, l *models.Listing) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, c := range s.Whitelist {
		if _, ok := l.Price(c); !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, c := range l.Currencies() {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// payoutCurrency picks the currency a sell listing pays out in.
func (p *Planner) payoutCurrency(s *models.Store, l *models.Listing) (string, int64, bool) {
	for _, c := range currencyOrder(s, l) {
		if !p.currencies.CanHandle(c) {
			continue
		}
		price, _ := l.Price(c)
		return c, price, true
	}
	return "", 0, false
}

func (p *Planner) holderCoords(holder world.EntityID) world.Coordinates {
	if root, ok := p.store.Get(p.store.Root(holder)); ok {
		return root.Coords
	}
	return world.Coordinates{}
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a < 0 || b < 0 {
		return 0, false
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

func addInt64(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

func minInt64(vals ...int64) int64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
