package economy

import (
	"sort"

	"go.uber.org/zap"

	"tradepost/internal/catalog"
	"tradepost/internal/claim"
	"tradepost/internal/contracts"
	"tradepost/internal/currency"
	"tradepost/internal/dynstate"
	"tradepost/internal/inventory"
	"tradepost/internal/models"
	"tradepost/internal/prototype"
	"tradepost/internal/trade"
	"tradepost/internal/world"
)

// Options tune the engine.
type Options struct {
	CooldownCap int
	Seed        int64
}

// Engine owns every store and runs all economy operations on the caller's goroutine.
// It is not safe for concurrent use; callers serialize access.
type Engine struct {
	protos     *prototype.Registry
	entities   *world.MemoryStore
	queue      *world.DeferredQueue
	index      *inventory.Index
	currencies *currency.Registry
	planner    *trade.Planner
	generator  *contracts.Generator
	claims     *claim.Engine

	stores   map[string]*models.Store
	catalogs map[string]*catalog.Catalog
	sender   *catalog.Sender
	sync     *dynstate.Synchronizer

	ticks  uint64
	logger *zap.Logger
}

// New wires an engine over an entity store.
func New(protos *prototype.Registry, entities *world.MemoryStore, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	queue := &world.DeferredQueue{}
	index := inventory.NewIndex(entities, protos, logger.Named("inventory"))
	entities.AddObserver(index)

	currencies := currency.NewRegistry(protos, logger.Named("currency"))
	currencies.Register(currency.NewStackHandler(protos, entities, index, queue, logger.Named("currency")))

	generator := contracts.NewGenerator(protos, world.NewRandom(opts.Seed), opts.CooldownCap, logger.Named("contracts"))

	return &Engine{
		protos:     protos,
		entities:   entities,
		queue:      queue,
		index:      index,
		currencies: currencies,
		planner:    trade.NewPlanner(protos, entities, index, currencies, queue, logger.Named("trade")),
		generator:  generator,
		claims:     claim.NewEngine(protos, entities, index, currencies, queue, generator, logger.Named("claim")),
		stores:     make(map[string]*models.Store),
		catalogs:   make(map[string]*catalog.Catalog),
		sender:     catalog.NewSender(),
		sync:       dynstate.NewSynchronizer(),
		logger:     logger,
	}
}

// LoadStore instantiates a store from a preset and fills its contract slots.
func (e *Engine) LoadStore(storeID, presetID string, at world.Coordinates) (*models.Store, bool) {
	if s, ok := e.stores[storeID]; ok {
		return s, false
	}
	preset, ok := e.protos.Store(presetID)
	if !ok {
		e.logger.Warn("Unknown store preset", zap.String("store", storeID), zap.String("preset", presetID))
		return nil, false
	}
	s := models.NewStore(storeID, presetID, at)
	s.Whitelist = append([]string(nil), preset.Currencies...)
	s.Packs = append([]string(nil), preset.Packs...)
	listings := catalog.BuildListings(e.protos, preset, e.logger)
	for _, l := range listings {
		s.AddListing(l)
	}
	e.stores[storeID] = s
	e.catalogs[storeID] = catalog.New(storeID, s.Listings(""))

	added := e.generator.Refill(s)
	e.logger.Info("Store loaded",
		zap.String("store", storeID),
		zap.String("preset", presetID),
		zap.Int("listings", len(listings)),
		zap.Int("contracts", len(added)))
	return s, true
}

// Store returns a loaded store.
func (e *Engine) Store(id string) (*models.Store, bool) {
	s, ok := e.stores[id]
	return s, ok
}

// StoreIDs lists loaded stores in sorted order.
func (e *Engine) StoreIDs() []string {
	ids := make([]string, 0, len(e.stores))
	for id := range e.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Buy runs a purchase against a loaded store.
func (e *Engine) Buy(storeID, listingID string, holder world.EntityID, count int) trade.Result {
	s, ok := e.stores[storeID]
	if !ok {
		return trade.Result{ListingID: listingID, Failure: models.TradeStoreMissing}
	}
	return e.planner.Buy(s, listingID, holder, count)
}

// Sell runs a sale against a loaded store.
func (e *Engine) Sell(storeID, listingID string, holder world.EntityID, count int) trade.Result {
	s, ok := e.stores[storeID]
	if !ok {
		return trade.Result{ListingID: listingID, Failure: models.TradeStoreMissing}
	}
	return e.planner.Sell(s, listingID, holder, count)
}

// MassSell sells a crate's contents to a loaded store.
func (e *Engine) MassSell(storeID string, seller, crate world.EntityID) trade.Result {
	s, ok := e.stores[storeID]
	if !ok {
		return trade.Result{Failure: models.TradeStoreMissing}
	}
	return e.planner.MassSell(s, seller, crate)
}

// Claim hands in a contract at a loaded store.
func (e *Engine) Claim(storeID, contractID string, user, crate world.EntityID) claim.Result {
	s, ok := e.stores[storeID]
	if !ok {
		return claim.Result{ContractID: contractID, Failure: models.ClaimStoreMissing}
	}
	return e.claims.Claim(s, contractID, user, crate)
}

// VisibleListings returns copies of a store's listings, optionally filtered by mode, ordered by id.
func (e *Engine) VisibleListings(storeID string, mode models.ListingMode) ([]models.Listing, bool) {
	s, ok := e.stores[storeID]
	if !ok {
		return nil, false
	}
	listings := s.Listings(mode)
	out := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.Clone())
	}
	return out, true
}

// Contracts returns a store's active contracts ordered by id.
func (e *Engine) Contracts(storeID string) ([]models.Contract, bool) {
	s, ok := e.stores[storeID]
	if !ok {
		return nil, false
	}
	out := make([]models.Contract, 0, len(s.Contracts))
	for _, id := range s.ActiveContractIDs() {
		out = append(out, *s.Contracts[id])
	}
	return out, true
}

// Catalog returns the static catalog of a loaded store.
func (e *Engine) Catalog(storeID string) (*catalog.Catalog, bool) {
	c, ok := e.catalogs[storeID]
	return c, ok
}

// CatalogFor returns the catalog push for a session, or false when the session already has this revision.
func (e *Engine) CatalogFor(session, storeID string) (*models.CatalogPushEvent, bool) {
	c, ok := e.catalogs[storeID]
	if !ok || !e.sender.ShouldSend(session, c) {
		return nil, false
	}
	return c.PushEvent(session), true
}

// DynamicState reads balances, stock, owned counts and contract progress for holder at a store.
func (e *Engine) DynamicState(storeID string, holder world.EntityID) (dynstate.State, bool) {
	s, ok := e.stores[storeID]
	if !ok {
		return dynstate.State{}, false
	}
	st := dynstate.State{
		StoreID:   storeID,
		Stock:     make(map[string]int),
		Owned:     make(map[string]int),
		Contracts: make(map[string]models.ContractProgress),
	}

	var snap *inventory.Snapshot
	if e.entities.Exists(holder) {
		snap = e.index.BuildSnapshot(holder)
	}
	currencies := append([]string(nil), s.Whitelist...)
	for _, l := range s.Listings("") {
		st.Stock[l.ID] = l.Remaining
		currencies = append(currencies, l.Currencies()...)
		if l.Mode == models.ModeSell && snap != nil {
			st.Owned[l.ID] = int(snap.Takeable.Matching(l.Product, l.Match) / int64(l.Units))
		}
	}
	if snap != nil {
		st.Balances = e.currencies.Balances(snap, dedupe(currencies))
	}
	for id, c := range s.Contracts {
		st.Contracts[id] = models.ContractProgress{Progress: c.TotalProgress(), Required: c.TotalRequired()}
	}
	return st, true
}

// SyncState returns the dynamic-state delta for a session, or false when nothing changed.
func (e *Engine) SyncState(session, storeID string, holder world.EntityID) (*models.DynamicStateEvent, bool) {
	st, ok := e.DynamicState(storeID, holder)
	if !ok {
		return nil, false
	}
	return e.sync.Diff(session, st)
}

// ForgetSession drops catalog and state history for a session.
func (e *Engine) ForgetSession(session string) {
	e.sender.Forget(session)
	e.sync.Forget(session)
}

// Tick runs deferred actions queued during the previous tick and returns how many ran.
func (e *Engine) Tick() int {
	e.ticks++
	return e.queue.Drain()
}

// Ticks returns the number of ticks processed.
func (e *Engine) Ticks() uint64 {
	return e.ticks
}

// Reload swaps prototype data. Loaded stores keep their listings and contracts.
func (e *Engine) Reload(doc *prototype.Document) error {
	return e.protos.Reload(doc)
}

// Entities exposes the entity store.
func (e *Engine) Entities() *world.MemoryStore {
	return e.entities
}

// Balance reads one currency balance of holder.
func (e *Engine) Balance(holder world.EntityID, currencyID string) int64 {
	if !e.entities.Exists(holder) {
		return 0
	}
	b, _ := e.currencies.TryGetBalance(e.index.BuildSnapshot(holder), currencyID)
	return b
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
