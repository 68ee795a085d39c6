package claim

import (
	"sort"

	"go.uber.org/zap"

	"tradepost/internal/currency"
	"tradepost/internal/inventory"
	"tradepost/internal/models"
	"tradepost/internal/prototype"
	"tradepost/internal/world"
)

// Reservation is one planned take. Nothing is mutated until every reservation validates.
type Reservation struct {
	Root   world.EntityID
	Item   world.EntityID
	Amount int
	Stack  bool
}

// Result is the outcome of a claim. Failure is empty on success.
type Result struct {
	OK         bool
	Failure    models.ClaimFailure
	ContractID string
	Rewards    []models.Reward
	Taken      []Reservation
	Refilled   []string
}

// Refiller tops up a store's contract slots after a claim.
type Refiller interface {
	Refill(s *models.Store, exclude ...string) []string
}

// Engine hands in contracts. It is not safe for concurrent use.
type Engine struct {
	protos     *prototype.Registry
	store      world.EntityStore
	index      *inventory.Index
	currencies *currency.Registry
	queue      *world.DeferredQueue
	refiller   Refiller
	logger     *zap.Logger
}

// NewEngine wires a claim engine. refiller may be nil.
func NewEngine(protos *prototype.Registry, store world.EntityStore, index *inventory.Index, currencies *currency.Registry, queue *world.DeferredQueue, refiller Refiller, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		protos:     protos,
		store:      store,
		index:      index,
		currencies: currencies,
		queue:      queue,
		refiller:   refiller,
		logger:     logger,
	}
}

func failed(contractID string, reason models.ClaimFailure) Result {
	return Result{ContractID: contractID, Failure: reason}
}

// Claim surrenders the contract's targets from crate first, then user, and pays user.
// crate zero means no crate. The claim either fully applies or changes nothing.
func (e *Engine) Claim(s *models.Store, contractID string, user, crate world.EntityID) Result {
	if s == nil {
		return failed(contractID, models.ClaimStoreMissing)
	}
	c, ok := s.Contract(contractID)
	if !ok {
		return failed(contractID, models.ClaimContractMissing)
	}
	// a crate must stand on its own; one carried by someone is not a crate to hand in from
	if crate != 0 && (!e.store.Exists(crate) || e.store.Root(crate) != crate) {
		return failed(contractID, models.ClaimMissingCrate)
	}
	if !e.store.Exists(user) {
		return failed(contractID, models.ClaimExecutionFailed)
	}

	keys, reason := e.requirements(c)
	if reason != "" {
		return failed(contractID, reason)
	}

	roots := []world.EntityID{user}
	if crate != 0 {
		roots = []world.EntityID{crate, user}
	}
	plan, ok := e.plan(keys, roots)
	if !ok {
		return failed(contractID, models.ClaimNotEnoughItems)
	}

	if !e.validate(plan) {
		e.logger.Warn("Claim plan went stale", zap.String("store", s.ID), zap.String("contract", contractID))
		return failed(contractID, models.ClaimExecutionFailed)
	}
	if !e.payable(user, c.Rewards) {
		e.logger.Warn("Claim rewards cannot be delivered", zap.String("store", s.ID), zap.String("contract", contractID))
		return failed(contractID, models.ClaimExecutionFailed)
	}
	e.execute(plan)
	for _, r := range roots {
		e.index.NotifyMutated(r)
	}

	for i := range c.Targets {
		c.Targets[i].Progress = c.Targets[i].Required
	}
	e.disburse(user, c.Rewards)

	delete(s.Contracts, c.ID)
	if !c.Repeatable {
		s.MarkCompleted(c.ID)
	}
	res := Result{OK: true, ContractID: c.ID, Rewards: c.Rewards, Taken: plan}
	if e.refiller != nil {
		res.Refilled = e.refiller.Refill(s, c.ID)
	}
	return res
}

type requirement struct {
	proto  string
	match  models.MatchMode
	amount int
	depth  int
}

// requirements merges targets by (prototype, match) and orders them deepest prototype first.
func (e *Engine) requirements(c *models.Contract) ([]requirement, models.ClaimFailure) {
	if len(c.Targets) == 0 {
		return nil, models.ClaimNoValidTargets
	}
	type key struct {
		proto string
		match models.MatchMode
	}
	merged := make(map[key]int)
	for _, t := range c.Targets {
		if t.Required <= 0 {
			return nil, models.ClaimInvalidTarget
		}
		if _, ok := e.protos.Entity(t.Proto); !ok {
			return nil, models.ClaimInvalidTarget
		}
		merged[key{t.Proto, t.Match}] += t.Required
	}
	out := make([]requirement, 0, len(merged))
	for k, n := range merged {
		out = append(out, requirement{proto: k.proto, match: k.match, amount: n, depth: e.protos.Depth(k.proto)})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.depth != b.depth {
			return a.depth > b.depth
		}
		if a.match != b.match {
			return a.match == models.MatchExact
		}
		return a.proto < b.proto
	})
	return out, ""
}

func (e *Engine) matches(proto string, r requirement) bool {
	if r.match == models.MatchDescendant {
		return e.protos.IsDescendant(proto, r.proto)
	}
	return proto == r.proto
}

// plan reserves every requirement against the roots in order, tracking what is left of
// each item so two requirements never reserve the same units.
func (e *Engine) plan(reqs []requirement, roots []world.EntityID) ([]Reservation, bool) {
	items := make([][]inventory.Entry, len(roots))
	for i, r := range roots {
		items[i] = e.index.TakeableItems(r)
	}
	remaining := make(map[world.EntityID]int)
	for _, list := range items {
		for _, it := range list {
			remaining[it.ID] = it.Count
		}
	}

	var plan []Reservation
	for _, req := range reqs {
		need := req.amount
		for i, root := range roots {
			for _, it := range items[i] {
				if need == 0 {
					break
				}
				if remaining[it.ID] == 0 || !e.matches(it.Proto, req) {
					continue
				}
				take := remaining[it.ID]
				if take > need {
					take = need
				}
				remaining[it.ID] -= take
				need -= take
				plan = append(plan, Reservation{Root: root, Item: it.ID, Amount: take, Stack: it.Stackable()})
			}
		}
		if need > 0 {
			return nil, false
		}
	}
	return plan, true
}

func totals(plan []Reservation) (map[world.EntityID]int, []world.EntityID) {
	sum := make(map[world.EntityID]int)
	var order []world.EntityID
	for _, r := range plan {
		if _, seen := sum[r.Item]; !seen {
			order = append(order, r.Item)
		}
		sum[r.Item] += r.Amount
	}
	return sum, order
}

// validate re-reads every reserved item right before execution.
func (e *Engine) validate(plan []Reservation) bool {
	sum, _ := totals(plan)
	for _, r := range plan {
		live, ok := e.store.Get(r.Item)
		if !ok {
			return false
		}
		if e.store.Root(r.Item) != r.Root {
			return false
		}
		if r.Stack {
			if live.Stack == nil || live.Stack.Count < sum[r.Item] {
				return false
			}
			continue
		}
		if live.Stack != nil || sum[r.Item] != 1 {
			return false
		}
	}
	return true
}

func (e *Engine) execute(plan []Reservation) {
	sum, order := totals(plan)
	for _, id := range order {
		live, ok := e.store.Get(id)
		if !ok {
			continue
		}
		if live.Stack != nil && live.Stack.Count > sum[id] {
			e.store.SetStackCount(id, live.Stack.Count-sum[id])
			continue
		}
		e.store.Delete(id)
	}
}

// payable reports whether every reward fits the store's free entity slots.
func (e *Engine) payable(user world.EntityID, rewards []models.Reward) bool {
	free := world.FreeSlots(e.store)
	payouts := make(map[string]int64)
	var items int64
	for _, r := range rewards {
		switch r.Kind {
		case models.RewardCurrency:
			if e.currencies.CanHandle(r.ID) {
				payouts[r.ID] += r.Amount
			}
		case models.RewardItem:
			items += e.itemSpawns(r.ID, r.Amount)
		}
	}
	if free >= 0 {
		if items > int64(free) {
			return false
		}
		free -= int(items)
	}
	return e.currencies.CanGive(user, payouts, free)
}

func (e *Engine) itemSpawns(proto string, amount int64) int64 {
	sc := e.protos.StackOf(proto)
	if sc == nil {
		return amount
	}
	st, ok := e.protos.StackType(sc.Type)
	if !ok || st.MaxCount <= 0 {
		return 1
	}
	return (amount + int64(st.MaxCount) - 1) / int64(st.MaxCount)
}

func (e *Engine) disburse(user world.EntityID, rewards []models.Reward) {
	at := world.Coordinates{}
	if root, ok := e.store.Get(e.store.Root(user)); ok {
		at = root.Coords
	}
	for _, r := range rewards {
		switch r.Kind {
		case models.RewardCurrency:
			if given := e.currencies.Give(user, r.ID, r.Amount); given != r.Amount {
				e.logger.Error("Currency reward incomplete",
					zap.String("currency", r.ID), zap.Int64("amount", r.Amount), zap.Int64("given", given))
			}
		case models.RewardItem:
			spawned, n := world.SpawnUnits(e.store, r.ID, at, int(r.Amount))
			world.PickupLater(e.queue, e.store, user, spawned)
			if int64(n) != r.Amount {
				e.logger.Error("Item reward incomplete",
					zap.String("proto", r.ID), zap.Int64("amount", r.Amount), zap.Int("spawned", n))
			}
		}
	}
}
