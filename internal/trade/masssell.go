package trade

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"tradepost/internal/inventory"
	"tradepost/internal/models"
	"tradepost/internal/world"
)

type claimPart struct {
	proto string
	units int64
}

type massStep struct {
	listing  *models.Listing
	currency string
	price    int64
	count    int64
	parts    []claimPart
}

type rankedListing struct {
	listing  *models.Listing
	currency string
	price    int64
	depth    int
}

// MassSell sells everything in crate that any sell listing accepts and pays seller.
// Higher prices claim first, then more specific products, then listing id.
func (p *Planner) MassSell(s *models.Store, seller, crate world.EntityID) Result {
	if !p.store.Exists(crate) || !p.store.Exists(seller) || p.store.Root(crate) != crate {
		return fail("", models.TradeHolderMissing)
	}

	plan := p.planMassSell(s, crate)
	if len(plan) == 0 {
		return fail("", models.TradeNothingToSell)
	}
	return p.settleMassSell(seller, crate, plan)
}

// settleMassSell realizes each planned step against the crate as it is now and pays
// seller for what was actually taken.
func (p *Planner) settleMassSell(seller, crate world.EntityID, plan []*massStep) Result {
	plan = p.payablePlan(seller, plan)
	if len(plan) == 0 {
		return fail("", models.TradeDeliveryFailed)
	}

	earned := make(map[string]int64)
	var steps []Step
	for _, st := range plan {
		sold := p.realize(crate, st)
		if sold == 0 {
			continue
		}
		amount := st.price * sold
		total, ok := addInt64(earned[st.currency], amount)
		if !ok {
			p.logger.Error("Mass-sell earnings overflow", zap.String("currency", st.currency))
			continue
		}
		earned[st.currency] = total
		st.listing.Consume(int(sold))
		steps = append(steps, Step{
			ListingID: st.listing.ID,
			Currency:  st.currency,
			Price:     st.price,
			Count:     int(sold),
			Amount:    amount,
		})
	}
	if len(steps) == 0 {
		return fail("", models.TradeNothingToSell)
	}

	currencies := make([]string, 0, len(earned))
	for c := range earned {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		if given := p.currencies.Give(seller, c, earned[c]); given != earned[c] {
			p.logger.Error("Mass-sell payout incomplete",
				zap.String("currency", c), zap.Int64("amount", earned[c]), zap.Int64("given", given))
		}
	}

	res := Result{OK: true, Earned: earned, Steps: steps}
	for _, st := range steps {
		res.Count += st.Count
	}
	if len(currencies) == 1 {
		res.Currency = currencies[0]
		res.Amount = earned[currencies[0]]
	}
	return res
}

// payablePlan drops the lowest ranked steps until the planned earnings can be paid out
// in full.
func (p *Planner) payablePlan(seller world.EntityID, plan []*massStep) []*massStep {
	free := world.FreeSlots(p.store)
	for len(plan) > 0 {
		earnings, ok := plannedEarnings(plan)
		if ok && p.currencies.CanGive(seller, earnings, free) {
			return plan
		}
		dropped := plan[len(plan)-1]
		p.logger.Warn("Mass-sell step dropped, payout cannot be delivered",
			zap.String("listing", dropped.listing.ID),
			zap.Int64("planned", dropped.count))
		plan = plan[:len(plan)-1]
	}
	return nil
}

func plannedEarnings(plan []*massStep) (map[string]int64, bool) {
	earnings := make(map[string]int64)
	for _, st := range plan {
		amount, ok := mulInt64(st.price, st.count)
		if !ok {
			return nil, false
		}
		if earnings[st.currency], ok = addInt64(earnings[st.currency], amount); !ok {
			return nil, false
		}
	}
	return earnings, true
}

func (p *Planner) rankSellListings(s *models.Store) []rankedListing {
	var ranked []rankedListing
	for _, l := range s.Listings(models.ModeSell) {
		if l.Available() <= 0 {
			continue
		}
		cur, price, ok := p.payoutCurrency(s, l)
		if !ok {
			continue
		}
		ranked = append(ranked, rankedListing{listing: l, currency: cur, price: price, depth: p.protos.Depth(l.Product)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.price != b.price {
			return a.price > b.price
		}
		if a.depth != b.depth {
			return a.depth > b.depth
		}
		return a.listing.ID < b.listing.ID
	})
	return ranked
}

// planMassSell allocates the crate's units across all sell listings at once.
func (p *Planner) planMassSell(s *models.Store, crate world.EntityID) []*massStep {
	snap := p.index.BuildSnapshot(crate)
	avail := make(map[string]int64, len(snap.Takeable.ByProto))
	protos := make([]string, 0, len(snap.Takeable.ByProto))
	for proto, n := range snap.Takeable.ByProto {
		if n > 0 {
			avail[proto] = n
			protos = append(protos, proto)
		}
	}
	sort.Slice(protos, func(i, j int) bool {
		di, dj := p.protos.Depth(protos[i]), p.protos.Depth(protos[j])
		if di != dj {
			return di > dj
		}
		return protos[i] < protos[j]
	})

	byAncestor := make(map[string][]string)
	byStackType := make(map[string][]string)
	for _, proto := range protos {
		for _, a := range p.protos.Ancestors(proto) {
			byAncestor[a] = append(byAncestor[a], proto)
		}
		if sc := p.protos.StackOf(proto); sc != nil {
			byStackType[sc.Type] = append(byStackType[sc.Type], proto)
		}
	}

	var plan []*massStep
	for _, r := range p.rankSellListings(s) {
		l := r.listing
		candidates := []string{l.Product}
		switch {
		case l.Match == models.MatchDescendant:
			candidates = byAncestor[l.Product]
		case p.protos.StackOf(l.Product) != nil:
			candidates = byStackType[p.protos.StackOf(l.Product).Type]
		}

		maxPurchases := minInt64(int64(l.Available()), math.MaxInt64/r.price)
		units := int64(l.Units)
		var pool int64
		for _, proto := range candidates {
			pool += avail[proto]
		}
		purchases := minInt64(maxPurchases, pool/units)
		if purchases <= 0 {
			continue
		}

		step := &massStep{listing: l, currency: r.currency, price: r.price, count: purchases}
		need := purchases * units
		for _, proto := range candidates {
			if need == 0 {
				break
			}
			take := minInt64(avail[proto], need)
			if take == 0 {
				continue
			}
			avail[proto] -= take
			need -= take
			step.parts = append(step.parts, claimPart{proto: proto, units: take})
		}
		plan = append(plan, step)
	}
	return plan
}

// realize executes one planned step against a fresh scan of the crate and returns the
// purchases actually taken. Missing items shrink the step instead of failing it.
func (p *Planner) realize(crate world.EntityID, st *massStep) int64 {
	entries := p.index.TakeableItems(crate)
	byProto := make(map[string][]inventory.Entry)
	for _, e := range entries {
		byProto[e.Proto] = append(byProto[e.Proto], e)
	}

	var present int64
	for _, part := range st.parts {
		var found int64
		for _, e := range byProto[part.proto] {
			found += int64(e.Count)
		}
		present += minInt64(found, part.units)
	}
	units := int64(st.listing.Units)
	purchases := minInt64(st.count, present/units)
	if purchases < st.count {
		p.logger.Warn("Mass-sell step partially realized",
			zap.String("listing", st.listing.ID),
			zap.Int64("planned", st.count),
			zap.Int64("realized", purchases))
	}
	need := purchases * units
	var taken int64
	for _, part := range st.parts {
		if need == 0 {
			break
		}
		n := minInt64(part.units, need)
		got := int64(inventory.Consume(p.store, byProto[part.proto], int(n)))
		taken += got
		need -= got
	}
	return taken / units
}
