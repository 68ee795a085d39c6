package trade

import (
	"go.uber.org/zap"

	"tradepost/internal/inventory"
	"tradepost/internal/models"
	"tradepost/internal/world"
)

// Sell buys up to requested purchases of a sell listing's product from root and credits root.
func (p *Planner) Sell(s *models.Store, listingID string, root world.EntityID, requested int) Result {
	l, ok := s.Listing(listingID)
	if !ok {
		return fail(listingID, models.TradeInvalidListing)
	}
	if l.Mode != models.ModeSell {
		return fail(listingID, models.TradeWrongMode)
	}
	if requested <= 0 {
		return fail(listingID, models.TradeInvalidCount)
	}
	if !p.store.Exists(root) {
		return fail(listingID, models.TradeHolderMissing)
	}
	cur, price, ok := p.payoutCurrency(s, l)
	if !ok {
		return fail(listingID, models.TradeNoCurrency)
	}

	snap := p.index.BuildSnapshot(root)
	owned := snap.Takeable.Matching(l.Product, l.Match) / int64(l.Units)
	if owned <= 0 {
		return fail(listingID, models.TradeNothingToSell)
	}
	actual := minInt64(owned, int64(l.Available()), int64(requested))
	if actual <= 0 {
		return fail(listingID, models.TradeOutOfStock)
	}
	planned, ok := mulInt64(price, actual)
	if !ok {
		return fail(listingID, models.TradePriceOverflow)
	}
	if !p.currencies.CanGive(root, map[string]int64{cur: planned}, world.FreeSlots(p.store)) {
		return fail(listingID, models.TradeDeliveryFailed)
	}

	entries := p.matching(p.index.TakeableItems(root), l.Product, l.Match)
	removed := inventory.Consume(p.store, entries, int(actual)*l.Units)
	sold := removed / l.Units
	if removed%l.Units != 0 {
		p.logger.Warn("Sell consumed a partial purchase",
			zap.String("listing", l.ID), zap.Int("removed", removed), zap.Int("units", l.Units))
	}
	if sold == 0 {
		return fail(listingID, models.TradeNothingToSell)
	}

	amount := price * int64(sold)
	if given := p.currencies.Give(root, cur, amount); given != amount {
		p.logger.Error("Sell payout incomplete",
			zap.String("listing", l.ID), zap.Int64("amount", amount), zap.Int64("given", given))
	}
	l.Consume(sold)

	return Result{
		OK:        true,
		ListingID: l.ID,
		Currency:  cur,
		Count:     sold,
		Amount:    amount,
		Steps:     []Step{{ListingID: l.ID, Currency: cur, Price: price, Count: sold, Amount: amount}},
	}
}

func (p *Planner) matches(proto, product string, match models.MatchMode) bool {
	if match == models.MatchDescendant {
		return p.protos.IsDescendant(proto, product)
	}
	return proto == product
}

func (p *Planner) matching(entries []inventory.Entry, product string, match models.MatchMode) []inventory.Entry {
	var out []inventory.Entry
	for _, e := range entries {
		if p.matches(e.Proto, product, match) {
			out = append(out, e)
		}
	}
	return out
}
