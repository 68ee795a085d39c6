package trade

import (
	"go.uber.org/zap"

	"tradepost/internal/inventory"
	"tradepost/internal/models"
	"tradepost/internal/world"
)

// Buy sells up to requested purchases of a buy listing to holder. The full price is debited
// before delivery; purchases that cannot be spawned are refunded and do not consume stock.
func (p *Planner) Buy(s *models.Store, listingID string, holder world.EntityID, requested int) Result {
	l, ok := s.Listing(listingID)
	if !ok {
		return fail(listingID, models.TradeInvalidListing)
	}
	if l.Mode != models.ModeBuy {
		return fail(listingID, models.TradeWrongMode)
	}
	if requested <= 0 {
		return fail(listingID, models.TradeInvalidCount)
	}
	if !p.store.Exists(holder) {
		return fail(listingID, models.TradeHolderMissing)
	}
	available := l.Available()
	if available <= 0 {
		return fail(listingID, models.TradeOutOfStock)
	}

	snap := p.index.BuildSnapshot(holder)
	cur, price, balance, reason := p.resolvePayment(s, l, snap)
	if reason != "" {
		return fail(listingID, reason)
	}

	purchases := minInt64(int64(requested), balance/price, int64(available))
	if purchases <= 0 {
		return fail(listingID, models.TradeInsufficientFunds)
	}
	total, ok := mulInt64(price, purchases)
	if !ok {
		return fail(listingID, models.TradePriceOverflow)
	}
	if !p.currencies.TryTake(holder, cur, total) {
		return fail(listingID, models.TradeInsufficientFunds)
	}

	batches := p.deliver(l, holder, int(purchases))
	refunded := p.refund(l, holder, cur, price, purchases, &batches)
	delivered := len(batches)

	var spawned []world.EntityID
	for _, b := range batches {
		spawned = append(spawned, b...)
	}
	world.PickupLater(p.queue, p.store, holder, spawned)
	l.Consume(delivered)

	if delivered == 0 {
		return Result{ListingID: l.ID, Currency: cur, Failure: models.TradeDeliveryFailed, Refunded: refunded}
	}
	amount := price * int64(delivered)
	return Result{
		OK:        true,
		ListingID: l.ID,
		Currency:  cur,
		Count:     delivered,
		Amount:    amount,
		Refunded:  refunded,
		Steps:     []Step{{ListingID: l.ID, Currency: cur, Price: price, Count: delivered, Amount: amount}},
	}
}

// resolvePayment picks the first currency, whitelist first, that the listing prices,
// a handler accepts and the holder can afford at least once.
func (p *Planner) resolvePayment(s *models.Store, l *models.Listing, snap *inventory.Snapshot) (string, int64, int64, models.TradeFailure) {
	reason := models.TradeNoCurrency
	for _, c := range currencyOrder(s, l) {
		price, _ := l.Price(c)
		balance, ok := p.currencies.TryGetBalance(snap, c)
		if !ok {
			continue
		}
		if balance >= price {
			return c, price, balance, ""
		}
		reason = models.TradeInsufficientFunds
	}
	return "", 0, 0, reason
}

// deliver spawns one purchase at a time and returns the entities of each complete one.
// A purchase that only partly spawns is deleted and delivery stops there.
func (p *Planner) deliver(l *models.Listing, holder world.EntityID, purchases int) [][]world.EntityID {
	at := p.holderCoords(holder)
	var batches [][]world.EntityID
	for i := 0; i < purchases; i++ {
		ids, n := world.SpawnUnits(p.store, l.Product, at, l.Units)
		if n < l.Units {
			p.deleteAll(ids)
			p.logger.Warn("Delivery stopped",
				zap.String("listing", l.ID),
				zap.Int("delivered", len(batches)),
				zap.Int("ordered", purchases))
			break
		}
		batches = append(batches, ids)
	}
	return batches
}

// refund pays back the undelivered purchases. When the refund cannot be spawned, the
// latest delivered purchase is taken back to free room and its price refunded too, until
// the debit is fully accounted for. It returns the amount given back.
func (p *Planner) refund(l *models.Listing, holder world.EntityID, cur string, price, purchases int64, batches *[][]world.EntityID) int64 {
	var given int64
	for {
		owed := price*(purchases-int64(len(*batches))) - given
		if owed > 0 {
			given += p.currencies.Give(holder, cur, owed)
		}
		if given == price*(purchases-int64(len(*batches))) {
			return given
		}
		if len(*batches) == 0 {
			p.logger.Error("Refund incomplete",
				zap.String("listing", l.ID),
				zap.String("currency", cur),
				zap.Int64("refund", price*purchases),
				zap.Int64("given", given))
			return given
		}
		last := len(*batches) - 1
		p.deleteAll((*batches)[last])
		*batches = (*batches)[:last]
		p.logger.Warn("Purchase taken back to make room for refund",
			zap.String("listing", l.ID),
			zap.Int("delivered", last))
	}
}

func (p *Planner) deleteAll(ids []world.EntityID) {
	for _, id := range ids {
		p.store.Delete(id)
	}
}
