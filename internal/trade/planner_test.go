package trade

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/catalog"
	"tradepost/internal/currency"
	"tradepost/internal/inventory"
	"tradepost/internal/models"
	"tradepost/internal/world"
	"tradepost/internal/worldtest"
)

type fixture struct {
	*worldtest.World
	index      *inventory.Index
	currencies *currency.Registry
	planner    *Planner
	store      *models.Store
}

func newFixture(t *testing.T) *fixture {
	w := worldtest.New(t)
	index := inventory.NewIndex(w.Store, w.Registry, nil)
	w.Store.AddObserver(index)
	currencies := currency.NewRegistry(w.Registry, nil)
	currencies.Register(currency.NewStackHandler(w.Registry, w.Store, index, w.Queue, nil))

	preset, ok := w.Registry.Store("general")
	require.True(t, ok)
	store := models.NewStore("general-1", preset.ID, world.Coordinates{})
	store.Whitelist = preset.Currencies
	for _, l := range catalog.BuildListings(w.Registry, preset, nil) {
		require.True(t, store.AddListing(l))
	}

	return &fixture{
		World:      w,
		index:      index,
		currencies: currencies,
		planner:    NewPlanner(w.Registry, w.Store, index, currencies, w.Queue, nil),
		store:      store,
	}
}

func (f *fixture) balance(holder world.EntityID, cur string) int64 {
	b, _ := f.currencies.TryGetBalance(f.index.BuildSnapshot(holder), cur)
	return b
}

func (f *fixture) listing(t *testing.T, id string) *models.Listing {
	l, ok := f.store.Listing(id)
	require.True(t, ok)
	return l
}

func TestBuyCapsByFundsAndStock(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "Credit", 45)

	res := f.planner.Buy(f.store, "buy-widget", player, 10)
	require.True(t, res.OK, res.Failure)
	assert.Equal(t, 4, res.Count)
	assert.Equal(t, int64(40), res.Amount)
	assert.Equal(t, int64(0), res.Refunded)
	assert.Equal(t, 1, f.listing(t, "buy-widget").Remaining)
	assert.Equal(t, int64(5), f.balance(player, "Credits"))

	f.Queue.Drain()
	assert.Equal(t, 4, f.CountProto(player, "Widget"))
}

func TestBuyStopsAtStock(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "Credit", 100)

	res := f.planner.Buy(f.store, "buy-widget", player, 10)
	require.True(t, res.OK)
	assert.Equal(t, 5, res.Count)
	assert.Equal(t, 0, f.listing(t, "buy-widget").Remaining)
	assert.Equal(t, int64(50), f.balance(player, "Credits"))

	res = f.planner.Buy(f.store, "buy-widget", player, 1)
	assert.Equal(t, models.TradeOutOfStock, res.Failure)
}

func TestBuyRefundsUndeliveredPurchases(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "Credit", 45)
	f.Store.Capacity = f.Store.Len() + 2

	res := f.planner.Buy(f.store, "buy-widget", player, 4)
	require.True(t, res.OK)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, int64(20), res.Amount)
	assert.Equal(t, int64(20), res.Refunded)
	assert.Equal(t, int64(25), f.balance(player, "Credits"))
	assert.Equal(t, 3, f.listing(t, "buy-widget").Remaining)
}

func TestBuyRefundsEverythingWhenNothingIsDelivered(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "Credit", 45)
	f.Store.Capacity = f.Store.Len()

	res := f.planner.Buy(f.store, "buy-widget", player, 3)
	assert.False(t, res.OK)
	assert.Equal(t, models.TradeDeliveryFailed, res.Failure)
	assert.Equal(t, int64(30), res.Refunded)
	assert.Equal(t, int64(45), f.balance(player, "Credits"))
	assert.Equal(t, 5, f.listing(t, "buy-widget").Remaining)
}

func TestBuyTakesBackPurchaseWhenRefundHasNoRoom(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "Credit", 40)
	f.Store.Capacity = f.Store.Len()

	// the drained stack frees one slot, the first widget takes it and the refund has nowhere to go
	res := f.planner.Buy(f.store, "buy-widget", player, 4)
	assert.False(t, res.OK)
	assert.Equal(t, models.TradeDeliveryFailed, res.Failure)
	assert.Equal(t, int64(40), res.Refunded)
	assert.Equal(t, 5, f.listing(t, "buy-widget").Remaining)

	f.Queue.Drain()
	assert.Equal(t, int64(40), f.balance(player, "Credits"))
	assert.Equal(t, 0, f.CountProto(player, "Widget"))
}

func TestBuyDropsPartiallySpawnedPurchase(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "Credit", 10)
	f.Store.Capacity = f.Store.Len() + 1

	// two scrap purchases of ten units each: the first fits one stack, the second cannot spawn
	res := f.planner.Buy(f.store, "buy-scrap", player, 2)
	require.True(t, res.OK)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, int64(2), res.Refunded)
	assert.Equal(t, int64(8), f.balance(player, "Credits"))

	f.Queue.Drain()
	assert.Equal(t, 10, f.CountProto(player, "Scrap"))
}

func TestBuyPrefersWhitelistThenFallsBack(t *testing.T) {
	f := newFixture(t)
	rich := f.Player(t)
	f.Give(t, rich, "Credit", 30)
	f.Give(t, rich, "Token", 10)

	res := f.planner.Buy(f.store, "buy-gadget", rich, 1)
	require.True(t, res.OK)
	assert.Equal(t, "Credits", res.Currency)

	poor := f.Player(t)
	f.Give(t, poor, "Credit", 10)
	f.Give(t, poor, "Token", 10)
	res = f.planner.Buy(f.store, "buy-gadget", poor, 5)
	require.True(t, res.OK)
	assert.Equal(t, "Tokens", res.Currency)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, int64(1), f.balance(poor, "Tokens"))
	assert.Equal(t, int64(10), f.balance(poor, "Credits"))

	f.store.Whitelist = []string{"Tokens"}
	res = f.planner.Buy(f.store, "buy-gadget", rich, 1)
	require.True(t, res.OK)
	assert.Equal(t, "Tokens", res.Currency)
}

func TestBuyRejections(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "Credit", 5)

	assert.Equal(t, models.TradeInvalidListing, f.planner.Buy(f.store, "nope", player, 1).Failure)
	assert.Equal(t, models.TradeWrongMode, f.planner.Buy(f.store, "sell-ore", player, 1).Failure)
	assert.Equal(t, models.TradeInvalidCount, f.planner.Buy(f.store, "buy-widget", player, 0).Failure)
	assert.Equal(t, models.TradeHolderMissing, f.planner.Buy(f.store, "buy-widget", 9999, 1).Failure)
	assert.Equal(t, models.TradeInsufficientFunds, f.planner.Buy(f.store, "buy-widget", player, 1).Failure)
	assert.Equal(t, int64(5), f.balance(player, "Credits"))
}

func TestSellCapsByOwnedAndStock(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "GoldOre", 3)

	res := f.planner.Sell(f.store, "sell-gold", player, 5)
	require.True(t, res.OK, res.Failure)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, int64(24), res.Amount)
	assert.Equal(t, 7, f.listing(t, "sell-gold").Remaining)
	assert.Equal(t, 0, f.CountProto(player, "GoldOre"))

	f.Queue.Drain()
	assert.Equal(t, int64(24), f.balance(player, "Credits"))
}

func TestSellDescendantMatchAndStacks(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "IronOre", 2)
	f.Give(t, player, "GoldOre", 1)
	f.Give(t, player, "Scrap", 40)

	res := f.planner.Sell(f.store, "sell-ore", player, 10)
	require.True(t, res.OK)
	assert.Equal(t, 3, res.Count)
	assert.True(t, f.listing(t, "sell-ore").Unlimited())

	res = f.planner.Sell(f.store, "sell-scrap", player, 35)
	require.True(t, res.OK)
	assert.Equal(t, 35, res.Count)
	assert.Equal(t, 5, f.CountProto(player, "Scrap"))
}

func TestSellLeavesProtectedEquipment(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	ore, _ := f.Store.Spawn("GoldOre", world.Coordinates{})
	require.True(t, f.Store.PutInSlot(player, "head", ore))

	res := f.planner.Sell(f.store, "sell-gold", player, 1)
	assert.Equal(t, models.TradeNothingToSell, res.Failure)
	assert.True(t, f.Store.Exists(ore))
}

func TestSellRejectsPriceOverflow(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "Widget", 3)
	require.True(t, f.store.AddListing(&models.Listing{
		ID: "sell-widget-dear", Mode: models.ModeSell, Product: "Widget",
		Prices: map[string]int64{"Credits": math.MaxInt64 / 2}, Remaining: models.UnlimitedStock,
		Match: models.MatchExact, Units: 1,
	}))

	res := f.planner.Sell(f.store, "sell-widget-dear", player, 3)
	assert.Equal(t, models.TradePriceOverflow, res.Failure)
	assert.Equal(t, 3, f.CountProto(player, "Widget"))
}

func TestSellRejectsPayoutThatCannotBeDelivered(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "Widget", 1)
	require.True(t, f.store.AddListing(&models.Listing{
		ID: "sell-widget-huge", Mode: models.ModeSell, Product: "Widget",
		Prices: map[string]int64{"Credits": 3_000_000_000}, Remaining: 5,
		Match: models.MatchExact, Units: 1,
	}))

	res := f.planner.Sell(f.store, "sell-widget-huge", player, 1)
	assert.Equal(t, models.TradeDeliveryFailed, res.Failure)
	assert.Equal(t, 1, f.CountProto(player, "Widget"))
	assert.Equal(t, 5, f.listing(t, "sell-widget-huge").Remaining)
}

func TestSellPaysAboveInt32InFull(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "Widget", 1)
	require.True(t, f.store.AddListing(&models.Listing{
		ID: "sell-widget-tokens", Mode: models.ModeSell, Product: "Widget",
		Prices: map[string]int64{"Tokens": 3_000_000_000}, Remaining: models.UnlimitedStock,
		Match: models.MatchExact, Units: 1,
	}))

	res := f.planner.Sell(f.store, "sell-widget-tokens", player, 1)
	require.True(t, res.OK, res.Failure)
	assert.Equal(t, int64(3_000_000_000), res.Amount)

	f.Queue.Drain()
	assert.Equal(t, int64(3_000_000_000), f.balance(player, "Tokens"))
}

func TestSellKeepsItemsWhenPayoutHasNoRoom(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "GoldOre", 1)
	f.Store.Capacity = f.Store.Len()

	res := f.planner.Sell(f.store, "sell-gold", player, 1)
	assert.Equal(t, models.TradeDeliveryFailed, res.Failure)
	assert.Equal(t, 1, f.CountProto(player, "GoldOre"))
	assert.Equal(t, 10, f.listing(t, "sell-gold").Remaining)
}

func TestSellOutOfStock(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	f.Give(t, player, "GoldOre", 1)
	f.listing(t, "sell-gold").Remaining = 0

	assert.Equal(t, models.TradeOutOfStock, f.planner.Sell(f.store, "sell-gold", player, 1).Failure)
}

func TestMassSellClaimsSpecificListingsFirst(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	crate := f.Crate(t)
	f.Give(t, crate, "GoldOre", 3)
	f.Give(t, crate, "IronOre", 2)

	res := f.planner.MassSell(f.store, player, crate)
	require.True(t, res.OK, res.Failure)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, Step{ListingID: "sell-gold", Currency: "Credits", Price: 8, Count: 3, Amount: 24}, res.Steps[0])
	assert.Equal(t, Step{ListingID: "sell-ore", Currency: "Credits", Price: 5, Count: 2, Amount: 10}, res.Steps[1])
	assert.Equal(t, map[string]int64{"Credits": 34}, res.Earned)
	assert.Equal(t, 7, f.listing(t, "sell-gold").Remaining)
	assert.Empty(t, f.Held(crate))

	f.Queue.Drain()
	assert.Equal(t, int64(34), f.balance(player, "Credits"))
}

func TestMassSellSpillsOverWhenStockRunsOut(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	crate := f.Crate(t)
	f.Give(t, crate, "GoldOre", 3)
	f.Give(t, crate, "IronOre", 2)
	f.Give(t, crate, "Scrap", 45)
	f.Give(t, crate, "Widget", 1)
	f.listing(t, "sell-gold").Remaining = 2

	res := f.planner.MassSell(f.store, player, crate)
	require.True(t, res.OK)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, 2, res.Steps[0].Count)
	assert.Equal(t, "sell-ore", res.Steps[1].ListingID)
	assert.Equal(t, 3, res.Steps[1].Count)
	assert.Equal(t, "sell-scrap", res.Steps[2].ListingID)
	assert.Equal(t, 45, res.Steps[2].Count)
	assert.Equal(t, int64(16+15+45), res.Earned["Credits"])
	assert.Equal(t, 1, f.CountProto(crate, "Widget"))
}

func TestMassSellNothingToSell(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	crate := f.Crate(t)
	f.Give(t, crate, "Widget", 2)

	res := f.planner.MassSell(f.store, player, crate)
	assert.Equal(t, models.TradeNothingToSell, res.Failure)
	assert.Equal(t, 2, f.CountProto(crate, "Widget"))
	assert.Equal(t, models.TradeHolderMissing, f.planner.MassSell(f.store, player, 9999).Failure)
}

func TestMassSellRealizesWhatIsLeftOfEachStep(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	crate := f.Crate(t)
	gold := f.Give(t, crate, "GoldOre", 3)
	f.Give(t, crate, "IronOre", 2)
	scrap := f.Give(t, crate, "Scrap", 20)

	plan := f.planner.planMassSell(f.store, crate)
	require.Len(t, plan, 3)

	// the crate changes between planning and settlement
	f.Store.Delete(gold[0])
	require.Len(t, scrap, 1)
	require.True(t, f.Store.SetStackCount(scrap[0], 12))

	res := f.planner.settleMassSell(player, crate, plan)
	require.True(t, res.OK, res.Failure)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, Step{ListingID: "sell-gold", Currency: "Credits", Price: 8, Count: 2, Amount: 16}, res.Steps[0])
	assert.Equal(t, Step{ListingID: "sell-ore", Currency: "Credits", Price: 5, Count: 2, Amount: 10}, res.Steps[1])
	assert.Equal(t, Step{ListingID: "sell-scrap", Currency: "Credits", Price: 1, Count: 12, Amount: 12}, res.Steps[2])
	assert.Equal(t, int64(38), res.Earned["Credits"])
	assert.Equal(t, 8, f.listing(t, "sell-gold").Remaining)
	assert.Empty(t, f.Held(crate))

	f.Queue.Drain()
	assert.Equal(t, int64(38), f.balance(player, "Credits"))
}

func TestMassSellSkipsStepWhoseItemsVanished(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	crate := f.Crate(t)
	gold := f.Give(t, crate, "GoldOre", 2)
	f.Give(t, crate, "IronOre", 1)

	plan := f.planner.planMassSell(f.store, crate)
	require.Len(t, plan, 2)
	for _, id := range gold {
		f.Store.Delete(id)
	}

	res := f.planner.settleMassSell(player, crate, plan)
	require.True(t, res.OK, res.Failure)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "sell-ore", res.Steps[0].ListingID)
	assert.Equal(t, 1, res.Steps[0].Count)
	assert.Equal(t, int64(5), res.Amount)
	assert.Equal(t, 10, f.listing(t, "sell-gold").Remaining)
}

func TestMassSellKeepsCrateWhenPayoutHasNoRoom(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	crate := f.Crate(t)
	f.Give(t, crate, "GoldOre", 2)
	f.Store.Capacity = f.Store.Len()

	res := f.planner.MassSell(f.store, player, crate)
	assert.Equal(t, models.TradeDeliveryFailed, res.Failure)
	assert.Equal(t, 2, f.CountProto(crate, "GoldOre"))
	assert.Equal(t, 10, f.listing(t, "sell-gold").Remaining)
}

func TestMassSellRejectsCarriedCrate(t *testing.T) {
	f := newFixture(t)
	player := f.Player(t)
	crate := f.Crate(t)
	f.Give(t, crate, "GoldOre", 1)
	require.True(t, f.Store.Insert(player, crate))

	assert.Equal(t, models.TradeHolderMissing, f.planner.MassSell(f.store, player, crate).Failure)
	assert.Equal(t, 1, f.CountProto(crate, "GoldOre"))
}
