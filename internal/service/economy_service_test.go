package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradepost/internal/economy"
	"tradepost/internal/models"
	"tradepost/internal/util"
	"tradepost/internal/world"
	"tradepost/internal/worldtest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	busy     bool
	err      error
	released []string
}

func (l *fakeLocker) AcquireLock(_ context.Context, storeID string, _ time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	if l.busy {
		return "", false, nil
	}
	return "token-" + storeID, true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, _ string, token string) error {
	l.released = append(l.released, token)
	return nil
}

type fakeIdempotency struct {
	pending   map[string]bool
	responses map[string][]byte
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{pending: make(map[string]bool), responses: make(map[string][]byte)}
}

func (f *fakeIdempotency) BeginRequest(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.pending[key] || f.responses[key] != nil {
		return false, nil
	}
	f.pending[key] = true
	return true, nil
}

func (f *fakeIdempotency) SaveResponse(_ context.Context, key string, response []byte, _ time.Duration) error {
	delete(f.pending, key)
	f.responses[key] = response
	return nil
}

func (f *fakeIdempotency) LoadResponse(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := f.responses[key]
	return b, ok, nil
}

func (f *fakeIdempotency) ForgetRequest(_ context.Context, key string) error {
	delete(f.pending, key)
	delete(f.responses, key)
	return nil
}

type fakeLedger struct {
	trades []models.TradeRecord
	claims []models.ClaimRecord
}

func (l *fakeLedger) AppendTrades(_ context.Context, records []models.TradeRecord) error {
	l.trades = append(l.trades, records...)
	return nil
}

func (l *fakeLedger) AppendClaim(_ context.Context, record *models.ClaimRecord) error {
	l.claims = append(l.claims, *record)
	return nil
}

type fakeEvents struct {
	trades []*models.TradeExecutedEvent
	claims []*models.ContractClaimedEvent
}

func (e *fakeEvents) PublishTradeExecuted(_ context.Context, event *models.TradeExecutedEvent) error {
	e.trades = append(e.trades, event)
	return nil
}

func (e *fakeEvents) PublishContractClaimed(_ context.Context, event *models.ContractClaimedEvent) error {
	e.claims = append(e.claims, event)
	return nil
}

type fakePusher struct {
	mu       sync.Mutex
	catalogs []*models.CatalogPushEvent
	states   []*models.DynamicStateEvent
}

func (p *fakePusher) PushCatalog(_ context.Context, event *models.CatalogPushEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.catalogs = append(p.catalogs, event)
	return nil
}

func (p *fakePusher) PushDynamicState(_ context.Context, event *models.DynamicStateEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, event)
	return nil
}

type fixture struct {
	svc    *EconomyService
	locker *fakeLocker
	idem   *fakeIdempotency
	ledger *fakeLedger
	events *fakeEvents
	pusher *fakePusher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := worldtest.Registry(t)
	engine := economy.New(reg, world.NewMemoryStore(reg, nil), economy.Options{CooldownCap: 4, Seed: 1}, nil)

	f := &fixture{
		locker: &fakeLocker{},
		idem:   newFakeIdempotency(),
		ledger: &fakeLedger{},
		events: &fakeEvents{},
		pusher: &fakePusher{},
	}
	f.svc = NewEconomyService(engine, f.locker, f.idem, f.ledger, f.events, Options{}, f.pusher)
	require.NoError(t, f.svc.LoadStore(context.Background(), "general-1", "general", world.Coordinates{}))
	return f
}

func (f *fixture) player(t *testing.T, credits int) uint64 {
	t.Helper()
	id, err := f.svc.SpawnHolder(context.Background(), economy.HolderPlayer, world.Coordinates{})
	require.NoError(t, err)
	if credits > 0 {
		n, err := f.svc.Grant(context.Background(), id, "Credit", credits)
		require.NoError(t, err)
		require.Equal(t, credits, n)
	}
	return id
}

func TestBuyRecordsLedgerEventsAndPushes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	player := f.player(t, 45)

	require.NoError(t, f.svc.Join(ctx, "s1", "general-1", player))
	require.Len(t, f.pusher.catalogs, 1)
	require.Len(t, f.pusher.states, 1)
	assert.Equal(t, int64(45), f.pusher.states[0].Balances["Credits"])
	assert.NotEmpty(t, f.pusher.catalogs[0].EventID)

	before := testutil.ToFloat64(util.TradesTotal.WithLabelValues(models.TradeKindBuy))

	resp, err := f.svc.Buy(ctx, &models.BuyRequest{StoreID: "general-1", ListingID: "buy-widget", Holder: player, Count: 10})
	require.NoError(t, err)
	require.True(t, resp.OK, resp.Failure)
	assert.Equal(t, 4, resp.Count)
	assert.Equal(t, int64(40), resp.Amount)
	assert.Equal(t, "Credits", resp.Currency)

	assert.Equal(t, before+1, testutil.ToFloat64(util.TradesTotal.WithLabelValues(models.TradeKindBuy)))
	require.Len(t, f.ledger.trades, 1)
	assert.Equal(t, models.TradeRecord{
		Reference: f.ledger.trades[0].Reference, StoreID: "general-1", ListingID: "buy-widget",
		Kind: models.TradeKindBuy, Holder: int64(player), Currency: "Credits", Count: 4, Amount: 40,
	}, f.ledger.trades[0])
	require.Len(t, f.events.trades, 1)
	assert.Equal(t, models.EventTypeTradeExecuted, f.events.trades[0].EventType)
	assert.Equal(t, []string{"token-general-1"}, f.locker.released)

	require.Len(t, f.pusher.states, 2)
	assert.Equal(t, int64(5), f.pusher.states[1].Balances["Credits"])
	assert.Equal(t, 1, f.pusher.states[1].Stock["buy-widget"])

	assert.Equal(t, 1, f.svc.Tick(ctx))
	assert.Equal(t, 0, f.svc.Tick(ctx))
}

func TestBusyStoreIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	player := f.player(t, 45)
	f.locker.busy = true

	before := testutil.ToFloat64(util.TradesFailedTotal.WithLabelValues(models.TradeKindBuy, string(models.TradeStoreBusy)))

	resp, err := f.svc.Buy(ctx, &models.BuyRequest{StoreID: "general-1", ListingID: "buy-widget", Holder: player, Count: 1})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, models.TradeStoreBusy, resp.Failure)
	assert.Equal(t, before+1, testutil.ToFloat64(util.TradesFailedTotal.WithLabelValues(models.TradeKindBuy, string(models.TradeStoreBusy))))
	assert.Empty(t, f.ledger.trades)

	cresp, err := f.svc.Claim(ctx, &models.ClaimRequest{StoreID: "general-1", ContractID: "gold-run", Holder: player})
	require.NoError(t, err)
	assert.Equal(t, models.ClaimStoreBusy, cresp.Failure)

	balance, err := f.svc.Balance(ctx, player, "Credits")
	require.NoError(t, err)
	assert.Equal(t, int64(45), balance)
}

func TestLockFailureIsAnError(t *testing.T) {
	f := newFixture(t)
	f.locker.err = errors.New("connection refused")

	_, err := f.svc.MassSell(context.Background(), &models.MassSellRequest{StoreID: "general-1", Holder: 1, Crate: 2, IdempotencyKey: "k"})
	assert.Error(t, err)
	// a failed request can be retried under the same key
	assert.Empty(t, f.idem.pending)
}

func TestIdempotentRequestRunsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	player := f.player(t, 45)

	req := &models.BuyRequest{StoreID: "general-1", ListingID: "buy-widget", Holder: player, Count: 2, IdempotencyKey: "k1"}
	first, err := f.svc.Buy(ctx, req)
	require.NoError(t, err)
	require.True(t, first.OK)

	second, err := f.svc.Buy(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, f.ledger.trades, 1)

	listings, err := f.svc.VisibleListings(ctx, "general-1", models.ModeBuy)
	require.NoError(t, err)
	for _, l := range listings {
		if l.ID == "buy-widget" {
			assert.Equal(t, 3, l.Remaining)
		}
	}
}

func TestDuplicateInFlightRequest(t *testing.T) {
	f := newFixture(t)
	f.idem.pending["k2"] = true

	_, err := f.svc.Sell(context.Background(), &models.SellRequest{StoreID: "general-1", ListingID: "sell-ore", Holder: 1, Count: 1, IdempotencyKey: "k2"})
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestClaimRecordsLedgerAndEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	player := f.player(t, 0)
	crate, err := f.svc.SpawnHolder(ctx, economy.HolderCrate, world.Coordinates{})
	require.NoError(t, err)

	contracts, err := f.svc.Contracts(ctx, "general-1")
	require.NoError(t, err)
	var target models.Contract
	for _, c := range contracts {
		if c.Difficulty == "easy" {
			target = c
		}
	}
	require.NotEmpty(t, target.ID)
	for _, tg := range target.Targets {
		n, err := f.svc.Grant(ctx, crate, tg.Proto, tg.Required)
		require.NoError(t, err)
		require.Equal(t, tg.Required, n)
	}

	before := testutil.ToFloat64(util.ClaimsTotal)
	resp, err := f.svc.Claim(ctx, &models.ClaimRequest{StoreID: "general-1", ContractID: target.ID, Holder: player, Crate: crate})
	require.NoError(t, err)
	require.True(t, resp.OK, resp.Failure)
	assert.Equal(t, target.Rewards, resp.Rewards)
	assert.Equal(t, before+1, testutil.ToFloat64(util.ClaimsTotal))

	require.Len(t, f.ledger.claims, 1)
	assert.Equal(t, target.ID, f.ledger.claims[0].ContractID)
	assert.Equal(t, int64(crate), f.ledger.claims[0].Crate)
	require.Len(t, f.events.claims, 1)

	again, err := f.svc.Claim(ctx, &models.ClaimRequest{StoreID: "general-1", ContractID: target.ID, Holder: player, Crate: crate})
	require.NoError(t, err)
	assert.Equal(t, models.ClaimContractMissing, again.Failure)
}

func TestRefreshOnlySendsChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	player := f.player(t, 20)

	req := &models.RefreshRequest{StoreID: "general-1", Holder: player, Session: "s1"}
	first, err := f.svc.Refresh(ctx, req)
	require.NoError(t, err)
	assert.NotNil(t, first.Catalog)
	assert.NotNil(t, first.State)

	second, err := f.svc.Refresh(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, second.Catalog)
	assert.Nil(t, second.State)

	f.svc.Leave("s1")
	third, err := f.svc.Refresh(ctx, req)
	require.NoError(t, err)
	assert.NotNil(t, third.Catalog)

	_, err = f.svc.Refresh(ctx, &models.RefreshRequest{StoreID: "nope", Holder: player, Session: "s2"})
	assert.ErrorIs(t, err, ErrStoreNotFound)
}

func TestStoreAndHolderErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Error(t, f.svc.LoadStore(ctx, "other", "missing-preset", world.Coordinates{}))
	assert.NoError(t, f.svc.LoadStore(ctx, "general-1", "general", world.Coordinates{}))
	assert.Equal(t, []string{"general-1"}, f.svc.StoreIDs())

	_, err := f.svc.SpawnHolder(ctx, "Dragon", world.Coordinates{})
	assert.Error(t, err)
	_, err = f.svc.Grant(ctx, 9999, "Credit", 1)
	assert.ErrorIs(t, err, ErrHolderNotFound)
	_, err = f.svc.VisibleListings(ctx, "nope", "")
	assert.ErrorIs(t, err, ErrStoreNotFound)
	_, err = f.svc.Contracts(ctx, "nope")
	assert.ErrorIs(t, err, ErrStoreNotFound)
}
