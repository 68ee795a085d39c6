package service

import (
	"context"
	"strings"
	"time"

	"tradepost/internal/models"
	"tradepost/internal/trade"
	"tradepost/internal/util"
	"tradepost/internal/world"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Buy sells count purchases of a buy listing to the holder
func (s *EconomyService) Buy(ctx context.Context, req *models.BuyRequest) (resp *models.TradeResponse, err error) {
	ctx, span := util.StoreSpan(ctx, "EconomyService.Buy", req.StoreID, attribute.String("listing", req.ListingID))
	defer func() { util.EndSpan(span, err) }()

	return once(ctx, s, req.IdempotencyKey, func(ctx context.Context) (*models.TradeResponse, error) {
		return s.trade(ctx, models.TradeKindBuy, req.StoreID, req.Holder, func() trade.Result {
			return s.engine.Buy(req.StoreID, req.ListingID, world.EntityID(req.Holder), req.Count)
		})
	})
}

// Sell buys count purchases of a sell listing's product from the holder
func (s *EconomyService) Sell(ctx context.Context, req *models.SellRequest) (resp *models.TradeResponse, err error) {
	ctx, span := util.StoreSpan(ctx, "EconomyService.Sell", req.StoreID, attribute.String("listing", req.ListingID))
	defer func() { util.EndSpan(span, err) }()

	return once(ctx, s, req.IdempotencyKey, func(ctx context.Context) (*models.TradeResponse, error) {
		return s.trade(ctx, models.TradeKindSell, req.StoreID, req.Holder, func() trade.Result {
			return s.engine.Sell(req.StoreID, req.ListingID, world.EntityID(req.Holder), req.Count)
		})
	})
}

// MassSell sells a crate's sellable contents and pays the holder
func (s *EconomyService) MassSell(ctx context.Context, req *models.MassSellRequest) (resp *models.TradeResponse, err error) {
	ctx, span := util.StoreSpan(ctx, "EconomyService.MassSell", req.StoreID)
	defer func() { util.EndSpan(span, err) }()

	return once(ctx, s, req.IdempotencyKey, func(ctx context.Context) (*models.TradeResponse, error) {
		return s.trade(ctx, models.TradeKindMassSell, req.StoreID, req.Holder, func() trade.Result {
			return s.engine.MassSell(req.StoreID, world.EntityID(req.Holder), world.EntityID(req.Crate))
		})
	})
}

func (s *EconomyService) trade(ctx context.Context, kind, storeID string, holder uint64, run func() trade.Result) (*models.TradeResponse, error) {
	start := time.Now()
	defer observe(strings.ToLower(kind), start)

	var result trade.Result
	busy, err := s.withStore(ctx, storeID, func() { result = run() })
	if err != nil {
		return nil, err
	}
	if busy {
		result = trade.Result{Failure: models.TradeStoreBusy}
	}

	resp := &models.TradeResponse{
		StoreID:   storeID,
		ListingID: result.ListingID,
		OK:        result.OK,
		Failure:   result.Failure,
		Currency:  result.Currency,
		Count:     result.Count,
		Amount:    result.Amount,
		Refunded:  result.Refunded,
		Earned:    result.Earned,
	}

	if !result.OK {
		util.TradesFailedTotal.WithLabelValues(kind, string(result.Failure)).Inc()
		s.logger.Info("Trade rejected",
			zap.String("kind", kind),
			zap.String("store", storeID),
			zap.String("listing", result.ListingID),
			zap.String("reason", string(result.Failure)))
		return resp, nil
	}

	util.TradesTotal.WithLabelValues(kind).Inc()
	for _, st := range result.Steps {
		util.TradeVolumeTotal.WithLabelValues(kind, st.Currency).Add(float64(st.Amount))
	}
	if result.Refunded > 0 {
		util.RefundsTotal.WithLabelValues(result.Currency).Add(float64(result.Refunded))
	}
	s.logger.Info("Trade executed",
		zap.String("kind", kind),
		zap.String("store", storeID),
		zap.String("listing", result.ListingID),
		zap.Int("count", result.Count),
		zap.Int64("amount", result.Amount))

	s.recordTrade(ctx, kind, storeID, holder, result)
	s.pushStore(ctx, storeID)
	return resp, nil
}

func (s *EconomyService) recordTrade(ctx context.Context, kind, storeID string, holder uint64, result trade.Result) {
	reference := uuid.New().String()

	if s.ledger != nil {
		records := make([]models.TradeRecord, 0, len(result.Steps))
		for _, st := range result.Steps {
			records = append(records, models.TradeRecord{
				Reference: reference,
				StoreID:   storeID,
				ListingID: st.ListingID,
				Kind:      kind,
				Holder:    int64(holder),
				Currency:  st.Currency,
				Count:     st.Count,
				Amount:    st.Amount,
			})
		}
		if err := s.ledger.AppendTrades(ctx, records); err != nil {
			s.logger.Error("Failed to record trade", zap.String("reference", reference), zap.Error(err))
		}
	}

	if s.events == nil {
		return
	}
	for i, st := range result.Steps {
		event := &models.TradeExecutedEvent{
			BaseEvent: newBase(models.EventTypeTradeExecuted),
			StoreID:   storeID,
			ListingID: st.ListingID,
			Kind:      kind,
			Holder:    holder,
			Currency:  st.Currency,
			Count:     st.Count,
			Amount:    st.Amount,
		}
		if i == 0 {
			event.Refunded = result.Refunded
		}
		if err := s.events.PublishTradeExecuted(ctx, event); err != nil {
			s.logger.Error("Failed to publish TradeExecuted event", zap.Error(err))
		}
	}
}
