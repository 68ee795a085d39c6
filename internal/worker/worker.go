package worker

import (
	"context"
	"time"

	"tradepost/internal/broker"
	"tradepost/internal/models"
	"tradepost/internal/service"

	"go.uber.org/zap"
)

// Ticker advances the economy by one tick
type Ticker interface {
	Tick(ctx context.Context) int
}

// TickWorker drives the deferred action queue at a fixed interval
type TickWorker struct {
	ticker   Ticker
	interval time.Duration
	logger   *zap.Logger
}

// NewTickWorker creates a new tick worker
func NewTickWorker(ticker Ticker, interval time.Duration, logger *zap.Logger) *TickWorker {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TickWorker{ticker: ticker, interval: interval, logger: logger}
}

// Start ticks until ctx is cancelled
func (w *TickWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting tick worker", zap.Duration("interval", w.interval))

	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping tick worker")
			return ctx.Err()
		case <-t.C:
			if ran := w.ticker.Tick(ctx); ran > 0 {
				w.logger.Debug("Tick ran deferred actions", zap.Int("actions", ran))
			}
		}
	}
}

// RequestWorker executes UI requests arriving over kafka
type RequestWorker struct {
	consumer *broker.Consumer
	handler  *broker.RequestHandler
	logger   *zap.Logger
}

// NewRequestWorker creates a new request worker
func NewRequestWorker(consumer *broker.Consumer, economy *service.EconomyService, logger *zap.Logger) *RequestWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestWorker{
		consumer: consumer,
		handler:  NewRequestHandler(economy, logger),
		logger:   logger,
	}
}

// NewRequestHandler routes every request type to the economy service. Responses travel
// back as dynamic-state pushes, so only failures are logged here.
func NewRequestHandler(economy *service.EconomyService, logger *zap.Logger) *broker.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := broker.NewRequestHandler(logger)

	h.OnBuy(func(ctx context.Context, req *models.BuyRequest) error {
		resp, err := economy.Buy(ctx, req)
		return logTrade(logger, req.EventID, resp, err)
	})
	h.OnSell(func(ctx context.Context, req *models.SellRequest) error {
		resp, err := economy.Sell(ctx, req)
		return logTrade(logger, req.EventID, resp, err)
	})
	h.OnMassSell(func(ctx context.Context, req *models.MassSellRequest) error {
		resp, err := economy.MassSell(ctx, req)
		return logTrade(logger, req.EventID, resp, err)
	})
	h.OnClaim(func(ctx context.Context, req *models.ClaimRequest) error {
		resp, err := economy.Claim(ctx, req)
		if err != nil {
			return err
		}
		if !resp.OK {
			logger.Info("Claim request rejected", zap.String("request", req.EventID), zap.String("reason", string(resp.Failure)))
		}
		return nil
	})
	h.OnRefresh(func(ctx context.Context, req *models.RefreshRequest) error {
		_, err := economy.Refresh(ctx, req)
		return err
	})
	h.OnVisibleListings(func(ctx context.Context, req *models.VisibleListingsRequest) error {
		listings, err := economy.VisibleListings(ctx, req.StoreID, req.Mode)
		if err != nil {
			return err
		}
		logger.Debug("Visible listings", zap.String("store", req.StoreID), zap.String("mode", string(req.Mode)), zap.Int("count", len(listings)))
		return nil
	})
	return h
}

func logTrade(logger *zap.Logger, requestID string, resp *models.TradeResponse, err error) error {
	if err != nil {
		return err
	}
	if !resp.OK {
		logger.Info("Trade request rejected", zap.String("request", requestID), zap.String("reason", string(resp.Failure)))
	}
	return nil
}

// Start starts the worker
func (w *RequestWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting request worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *RequestWorker) Stop() error {
	w.logger.Info("Stopping request worker")
	return w.consumer.Close()
}
