package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tradepost/internal/economy"
	"tradepost/internal/models"
	"tradepost/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrStoreBusy        = errors.New("store is busy")
	ErrDuplicateRequest = errors.New("duplicate request in flight")
	ErrStoreNotFound    = errors.New("store not found")
	ErrHolderNotFound   = errors.New("holder not found")
)

// Locker guards a store against concurrent requests from other processes
type Locker interface {
	AcquireLock(ctx context.Context, storeID string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, storeID, token string) error
}

// Idempotency remembers finished requests by key
type Idempotency interface {
	BeginRequest(ctx context.Context, key string, ttl time.Duration) (bool, error)
	SaveResponse(ctx context.Context, key string, response []byte, ttl time.Duration) error
	LoadResponse(ctx context.Context, key string) ([]byte, bool, error)
	ForgetRequest(ctx context.Context, key string) error
}

// Ledger records executed trades and claims
type Ledger interface {
	AppendTrades(ctx context.Context, records []models.TradeRecord) error
	AppendClaim(ctx context.Context, record *models.ClaimRecord) error
}

// EventPublisher publishes domain events
type EventPublisher interface {
	PublishTradeExecuted(ctx context.Context, event *models.TradeExecutedEvent) error
	PublishContractClaimed(ctx context.Context, event *models.ContractClaimedEvent) error
}

// Pusher delivers catalog and dynamic-state pushes to sessions
type Pusher interface {
	PushCatalog(ctx context.Context, event *models.CatalogPushEvent) error
	PushDynamicState(ctx context.Context, event *models.DynamicStateEvent) error
}

// Options tune the service
type Options struct {
	LockTTL        time.Duration
	IdempotencyTTL time.Duration
}

type session struct {
	storeID string
	holder  uint64
}

// EconomyService serializes access to the engine and surrounds every operation with
// locking, idempotency, auditing and pushes. Any dependency except the engine may be nil.
type EconomyService struct {
	mu     sync.Mutex
	engine *economy.Engine

	locker  Locker
	idem    Idempotency
	ledger  Ledger
	events  EventPublisher
	pushers []Pusher

	sessions map[string]session
	opts     Options
	logger   *zap.Logger
}

// NewEconomyService creates a new economy service
func NewEconomyService(
	engine *economy.Engine,
	locker Locker,
	idem Idempotency,
	ledger Ledger,
	events EventPublisher,
	opts Options,
	pushers ...Pusher,
) *EconomyService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Second
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 10 * time.Minute
	}
	return &EconomyService{
		engine:   engine,
		locker:   locker,
		idem:     idem,
		ledger:   ledger,
		events:   events,
		pushers:  pushers,
		sessions: make(map[string]session),
		opts:     opts,
		logger:   util.GetLogger(),
	}
}

// withStore runs fn on the engine while holding the store's distributed lock.
// It reports busy when another process holds the lock.
func (s *EconomyService) withStore(ctx context.Context, storeID string, fn func()) (busy bool, err error) {
	if s.locker != nil {
		token, ok, err := s.locker.AcquireLock(ctx, storeID, s.opts.LockTTL)
		if err != nil {
			return false, fmt.Errorf("failed to lock store: %w", err)
		}
		if !ok {
			return true, nil
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), storeID, token); err != nil {
				s.logger.Warn("Failed to release store lock", zap.String("store", storeID), zap.Error(err))
			}
		}()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
	return false, nil
}

// once executes run at most once per idempotency key and replays the stored response afterwards.
func once[T any](ctx context.Context, s *EconomyService, key string, run func(context.Context) (*T, error)) (*T, error) {
	if key == "" || s.idem == nil {
		return run(ctx)
	}

	if b, found, err := s.idem.LoadResponse(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	} else if found {
		var resp T
		if err := json.Unmarshal(b, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode stored response: %w", err)
		}
		s.logger.Info("Duplicate request replayed", zap.String("idempotency_key", key))
		return &resp, nil
	}

	first, err := s.idem.BeginRequest(ctx, key, s.opts.IdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if !first {
		return nil, ErrDuplicateRequest
	}

	resp, err := run(ctx)
	if err != nil {
		if ferr := s.idem.ForgetRequest(ctx, key); ferr != nil {
			s.logger.Warn("Failed to clear idempotency key", zap.String("idempotency_key", key), zap.Error(ferr))
		}
		return nil, err
	}

	b, err := json.Marshal(resp)
	if err == nil {
		err = s.idem.SaveResponse(ctx, key, b, s.opts.IdempotencyTTL)
	}
	if err != nil {
		s.logger.Warn("Failed to store response", zap.String("idempotency_key", key), zap.Error(err))
	}
	return resp, nil
}

func observe(operation string, start time.Time) {
	util.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func newBase(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
