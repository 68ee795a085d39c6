package service

import (
	"context"
	"fmt"

	"tradepost/internal/economy"
	"tradepost/internal/models"
	"tradepost/internal/prototype"
	"tradepost/internal/util"
	"tradepost/internal/world"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LoadStore instantiates a store from a preset at the given coordinates
func (s *EconomyService) LoadStore(ctx context.Context, storeID, presetID string, at world.Coordinates) error {
	_, span := util.StoreSpan(ctx, "EconomyService.LoadStore", storeID, attribute.String("preset", presetID))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.engine.Store(storeID); exists {
		return nil
	}
	st, ok := s.engine.LoadStore(storeID, presetID, at)
	if !ok {
		return fmt.Errorf("unknown store preset %q for store %s", presetID, storeID)
	}
	util.ContractsGeneratedTotal.Add(float64(len(st.Contracts)))
	util.StoreLogger(s.logger, storeID).Info("Store loaded",
		zap.String("preset", presetID),
		zap.Int("contracts", len(st.Contracts)))
	return nil
}

// StoreIDs lists loaded stores
func (s *EconomyService) StoreIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.StoreIDs()
}

// VisibleListings returns a store's listings of one mode (all modes when empty), ordered by id
func (s *EconomyService) VisibleListings(ctx context.Context, storeID string, mode models.ListingMode) ([]models.Listing, error) {
	_, span := util.StartSpan(ctx, "EconomyService.VisibleListings")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	listings, ok := s.engine.VisibleListings(storeID, mode)
	if !ok {
		return nil, ErrStoreNotFound
	}
	return listings, nil
}

// Contracts returns a store's active contracts ordered by id
func (s *EconomyService) Contracts(ctx context.Context, storeID string) ([]models.Contract, error) {
	_, span := util.StartSpan(ctx, "EconomyService.Contracts")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	contracts, ok := s.engine.Contracts(storeID)
	if !ok {
		return nil, ErrStoreNotFound
	}
	return contracts, nil
}

// SpawnHolder creates a player or crate
func (s *EconomyService) SpawnHolder(ctx context.Context, kind string, at world.Coordinates) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kind != economy.HolderPlayer && kind != economy.HolderCrate {
		return 0, fmt.Errorf("unknown holder kind %q", kind)
	}
	id, ok := s.engine.SpawnHolder(kind, at)
	if !ok {
		return 0, fmt.Errorf("failed to spawn %s", kind)
	}
	return uint64(id), nil
}

// Grant puts count units of proto into a holder and returns how many arrived
func (s *EconomyService) Grant(ctx context.Context, holder uint64, proto string, count int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.engine.Entities().Exists(world.EntityID(holder)) {
		return 0, ErrHolderNotFound
	}
	return s.engine.Grant(world.EntityID(holder), proto, count), nil
}

// Balance reads one currency balance of a holder
func (s *EconomyService) Balance(ctx context.Context, holder uint64, currencyID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.engine.Entities().Exists(world.EntityID(holder)) {
		return 0, ErrHolderNotFound
	}
	return s.engine.Balance(world.EntityID(holder), currencyID), nil
}

// Reload swaps prototype data from a presets file. Loaded stores keep their listings and contracts.
func (s *EconomyService) Reload(ctx context.Context, path string) error {
	_, span := util.StartSpan(ctx, "EconomyService.Reload")
	defer span.End()

	doc, err := prototype.LoadFile(path)
	if err != nil {
		return fmt.Errorf("failed to load presets: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.engine.Reload(doc); err != nil {
		return fmt.Errorf("failed to reload presets: %w", err)
	}
	s.logger.Info("Presets reloaded", zap.String("path", path))
	return nil
}
