package service

import (
	"context"
	"time"

	"tradepost/internal/models"
	"tradepost/internal/util"
	"tradepost/internal/world"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type pending struct {
	catalog *models.CatalogPushEvent
	state   *models.DynamicStateEvent
}

// Refresh returns the catalog if the session has not seen its revision and the dynamic
// state if it changed since the last push. Both are also delivered through the pushers.
func (s *EconomyService) Refresh(ctx context.Context, req *models.RefreshRequest) (*models.RefreshResponse, error) {
	ctx, span := util.StoreSpan(ctx, "EconomyService.Refresh", req.StoreID, attribute.String("session", req.Session))
	defer span.End()
	defer observe("refresh", time.Now())

	s.mu.Lock()
	if _, ok := s.engine.Store(req.StoreID); !ok {
		s.mu.Unlock()
		return nil, ErrStoreNotFound
	}
	s.sessions[req.Session] = session{storeID: req.StoreID, holder: req.Holder}
	p := s.collect(req.Session, req.StoreID, req.Holder, true)
	s.mu.Unlock()

	s.deliver(ctx, []pending{p})
	return &models.RefreshResponse{Catalog: p.catalog, State: p.state}, nil
}

// Join subscribes a session to pushes for a store and sends it the current view
func (s *EconomyService) Join(ctx context.Context, sessionID, storeID string, holder uint64) error {
	_, err := s.Refresh(ctx, &models.RefreshRequest{StoreID: storeID, Holder: holder, Session: sessionID})
	return err
}

// Leave drops a session's push history
func (s *EconomyService) Leave(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	s.engine.ForgetSession(sessionID)
}

// Tick runs the deferred actions queued since the last tick and pushes any state they changed
func (s *EconomyService) Tick(ctx context.Context) int {
	start := time.Now()

	s.mu.Lock()
	ran := s.engine.Tick()
	var out []pending
	if ran > 0 {
		for id, sess := range s.sessions {
			out = append(out, s.collect(id, sess.storeID, sess.holder, false))
		}
	}
	s.mu.Unlock()

	util.TickDuration.Observe(time.Since(start).Seconds())
	s.deliver(ctx, out)
	return ran
}

// pushStore sends state deltas to every session watching storeID
func (s *EconomyService) pushStore(ctx context.Context, storeID string) {
	s.mu.Lock()
	var out []pending
	for id, sess := range s.sessions {
		if sess.storeID == storeID {
			out = append(out, s.collect(id, sess.storeID, sess.holder, false))
		}
	}
	s.mu.Unlock()

	s.deliver(ctx, out)
}

// collect must be called with s.mu held.
func (s *EconomyService) collect(sessionID, storeID string, holder uint64, withCatalog bool) pending {
	var p pending
	if withCatalog {
		if c, ok := s.engine.CatalogFor(sessionID, storeID); ok {
			c.BaseEvent = newBase(models.EventTypeCatalogPushed)
			p.catalog = c
		}
	}
	if st, ok := s.engine.SyncState(sessionID, storeID, world.EntityID(holder)); ok {
		st.BaseEvent = newBase(models.EventTypeDynamicState)
		p.state = st
	}
	return p
}

func (s *EconomyService) deliver(ctx context.Context, out []pending) {
	for _, p := range out {
		for _, pusher := range s.pushers {
			if p.catalog != nil {
				if err := pusher.PushCatalog(ctx, p.catalog); err != nil {
					s.logger.Warn("Failed to push catalog", zap.String("session", p.catalog.Session), zap.Error(err))
				}
			}
			if p.state != nil {
				if err := pusher.PushDynamicState(ctx, p.state); err != nil {
					s.logger.Warn("Failed to push dynamic state", zap.String("session", p.state.Session), zap.Error(err))
				}
			}
		}
		if p.catalog != nil {
			util.PushesTotal.WithLabelValues("catalog").Inc()
		}
		if p.state != nil {
			util.PushesTotal.WithLabelValues("dynamic_state").Inc()
		}
	}
}
