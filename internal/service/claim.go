package service

import (
	"context"
	"encoding/json"
	"time"

	"tradepost/internal/claim"
	"tradepost/internal/models"
	"tradepost/internal/util"
	"tradepost/internal/world"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Claim hands in a contract for the holder, taking items from the crate first
func (s *EconomyService) Claim(ctx context.Context, req *models.ClaimRequest) (resp *models.ClaimResponse, err error) {
	ctx, span := util.StoreSpan(ctx, "EconomyService.Claim", req.StoreID, attribute.String("contract", req.ContractID))
	defer func() { util.EndSpan(span, err) }()

	return once(ctx, s, req.IdempotencyKey, func(ctx context.Context) (*models.ClaimResponse, error) {
		return s.claim(ctx, req)
	})
}

func (s *EconomyService) claim(ctx context.Context, req *models.ClaimRequest) (*models.ClaimResponse, error) {
	defer observe("claim", time.Now())

	var result claim.Result
	busy, err := s.withStore(ctx, req.StoreID, func() {
		result = s.engine.Claim(req.StoreID, req.ContractID, world.EntityID(req.Holder), world.EntityID(req.Crate))
	})
	if err != nil {
		return nil, err
	}
	if busy {
		result = claim.Result{ContractID: req.ContractID, Failure: models.ClaimStoreBusy}
	}

	resp := &models.ClaimResponse{
		StoreID:    req.StoreID,
		ContractID: req.ContractID,
		OK:         result.OK,
		Failure:    result.Failure,
		Rewards:    result.Rewards,
	}

	if !result.OK {
		util.ClaimsFailedTotal.WithLabelValues(string(result.Failure)).Inc()
		s.logger.Info("Claim rejected",
			zap.String("store", req.StoreID),
			zap.String("contract", req.ContractID),
			zap.String("reason", string(result.Failure)))
		return resp, nil
	}

	util.ClaimsTotal.Inc()
	util.ContractsGeneratedTotal.Add(float64(len(result.Refilled)))
	s.logger.Info("Contract claimed",
		zap.String("store", req.StoreID),
		zap.String("contract", req.ContractID),
		zap.Int("rewards", len(result.Rewards)),
		zap.Strings("refilled", result.Refilled))

	s.recordClaim(ctx, req, result)
	s.pushStore(ctx, req.StoreID)
	return resp, nil
}

func (s *EconomyService) recordClaim(ctx context.Context, req *models.ClaimRequest, result claim.Result) {
	if s.ledger != nil {
		rewards, _ := json.Marshal(result.Rewards)
		rec := &models.ClaimRecord{
			Reference:  uuid.New().String(),
			StoreID:    req.StoreID,
			ContractID: result.ContractID,
			Holder:     int64(req.Holder),
			Crate:      int64(req.Crate),
			Rewards:    string(rewards),
		}
		if err := s.ledger.AppendClaim(ctx, rec); err != nil {
			s.logger.Error("Failed to record claim", zap.String("reference", rec.Reference), zap.Error(err))
		}
	}

	if s.events != nil {
		event := &models.ContractClaimedEvent{
			BaseEvent:  newBase(models.EventTypeContractClaimed),
			StoreID:    req.StoreID,
			ContractID: result.ContractID,
			Holder:     req.Holder,
			Crate:      req.Crate,
			Rewards:    result.Rewards,
		}
		if err := s.events.PublishContractClaimed(ctx, event); err != nil {
			s.logger.Error("Failed to publish ContractClaimed event", zap.Error(err))
		}
	}
}
