package broker

import (
	"context"
	"fmt"

	"tradepost/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events and UI pushes
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishTradeExecuted publishes a TradeExecuted event keyed by store
func (ep *EventPublisher) PublishTradeExecuted(ctx context.Context, event *models.TradeExecutedEvent) error {
	return ep.producer.PublishEvent(ctx, storeKey(event.StoreID), event, false)
}

// PublishContractClaimed publishes a ContractClaimed event keyed by store
func (ep *EventPublisher) PublishContractClaimed(ctx context.Context, event *models.ContractClaimedEvent) error {
	return ep.producer.PublishEvent(ctx, storeKey(event.StoreID), event, false)
}

// PushCatalog publishes a full catalog for a session. Catalogs are large, so they are compressed.
func (ep *EventPublisher) PushCatalog(ctx context.Context, event *models.CatalogPushEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.Session), event, true)
}

// PushDynamicState publishes a dynamic-state delta for a session
func (ep *EventPublisher) PushDynamicState(ctx context.Context, event *models.DynamicStateEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.Session), event, false)
}

func storeKey(id string) string {
	return fmt.Sprintf("store-%s", id)
}

func sessionKey(id string) string {
	return fmt.Sprintf("session-%s", id)
}

// RequestHandler routes inbound UI requests to registered handlers
type RequestHandler struct {
	onBuy      func(context.Context, *models.BuyRequest) error
	onSell     func(context.Context, *models.SellRequest) error
	onMassSell func(context.Context, *models.MassSellRequest) error
	onClaim    func(context.Context, *models.ClaimRequest) error
	onRefresh  func(context.Context, *models.RefreshRequest) error
	onVisible  func(context.Context, *models.VisibleListingsRequest) error
	logger     *zap.Logger
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(logger *zap.Logger) *RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestHandler{logger: logger}
}

func (rh *RequestHandler) OnBuy(handler func(context.Context, *models.BuyRequest) error) {
	rh.onBuy = handler
}

func (rh *RequestHandler) OnSell(handler func(context.Context, *models.SellRequest) error) {
	rh.onSell = handler
}

func (rh *RequestHandler) OnMassSell(handler func(context.Context, *models.MassSellRequest) error) {
	rh.onMassSell = handler
}

func (rh *RequestHandler) OnClaim(handler func(context.Context, *models.ClaimRequest) error) {
	rh.onClaim = handler
}

func (rh *RequestHandler) OnRefresh(handler func(context.Context, *models.RefreshRequest) error) {
	rh.onRefresh = handler
}

func (rh *RequestHandler) OnVisibleListings(handler func(context.Context, *models.VisibleListingsRequest) error) {
	rh.onVisible = handler
}

// HandleMessage routes messages to appropriate handlers
func (rh *RequestHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var base models.BaseEvent
	if err := Decode(msg, &base); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	rh.logger.Debug("Handling request", zap.String("type", base.EventType), zap.String("id", base.EventID))

	switch base.EventType {
	case models.RequestTypeBuy:
		return route(ctx, msg, rh.onBuy)
	case models.RequestTypeSell:
		return route(ctx, msg, rh.onSell)
	case models.RequestTypeMassSell:
		return route(ctx, msg, rh.onMassSell)
	case models.RequestTypeClaim:
		return route(ctx, msg, rh.onClaim)
	case models.RequestTypeRefresh:
		return route(ctx, msg, rh.onRefresh)
	case models.RequestTypeVisibleListings:
		return route(ctx, msg, rh.onVisible)
	default:
		rh.logger.Info("Unhandled request type", zap.String("type", base.EventType))
	}

	return nil
}

func route[T any](ctx context.Context, msg kafka.Message, handler func(context.Context, *T) error) error {
	if handler == nil {
		return nil
	}
	var req T
	if err := Decode(msg, &req); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", req, err)
	}
	return handler(ctx, &req)
}
