package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/botforge/trading-service/internal/adapter/nats"
	"github.com/botforge/trading-service/internal/domain/entity"
	"github.com/botforge/trading-service/internal/platform/logger"
	"github.com/botforge/trading-service/internal/repository"
	"github.com/google/uuid"
)

const (
	natsSubjectTradeExecuted      = "trade.executed"
	natsSubjectEventStatusUpdated = "tradingevent.status.updated"
)

type CreateTradingEventParams struct {
	Name             string
	Description      string
	Status           entity.TradingEventStatus
	StartDate        *time.Time
	EndDate          *time.Time
	IsRepeatable     bool
	MaxTradesPerUser *int
	Priority         int
	Tags             []string
	IsPublic         bool
}

type AddTradeOfferParams struct {
	Name           string
	Description    string
	Status         entity.TradeOfferStatus
	MaxTotalTrades *int
	MaxPerUser     *int
	StartDate      *time.Time
	EndDate        *time.Time
	RequiredItems  []entity.TradeRequirement
	RewardItems    []entity.TradeReward
}

type ExecuteTradeParams struct {
	EventID string
	OfferID string
	UserID  string
}

// TradeExecutedEvent is the message published after a committed trade.
type TradeExecutedEvent struct {
	EventID string                      `json:"event_id"`
	OfferID string                      `json:"offer_id"`
	UserID  string                      `json:"user_id"`
	Result  entity.TradeExecutionResult `json:"result"`
}

type TradingService interface {
	CreateTradingEvent(ctx context.Context, params CreateTradingEventParams) (*entity.TradingEventSnapshot, error)
	GetTradingEvent(ctx context.Context, eventID string) (*entity.TradingEventSnapshot, error)
	ListTradingEvents(ctx context.Context, params repository.ListTradingEventsParams) (*repository.ListTradingEventsResult, error)
	UpdateEventStatus(ctx context.Context, eventID string, status entity.TradingEventStatus) (*entity.TradingEventSnapshot, error)
	DeleteTradingEvent(ctx context.Context, eventID string) error
	AddTradeOffer(ctx context.Context, eventID string, params AddTradeOfferParams) (*entity.TradeOfferSnapshot, error)
	RemoveTradeOffer(ctx context.Context, eventID, offerID string) error
	UpdateOfferStatus(ctx context.Context, eventID, offerID string, status entity.TradeOfferStatus) error
	GetAvailableOffers(ctx context.Context, eventID string) ([]entity.TradeOfferSnapshot, error)
	GetEligibility(ctx context.Context, eventID, offerID, userID string, userLevel *int) (*entity.UserTradeEligibility, error)
	ExecuteTrade(ctx context.Context, params ExecuteTradeParams) (*entity.TradeExecutionResult, error)
}

type tradingService struct {
	eventRepo     repository.TradingEventRepository
	inventoryRepo repository.InventoryRepository
	msgPublisher  nats.MessagePublisher
	log           logger.Logger
}

func NewTradingService(
	eventRepo repository.TradingEventRepository,
	inventoryRepo repository.InventoryRepository,
	msgPublisher nats.MessagePublisher,
	log logger.Logger,
) TradingService {
	return &tradingService{
		eventRepo:     eventRepo,
		inventoryRepo: inventoryRepo,
		msgPublisher:  msgPublisher,
		log:           log,
	}
}

func (s *tradingService) CreateTradingEvent(ctx context.Context, params CreateTradingEventParams) (*entity.TradingEventSnapshot, error) {
	s.log.Infof("Creating trading event %q", params.Name)

	event, err := entity.NewTradingEvent(entity.TradingEventParams{
		ID:               uuid.NewString(),
		Name:             params.Name,
		Description:      params.Description,
		Status:           params.Status,
		StartDate:        params.StartDate,
		EndDate:          params.EndDate,
		IsRepeatable:     params.IsRepeatable,
		MaxTradesPerUser: params.MaxTradesPerUser,
		Priority:         params.Priority,
		Tags:             params.Tags,
		IsPublic:         params.IsPublic,
	})
	if err != nil {
		s.log.Errorf("Failed to create trading event entity %q: %v", params.Name, err)
		return nil, fmt.Errorf("failed to prepare trading event: %w", err)
	}

	snapshot := event.Snapshot()
	if err := s.eventRepo.Create(ctx, snapshot); err != nil {
		s.log.Errorf("Failed to save trading event %s to repository: %v", event.ID(), err)
		return nil, fmt.Errorf("failed to save trading event: %w", err)
	}

	s.log.Infof("Trading event %s (%q) created successfully", event.ID(), event.Name())
	return &snapshot, nil
}

func (s *tradingService) GetTradingEvent(ctx context.Context, eventID string) (*entity.TradingEventSnapshot, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("trading event with ID %s not found", eventID)
		}
		s.log.Errorf("Failed to get trading event %s: %v", eventID, err)
		return nil, fmt.Errorf("failed to retrieve trading event: %w", err)
	}
	snapshot := event.Snapshot()
	return &snapshot, nil
}

func (s *tradingService) ListTradingEvents(ctx context.Context, params repository.ListTradingEventsParams) (*repository.ListTradingEventsResult, error) {
	result, err := s.eventRepo.List(ctx, params)
	if err != nil {
		s.log.Errorf("Failed to list trading events: %v", err)
		return nil, fmt.Errorf("failed to retrieve trading events: %w", err)
	}
	return result, nil
}

func (s *tradingService) UpdateEventStatus(ctx context.Context, eventID string, status entity.TradingEventStatus) (*entity.TradingEventSnapshot, error) {
	s.log.Infof("Updating status of trading event %s to %s", eventID, status)

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("trading event with ID %s not found", eventID)
		}
		return nil, fmt.Errorf("failed to retrieve trading event: %w", err)
	}

	event.UpdateStatus(status)

	snapshot := event.Snapshot()
	if err := s.eventRepo.Update(ctx, snapshot); err != nil {
		s.log.Errorf("Failed to save status update for trading event %s: %v", eventID, err)
		return nil, fmt.Errorf("failed to update trading event status: %w", err)
	}

	if errPub := s.msgPublisher.Publish(ctx, natsSubjectEventStatusUpdated, snapshot); errPub != nil {
		s.log.Warnf("Failed to publish status update for trading event %s: %v", eventID, errPub)
	}

	s.log.Infof("Trading event %s status updated to %s", eventID, status)
	return &snapshot, nil
}

func (s *tradingService) DeleteTradingEvent(ctx context.Context, eventID string) error {
	s.log.Infof("Deleting trading event %s", eventID)
	if err := s.eventRepo.Delete(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("trading event with ID %s not found", eventID)
		}
		s.log.Errorf("Failed to delete trading event %s: %v", eventID, err)
		return fmt.Errorf("failed to delete trading event: %w", err)
	}
	return nil
}

func (s *tradingService) AddTradeOffer(ctx context.Context, eventID string, params AddTradeOfferParams) (*entity.TradeOfferSnapshot, error) {
	s.log.Infof("Adding trade offer %q to trading event %s", params.Name, eventID)

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("trading event with ID %s not found", eventID)
		}
		return nil, fmt.Errorf("failed to retrieve trading event: %w", err)
	}

	offer, err := entity.NewTradeOffer(entity.TradeOfferParams{
		ID:             uuid.NewString(),
		TradingEventID: event.ID(),
		Name:           params.Name,
		Description:    params.Description,
		Status:         params.Status,
		MaxTotalTrades: params.MaxTotalTrades,
		MaxPerUser:     params.MaxPerUser,
		StartDate:      params.StartDate,
		EndDate:        params.EndDate,
		RequiredItems:  params.RequiredItems,
		RewardItems:    params.RewardItems,
	})
	if err != nil {
		s.log.Errorf("Failed to create trade offer entity %q: %v", params.Name, err)
		return nil, fmt.Errorf("failed to prepare trade offer: %w", err)
	}

	if err := event.AddTradeOffer(offer); err != nil {
		return nil, fmt.Errorf("failed to add trade offer to event: %w", err)
	}

	if err := s.eventRepo.Update(ctx, event.Snapshot()); err != nil {
		s.log.Errorf("Failed to save trade offer %s for event %s: %v", offer.ID(), eventID, err)
		return nil, fmt.Errorf("failed to save trade offer: %w", err)
	}

	offerSnapshot := offer.Snapshot()
	s.log.Infof("Trade offer %s (%q) added to trading event %s", offer.ID(), offer.Name(), eventID)
	return &offerSnapshot, nil
}

func (s *tradingService) RemoveTradeOffer(ctx context.Context, eventID, offerID string) error {
	s.log.Infof("Removing trade offer %s from trading event %s", offerID, eventID)

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("trading event with ID %s not found", eventID)
		}
		return fmt.Errorf("failed to retrieve trading event: %w", err)
	}

	if !event.RemoveTradeOffer(offerID) {
		return fmt.Errorf("trade offer with ID %s not found in event %s", offerID, eventID)
	}

	if err := s.eventRepo.Update(ctx, event.Snapshot()); err != nil {
		s.log.Errorf("Failed to persist removal of trade offer %s: %v", offerID, err)
		return fmt.Errorf("failed to remove trade offer: %w", err)
	}
	return nil
}

func (s *tradingService) UpdateOfferStatus(ctx context.Context, eventID, offerID string, status entity.TradeOfferStatus) error {
	s.log.Infof("Updating status of trade offer %s in event %s to %s", offerID, eventID, status)

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("trading event with ID %s not found", eventID)
		}
		return fmt.Errorf("failed to retrieve trading event: %w", err)
	}

	offer, ok := event.GetTradeOffer(offerID)
	if !ok {
		return fmt.Errorf("trade offer with ID %s not found in event %s", offerID, eventID)
	}

	offer.UpdateStatus(status)

	if err := s.eventRepo.Update(ctx, event.Snapshot()); err != nil {
		s.log.Errorf("Failed to persist status update for trade offer %s: %v", offerID, err)
		return fmt.Errorf("failed to update trade offer status: %w", err)
	}
	return nil
}

func (s *tradingService) GetAvailableOffers(ctx context.Context, eventID string) ([]entity.TradeOfferSnapshot, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("trading event with ID %s not found", eventID)
		}
		return nil, fmt.Errorf("failed to retrieve trading event: %w", err)
	}

	available := event.GetAvailableOffers()
	snapshots := make([]entity.TradeOfferSnapshot, len(available))
	for i, offer := range available {
		snapshots[i] = offer.Snapshot()
	}
	return snapshots, nil
}

// GetEligibility layers the event-wide gate on top of the offer's own
// eligibility, accumulating reasons from both.
func (s *tradingService) GetEligibility(ctx context.Context, eventID, offerID, userID string, userLevel *int) (*entity.UserTradeEligibility, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("trading event with ID %s not found", eventID)
		}
		return nil, fmt.Errorf("failed to retrieve trading event: %w", err)
	}

	offer, ok := event.GetTradeOffer(offerID)
	if !ok {
		return nil, fmt.Errorf("trade offer with ID %s not found in event %s", offerID, eventID)
	}

	eligibility := offer.CanUserTrade(userID, userLevel)
	if !event.CanUserTrade(userID) {
		if !event.IsActive() {
			eligibility.Reasons = append(eligibility.Reasons, "trading event is not active")
		} else {
			eligibility.Reasons = append(eligibility.Reasons, "event-wide trade limit reached")
		}
		eligibility.CanTrade = false
	}
	return &eligibility, nil
}

// ExecuteTrade runs the full commit protocol: load the event, check the
// event-wide gate, fetch the user's inventory snapshot, execute on the offer,
// record the event-level trade, persist the mutated counters under the
// optimistic version filter, apply the inventory delta, and publish the
// receipt. Trading-domain rejections come back as a failed result with a nil
// error; infrastructure problems come back as errors.
func (s *tradingService) ExecuteTrade(ctx context.Context, params ExecuteTradeParams) (*entity.TradeExecutionResult, error) {
	s.log.Infof("Executing trade: event=%s offer=%s user=%s", params.EventID, params.OfferID, params.UserID)

	event, err := s.eventRepo.GetByID(ctx, params.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("trading event with ID %s not found", params.EventID)
		}
		return nil, fmt.Errorf("failed to retrieve trading event: %w", err)
	}

	offer, ok := event.GetTradeOffer(params.OfferID)
	if !ok {
		return nil, fmt.Errorf("trade offer with ID %s not found in event %s", params.OfferID, params.EventID)
	}

	if !event.CanUserTrade(params.UserID) {
		message := "user cannot trade: event-wide trade limit reached"
		if !event.IsActive() {
			message = "user cannot trade: trading event is not active"
		}
		s.log.Infof("Trade rejected by event gate: event=%s user=%s", params.EventID, params.UserID)
		return &entity.TradeExecutionResult{
			Success:   false,
			Message:   message,
			Timestamp: time.Now().UTC(),
		}, nil
	}

	inventory, err := s.inventoryRepo.GetByUserID(ctx, params.UserID)
	if err != nil {
		s.log.Errorf("Failed to load inventory for user %s: %v", params.UserID, err)
		return nil, fmt.Errorf("failed to load user inventory: %w", err)
	}

	result := offer.ExecuteTrade(params.UserID, inventory)
	if !result.Success {
		s.log.Infof("Trade rejected: event=%s offer=%s user=%s reason=%q", params.EventID, params.OfferID, params.UserID, result.Message)
		return &result, nil
	}

	event.RecordUserTrade(params.UserID, params.OfferID)

	// The version filter makes this update the contended commit point: on a
	// conflict nothing has been persisted and the caller can simply retry.
	if err := s.eventRepo.Update(ctx, event.Snapshot()); err != nil {
		if errors.Is(err, repository.ErrOptimisticLock) {
			s.log.Warnf("Optimistic lock conflict committing trade %s, event %s", result.TransactionID, params.EventID)
			return nil, fmt.Errorf("trade %s was not committed due to concurrent modification: %w", result.TransactionID, err)
		}
		s.log.Errorf("Failed to persist trade %s for event %s: %v", result.TransactionID, params.EventID, err)
		return nil, fmt.Errorf("failed to persist trade: %w", err)
	}

	if err := s.inventoryRepo.ApplyTrade(ctx, params.UserID, result.ItemsGiven, result.ItemsReceived); err != nil {
		s.log.Errorf("Trade %s committed but inventory update failed for user %s: %v", result.TransactionID, params.UserID, err)
		return nil, fmt.Errorf("trade %s committed but inventory update failed: %w", result.TransactionID, err)
	}

	if errPub := s.msgPublisher.Publish(ctx, natsSubjectTradeExecuted, TradeExecutedEvent{
		EventID: params.EventID,
		OfferID: params.OfferID,
		UserID:  params.UserID,
		Result:  result,
	}); errPub != nil {
		s.log.Warnf("Failed to publish trade executed event for transaction %s: %v", result.TransactionID, errPub)
	}

	s.log.Infof("Trade %s executed successfully: event=%s offer=%s user=%s", result.TransactionID, params.EventID, params.OfferID, params.UserID)
	return &result, nil
}
