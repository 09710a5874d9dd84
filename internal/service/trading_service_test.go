package service

import (
	"context"
	"errors"
	"testing"

	"github.com/botforge/trading-service/internal/domain/entity"
	"github.com/botforge/trading-service/internal/platform/logger"
	"github.com/botforge/trading-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTradingEventRepository struct {
	mock.Mock
}

func (m *MockTradingEventRepository) Create(ctx context.Context, snapshot entity.TradingEventSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockTradingEventRepository) GetByID(ctx context.Context, eventID string) (*entity.TradingEvent, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.TradingEvent), args.Error(1)
}

func (m *MockTradingEventRepository) GetByOfferID(ctx context.Context, offerID string) (*entity.TradingEvent, error) {
	args := m.Called(ctx, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.TradingEvent), args.Error(1)
}

func (m *MockTradingEventRepository) Update(ctx context.Context, snapshot entity.TradingEventSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockTradingEventRepository) Delete(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockTradingEventRepository) List(ctx context.Context, params repository.ListTradingEventsParams) (*repository.ListTradingEventsResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListTradingEventsResult), args.Error(1)
}

type MockInventoryRepository struct {
	mock.Mock
}

func (m *MockInventoryRepository) GetByUserID(ctx context.Context, userID string) (map[string]int, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *MockInventoryRepository) Save(ctx context.Context, userID string, items map[string]int) error {
	args := m.Called(ctx, userID, items)
	return args.Error(0)
}

func (m *MockInventoryRepository) ApplyTrade(ctx context.Context, userID string, given []entity.TradeRequirement, received []entity.TradeReward) error {
	args := m.Called(ctx, userID, given, received)
	return args.Error(0)
}

type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) Publish(ctx context.Context, subject string, message interface{}) error {
	args := m.Called(ctx, subject, message)
	return args.Error(0)
}

func (m *MockMessagePublisher) PublishRaw(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

type NoOpLogger struct{}

func (l *NoOpLogger) Init()                                        {}
func (l *NoOpLogger) Debug(args ...interface{})                    {}
func (l *NoOpLogger) Debugf(template string, args ...interface{})  {}
func (l *NoOpLogger) Info(args ...interface{})                     {}
func (l *NoOpLogger) Infof(template string, args ...interface{})   {}
func (l *NoOpLogger) Warn(args ...interface{})                     {}
func (l *NoOpLogger) Warnf(template string, args ...interface{})   {}
func (l *NoOpLogger) Error(args ...interface{})                    {}
func (l *NoOpLogger) Errorf(template string, args ...interface{})  {}
func (l *NoOpLogger) DPanic(args ...interface{})                   {}
func (l *NoOpLogger) DPanicf(template string, args ...interface{}) {}
func (l *NoOpLogger) Fatal(args ...interface{})                    {}
func (l *NoOpLogger) Fatalf(template string, args ...interface{})  {}
func (l *NoOpLogger) With(args ...interface{}) logger.Logger       { return l }

func NewNoOpLogger() logger.Logger {
	return &NoOpLogger{}
}

func newTestEvent(t *testing.T, status entity.TradingEventStatus) *entity.TradingEvent {
	t.Helper()
	event, err := entity.NewTradingEvent(entity.TradingEventParams{
		ID:     "event1",
		Name:   "Launch Swap",
		Status: status,
	})
	require.NoError(t, err)

	offer, err := entity.NewTradeOffer(entity.TradeOfferParams{
		ID:             "offer1",
		TradingEventID: "event1",
		Name:           "Potion for Gem",
		RequiredItems: []entity.TradeRequirement{
			{ItemID: "potion", ItemName: "Potion", Quantity: 1},
		},
		RewardItems: []entity.TradeReward{
			{ItemID: "gem", ItemName: "Gem", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.NoError(t, event.AddTradeOffer(offer))
	return event
}

func newServiceWithMocks() (TradingService, *MockTradingEventRepository, *MockInventoryRepository, *MockMessagePublisher) {
	eventRepo := new(MockTradingEventRepository)
	inventoryRepo := new(MockInventoryRepository)
	publisher := new(MockMessagePublisher)
	svc := NewTradingService(eventRepo, inventoryRepo, publisher, NewNoOpLogger())
	return svc, eventRepo, inventoryRepo, publisher
}

func TestTradingService_ExecuteTrade_Success(t *testing.T) {
	svc, eventRepo, inventoryRepo, publisher := newServiceWithMocks()
	ctx := context.Background()
	event := newTestEvent(t, entity.EventStatusActive)

	eventRepo.On("GetByID", ctx, "event1").Return(event, nil)
	inventoryRepo.On("GetByUserID", ctx, "userA").Return(map[string]int{"potion": 3}, nil)

	var persisted entity.TradingEventSnapshot
	eventRepo.On("Update", ctx, mock.AnythingOfType("entity.TradingEventSnapshot")).
		Run(func(args mock.Arguments) {
			persisted = args.Get(1).(entity.TradingEventSnapshot)
		}).
		Return(nil)
	inventoryRepo.On("ApplyTrade", ctx, "userA", mock.Anything, mock.Anything).Return(nil)
	publisher.On("Publish", ctx, "trade.executed", mock.Anything).Return(nil)

	result, err := svc.ExecuteTrade(ctx, ExecuteTradeParams{EventID: "event1", OfferID: "offer1", UserID: "userA"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Contains(t, result.TransactionID, "trade_offer1_userA_")

	// Both counters were persisted in one update.
	require.Len(t, persisted.Offers, 1)
	assert.Equal(t, 1, persisted.Offers[0].CurrentTrades)
	assert.Equal(t, 1, persisted.Offers[0].UserTradeCounts["userA"])
	assert.Equal(t, 1, persisted.UserTradeCounts["userA"])

	eventRepo.AssertExpectations(t)
	inventoryRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestTradingService_ExecuteTrade_EventNotActive(t *testing.T) {
	svc, eventRepo, inventoryRepo, publisher := newServiceWithMocks()
	ctx := context.Background()
	event := newTestEvent(t, entity.EventStatusDraft)

	eventRepo.On("GetByID", ctx, "event1").Return(event, nil)

	result, err := svc.ExecuteTrade(ctx, ExecuteTradeParams{EventID: "event1", OfferID: "offer1", UserID: "userA"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "not active")

	eventRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	inventoryRepo.AssertNotCalled(t, "ApplyTrade", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestTradingService_ExecuteTrade_ValidationFailure(t *testing.T) {
	svc, eventRepo, inventoryRepo, _ := newServiceWithMocks()
	ctx := context.Background()
	event := newTestEvent(t, entity.EventStatusActive)

	eventRepo.On("GetByID", ctx, "event1").Return(event, nil)
	inventoryRepo.On("GetByUserID", ctx, "userA").Return(map[string]int{}, nil)

	result, err := svc.ExecuteTrade(ctx, ExecuteTradeParams{EventID: "event1", OfferID: "offer1", UserID: "userA"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "missing required item")

	// A rejected trade must not touch storage.
	eventRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	inventoryRepo.AssertNotCalled(t, "ApplyTrade", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTradingService_ExecuteTrade_EventNotFound(t *testing.T) {
	svc, eventRepo, _, _ := newServiceWithMocks()
	ctx := context.Background()

	eventRepo.On("GetByID", ctx, "missing").Return(nil, repository.ErrNotFound)

	result, err := svc.ExecuteTrade(ctx, ExecuteTradeParams{EventID: "missing", OfferID: "offer1", UserID: "userA"})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestTradingService_ExecuteTrade_OptimisticLockConflict(t *testing.T) {
	svc, eventRepo, inventoryRepo, _ := newServiceWithMocks()
	ctx := context.Background()
	event := newTestEvent(t, entity.EventStatusActive)

	eventRepo.On("GetByID", ctx, "event1").Return(event, nil)
	inventoryRepo.On("GetByUserID", ctx, "userA").Return(map[string]int{"potion": 1}, nil)
	eventRepo.On("Update", ctx, mock.AnythingOfType("entity.TradingEventSnapshot")).Return(repository.ErrOptimisticLock)

	result, err := svc.ExecuteTrade(ctx, ExecuteTradeParams{EventID: "event1", OfferID: "offer1", UserID: "userA"})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrOptimisticLock))

	// Inventory must stay untouched when the counter commit loses the race.
	inventoryRepo.AssertNotCalled(t, "ApplyTrade", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTradingService_CreateTradingEvent(t *testing.T) {
	svc, eventRepo, _, _ := newServiceWithMocks()
	ctx := context.Background()

	eventRepo.On("Create", ctx, mock.AnythingOfType("entity.TradingEventSnapshot")).Return(nil)

	snapshot, err := svc.CreateTradingEvent(ctx, CreateTradingEventParams{
		Name:     "Winter Swap",
		Status:   entity.EventStatusDraft,
		IsPublic: true,
	})
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.NotEmpty(t, snapshot.ID)
	assert.Equal(t, "Winter Swap", snapshot.Name)
	assert.Equal(t, entity.EventStatusDraft, snapshot.Status)

	eventRepo.AssertExpectations(t)
}

func TestTradingService_CreateTradingEvent_InvalidParams(t *testing.T) {
	svc, eventRepo, _, _ := newServiceWithMocks()
	ctx := context.Background()

	_, err := svc.CreateTradingEvent(ctx, CreateTradingEventParams{Name: ""})
	require.Error(t, err)
	eventRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestTradingService_AddTradeOffer_InvalidParams(t *testing.T) {
	svc, eventRepo, _, _ := newServiceWithMocks()
	ctx := context.Background()
	event := newTestEvent(t, entity.EventStatusActive)

	eventRepo.On("GetByID", ctx, "event1").Return(event, nil)

	_, err := svc.AddTradeOffer(ctx, "event1", AddTradeOfferParams{
		Name: "Bad Offer",
		RequiredItems: []entity.TradeRequirement{
			{ItemID: "potion", Quantity: 1},
		},
		// No reward items: an offer with no payout is rejected.
	})
	require.Error(t, err)
	eventRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestTradingService_GetEligibility_CombinesEventGate(t *testing.T) {
	svc, eventRepo, _, _ := newServiceWithMocks()
	ctx := context.Background()
	event := newTestEvent(t, entity.EventStatusPaused)

	eventRepo.On("GetByID", ctx, "event1").Return(event, nil)

	eligibility, err := svc.GetEligibility(ctx, "event1", "offer1", "userA", nil)
	require.NoError(t, err)
	require.NotNil(t, eligibility)
	assert.False(t, eligibility.CanTrade)
	require.NotEmpty(t, eligibility.Reasons)
	assert.Contains(t, eligibility.Reasons[len(eligibility.Reasons)-1], "trading event is not active")
}

func TestTradingService_UpdateEventStatus(t *testing.T) {
	svc, eventRepo, _, publisher := newServiceWithMocks()
	ctx := context.Background()
	event := newTestEvent(t, entity.EventStatusDraft)

	eventRepo.On("GetByID", ctx, "event1").Return(event, nil)
	eventRepo.On("Update", ctx, mock.AnythingOfType("entity.TradingEventSnapshot")).Return(nil)
	publisher.On("Publish", ctx, "tradingevent.status.updated", mock.Anything).Return(nil)

	snapshot, err := svc.UpdateEventStatus(ctx, "event1", entity.EventStatusActive)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, entity.EventStatusActive, snapshot.Status)

	eventRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestTradingService_RemoveTradeOffer_NotFound(t *testing.T) {
	svc, eventRepo, _, _ := newServiceWithMocks()
	ctx := context.Background()
	event := newTestEvent(t, entity.EventStatusActive)

	eventRepo.On("GetByID", ctx, "event1").Return(event, nil)

	err := svc.RemoveTradeOffer(ctx, "event1", "no-such-offer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	eventRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}
