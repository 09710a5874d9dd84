package repository

import (
	"context"

	"github.com/botforge/trading-service/internal/domain/entity"
)

type ListTradingEventsParams struct {
	Status     string
	PublicOnly bool
	Tag        string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

type ListTradingEventsResult struct {
	Events      []entity.TradingEventSnapshot
	TotalCount  int64
	CurrentPage int
	PageSize    int
	TotalPages  int
}

// TradingEventRepository loads and persists trading events with their offers.
// Update applies the snapshot under an optimistic version filter: the
// snapshot's Version must match the stored document or ErrOptimisticLock is
// returned.
type TradingEventRepository interface {
	Create(ctx context.Context, snapshot entity.TradingEventSnapshot) error
	GetByID(ctx context.Context, eventID string) (*entity.TradingEvent, error)
	GetByOfferID(ctx context.Context, offerID string) (*entity.TradingEvent, error)
	Update(ctx context.Context, snapshot entity.TradingEventSnapshot) error
	Delete(ctx context.Context, eventID string) error
	List(ctx context.Context, params ListTradingEventsParams) (*ListTradingEventsResult, error)
}
