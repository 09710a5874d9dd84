package repository

import (
	"context"

	"github.com/botforge/trading-service/internal/domain/entity"
)

// InventoryRepository stores per-user item-quantity snapshots. GetByUserID
// returns an empty map for a user with no inventory. ApplyTrade debits the
// given items and credits the received items as one atomic operation,
// returning ErrInsufficientItems when the stored inventory no longer covers
// the debit.
type InventoryRepository interface {
	GetByUserID(ctx context.Context, userID string) (map[string]int, error)
	Save(ctx context.Context, userID string, items map[string]int) error
	ApplyTrade(ctx context.Context, userID string, given []entity.TradeRequirement, received []entity.TradeReward) error
}
