package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/botforge/trading-service/internal/domain/entity"
	"github.com/botforge/trading-service/internal/repository"
	"github.com/redis/go-redis/v9"
)

const (
	inventoryKeyPrefix = "inventory:"
	applyTradeRetries  = 3
)

type inventoryRepository struct {
	client *redis.Client
}

func NewInventoryRepository(client *redis.Client) repository.InventoryRepository {
	return &inventoryRepository{
		client: client,
	}
}

func (r *inventoryRepository) getInventoryKey(userID string) string {
	return inventoryKeyPrefix + userID
}

func (r *inventoryRepository) GetByUserID(ctx context.Context, userID string) (map[string]int, error) {
	key := r.getInventoryKey(userID)
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return make(map[string]int), nil
		}
		return nil, fmt.Errorf("failed to get inventory for user %s from redis: %w", userID, err)
	}

	var items map[string]int
	if err := json.Unmarshal([]byte(val), &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inventory data for user %s: %w", userID, err)
	}
	return items, nil
}

func (r *inventoryRepository) Save(ctx context.Context, userID string, items map[string]int) error {
	if userID == "" {
		return errors.New("cannot save inventory with empty userID")
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal inventory for user %s: %w", userID, err)
	}

	if err := r.client.Set(ctx, r.getInventoryKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save inventory for user %s to redis: %w", userID, err)
	}
	return nil
}

// ApplyTrade debits given and credits received under WATCH so that two
// concurrent trades against the same user's inventory cannot interleave. The
// transaction is retried a few times on contention before giving up.
func (r *inventoryRepository) ApplyTrade(ctx context.Context, userID string, given []entity.TradeRequirement, received []entity.TradeReward) error {
	key := r.getInventoryKey(userID)

	apply := func(tx *redis.Tx) error {
		items := make(map[string]int)
		val, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read inventory for user %s: %w", userID, err)
		}
		if err == nil {
			if err := json.Unmarshal([]byte(val), &items); err != nil {
				return fmt.Errorf("failed to unmarshal inventory data for user %s: %w", userID, err)
			}
		}

		for _, item := range given {
			if items[item.ItemID] < item.Quantity {
				return fmt.Errorf("item %s for user %s: %w", item.ItemID, userID, repository.ErrInsufficientItems)
			}
			items[item.ItemID] -= item.Quantity
			if items[item.ItemID] == 0 {
				delete(items, item.ItemID)
			}
		}
		for _, item := range received {
			items[item.ItemID] += item.Quantity
		}

		data, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("failed to marshal inventory for user %s: %w", userID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < applyTradeRetries; attempt++ {
		err = r.client.Watch(ctx, apply, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("failed to apply trade to inventory for user %s after %d attempts: %w", userID, applyTradeRetries, err)
}
