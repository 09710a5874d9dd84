package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/botforge/trading-service/internal/app/config"
	"github.com/botforge/trading-service/internal/domain/entity"
	"github.com/botforge/trading-service/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	tradingEventCollectionName = "trading_events"
)

type tradingEventRepository struct {
	db         *mongo.Database
	collection *mongo.Collection
}

func NewTradingEventRepository(client *mongo.Client, cfg config.MongoDBConfig) repository.TradingEventRepository {
	database := client.Database(cfg.Database)
	collection := database.Collection(tradingEventCollectionName)
	return &tradingEventRepository{
		db:         database,
		collection: collection,
	}
}

func (r *tradingEventRepository) Create(ctx context.Context, snapshot entity.TradingEventSnapshot) error {
	_, err := r.collection.InsertOne(ctx, snapshot)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create trading event %s: %w", snapshot.ID, err)
	}
	return nil
}

func (r *tradingEventRepository) GetByID(ctx context.Context, eventID string) (*entity.TradingEvent, error) {
	return r.findOne(ctx, bson.M{"_id": eventID})
}

func (r *tradingEventRepository) GetByOfferID(ctx context.Context, offerID string) (*entity.TradingEvent, error) {
	return r.findOne(ctx, bson.M{"offers._id": offerID})
}

func (r *tradingEventRepository) findOne(ctx context.Context, filter bson.M) (*entity.TradingEvent, error) {
	var snapshot entity.TradingEventSnapshot
	err := r.collection.FindOne(ctx, filter).Decode(&snapshot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trading event: %w", err)
	}

	event, err := entity.RestoreTradingEvent(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to restore trading event %s: %w", snapshot.ID, err)
	}
	return event, nil
}

func (r *tradingEventRepository) Update(ctx context.Context, snapshot entity.TradingEventSnapshot) error {
	filter := bson.M{
		"_id":     snapshot.ID,
		"version": snapshot.Version,
	}
	update := bson.M{
		"$set": bson.M{
			"name":                snapshot.Name,
			"description":         snapshot.Description,
			"status":              snapshot.Status,
			"start_date":          snapshot.StartDate,
			"end_date":            snapshot.EndDate,
			"is_repeatable":       snapshot.IsRepeatable,
			"max_trades_per_user": snapshot.MaxTradesPerUser,
			"priority":            snapshot.Priority,
			"tags":                snapshot.Tags,
			"is_public":           snapshot.IsPublic,
			"offers":              snapshot.Offers,
			"user_trade_counts":   snapshot.UserTradeCounts,
			"updated_at":          time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update trading event %s: %w", snapshot.ID, err)
	}

	if result.MatchedCount == 0 {
		var existing entity.TradingEventSnapshot
		errFind := r.collection.FindOne(ctx, bson.M{"_id": snapshot.ID}).Decode(&existing)
		if errors.Is(errFind, mongo.ErrNoDocuments) {
			return repository.ErrNotFound
		}
		if errFind == nil && existing.Version != snapshot.Version {
			return repository.ErrOptimisticLock
		}
		return repository.ErrUpdateFailed
	}

	return nil
}

func (r *tradingEventRepository) Delete(ctx context.Context, eventID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": eventID})
	if err != nil {
		return fmt.Errorf("failed to delete trading event %s: %w", eventID, err)
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *tradingEventRepository) List(ctx context.Context, params repository.ListTradingEventsParams) (*repository.ListTradingEventsResult, error) {
	filter := bson.M{}
	if params.Status != "" {
		filter["status"] = params.Status
	}
	if params.PublicOnly {
		filter["is_public"] = true
	}
	if params.Tag != "" {
		filter["tags"] = params.Tag
	}

	findOptions := options.Find()
	if params.PageSize > 0 {
		if params.Page <= 0 {
			params.Page = 1
		}
		findOptions.SetSkip(int64((params.Page - 1) * params.PageSize))
		findOptions.SetLimit(int64(params.PageSize))
	}

	if params.SortBy != "" {
		sortOrder := 1
		if params.SortOrder == "desc" {
			sortOrder = -1
		}
		findOptions.SetSort(bson.D{{Key: params.SortBy, Value: sortOrder}})
	} else {
		findOptions.SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "created_at", Value: -1}})
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list trading events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []entity.TradingEventSnapshot
	if err = cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode listed trading events: %w", err)
	}

	totalCount, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count trading events: %w", err)
	}

	totalPages := 0
	if params.PageSize > 0 {
		totalPages = (int(totalCount) + params.PageSize - 1) / params.PageSize
	} else if totalCount > 0 {
		totalPages = 1
	}

	return &repository.ListTradingEventsResult{
		Events:      events,
		TotalCount:  totalCount,
		CurrentPage: params.Page,
		PageSize:    params.PageSize,
		TotalPages:  totalPages,
	}, nil
}
