package entity

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

type TradingEventStatus string

const (
	EventStatusDraft     TradingEventStatus = "DRAFT"
	EventStatusActive    TradingEventStatus = "ACTIVE"
	EventStatusPaused    TradingEventStatus = "PAUSED"
	EventStatusEnded     TradingEventStatus = "ENDED"
	EventStatusCancelled TradingEventStatus = "CANCELLED"
)

// TradingEvent is a time-boxed promotional campaign grouping trade offers
// under a shared window. It tracks its own per-user trade counts, which are
// independent of each offer's per-user counter: the event-level cap is a
// coarse gate layered on top of the offer-level one.
type TradingEvent struct {
	mu sync.Mutex

	id               string
	name             string
	description      string
	status           TradingEventStatus
	startDate        *time.Time
	endDate          *time.Time
	isRepeatable     bool
	maxTradesPerUser *int
	priority         int
	tags             []string
	isPublic         bool

	offers          map[string]*TradeOffer
	userTradeCounts map[string]int

	version   int
	createdAt time.Time
	updatedAt time.Time
}

type TradingEventParams struct {
	ID               string
	Name             string
	Description      string
	Status           TradingEventStatus
	StartDate        *time.Time
	EndDate          *time.Time
	IsRepeatable     bool
	MaxTradesPerUser *int
	Priority         int
	Tags             []string
	IsPublic         bool
}

func NewTradingEvent(p TradingEventParams) (*TradingEvent, error) {
	if p.ID == "" {
		return nil, errors.New("trading event ID cannot be empty")
	}
	if p.Name == "" {
		return nil, errors.New("trading event name cannot be empty")
	}
	if p.StartDate != nil && p.EndDate != nil && !p.StartDate.Before(*p.EndDate) {
		return nil, errors.New("trading event start date must be before end date")
	}
	if p.MaxTradesPerUser != nil && *p.MaxTradesPerUser <= 0 {
		return nil, errors.New("trading event max trades per user must be positive")
	}

	status := p.Status
	if status == "" {
		status = EventStatusDraft
	}

	tags := make([]string, len(p.Tags))
	copy(tags, p.Tags)

	now := time.Now().UTC()
	return &TradingEvent{
		id:               p.ID,
		name:             p.Name,
		description:      p.Description,
		status:           status,
		startDate:        p.StartDate,
		endDate:          p.EndDate,
		isRepeatable:     p.IsRepeatable,
		maxTradesPerUser: p.MaxTradesPerUser,
		priority:         p.Priority,
		tags:             tags,
		isPublic:         p.IsPublic,
		offers:           make(map[string]*TradeOffer),
		userTradeCounts:  make(map[string]int),
		version:          1,
		createdAt:        now,
		updatedAt:        now,
	}, nil
}

func (e *TradingEvent) ID() string             { return e.id }
func (e *TradingEvent) Name() string           { return e.name }
func (e *TradingEvent) Description() string    { return e.description }
func (e *TradingEvent) IsRepeatable() bool     { return e.isRepeatable }
func (e *TradingEvent) MaxTradesPerUser() *int { return e.maxTradesPerUser }
func (e *TradingEvent) Priority() int          { return e.priority }
func (e *TradingEvent) IsPublic() bool         { return e.isPublic }
func (e *TradingEvent) StartDate() *time.Time  { return e.startDate }
func (e *TradingEvent) EndDate() *time.Time    { return e.endDate }
func (e *TradingEvent) CreatedAt() time.Time   { return e.createdAt }
func (e *TradingEvent) Version() int           { return e.version }

func (e *TradingEvent) Tags() []string {
	tags := make([]string, len(e.tags))
	copy(tags, e.tags)
	return tags
}

func (e *TradingEvent) Status() TradingEventStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *TradingEvent) UpdatedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updatedAt
}

// UpdateStatus performs an unconditional transition, matching the offer's
// permissive state machine.
func (e *TradingEvent) UpdateStatus(status TradingEventStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = status
	e.updatedAt = time.Now().UTC()
}

// IsActive is the effective availability predicate, independent of raw
// status: the event must be ACTIVE and the wall clock must be inside the
// [start, end] window, open ends treated as unbounded.
func (e *TradingEvent) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isActiveLocked(time.Now().UTC())
}

func (e *TradingEvent) isActiveLocked(now time.Time) bool {
	if e.status != EventStatusActive {
		return false
	}
	if e.startDate != nil && now.Before(*e.startDate) {
		return false
	}
	if e.endDate != nil && now.After(*e.endDate) {
		return false
	}
	return true
}

// AddTradeOffer rejects offers that belong to a different event: an offer
// may not be reparented.
func (e *TradingEvent) AddTradeOffer(offer *TradeOffer) error {
	if offer == nil {
		return errors.New("trade offer cannot be nil")
	}
	if offer.TradingEventID() != e.id {
		return fmt.Errorf("trade offer %s belongs to event %s, not %s", offer.ID(), offer.TradingEventID(), e.id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.offers[offer.ID()]; exists {
		return fmt.Errorf("trade offer %s already exists in event %s", offer.ID(), e.id)
	}
	e.offers[offer.ID()] = offer
	e.updatedAt = time.Now().UTC()
	return nil
}

func (e *TradingEvent) RemoveTradeOffer(offerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.offers[offerID]; !exists {
		return false
	}
	delete(e.offers, offerID)
	e.updatedAt = time.Now().UTC()
	return true
}

func (e *TradingEvent) GetTradeOffer(offerID string) (*TradeOffer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	offer, ok := e.offers[offerID]
	return offer, ok
}

func (e *TradingEvent) TradeOffers() []*TradeOffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	offers := make([]*TradeOffer, 0, len(e.offers))
	for _, offer := range e.offers {
		offers = append(offers, offer)
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].ID() < offers[j].ID() })
	return offers
}

// GetAvailableOffers filters owned offers by their availability predicate.
func (e *TradingEvent) GetAvailableOffers() []*TradeOffer {
	available := make([]*TradeOffer, 0)
	for _, offer := range e.TradeOffers() {
		if offer.IsAvailable() {
			available = append(available, offer)
		}
	}
	return available
}

// CanUserTrade is the coarse event-wide gate: the event must be effectively
// active and, when MaxTradesPerUser is set, the user's event-level count must
// be below it. A user must pass this gate and the offer's own gate to trade.
func (e *TradingEvent) CanUserTrade(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isActiveLocked(time.Now().UTC()) {
		return false
	}
	if e.maxTradesPerUser != nil && e.userTradeCounts[userID] >= *e.maxTradesPerUser {
		return false
	}
	return true
}

// RecordUserTrade increments the event-level per-user counter. It is the
// orchestrating caller's responsibility to invoke this after a successful
// offer-level execution; the event does not observe offer executions itself.
func (e *TradingEvent) RecordUserTrade(userID, offerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userTradeCounts[userID]++
	e.updatedAt = time.Now().UTC()
}

func (e *TradingEvent) GetUserTradeCount(userID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userTradeCounts[userID]
}

func (e *TradingEvent) UserTradeCounts() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyCounts(e.userTradeCounts)
}

// TotalTrades sums the event-level per-user counters. This tally is
// maintained independently of the offer-level counters.
func (e *TradingEvent) TotalTrades() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, count := range e.userTradeCounts {
		total += count
	}
	return total
}

// TradingEventSnapshot is the plain serializable form of a TradingEvent with
// its offers embedded. Version backs the optimistic persistence filter.
type TradingEventSnapshot struct {
	ID               string               `bson:"_id" json:"id"`
	Name             string               `bson:"name" json:"name"`
	Description      string               `bson:"description,omitempty" json:"description,omitempty"`
	Status           TradingEventStatus   `bson:"status" json:"status"`
	StartDate        *time.Time           `bson:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate          *time.Time           `bson:"end_date,omitempty" json:"end_date,omitempty"`
	IsRepeatable     bool                 `bson:"is_repeatable" json:"is_repeatable"`
	MaxTradesPerUser *int                 `bson:"max_trades_per_user,omitempty" json:"max_trades_per_user,omitempty"`
	Priority         int                  `bson:"priority" json:"priority"`
	Tags             []string             `bson:"tags" json:"tags"`
	IsPublic         bool                 `bson:"is_public" json:"is_public"`
	Offers           []TradeOfferSnapshot `bson:"offers" json:"offers"`
	UserTradeCounts  map[string]int       `bson:"user_trade_counts" json:"user_trade_counts"`
	Version          int                  `bson:"version" json:"version"`
	CreatedAt        time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time            `bson:"updated_at" json:"updated_at"`
}

func (e *TradingEvent) Snapshot() TradingEventSnapshot {
	offers := e.TradeOffers()
	offerSnapshots := make([]TradeOfferSnapshot, len(offers))
	for i, offer := range offers {
		offerSnapshots[i] = offer.Snapshot()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return TradingEventSnapshot{
		ID:               e.id,
		Name:             e.name,
		Description:      e.description,
		Status:           e.status,
		StartDate:        e.startDate,
		EndDate:          e.endDate,
		IsRepeatable:     e.isRepeatable,
		MaxTradesPerUser: e.maxTradesPerUser,
		Priority:         e.priority,
		Tags:             append([]string(nil), e.tags...),
		IsPublic:         e.isPublic,
		Offers:           offerSnapshots,
		UserTradeCounts:  copyCounts(e.userTradeCounts),
		Version:          e.version,
		CreatedAt:        e.createdAt,
		UpdatedAt:        e.updatedAt,
	}
}

// RestoreTradingEvent rebuilds an event and its offers from a persisted
// snapshot, re-checking all construction invariants.
func RestoreTradingEvent(s TradingEventSnapshot) (*TradingEvent, error) {
	event, err := NewTradingEvent(TradingEventParams{
		ID:               s.ID,
		Name:             s.Name,
		Description:      s.Description,
		Status:           s.Status,
		StartDate:        s.StartDate,
		EndDate:          s.EndDate,
		IsRepeatable:     s.IsRepeatable,
		MaxTradesPerUser: s.MaxTradesPerUser,
		Priority:         s.Priority,
		Tags:             s.Tags,
		IsPublic:         s.IsPublic,
	})
	if err != nil {
		return nil, err
	}

	for _, offerSnapshot := range s.Offers {
		offer, err := RestoreTradeOffer(offerSnapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to restore trade offer %s: %w", offerSnapshot.ID, err)
		}
		if err := event.AddTradeOffer(offer); err != nil {
			return nil, err
		}
	}

	if s.UserTradeCounts != nil {
		event.userTradeCounts = copyCounts(s.UserTradeCounts)
	}
	if s.Version > 0 {
		event.version = s.Version
	}
	if !s.CreatedAt.IsZero() {
		event.createdAt = s.CreatedAt.UTC()
	}
	if !s.UpdatedAt.IsZero() {
		event.updatedAt = s.UpdatedAt.UTC()
	}
	return event, nil
}
