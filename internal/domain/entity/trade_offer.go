package entity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

type TradeOfferStatus string

const (
	OfferStatusActive  TradeOfferStatus = "ACTIVE"
	OfferStatusPaused  TradeOfferStatus = "PAUSED"
	OfferStatusSoldOut TradeOfferStatus = "SOLD_OUT"
	OfferStatusExpired TradeOfferStatus = "EXPIRED"
)

// TradeOffer is a single exchange definition inside a trading event: cost
// items for reward items, with its own supply and per-user limits. All
// counter mutation goes through ExecuteTrade, which holds the offer's lock
// across the whole validate-then-commit span.
type TradeOffer struct {
	mu sync.Mutex

	id             string
	tradingEventID string
	name           string
	description    string
	status         TradeOfferStatus
	maxTotalTrades *int
	currentTrades  int
	maxPerUser     *int
	startDate      *time.Time
	endDate        *time.Time
	requiredItems  []TradeRequirement
	rewardItems    []TradeReward

	userTradeCounts map[string]int

	createdAt time.Time
	updatedAt time.Time
}

type TradeOfferParams struct {
	ID             string
	TradingEventID string
	Name           string
	Description    string
	Status         TradeOfferStatus
	MaxTotalTrades *int
	MaxPerUser     *int
	StartDate      *time.Time
	EndDate        *time.Time
	RequiredItems  []TradeRequirement
	RewardItems    []TradeReward
}

func NewTradeOffer(p TradeOfferParams) (*TradeOffer, error) {
	if p.ID == "" {
		return nil, errors.New("trade offer ID cannot be empty")
	}
	if p.TradingEventID == "" {
		return nil, errors.New("trade offer trading event ID cannot be empty")
	}
	if p.Name == "" {
		return nil, errors.New("trade offer name cannot be empty")
	}
	if p.StartDate != nil && p.EndDate != nil && !p.StartDate.Before(*p.EndDate) {
		return nil, errors.New("trade offer start date must be before end date")
	}
	if p.MaxTotalTrades != nil && *p.MaxTotalTrades <= 0 {
		return nil, errors.New("trade offer max total trades must be positive")
	}
	if p.MaxPerUser != nil && *p.MaxPerUser <= 0 {
		return nil, errors.New("trade offer max per user must be positive")
	}
	if len(p.RequiredItems) == 0 {
		return nil, errors.New("trade offer must require at least one item")
	}
	if len(p.RewardItems) == 0 {
		return nil, errors.New("trade offer must reward at least one item")
	}
	for _, item := range p.RequiredItems {
		if item.ItemID == "" || item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid required item %q: quantity must be positive and ID non-empty", item.ItemID)
		}
	}
	for _, item := range p.RewardItems {
		if item.ItemID == "" || item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid reward item %q: quantity must be positive and ID non-empty", item.ItemID)
		}
	}

	status := p.Status
	if status == "" {
		status = OfferStatusActive
	}

	now := time.Now().UTC()
	return &TradeOffer{
		id:              p.ID,
		tradingEventID:  p.TradingEventID,
		name:            p.Name,
		description:     p.Description,
		status:          status,
		maxTotalTrades:  p.MaxTotalTrades,
		maxPerUser:      p.MaxPerUser,
		startDate:       p.StartDate,
		endDate:         p.EndDate,
		requiredItems:   copyRequirements(p.RequiredItems),
		rewardItems:     copyRewards(p.RewardItems),
		userTradeCounts: make(map[string]int),
		createdAt:       now,
		updatedAt:       now,
	}, nil
}

func (o *TradeOffer) ID() string             { return o.id }
func (o *TradeOffer) TradingEventID() string { return o.tradingEventID }
func (o *TradeOffer) Name() string           { return o.name }
func (o *TradeOffer) Description() string    { return o.description }
func (o *TradeOffer) CreatedAt() time.Time   { return o.createdAt }

func (o *TradeOffer) Status() TradeOfferStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *TradeOffer) UpdatedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.updatedAt
}

func (o *TradeOffer) CurrentTrades() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentTrades
}

func (o *TradeOffer) MaxTotalTrades() *int  { return o.maxTotalTrades }
func (o *TradeOffer) MaxPerUser() *int      { return o.maxPerUser }
func (o *TradeOffer) StartDate() *time.Time { return o.startDate }
func (o *TradeOffer) EndDate() *time.Time   { return o.endDate }

func (o *TradeOffer) RequiredItems() []TradeRequirement {
	return copyRequirements(o.requiredItems)
}

func (o *TradeOffer) RewardItems() []TradeReward {
	return copyRewards(o.rewardItems)
}

// UpdateStatus performs an unconditional transition. Callers (admin and
// automation paths) are trusted; no transition table is enforced.
func (o *TradeOffer) UpdateStatus(status TradeOfferStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = status
	o.updatedAt = time.Now().UTC()
}

func (o *TradeOffer) IsExpired() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isExpiredLocked(time.Now().UTC())
}

func (o *TradeOffer) isExpiredLocked(now time.Time) bool {
	return o.endDate != nil && now.After(*o.endDate)
}

func (o *TradeOffer) IsSoldOut() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isSoldOutLocked()
}

func (o *TradeOffer) isSoldOutLocked() bool {
	return o.maxTotalTrades != nil && o.currentTrades >= *o.maxTotalTrades
}

func (o *TradeOffer) IsAvailable() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isAvailableLocked(time.Now().UTC())
}

func (o *TradeOffer) isAvailableLocked(now time.Time) bool {
	switch o.status {
	case OfferStatusPaused, OfferStatusSoldOut, OfferStatusExpired:
		return false
	}
	if o.isSoldOutLocked() || o.isExpiredLocked(now) {
		return false
	}
	if o.startDate != nil && now.Before(*o.startDate) {
		return false
	}
	return true
}

// RemainingTrades returns nil when the offer has no global supply limit.
func (o *TradeOffer) RemainingTrades() *int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.remainingTradesLocked()
}

func (o *TradeOffer) remainingTradesLocked() *int {
	if o.maxTotalTrades == nil {
		return nil
	}
	remaining := *o.maxTotalTrades - o.currentTrades
	if remaining < 0 {
		remaining = 0
	}
	return intPtr(remaining)
}

func (o *TradeOffer) GetUserTradeCount(userID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.userTradeCounts[userID]
}

func (o *TradeOffer) UserTradeCounts() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyCounts(o.userTradeCounts)
}

// RequiredLevel is the highest level gate among the cost items, or nil when
// no required item carries a level requirement.
func (o *TradeOffer) RequiredLevel() *int {
	var required *int
	for _, item := range o.requiredItems {
		if item.MinLevel == nil {
			continue
		}
		if required == nil || *item.MinLevel > *required {
			required = intPtr(*item.MinLevel)
		}
	}
	return required
}

// CanUserTrade accumulates every reason the user currently cannot trade on
// this offer. It never short-circuits: a paused offer with an exhausted
// per-user cap reports both reasons. Pass a nil userLevel to skip the level
// gate.
func (o *TradeOffer) CanUserTrade(userID string, userLevel *int) UserTradeEligibility {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canUserTradeLocked(userID, userLevel, time.Now().UTC())
}

func (o *TradeOffer) canUserTradeLocked(userID string, userLevel *int, now time.Time) UserTradeEligibility {
	eligibility := UserTradeEligibility{Reasons: []string{}}

	if o.status == OfferStatusPaused {
		eligibility.Reasons = append(eligibility.Reasons, "offer is currently paused")
	}
	if o.status == OfferStatusSoldOut || o.isSoldOutLocked() {
		eligibility.Reasons = append(eligibility.Reasons, "offer is sold out")
	}
	if o.status == OfferStatusExpired || o.isExpiredLocked(now) {
		eligibility.Reasons = append(eligibility.Reasons, "offer has expired")
	}
	if o.startDate != nil && now.Before(*o.startDate) {
		eligibility.Reasons = append(eligibility.Reasons, "offer has not started yet")
		next := *o.startDate
		eligibility.NextAvailableAt = &next
	}

	userCount := o.userTradeCounts[userID]
	if o.maxPerUser != nil {
		if userCount >= *o.maxPerUser {
			eligibility.Reasons = append(eligibility.Reasons, fmt.Sprintf("per-user trade limit of %d reached", *o.maxPerUser))
		}
		remaining := *o.maxPerUser - userCount
		if remaining < 0 {
			remaining = 0
		}
		eligibility.RemainingTrades = intPtr(remaining)
	} else {
		eligibility.RemainingTrades = o.remainingTradesLocked()
	}

	if requiredLevel := o.RequiredLevel(); requiredLevel != nil && userLevel != nil {
		eligibility.RequiredLevel = requiredLevel
		eligibility.UserLevel = userLevel
		if *userLevel < *requiredLevel {
			eligibility.Reasons = append(eligibility.Reasons, fmt.Sprintf("user level %d is below required level %d", *userLevel, *requiredLevel))
		}
	}

	eligibility.CanTrade = len(eligibility.Reasons) == 0
	return eligibility
}

// ValidateTrade checks the supplied inventory snapshot against the offer's
// required items. It is a pure function of current state plus the snapshot;
// the engine never reads inventory from storage itself.
func (o *TradeOffer) ValidateTrade(userInventory map[string]int) TradeValidationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.validateTradeLocked(userInventory)
}

func (o *TradeOffer) validateTradeLocked(userInventory map[string]int) TradeValidationResult {
	result := TradeValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	for _, required := range o.requiredItems {
		held := userInventory[required.ItemID]
		if held <= 0 {
			result.MissingItems = append(result.MissingItems, required.ItemID)
			result.Errors = append(result.Errors, fmt.Sprintf("missing required item %s (need %d)", required.ItemName, required.Quantity))
		} else if held < required.Quantity {
			result.InsufficientQuantities = append(result.InsufficientQuantities, required.ItemID)
			result.Errors = append(result.Errors, fmt.Sprintf("insufficient quantity of %s: have %d, need %d", required.ItemName, held, required.Quantity))
		}
	}

	// A restored snapshot edited out-of-band can lose its rewards; surface
	// that as a warning rather than blocking the trade.
	if len(o.rewardItems) == 0 {
		result.Warnings = append(result.Warnings, "offer has no reward items")
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// ExecuteTrade runs the validate-then-commit protocol under the offer's lock:
// inventory validation first, then eligibility, then the counter commit.
// Validation and eligibility failures are expected conditions reported in the
// result, never errors. A commit that exhausts MaxTotalTrades transitions the
// offer to SOLD_OUT.
func (o *TradeOffer) ExecuteTrade(userID string, userInventory map[string]int) TradeExecutionResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now().UTC()

	if validation := o.validateTradeLocked(userInventory); !validation.IsValid {
		return TradeExecutionResult{
			Success:   false,
			Message:   "trade validation failed: " + strings.Join(validation.Errors, "; "),
			Timestamp: now,
		}
	}

	if eligibility := o.canUserTradeLocked(userID, nil, now); !eligibility.CanTrade {
		return TradeExecutionResult{
			Success:   false,
			Message:   "user cannot trade: " + strings.Join(eligibility.Reasons, "; "),
			Timestamp: now,
		}
	}

	o.currentTrades++
	o.userTradeCounts[userID]++
	o.updatedAt = now
	if o.isSoldOutLocked() {
		o.status = OfferStatusSoldOut
	}

	return TradeExecutionResult{
		Success:       true,
		Message:       "trade executed successfully",
		TransactionID: fmt.Sprintf("trade_%s_%s_%d", o.id, userID, now.UnixMilli()),
		ItemsGiven:    copyRequirements(o.requiredItems),
		ItemsReceived: copyRewards(o.rewardItems),
		Timestamp:     now,
	}
}

// TradeOfferSnapshot is the plain serializable form of a TradeOffer, used
// both as the persistence document and as the JSON transport shape.
type TradeOfferSnapshot struct {
	ID              string             `bson:"_id" json:"id"`
	TradingEventID  string             `bson:"trading_event_id" json:"trading_event_id"`
	Name            string             `bson:"name" json:"name"`
	Description     string             `bson:"description,omitempty" json:"description,omitempty"`
	Status          TradeOfferStatus   `bson:"status" json:"status"`
	MaxTotalTrades  *int               `bson:"max_total_trades,omitempty" json:"max_total_trades,omitempty"`
	CurrentTrades   int                `bson:"current_trades" json:"current_trades"`
	MaxPerUser      *int               `bson:"max_per_user,omitempty" json:"max_per_user,omitempty"`
	StartDate       *time.Time         `bson:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate         *time.Time         `bson:"end_date,omitempty" json:"end_date,omitempty"`
	RequiredItems   []TradeRequirement `bson:"required_items" json:"required_items"`
	RewardItems     []TradeReward      `bson:"reward_items" json:"reward_items"`
	UserTradeCounts map[string]int     `bson:"user_trade_counts" json:"user_trade_counts"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

func (o *TradeOffer) Snapshot() TradeOfferSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return TradeOfferSnapshot{
		ID:              o.id,
		TradingEventID:  o.tradingEventID,
		Name:            o.name,
		Description:     o.description,
		Status:          o.status,
		MaxTotalTrades:  o.maxTotalTrades,
		CurrentTrades:   o.currentTrades,
		MaxPerUser:      o.maxPerUser,
		StartDate:       o.startDate,
		EndDate:         o.endDate,
		RequiredItems:   copyRequirements(o.requiredItems),
		RewardItems:     copyRewards(o.rewardItems),
		UserTradeCounts: copyCounts(o.userTradeCounts),
		CreatedAt:       o.createdAt,
		UpdatedAt:       o.updatedAt,
	}
}

// RestoreTradeOffer rebuilds an offer from a persisted snapshot, re-checking
// the construction invariants.
func RestoreTradeOffer(s TradeOfferSnapshot) (*TradeOffer, error) {
	offer, err := NewTradeOffer(TradeOfferParams{
		ID:             s.ID,
		TradingEventID: s.TradingEventID,
		Name:           s.Name,
		Description:    s.Description,
		Status:         s.Status,
		MaxTotalTrades: s.MaxTotalTrades,
		MaxPerUser:     s.MaxPerUser,
		StartDate:      s.StartDate,
		EndDate:        s.EndDate,
		RequiredItems:  s.RequiredItems,
		RewardItems:    s.RewardItems,
	})
	if err != nil {
		return nil, err
	}
	if s.CurrentTrades < 0 {
		return nil, errors.New("trade offer current trades cannot be negative")
	}
	offer.currentTrades = s.CurrentTrades
	if s.UserTradeCounts != nil {
		offer.userTradeCounts = copyCounts(s.UserTradeCounts)
	}
	if !s.CreatedAt.IsZero() {
		offer.createdAt = s.CreatedAt.UTC()
	}
	if !s.UpdatedAt.IsZero() {
		offer.updatedAt = s.UpdatedAt.UTC()
	}
	return offer, nil
}
