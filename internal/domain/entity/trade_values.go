package entity

import (
	"errors"
	"time"
)

type TradeRequirement struct {
	ItemID   string `bson:"item_id" json:"item_id"`
	ItemName string `bson:"item_name" json:"item_name"`
	Quantity int    `bson:"quantity" json:"quantity"`
	MinLevel *int   `bson:"min_level,omitempty" json:"min_level,omitempty"`
}

func NewTradeRequirement(itemID, itemName string, quantity int, minLevel *int) (TradeRequirement, error) {
	if itemID == "" {
		return TradeRequirement{}, errors.New("required item ID cannot be empty")
	}
	if quantity <= 0 {
		return TradeRequirement{}, errors.New("required item quantity must be positive")
	}
	if minLevel != nil && *minLevel <= 0 {
		return TradeRequirement{}, errors.New("required item min level must be positive")
	}
	return TradeRequirement{
		ItemID:   itemID,
		ItemName: itemName,
		Quantity: quantity,
		MinLevel: minLevel,
	}, nil
}

type TradeReward struct {
	ItemID   string `bson:"item_id" json:"item_id"`
	ItemName string `bson:"item_name" json:"item_name"`
	Quantity int    `bson:"quantity" json:"quantity"`
}

func NewTradeReward(itemID, itemName string, quantity int) (TradeReward, error) {
	if itemID == "" {
		return TradeReward{}, errors.New("reward item ID cannot be empty")
	}
	if quantity <= 0 {
		return TradeReward{}, errors.New("reward item quantity must be positive")
	}
	return TradeReward{
		ItemID:   itemID,
		ItemName: itemName,
		Quantity: quantity,
	}, nil
}

// UserTradeEligibility reports every reason a user currently cannot trade.
// An empty Reasons slice means the user may trade.
type UserTradeEligibility struct {
	CanTrade        bool       `json:"can_trade"`
	Reasons         []string   `json:"reasons"`
	RemainingTrades *int       `json:"remaining_trades,omitempty"`
	NextAvailableAt *time.Time `json:"next_available_at,omitempty"`
	RequiredLevel   *int       `json:"required_level,omitempty"`
	UserLevel       *int       `json:"user_level,omitempty"`
}

// TradeValidationResult reports whether a user's inventory snapshot satisfies
// an offer's required items. Items the user does not hold at all land in
// MissingItems; items held below the required quantity land in
// InsufficientQuantities.
type TradeValidationResult struct {
	IsValid                bool     `json:"is_valid"`
	Errors                 []string `json:"errors"`
	Warnings               []string `json:"warnings"`
	MissingItems           []string `json:"missing_items,omitempty"`
	InsufficientQuantities []string `json:"insufficient_quantities,omitempty"`
}

// TradeExecutionResult is the receipt for an attempted trade. On success it
// carries copies of the offer's cost and payout lists; on failure Message
// embeds the joined validation errors or eligibility reasons.
type TradeExecutionResult struct {
	Success       bool               `json:"success"`
	Message       string             `json:"message"`
	TransactionID string             `json:"transaction_id,omitempty"`
	ItemsGiven    []TradeRequirement `json:"items_given"`
	ItemsReceived []TradeReward      `json:"items_received"`
	Timestamp     time.Time          `json:"timestamp"`
}

func copyRequirements(items []TradeRequirement) []TradeRequirement {
	out := make([]TradeRequirement, len(items))
	copy(out, items)
	return out
}

func copyRewards(items []TradeReward) []TradeReward {
	out := make([]TradeReward, len(items))
	copy(out, items)
	return out
}

func copyCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}

func intPtr(v int) *int {
	return &v
}
