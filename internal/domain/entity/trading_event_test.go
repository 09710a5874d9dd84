package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEventParams() TradingEventParams {
	return TradingEventParams{
		ID:     "event1",
		Name:   "Summer Bot Swap",
		Status: EventStatusActive,
	}
}

func mustOffer(t *testing.T, eventID, offerID string) *TradeOffer {
	t.Helper()
	offer, err := NewTradeOffer(TradeOfferParams{
		ID:             offerID,
		TradingEventID: eventID,
		Name:           "Offer " + offerID,
		RequiredItems: []TradeRequirement{
			{ItemID: "potion", ItemName: "Potion", Quantity: 1},
		},
		RewardItems: []TradeReward{
			{ItemID: "gem", ItemName: "Gem", Quantity: 1},
		},
	})
	require.NoError(t, err)
	return offer
}

func TestNewTradingEvent_Defaults(t *testing.T) {
	event, err := NewTradingEvent(TradingEventParams{ID: "event1", Name: "Launch Event"})
	require.NoError(t, err)

	assert.Equal(t, EventStatusDraft, event.Status())
	assert.Equal(t, 1, event.Version())
	assert.Empty(t, event.TradeOffers())
	assert.Equal(t, 0, event.TotalTrades())
}

func TestNewTradingEvent_ConstructionInvariants(t *testing.T) {
	now := time.Now().UTC()
	zero := 0

	cases := []struct {
		name   string
		mutate func(*TradingEventParams)
	}{
		{"empty ID", func(p *TradingEventParams) { p.ID = "" }},
		{"empty name", func(p *TradingEventParams) { p.Name = "" }},
		{"start not before end", func(p *TradingEventParams) { p.StartDate = &now; p.EndDate = &now }},
		{"non-positive max trades per user", func(p *TradingEventParams) { p.MaxTradesPerUser = &zero }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validEventParams()
			tc.mutate(&params)
			_, err := NewTradingEvent(params)
			assert.Error(t, err)
		})
	}
}

func TestTradingEvent_AddTradeOffer(t *testing.T) {
	event, err := NewTradingEvent(validEventParams())
	require.NoError(t, err)

	offer := mustOffer(t, "event1", "offer1")
	require.NoError(t, event.AddTradeOffer(offer))

	got, ok := event.GetTradeOffer("offer1")
	require.True(t, ok)
	assert.Equal(t, offer, got)

	// Same ID twice is rejected.
	assert.Error(t, event.AddTradeOffer(mustOffer(t, "event1", "offer1")))

	// An offer bound to a different event may not be reparented.
	foreign := mustOffer(t, "event2", "offer2")
	err = event.AddTradeOffer(foreign)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "belongs to event event2")
}

func TestTradingEvent_RemoveTradeOffer(t *testing.T) {
	event, err := NewTradingEvent(validEventParams())
	require.NoError(t, err)
	require.NoError(t, event.AddTradeOffer(mustOffer(t, "event1", "offer1")))

	assert.True(t, event.RemoveTradeOffer("offer1"))
	assert.False(t, event.RemoveTradeOffer("offer1"))
	_, ok := event.GetTradeOffer("offer1")
	assert.False(t, ok)
}

func TestTradingEvent_IsActiveWindow(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	params := validEventParams()
	params.StartDate = &past
	params.EndDate = &future
	event, err := NewTradingEvent(params)
	require.NoError(t, err)
	assert.True(t, event.IsActive())

	event.UpdateStatus(EventStatusPaused)
	assert.False(t, event.IsActive())
	event.UpdateStatus(EventStatusActive)
	assert.True(t, event.IsActive())

	// Window in the future.
	later := future.Add(time.Hour)
	params = validEventParams()
	params.StartDate = &future
	params.EndDate = &later
	notStarted, err := NewTradingEvent(params)
	require.NoError(t, err)
	assert.False(t, notStarted.IsActive())

	// Unbounded window: ACTIVE status alone is enough.
	unbounded, err := NewTradingEvent(validEventParams())
	require.NoError(t, err)
	assert.True(t, unbounded.IsActive())
}

func TestTradingEvent_CanUserTrade_EventGate(t *testing.T) {
	two := 2
	params := validEventParams()
	params.MaxTradesPerUser = &two
	event, err := NewTradingEvent(params)
	require.NoError(t, err)

	assert.True(t, event.CanUserTrade("userA"))

	event.RecordUserTrade("userA", "offer1")
	assert.True(t, event.CanUserTrade("userA"))

	event.RecordUserTrade("userA", "offer2")
	assert.False(t, event.CanUserTrade("userA"))
	assert.True(t, event.CanUserTrade("userB"))

	event.UpdateStatus(EventStatusEnded)
	assert.False(t, event.CanUserTrade("userB"))
}

func TestTradingEvent_TotalTrades(t *testing.T) {
	event, err := NewTradingEvent(validEventParams())
	require.NoError(t, err)

	event.RecordUserTrade("userA", "offer1")
	event.RecordUserTrade("userA", "offer2")
	event.RecordUserTrade("userB", "offer1")

	assert.Equal(t, 2, event.GetUserTradeCount("userA"))
	assert.Equal(t, 1, event.GetUserTradeCount("userB"))
	assert.Equal(t, 0, event.GetUserTradeCount("userC"))
	assert.Equal(t, 3, event.TotalTrades())
}

func TestTradingEvent_GetAvailableOffers(t *testing.T) {
	event, err := NewTradingEvent(validEventParams())
	require.NoError(t, err)

	active := mustOffer(t, "event1", "offer-active")
	paused := mustOffer(t, "event1", "offer-paused")
	paused.UpdateStatus(OfferStatusPaused)
	require.NoError(t, event.AddTradeOffer(active))
	require.NoError(t, event.AddTradeOffer(paused))

	available := event.GetAvailableOffers()
	require.Len(t, available, 1)
	assert.Equal(t, "offer-active", available[0].ID())
}

func TestTradingEvent_SnapshotRestore(t *testing.T) {
	two := 2
	params := validEventParams()
	params.MaxTradesPerUser = &two
	params.Tags = []string{"summer", "promo"}
	params.IsPublic = true
	event, err := NewTradingEvent(params)
	require.NoError(t, err)
	require.NoError(t, event.AddTradeOffer(mustOffer(t, "event1", "offer1")))
	event.RecordUserTrade("userA", "offer1")

	snapshot := event.Snapshot()
	assert.Equal(t, 1, snapshot.Version)
	require.Len(t, snapshot.Offers, 1)

	restored, err := RestoreTradingEvent(snapshot)
	require.NoError(t, err)
	assert.Equal(t, event.ID(), restored.ID())
	assert.Equal(t, 1, restored.GetUserTradeCount("userA"))
	assert.Equal(t, []string{"summer", "promo"}, restored.Tags())
	_, ok := restored.GetTradeOffer("offer1")
	assert.True(t, ok)

	// Restore re-checks offer ownership.
	snapshot.Offers[0].TradingEventID = "other-event"
	_, err = RestoreTradingEvent(snapshot)
	assert.Error(t, err)
}
