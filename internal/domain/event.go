package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind names a market notification.
type EventKind string

const (
	EventMarketConfigured EventKind = "market_configured"
	EventMarketActivated  EventKind = "market_activated"
	EventBetPlaced        EventKind = "bet_placed"
	EventLiquidityAdded   EventKind = "liquidity_added"
	EventMarketResolved   EventKind = "market_resolved"
	EventWithdrawal       EventKind = "withdrawal"
)

// Event is an append-only notification emitted by a committed operation.
type Event struct {
	ID        string          `json:"id"`
	Kind      EventKind       `json:"kind"`
	MarketID  string          `json:"market_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent builds an Event with a fresh id and the JSON encoding of payload.
func NewEvent(kind EventKind, marketID string, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("domain: marshal %s payload: %w", kind, err)
	}
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		MarketID:  marketID,
		Payload:   data,
		CreatedAt: at.UTC(),
	}, nil
}

// ConfiguredEvent is emitted when a market is created or reconfigured.
type ConfiguredEvent struct {
	Market         Pubkey `json:"market"`
	Creator        Pubkey `json:"creator"`
	TokenAmount    uint64 `json:"token_amount"`
	TokenPrice     uint64 `json:"token_price"`
	ResolutionDate int64  `json:"resolution_date"`
}

// ActivatedEvent is emitted on Prepare -> Active.
type ActivatedEvent struct {
	Market Pubkey `json:"market"`
}

// BetEvent is emitted for every accepted bet.
type BetEvent struct {
	Market       Pubkey `json:"market"`
	User         Pubkey `json:"user"`
	Amount       uint64 `json:"amount"`
	IsYes        bool   `json:"is_yes"`
	Stake        uint64 `json:"stake"`
	TokenAAmount uint64 `json:"token_a_amount"`
	TokenBAmount uint64 `json:"token_b_amount"`
	TokenPriceA  uint64 `json:"token_price_a"`
	TokenPriceB  uint64 `json:"token_price_b"`
}

// LiquidityEvent is emitted when native funds are added to the escrow.
type LiquidityEvent struct {
	Market   Pubkey `json:"market"`
	Provider Pubkey `json:"provider"`
	Lamports uint64 `json:"lamports"`
}

// ResolutionEvent is emitted when the admin sets the outcome.
type ResolutionEvent struct {
	Market  Pubkey `json:"market"`
	Admin   Pubkey `json:"admin"`
	Outcome bool   `json:"outcome"`
}

// WithdrawEvent is emitted for every successful payout.
type WithdrawEvent struct {
	Market       Pubkey `json:"market"`
	User         Pubkey `json:"user"`
	Amount       uint64 `json:"amount"`
	TokenBalance uint64 `json:"token_balance"`
}
