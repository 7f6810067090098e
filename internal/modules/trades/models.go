// Package trades is the ingestion surface for broker events. Each
// request runs as one transaction combining ledger, lot and cycle
// mutations, then publishes what happened on the event bus.
package trades

import (
	"time"

	"github.com/shopspring/decimal"

	"wheelhouse/internal/domain"
	"wheelhouse/internal/modules/cycles"
	"wheelhouse/internal/modules/ledger"
	"wheelhouse/internal/modules/lots"
	"wheelhouse/internal/modules/underlyings"
)

// StockAction is the direction of a stock trade
type StockAction string

const (
	// StockBuy purchases shares into a new lot
	StockBuy StockAction = "BUY"
	// StockSell sells shares out of open lots, FIFO
	StockSell StockAction = "SELL"
)

// OptionAction is the lifecycle event reported for an option position
type OptionAction string

const (
	// SellToOpen opens a short put or call
	SellToOpen OptionAction = "SELL_TO_OPEN"
	// BuyToClose buys back a short leg before expiration
	BuyToClose OptionAction = "BUY_TO_CLOSE"
	// Expire reports a leg expiring worthless
	Expire OptionAction = "EXPIRE"
	// Assign reports an assignment against a short leg
	Assign OptionAction = "ASSIGN"
)

// PremiumPolicy controls where collected option premium lands.
type PremiumPolicy string

const (
	// PolicyCompound leaves premium in free cash (the default)
	PolicyCompound PremiumPolicy = "COMPOUND"
	// PolicyReserve sets collected premium aside in the cashflow reserve
	PolicyReserve PremiumPolicy = "RESERVE"
)

// IsValid returns true for a known policy value
func (p PremiumPolicy) IsValid() bool {
	return p == PolicyCompound || p == PolicyReserve
}

// StockTradeRequest is an inbound stock entry. WheelCategory, when set,
// classifies the underlying for the wheel calculator as a side effect;
// nil leaves the existing classification alone.
type StockTradeRequest struct {
	Symbol        string          `json:"symbol"`
	Action        StockAction     `json:"action"`
	Quantity      int64           `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Fees          decimal.Decimal `json:"fees"`
	OccurredAt    time.Time       `json:"occurred_at"`
	WheelCategory *string         `json:"wheel_category,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

// Validate checks the request before any state change
func (r *StockTradeRequest) Validate() error {
	if r.Symbol == "" {
		return &domain.ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if r.Action != StockBuy && r.Action != StockSell {
		return &domain.ValidationError{Field: "action", Reason: "must be BUY or SELL"}
	}
	if r.Quantity <= 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if !r.Price.IsPositive() {
		return &domain.ValidationError{Field: "price", Reason: "must be positive"}
	}
	if r.Fees.IsNegative() {
		return &domain.ValidationError{Field: "fees", Reason: "must not be negative"}
	}
	if r.OccurredAt.IsZero() {
		return &domain.ValidationError{Field: "occurred_at", Reason: "must be set"}
	}
	return nil
}

// OptionTradeRequest is an inbound option entry. Price is the per-share
// premium for SELL_TO_OPEN and BUY_TO_CLOSE and ignored for EXPIRE and
// ASSIGN. The override pointers mean "use the account default" when
// nil, an explicit choice when set.
type OptionTradeRequest struct {
	Symbol                string          `json:"symbol"`
	Action                OptionAction    `json:"action"`
	CallPut               cycles.CallPut  `json:"call_put"`
	Strike                decimal.Decimal `json:"strike"`
	Expiration            time.Time       `json:"expiration"`
	Quantity              int64           `json:"quantity"`
	Price                 decimal.Decimal `json:"price"`
	Fees                  decimal.Decimal `json:"fees"`
	OccurredAt            time.Time       `json:"occurred_at"`
	PremiumPolicyOverride *PremiumPolicy  `json:"premium_policy_override,omitempty"`
	WheelCategoryOverride *string         `json:"wheel_category_override,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
}

// LegKey returns the contract terms identifying the leg
func (r *OptionTradeRequest) LegKey() cycles.LegKey {
	return cycles.LegKey{
		CallPut:    r.CallPut,
		Strike:     r.Strike,
		Expiration: r.Expiration,
	}
}

// Validate checks the request before any state change
func (r *OptionTradeRequest) Validate() error {
	if r.Symbol == "" {
		return &domain.ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	switch r.Action {
	case SellToOpen, BuyToClose, Expire, Assign:
	default:
		return &domain.ValidationError{Field: "action", Reason: "unknown action: " + string(r.Action)}
	}
	if err := r.LegKey().Validate(); err != nil {
		return err
	}
	if r.Action != Expire && r.Quantity <= 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if r.Fees.IsNegative() {
		return &domain.ValidationError{Field: "fees", Reason: "must not be negative"}
	}
	if r.OccurredAt.IsZero() {
		return &domain.ValidationError{Field: "occurred_at", Reason: "must be set"}
	}
	if r.PremiumPolicyOverride != nil && !r.PremiumPolicyOverride.IsValid() {
		return &domain.ValidationError{Field: "premium_policy_override", Reason: "must be COMPOUND or RESERVE"}
	}
	return nil
}

// DepositRequest is an inbound cash deposit
type DepositRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
	Notes      string          `json:"notes,omitempty"`
}

// Validate rejects non-positive deposits. The ledger itself would take
// any sign; that business policy lives here.
func (r *DepositRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if err := domain.CheckGranularity(r.Amount); err != nil {
		return err
	}
	if r.OccurredAt.IsZero() {
		return &domain.ValidationError{Field: "occurred_at", Reason: "must be set"}
	}
	return nil
}

// StockTradeResult reports what a stock trade did
type StockTradeResult struct {
	Underlying  *underlyings.Underlying `json:"underlying"`
	Lot         *lots.StockLot          `json:"lot,omitempty"`
	Consumption *lots.Consumption       `json:"consumption,omitempty"`
	Entry       *ledger.Entry           `json:"entry"`
	Cycle       *cycles.Result          `json:"cycle,omitempty"`
}
