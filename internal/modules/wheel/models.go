// Package wheel implements the wealth wheel rebalancer: operator-set
// category targets, per-underlying classifications, and a read-only
// allocation calculation comparing actual weights against targets.
package wheel

import (
	"time"

	"github.com/shopspring/decimal"

	"wheelhouse/internal/domain"
)

// Target is one category's desired share of total account value
type Target struct {
	AccountID string          `json:"account_id"`
	Category  string          `json:"category"`
	TargetPct decimal.Decimal `json:"target_pct"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Validate checks category and percentage bounds
func (t *Target) Validate() error {
	if t.Category == "" {
		return &domain.ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if t.TargetPct.IsNegative() || t.TargetPct.GreaterThan(decimal.NewFromInt(100)) {
		return &domain.ValidationError{Field: "target_pct", Reason: "must be between 0 and 100"}
	}
	return nil
}

// Classification assigns an underlying to a wheel category
type Classification struct {
	AccountID    string    `json:"account_id"`
	UnderlyingID string    `json:"underlying_id"`
	Category     string    `json:"category"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Slice is one category's actual versus target allocation. A positive
// delta means the category is under-allocated.
type Slice struct {
	Category     string          `json:"category"`
	TargetPct    decimal.Decimal `json:"target_pct"`
	ActualPct    decimal.Decimal `json:"actual_pct"`
	CurrentValue decimal.Decimal `json:"current_value"`
	Delta        decimal.Decimal `json:"delta"`
}

// Result is the full wheel picture for an account. Values are rounded
// to 2 decimal places here, at the presentation boundary; the
// calculation itself runs at full decimal precision.
type Result struct {
	AccountID       string          `json:"account_id"`
	TotalValue      decimal.Decimal `json:"total_value"`
	CashBalance     decimal.Decimal `json:"cash_balance"`
	CashflowReserve decimal.Decimal `json:"cashflow_reserve"`
	Slices          []Slice         `json:"slices"`
	CalculatedAt    time.Time       `json:"calculated_at"`
}
