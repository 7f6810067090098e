// Package ledger maintains the append-only record of cash-affecting
// events. The sum of an account's entries must equal its cash balance at
// every observation point; the trades and reinvest services keep the two
// in lockstep by writing both inside one transaction.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"wheelhouse/internal/domain"
)

// EntryType classifies a ledger entry
type EntryType string

const (
	EntryDeposit          EntryType = "deposit"
	EntryPremiumCollected EntryType = "premium_collected"
	EntryPremiumPaid      EntryType = "premium_paid"
	EntryAssignment       EntryType = "assignment"
	EntryStockBuy         EntryType = "stock_buy"
	EntryStockSell        EntryType = "stock_sell"
	EntryFee              EntryType = "fee"
	EntryReinvestment     EntryType = "reinvestment"
)

// IsValid checks if the entry type is one of the known types
func (t EntryType) IsValid() bool {
	switch t {
	case EntryDeposit, EntryPremiumCollected, EntryPremiumPaid, EntryAssignment,
		EntryStockBuy, EntryStockSell, EntryFee, EntryReinvestment:
		return true
	}
	return false
}

// Entry is an immutable cash-affecting record. Amount is signed: credits
// positive, debits negative.
type Entry struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	CycleID     string          `json:"cycle_id,omitempty"`
	Type        EntryType       `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks the entry before persistence. The only constraint the
// ledger itself enforces is currency granularity; business policy (e.g.
// rejecting negative deposits) lives in the calling component.
func (e *Entry) Validate() error {
	if !e.Type.IsValid() {
		return &domain.ValidationError{Field: "type", Reason: "unknown entry type: " + string(e.Type)}
	}
	if err := domain.CheckGranularity(e.Amount); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		return &domain.ValidationError{Field: "occurred_at", Reason: "must be set"}
	}
	return nil
}
