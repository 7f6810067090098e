// Package accounts manages brokerage accounts: identity, the single
// mutable cash balance and the cashflow reserve kept uninvested.
package accounts

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wheelhouse/internal/domain"
)

// Account is the root entity; every other row belongs to exactly one
// account and is removed with it.
type Account struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	CashBalance     decimal.Decimal `json:"cash_balance"`
	CashflowReserve decimal.Decimal `json:"cashflow_reserve"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Validate checks account fields before persistence
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return &domain.ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if a.CashflowReserve.IsNegative() {
		return &domain.ValidationError{Field: "cashflow_reserve", Reason: "cannot be negative"}
	}
	return nil
}
