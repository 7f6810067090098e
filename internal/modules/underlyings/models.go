// Package underlyings is the per-account symbol registry. Prices are
// refreshed externally and a fetch failure leaves the stored price
// untouched.
package underlyings

import (
	"time"

	"github.com/shopspring/decimal"
)

// Underlying is one tracked symbol within an account
type Underlying struct {
	ID             string           `json:"id"`
	AccountID      string           `json:"account_id"`
	Symbol         string           `json:"symbol"`
	CurrentPrice   *decimal.Decimal `json:"current_price,omitempty"`
	PriceUpdatedAt *time.Time       `json:"price_updated_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
