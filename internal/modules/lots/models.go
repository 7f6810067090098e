// Package lots tracks open stock positions as acquisition lots with a
// remaining share count, consumed FIFO on sells and call assignments.
package lots

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockLot is a discrete share purchase tracked for cost basis.
// Remaining is monotonically non-increasing; a lot with remaining zero is
// closed and excluded from valuation.
type StockLot struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	UnderlyingID string          `json:"underlying_id"`
	CycleID      string          `json:"cycle_id,omitempty"`
	OpenQuantity int64           `json:"open_quantity"`
	Remaining    int64           `json:"remaining"`
	CostBasis    decimal.Decimal `json:"cost_basis"` // per share
	OpenedAt     time.Time       `json:"opened_at"`
}

// ConsumedLot records how many shares one Consume call took from a lot
type ConsumedLot struct {
	LotID     string          `json:"lot_id"`
	Quantity  int64           `json:"quantity"`
	CostBasis decimal.Decimal `json:"cost_basis"`
}

// Consumption is the outcome of a FIFO consume: which lots were reduced
// and the realized gain against the sale price.
type Consumption struct {
	Lots         []ConsumedLot   `json:"lots"`
	RealizedGain decimal.Decimal `json:"realized_gain"`
}
