// Package cycles implements the wheel strategy state machine. A cycle
// binds the option legs, stock lots and ledger entries for one
// underlying into a single instance that is finalized when the position
// fully unwinds, at which point realized P&L is computed and a
// reinvestment signal is emitted.
package cycles

import (
	"time"

	"github.com/shopspring/decimal"

	"wheelhouse/internal/domain"
)

// Status is the lifecycle state of a strategy cycle
type Status string

const (
	// StatusOpen means the cycle has open option legs or stock
	StatusOpen Status = "OPEN"
	// StatusFinalized is terminal; the position fully unwound
	StatusFinalized Status = "FINALIZED"
)

// CallPut distinguishes the two option types
type CallPut string

const (
	// Call is a call option
	Call CallPut = "CALL"
	// Put is a put option
	Put CallPut = "PUT"
)

// IsValid returns true if the value is CALL or PUT
func (cp CallPut) IsValid() bool {
	return cp == Call || cp == Put
}

// LegStatus is the lifecycle state of an option leg
type LegStatus string

const (
	// LegOpen means the leg still has open contracts
	LegOpen LegStatus = "OPEN"
	// LegClosed means the leg was bought to close
	LegClosed LegStatus = "CLOSED"
	// LegExpired means the leg expired worthless
	LegExpired LegStatus = "EXPIRED"
	// LegAssigned means the leg was assigned
	LegAssigned LegStatus = "ASSIGNED"
)

// Cycle is one wheel strategy instance for an underlying. At most one
// cycle per underlying is OPEN at a time; new option legs attach to the
// existing OPEN cycle rather than creating another.
type Cycle struct {
	ID           string           `json:"id"`
	AccountID    string           `json:"account_id"`
	UnderlyingID string           `json:"underlying_id"`
	Status       Status           `json:"status"`
	OpenedAt     time.Time        `json:"opened_at"`
	FinalizedAt  *time.Time       `json:"finalized_at,omitempty"`
	RealizedPnL  *decimal.Decimal `json:"realized_pnl,omitempty"`
}

// OptionLeg is one short option position inside a cycle. OpenContracts
// counts down as contracts close, expire or get assigned; the leg
// status turns terminal when it reaches zero.
type OptionLeg struct {
	ID            string          `json:"id"`
	CycleID       string          `json:"cycle_id"`
	CallPut       CallPut         `json:"call_put"`
	Strike        decimal.Decimal `json:"strike"`
	Expiration    time.Time       `json:"expiration"`
	Quantity      int64           `json:"quantity"`
	OpenContracts int64           `json:"open_contracts"`
	Status        LegStatus       `json:"status"`
	OpenedAt      time.Time       `json:"opened_at"`
	ClosedAt      *time.Time      `json:"closed_at,omitempty"`
}

// LegKey identifies an option leg within a cycle by its contract terms.
// Expire, assign and buy-to-close events address legs this way because
// brokers report contract terms, not our internal IDs.
type LegKey struct {
	CallPut    CallPut         `json:"call_put"`
	Strike     decimal.Decimal `json:"strike"`
	Expiration time.Time       `json:"expiration"`
}

// Validate checks the key's contract terms
func (k LegKey) Validate() error {
	if !k.CallPut.IsValid() {
		return &domain.ValidationError{Field: "call_put", Reason: "must be CALL or PUT"}
	}
	if !k.Strike.IsPositive() {
		return &domain.ValidationError{Field: "strike", Reason: "must be positive"}
	}
	if k.Expiration.IsZero() {
		return &domain.ValidationError{Field: "expiration", Reason: "must be set"}
	}
	return nil
}
