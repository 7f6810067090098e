// Package reinvest tracks reinvestment signals: proposed redeployments
// of freed cash created when a strategy cycle finalizes, and the
// operator's approve/reject/partial decisions on them.
package reinvest

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of a reinvestment signal. PENDING is the only non-terminal
// status; resolved signals never reopen.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusPartial  Status = "PARTIAL"
)

// Action is the operator's decision on a pending signal
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionPartial Action = "PARTIAL"
)

// Signal is a proposed redeployment of freed cash
type Signal struct {
	ID            string           `json:"id"`
	AccountID     string           `json:"account_id"`
	CycleID       string           `json:"cycle_id,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	Status        Status           `json:"status"`
	PartialAmount *decimal.Decimal `json:"partial_amount,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	ResolvedAt    *time.Time       `json:"resolved_at,omitempty"`
}
