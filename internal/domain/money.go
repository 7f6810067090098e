package domain

import (
	"github.com/shopspring/decimal"
)

// SharesPerContract is the deliverable of one standard option contract.
var SharesPerContract = decimal.NewFromInt(100)

// ParseAmount parses a monetary string into a decimal, enforcing currency
// granularity (at most 2 fraction digits). All inbound amounts go through
// here; internal arithmetic keeps full decimal precision.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Reason: "not a valid decimal: " + s}
	}
	if err := CheckGranularity(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// CheckGranularity rejects amounts with more than 2 fraction digits.
func CheckGranularity(d decimal.Decimal) error {
	if d.Exponent() < -2 {
		return &ValidationError{Field: "amount", Reason: "more than 2 fraction digits: " + d.String()}
	}
	return nil
}

// RenderAmount formats a decimal for the presentation boundary. This is
// the only place monetary values are rounded.
func RenderAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
