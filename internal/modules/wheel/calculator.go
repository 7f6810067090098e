package wheel

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/lots"
	"wheelhouse/internal/modules/underlyings"
)

var hundred = decimal.NewFromInt(100)

// Calculator computes the wealth wheel allocation for an account. It is
// a read-only aggregator over cash, open lots and current prices; it
// never mutates account state and can run concurrently with trades.
type Calculator struct {
	db          *database.DB
	repo        *Repository
	accounts    *accounts.Repository
	underlyings *underlyings.Repository
	lots        *lots.Tracker
	log         zerolog.Logger
}

// NewCalculator creates a new wheel calculator
func NewCalculator(db *database.DB, repo *Repository, accountsRepo *accounts.Repository, underlyingsRepo *underlyings.Repository, lotTracker *lots.Tracker, log zerolog.Logger) *Calculator {
	return &Calculator{
		db:          db,
		repo:        repo,
		accounts:    accountsRepo,
		underlyings: underlyingsRepo,
		lots:        lotTracker,
		log:         log.With().Str("service", "wheel").Logger(),
	}
}

// Calculate builds the allocation picture: total value is cash plus the
// market value of all open lots, each configured category gets its
// actual weight and the delta to its target. Unpriced underlyings
// contribute zero value. Percentages and values round to 2 decimal
// places only in the returned result.
func (c *Calculator) Calculate(accountID string) (*Result, error) {
	account, err := c.accounts.Get(c.db, accountID)
	if err != nil {
		return nil, err
	}

	targets, err := c.repo.TargetsByAccount(c.db, accountID)
	if err != nil {
		return nil, err
	}

	classifications, err := c.repo.ClassificationsByAccount(c.db, accountID)
	if err != nil {
		return nil, err
	}

	holdings, err := c.underlyings.ListByAccount(accountID)
	if err != nil {
		return nil, err
	}

	totalValue := account.CashBalance
	categoryValues := make(map[string]decimal.Decimal)

	for _, u := range holdings {
		value, err := c.lots.CurrentValue(c.db, u.ID)
		if err != nil {
			return nil, err
		}
		if value.IsZero() {
			continue
		}

		totalValue = totalValue.Add(value)

		if category, ok := classifications[u.ID]; ok {
			categoryValues[category] = categoryValues[category].Add(value)
		}
	}

	result := &Result{
		AccountID:       accountID,
		TotalValue:      totalValue.Round(2),
		CashBalance:     account.CashBalance.Round(2),
		CashflowReserve: account.CashflowReserve.Round(2),
		Slices:          make([]Slice, 0, len(targets)),
		CalculatedAt:    time.Now().UTC(),
	}

	for _, target := range targets {
		value := categoryValues[target.Category]

		actualPct := decimal.Zero
		if totalValue.IsPositive() {
			actualPct = value.Div(totalValue).Mul(hundred)
		}

		result.Slices = append(result.Slices, Slice{
			Category:     target.Category,
			TargetPct:    target.TargetPct.Round(2),
			ActualPct:    actualPct.Round(2),
			CurrentValue: value.Round(2),
			Delta:        target.TargetPct.Sub(actualPct).Round(2),
		})
	}

	return result, nil
}
