package lots

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
	"wheelhouse/internal/modules/underlyings"
)

// Tracker implements lot bookkeeping: opening lots on buys and put
// assignments, consuming them FIFO on sells and call assignments, and
// valuing what's left. All mutating methods run on the caller's
// transaction.
type Tracker struct {
	repo        *Repository
	underlyings *underlyings.Repository
	log         zerolog.Logger
}

// NewTracker creates a new lot tracker
func NewTracker(repo *Repository, underlyingsRepo *underlyings.Repository, log zerolog.Logger) *Tracker {
	return &Tracker{
		repo:        repo,
		underlyings: underlyingsRepo,
		log:         log.With().Str("service", "lot_tracker").Logger(),
	}
}

// OpenLot creates a new lot for an underlying
func (t *Tracker) OpenLot(q database.Querier, accountID, underlyingID, cycleID string, quantity int64, costBasis decimal.Decimal, openedAt time.Time) (*StockLot, error) {
	if quantity <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if costBasis.IsNegative() {
		return nil, &domain.ValidationError{Field: "cost_basis", Reason: "cannot be negative"}
	}

	// Reject unknown underlyings before writing anything
	if _, err := t.underlyings.Get(q, underlyingID); err != nil {
		return nil, err
	}

	lot := &StockLot{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		UnderlyingID: underlyingID,
		CycleID:      cycleID,
		OpenQuantity: quantity,
		Remaining:    quantity,
		CostBasis:    costBasis,
		OpenedAt:     openedAt.UTC(),
	}

	if err := t.repo.Insert(q, lot); err != nil {
		return nil, err
	}

	t.log.Debug().
		Str("underlying_id", underlyingID).
		Int64("quantity", quantity).
		Str("cost_basis", costBasis.String()).
		Msg("Lot opened")

	return lot, nil
}

// Consume reduces open lots FIFO by openedAt until quantity is
// satisfied, computing the realized gain against salePrice. Fails with
// InsufficientLotError when the open lots can't cover the quantity;
// short selling of stock is out of scope.
func (t *Tracker) Consume(q database.Querier, underlyingID string, quantity int64, salePrice decimal.Decimal) (*Consumption, error) {
	if quantity <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	underlying, err := t.underlyings.Get(q, underlyingID)
	if err != nil {
		return nil, err
	}

	open, err := t.repo.OpenByUnderlying(q, underlyingID)
	if err != nil {
		return nil, err
	}

	var available int64
	for _, lot := range open {
		available += lot.Remaining
	}
	if available < quantity {
		return nil, &domain.InsufficientLotError{
			Symbol:    underlying.Symbol,
			Requested: quantity,
			Available: available,
		}
	}

	result := &Consumption{RealizedGain: decimal.Zero}
	left := quantity

	for _, lot := range open {
		if left == 0 {
			break
		}

		take := lot.Remaining
		if take > left {
			take = left
		}

		if err := t.repo.UpdateRemaining(q, lot.ID, lot.Remaining-take); err != nil {
			return nil, err
		}

		gain := salePrice.Sub(lot.CostBasis).Mul(decimal.NewFromInt(take))
		result.RealizedGain = result.RealizedGain.Add(gain)
		result.Lots = append(result.Lots, ConsumedLot{
			LotID:     lot.ID,
			Quantity:  take,
			CostBasis: lot.CostBasis,
		})

		left -= take
	}

	t.log.Debug().
		Str("symbol", underlying.Symbol).
		Int64("quantity", quantity).
		Str("realized_gain", result.RealizedGain.String()).
		Msg("Lots consumed")

	return result, nil
}

// CurrentValue returns remaining shares times the current price across
// an underlying's open lots. Zero when no price has been fetched yet.
func (t *Tracker) CurrentValue(q database.Querier, underlyingID string) (decimal.Decimal, error) {
	underlying, err := t.underlyings.Get(q, underlyingID)
	if err != nil {
		return decimal.Zero, err
	}
	if underlying.CurrentPrice == nil {
		return decimal.Zero, nil
	}

	remaining, err := t.repo.TotalRemaining(q, underlyingID)
	if err != nil {
		return decimal.Zero, err
	}

	return underlying.CurrentPrice.Mul(decimal.NewFromInt(remaining)), nil
}
