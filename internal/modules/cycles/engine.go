package cycles

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
	"wheelhouse/internal/modules/ledger"
	"wheelhouse/internal/modules/lots"
	"wheelhouse/internal/modules/reinvest"
	"wheelhouse/internal/modules/underlyings"
)

// Engine drives cycle transitions. Every method runs on the caller's
// transaction so the ledger entry, lot mutation and cycle state change
// of one trade event commit or roll back together. The engine never
// publishes events itself; it returns what happened and the caller
// announces it after commit.
type Engine struct {
	repo        *Repository
	ledger      *ledger.Service
	entries     *ledger.Repository
	lots        *lots.Tracker
	lotsRepo    *lots.Repository
	signals     *reinvest.Repository
	underlyings *underlyings.Repository
	log         zerolog.Logger
}

// NewEngine creates a new cycle engine
func NewEngine(repo *Repository, ledgerSvc *ledger.Service, entriesRepo *ledger.Repository, lotTracker *lots.Tracker, lotsRepo *lots.Repository, signalsRepo *reinvest.Repository, underlyingsRepo *underlyings.Repository, log zerolog.Logger) *Engine {
	return &Engine{
		repo:        repo,
		ledger:      ledgerSvc,
		entries:     entriesRepo,
		lots:        lotTracker,
		lotsRepo:    lotsRepo,
		signals:     signalsRepo,
		underlyings: underlyingsRepo,
		log:         log.With().Str("service", "cycles").Logger(),
	}
}

// Result reports what a transition did, for the caller to log and
// publish after its transaction commits.
type Result struct {
	Cycle        *Cycle            `json:"cycle"`
	CycleCreated bool              `json:"cycle_created"`
	Leg          *OptionLeg        `json:"leg,omitempty"`
	Entry        *ledger.Entry     `json:"entry,omitempty"`
	Lot          *lots.StockLot    `json:"lot,omitempty"`
	Consumption  *lots.Consumption `json:"consumption,omitempty"`
	Finalized    bool              `json:"finalized"`
	Signal       *reinvest.Signal  `json:"signal,omitempty"`
}

// OpenShortOption records selling a cash-secured put or covered call to
// open. It attaches to the underlying's OPEN cycle, creating one if
// none exists, and posts the premium credit minus fees to the ledger.
func (e *Engine) OpenShortOption(q database.Querier, accountID, underlyingID string, key LegKey, quantity int64, premium, fees decimal.Decimal, occurredAt time.Time) (*Result, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if !premium.IsPositive() {
		return nil, &domain.ValidationError{Field: "premium", Reason: "must be positive"}
	}
	if fees.IsNegative() {
		return nil, &domain.ValidationError{Field: "fees", Reason: "must not be negative"}
	}

	u, err := e.getUnderlying(q, accountID, underlyingID)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	cycle, err := e.repo.OpenCycleByUnderlying(q, underlyingID)
	if domain.IsNotFound(err) {
		cycle = &Cycle{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			UnderlyingID: underlyingID,
			Status:       StatusOpen,
			OpenedAt:     occurredAt.UTC(),
		}
		if err := e.repo.InsertCycle(q, cycle); err != nil {
			return nil, err
		}
		result.CycleCreated = true
	} else if err != nil {
		return nil, err
	}
	result.Cycle = cycle

	leg := &OptionLeg{
		ID:            uuid.NewString(),
		CycleID:       cycle.ID,
		CallPut:       key.CallPut,
		Strike:        key.Strike,
		Expiration:    key.Expiration.UTC(),
		Quantity:      quantity,
		OpenContracts: quantity,
		Status:        LegOpen,
		OpenedAt:      occurredAt.UTC(),
	}
	if err := e.repo.InsertLeg(q, leg); err != nil {
		return nil, err
	}
	result.Leg = leg

	credit := premium.Mul(decimal.NewFromInt(quantity)).Mul(domain.SharesPerContract).Sub(fees)
	desc := fmt.Sprintf("sold %d %s %s %s exp %s",
		quantity, u.Symbol, key.CallPut, domain.RenderAmount(key.Strike), key.Expiration.Format("2006-01-02"))

	entry, err := e.ledger.Post(q, accountID, cycle.ID, ledger.EntryPremiumCollected, credit, occurredAt, desc)
	if err != nil {
		return nil, err
	}
	result.Entry = entry

	e.log.Info().
		Str("cycle_id", cycle.ID).
		Str("symbol", u.Symbol).
		Bool("cycle_created", result.CycleCreated).
		Str("premium", credit.String()).
		Msg("Short option opened")

	return result, nil
}

// ExpireOption records a leg expiring worthless. No cash moves; the leg
// closes and the cycle finalizes if nothing else remains open.
func (e *Engine) ExpireOption(q database.Querier, accountID, underlyingID string, key LegKey, occurredAt time.Time) (*Result, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	if _, err := e.getUnderlying(q, accountID, underlyingID); err != nil {
		return nil, err
	}

	cycle, err := e.repo.OpenCycleByUnderlying(q, underlyingID)
	if err != nil {
		return nil, err
	}

	leg, err := e.repo.FindOpenLeg(q, cycle.ID, key)
	if err != nil {
		return nil, err
	}

	leg, err = e.repo.ReduceLegContracts(q, leg.ID, leg.OpenContracts, LegExpired, occurredAt)
	if err != nil {
		return nil, err
	}

	result := &Result{Cycle: cycle, Leg: leg}
	if err := e.maybeFinalize(q, result, occurredAt); err != nil {
		return nil, err
	}

	return result, nil
}

// AssignOption records an option assignment. A put assignment buys the
// shares at the strike into a new lot tied to the cycle; a call
// assignment sells lots FIFO at the strike. The cycle finalizes when a
// call assignment leaves no open legs and no shares.
func (e *Engine) AssignOption(q database.Querier, accountID, underlyingID string, key LegKey, contracts int64, fees decimal.Decimal, occurredAt time.Time) (*Result, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if contracts <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if fees.IsNegative() {
		return nil, &domain.ValidationError{Field: "fees", Reason: "must not be negative"}
	}

	u, err := e.getUnderlying(q, accountID, underlyingID)
	if err != nil {
		return nil, err
	}

	cycle, err := e.repo.OpenCycleByUnderlying(q, underlyingID)
	if err != nil {
		return nil, err
	}

	leg, err := e.repo.FindOpenLeg(q, cycle.ID, key)
	if err != nil {
		return nil, err
	}
	if contracts > leg.OpenContracts {
		return nil, &domain.InvariantViolation{
			Reason: fmt.Sprintf("assignment of %d contracts exceeds %d open on leg %s", contracts, leg.OpenContracts, leg.ID),
		}
	}

	shares := contracts * 100
	cash := key.Strike.Mul(decimal.NewFromInt(shares))
	result := &Result{Cycle: cycle}

	switch key.CallPut {
	case Put:
		lot, err := e.lots.OpenLot(q, accountID, underlyingID, cycle.ID, shares, key.Strike, occurredAt)
		if err != nil {
			return nil, err
		}
		result.Lot = lot

		desc := fmt.Sprintf("put assigned: bought %d %s @ %s", shares, u.Symbol, domain.RenderAmount(key.Strike))
		entry, err := e.ledger.Post(q, accountID, cycle.ID, ledger.EntryAssignment, cash.Add(fees).Neg(), occurredAt, desc)
		if err != nil {
			return nil, err
		}
		result.Entry = entry

	case Call:
		consumption, err := e.lots.Consume(q, underlyingID, shares, key.Strike)
		if err != nil {
			return nil, err
		}
		result.Consumption = consumption

		desc := fmt.Sprintf("called away: sold %d %s @ %s", shares, u.Symbol, domain.RenderAmount(key.Strike))
		entry, err := e.ledger.Post(q, accountID, cycle.ID, ledger.EntryAssignment, cash.Sub(fees), occurredAt, desc)
		if err != nil {
			return nil, err
		}
		result.Entry = entry
	}

	leg, err = e.repo.ReduceLegContracts(q, leg.ID, contracts, LegAssigned, occurredAt)
	if err != nil {
		return nil, err
	}
	result.Leg = leg

	if err := e.maybeFinalize(q, result, occurredAt); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("cycle_id", cycle.ID).
		Str("symbol", u.Symbol).
		Str("call_put", string(key.CallPut)).
		Int64("contracts", contracts).
		Bool("finalized", result.Finalized).
		Msg("Option assigned")

	return result, nil
}

// BuyToClose records buying back a short leg before expiration. The
// debit posts as a premium paid; the cycle finalizes if the buyback
// leaves nothing open.
func (e *Engine) BuyToClose(q database.Querier, accountID, underlyingID string, key LegKey, contracts int64, price, fees decimal.Decimal, occurredAt time.Time) (*Result, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if contracts <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if !price.IsPositive() {
		return nil, &domain.ValidationError{Field: "price", Reason: "must be positive"}
	}
	if fees.IsNegative() {
		return nil, &domain.ValidationError{Field: "fees", Reason: "must not be negative"}
	}

	u, err := e.getUnderlying(q, accountID, underlyingID)
	if err != nil {
		return nil, err
	}

	cycle, err := e.repo.OpenCycleByUnderlying(q, underlyingID)
	if err != nil {
		return nil, err
	}

	leg, err := e.repo.FindOpenLeg(q, cycle.ID, key)
	if err != nil {
		return nil, err
	}

	leg, err = e.repo.ReduceLegContracts(q, leg.ID, contracts, LegClosed, occurredAt)
	if err != nil {
		return nil, err
	}

	debit := price.Mul(decimal.NewFromInt(contracts)).Mul(domain.SharesPerContract).Add(fees)
	desc := fmt.Sprintf("bought to close %d %s %s %s", contracts, u.Symbol, key.CallPut, domain.RenderAmount(key.Strike))

	entry, err := e.ledger.Post(q, accountID, cycle.ID, ledger.EntryPremiumPaid, debit.Neg(), occurredAt, desc)
	if err != nil {
		return nil, err
	}

	result := &Result{Cycle: cycle, Leg: leg, Entry: entry}
	if err := e.maybeFinalize(q, result, occurredAt); err != nil {
		return nil, err
	}

	return result, nil
}

// MaybeFinalizeAfterStockSale checks whether an outright stock sale
// unwound the underlying's OPEN cycle. Called by the trades service
// after it has recorded the sale; a missing cycle is not an error, the
// shares may simply never have belonged to one.
func (e *Engine) MaybeFinalizeAfterStockSale(q database.Querier, accountID, underlyingID string, occurredAt time.Time) (*Result, error) {
	cycle, err := e.repo.OpenCycleByUnderlying(q, underlyingID)
	if domain.IsNotFound(err) {
		return &Result{}, nil
	}
	if err != nil {
		return nil, err
	}

	result := &Result{Cycle: cycle}
	if err := e.maybeFinalize(q, result, occurredAt); err != nil {
		return nil, err
	}

	return result, nil
}

// maybeFinalize closes the cycle when no option legs and no cycle lots
// remain open. Realized P&L is the sum of the cycle's ledger entries;
// the reinvestment signal is the closing cash inflow plus net premiums,
// floored at zero, and is only emitted when positive.
func (e *Engine) maybeFinalize(q database.Querier, result *Result, occurredAt time.Time) error {
	cycle := result.Cycle

	openLegs, err := e.repo.OpenLegCount(q, cycle.ID)
	if err != nil {
		return err
	}
	if openLegs > 0 {
		return nil
	}

	remaining, err := e.lotsRepo.RemainingByCycle(q, cycle.ID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}

	entries, err := e.entries.ListByCycle(q, cycle.ID)
	if err != nil {
		return err
	}

	realized := decimal.Zero
	for _, entry := range entries {
		realized = realized.Add(entry.Amount)
	}

	if err := e.repo.Finalize(q, cycle.ID, realized, occurredAt); err != nil {
		return err
	}

	now := occurredAt.UTC()
	cycle.Status = StatusFinalized
	cycle.FinalizedAt = &now
	cycle.RealizedPnL = &realized
	result.Finalized = true

	amount := signalAmount(entries)
	if amount.IsPositive() {
		signal := &reinvest.Signal{
			ID:        uuid.NewString(),
			AccountID: cycle.AccountID,
			CycleID:   cycle.ID,
			Amount:    amount,
			Status:    reinvest.StatusPending,
			CreatedAt: now,
		}
		if err := e.signals.Insert(q, signal); err != nil {
			return err
		}
		result.Signal = signal
	}

	e.log.Info().
		Str("cycle_id", cycle.ID).
		Str("realized_pnl", realized.String()).
		Str("signal_amount", amount.String()).
		Msg("Cycle finalized")

	return nil
}

// signalAmount sizes the reinvestment candidate: every premium entry
// (credits net of buybacks) plus closing stock inflows. Purchase
// outflows are excluded, matching "net proceeds plus all premiums
// collected" rather than raw P&L.
func signalAmount(entries []ledger.Entry) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		switch entry.Type {
		case ledger.EntryPremiumCollected, ledger.EntryPremiumPaid:
			total = total.Add(entry.Amount)
		case ledger.EntryAssignment, ledger.EntryStockSell:
			if entry.Amount.IsPositive() {
				total = total.Add(entry.Amount)
			}
		}
	}

	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func (e *Engine) getUnderlying(q database.Querier, accountID, underlyingID string) (*underlyings.Underlying, error) {
	u, err := e.underlyings.Get(q, underlyingID)
	if err != nil {
		return nil, err
	}
	if u.AccountID != accountID {
		return nil, &domain.NotFoundError{Resource: "underlying", ID: underlyingID}
	}
	return u, nil
}
