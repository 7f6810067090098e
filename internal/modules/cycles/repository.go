package cycles

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
)

// Repository handles strategy cycle and option leg persistence
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new cycle repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "cycles").Logger(),
	}
}

const cycleColumns = `id, account_id, underlying_id, status, opened_at, finalized_at, realized_pnl`

const legColumns = `id, cycle_id, call_put, strike, expiration, quantity, open_contracts, status, opened_at, closed_at`

// InsertCycle stores a new cycle
func (r *Repository) InsertCycle(q database.Querier, c *Cycle) error {
	query := `
		INSERT INTO strategy_cycles
		(id, account_id, underlying_id, status, opened_at, finalized_at, realized_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.Exec(query,
		c.ID,
		c.AccountID,
		c.UnderlyingID,
		string(c.Status),
		c.OpenedAt.Unix(),
		nullTimeVal(c.FinalizedAt),
		nullDecimalVal(c.RealizedPnL),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}

	return nil
}

// GetCycle returns the cycle with the given id
func (r *Repository) GetCycle(q database.Querier, id string) (*Cycle, error) {
	row := q.QueryRow("SELECT "+cycleColumns+" FROM strategy_cycles WHERE id = ?", id)

	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "cycle", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}

	return c, nil
}

// OpenCycleByUnderlying returns the single OPEN cycle for an underlying,
// or NotFoundError when none is open
func (r *Repository) OpenCycleByUnderlying(q database.Querier, underlyingID string) (*Cycle, error) {
	query := `
		SELECT ` + cycleColumns + ` FROM strategy_cycles
		WHERE underlying_id = ? AND status = ?
	`

	row := q.QueryRow(query, underlyingID, string(StatusOpen))

	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "open cycle", ID: underlyingID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open cycle: %w", err)
	}

	return c, nil
}

// ListByAccount returns all cycles for an account, newest first. An
// empty status lists every cycle.
func (r *Repository) ListByAccount(accountID string, status Status) ([]Cycle, error) {
	query := `
		SELECT ` + cycleColumns + ` FROM strategy_cycles
		WHERE account_id = ?
	`
	args := []interface{}{accountID}

	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY opened_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		c, err := scanCycleFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		cycles = append(cycles, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycles: %w", err)
	}

	return cycles, nil
}

// Finalize moves an OPEN cycle to FINALIZED and records its realized
// P&L. The status guard keeps the transition one-way: a cycle already
// finalized is left untouched and the caller gets InvariantViolation.
func (r *Repository) Finalize(q database.Querier, id string, realizedPnL decimal.Decimal, finalizedAt time.Time) error {
	query := `
		UPDATE strategy_cycles
		SET status = ?, finalized_at = ?, realized_pnl = ?
		WHERE id = ? AND status = ?
	`

	result, err := q.Exec(query,
		string(StatusFinalized),
		finalizedAt.Unix(),
		realizedPnL.String(),
		id,
		string(StatusOpen),
	)
	if err != nil {
		return fmt.Errorf("failed to finalize cycle: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.InvariantViolation{Reason: "cycle " + id + " is not OPEN"}
	}

	return nil
}

// InsertLeg stores a new option leg
func (r *Repository) InsertLeg(q database.Querier, leg *OptionLeg) error {
	query := `
		INSERT INTO option_legs
		(id, cycle_id, call_put, strike, expiration, quantity, open_contracts, status, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.Exec(query,
		leg.ID,
		leg.CycleID,
		string(leg.CallPut),
		domain.RenderAmount(leg.Strike),
		leg.Expiration.Unix(),
		leg.Quantity,
		leg.OpenContracts,
		string(leg.Status),
		leg.OpenedAt.Unix(),
		nullTimeVal(leg.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert leg: %w", err)
	}

	return nil
}

// FindOpenLeg returns the OPEN leg in a cycle matching the contract
// terms. Strikes are stored with fixed 2-digit rendering so the
// equality match is stable.
func (r *Repository) FindOpenLeg(q database.Querier, cycleID string, key LegKey) (*OptionLeg, error) {
	query := `
		SELECT ` + legColumns + ` FROM option_legs
		WHERE cycle_id = ? AND call_put = ? AND strike = ? AND expiration = ? AND status = ?
	`

	row := q.QueryRow(query,
		cycleID,
		string(key.CallPut),
		domain.RenderAmount(key.Strike),
		key.Expiration.Unix(),
		string(LegOpen),
	)

	leg, err := scanLeg(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{
			Resource: "open option leg",
			ID:       fmt.Sprintf("%s %s @ %s", key.CallPut, domain.RenderAmount(key.Strike), key.Expiration.Format("2006-01-02")),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open leg: %w", err)
	}

	return leg, nil
}

// LegsByCycle returns all legs of a cycle in opening order
func (r *Repository) LegsByCycle(q database.Querier, cycleID string) ([]OptionLeg, error) {
	query := `
		SELECT ` + legColumns + ` FROM option_legs
		WHERE cycle_id = ?
		ORDER BY opened_at ASC
	`

	rows, err := q.Query(query, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query legs: %w", err)
	}
	defer rows.Close()

	var legs []OptionLeg
	for rows.Next() {
		leg, err := scanLegFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leg: %w", err)
		}
		legs = append(legs, *leg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating legs: %w", err)
	}

	return legs, nil
}

// OpenLegCount returns the number of legs still OPEN in a cycle
func (r *Repository) OpenLegCount(q database.Querier, cycleID string) (int64, error) {
	row := q.QueryRow(
		"SELECT COUNT(*) FROM option_legs WHERE cycle_id = ? AND status = ?",
		cycleID, string(LegOpen),
	)

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open legs: %w", err)
	}

	return count, nil
}

// ReduceLegContracts decrements a leg's open contract count and applies
// the terminal status once it reaches zero. The guard against the
// current count prevents two concurrent events from both consuming the
// same contracts.
func (r *Repository) ReduceLegContracts(q database.Querier, legID string, contracts int64, terminal LegStatus, at time.Time) (*OptionLeg, error) {
	leg, err := r.getLeg(q, legID)
	if err != nil {
		return nil, err
	}

	if contracts <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if contracts > leg.OpenContracts {
		return nil, &domain.InvariantViolation{
			Reason: fmt.Sprintf("leg %s has %d open contracts, event consumes %d", legID, leg.OpenContracts, contracts),
		}
	}

	remaining := leg.OpenContracts - contracts
	status := LegOpen
	var closedAt sql.NullInt64
	if remaining == 0 {
		status = terminal
		closedAt = sql.NullInt64{Int64: at.Unix(), Valid: true}
	}

	query := `
		UPDATE option_legs
		SET open_contracts = ?, status = ?, closed_at = ?
		WHERE id = ? AND open_contracts = ?
	`

	result, err := q.Exec(query, remaining, string(status), closedAt, legID, leg.OpenContracts)
	if err != nil {
		return nil, fmt.Errorf("failed to update leg: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, &domain.InvariantViolation{Reason: "leg " + legID + " changed concurrently"}
	}

	leg.OpenContracts = remaining
	leg.Status = status
	if remaining == 0 {
		t := at.UTC()
		leg.ClosedAt = &t
	}

	return leg, nil
}

func (r *Repository) getLeg(q database.Querier, id string) (*OptionLeg, error) {
	row := q.QueryRow("SELECT "+legColumns+" FROM option_legs WHERE id = ?", id)

	leg, err := scanLeg(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "option leg", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leg: %w", err)
	}

	return leg, nil
}

// Helper functions

func scanCycle(row *sql.Row) (*Cycle, error) {
	var c Cycle
	var openedAt int64
	var finalizedAt sql.NullInt64
	var realizedPnL sql.NullString

	if err := row.Scan(&c.ID, &c.AccountID, &c.UnderlyingID, &c.Status, &openedAt, &finalizedAt, &realizedPnL); err != nil {
		return nil, err
	}

	return finishCycle(&c, openedAt, finalizedAt, realizedPnL)
}

func scanCycleFromRows(rows *sql.Rows) (*Cycle, error) {
	var c Cycle
	var openedAt int64
	var finalizedAt sql.NullInt64
	var realizedPnL sql.NullString

	if err := rows.Scan(&c.ID, &c.AccountID, &c.UnderlyingID, &c.Status, &openedAt, &finalizedAt, &realizedPnL); err != nil {
		return nil, err
	}

	return finishCycle(&c, openedAt, finalizedAt, realizedPnL)
}

func finishCycle(c *Cycle, openedAt int64, finalizedAt sql.NullInt64, realizedPnL sql.NullString) (*Cycle, error) {
	c.OpenedAt = time.Unix(openedAt, 0).UTC()

	if finalizedAt.Valid {
		t := time.Unix(finalizedAt.Int64, 0).UTC()
		c.FinalizedAt = &t
	}
	if realizedPnL.Valid {
		pnl, err := decimal.NewFromString(realizedPnL.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt realized pnl: %w", err)
		}
		c.RealizedPnL = &pnl
	}

	return c, nil
}

func scanLeg(row *sql.Row) (*OptionLeg, error) {
	var leg OptionLeg
	var strike string
	var expiration, openedAt int64
	var closedAt sql.NullInt64

	if err := row.Scan(&leg.ID, &leg.CycleID, &leg.CallPut, &strike, &expiration, &leg.Quantity, &leg.OpenContracts, &leg.Status, &openedAt, &closedAt); err != nil {
		return nil, err
	}

	return finishLeg(&leg, strike, expiration, openedAt, closedAt)
}

func scanLegFromRows(rows *sql.Rows) (*OptionLeg, error) {
	var leg OptionLeg
	var strike string
	var expiration, openedAt int64
	var closedAt sql.NullInt64

	if err := rows.Scan(&leg.ID, &leg.CycleID, &leg.CallPut, &strike, &expiration, &leg.Quantity, &leg.OpenContracts, &leg.Status, &openedAt, &closedAt); err != nil {
		return nil, err
	}

	return finishLeg(&leg, strike, expiration, openedAt, closedAt)
}

func finishLeg(leg *OptionLeg, strike string, expiration, openedAt int64, closedAt sql.NullInt64) (*OptionLeg, error) {
	parsed, err := decimal.NewFromString(strike)
	if err != nil {
		return nil, fmt.Errorf("corrupt strike: %w", err)
	}
	leg.Strike = parsed

	leg.Expiration = time.Unix(expiration, 0).UTC()
	leg.OpenedAt = time.Unix(openedAt, 0).UTC()
	if closedAt.Valid {
		t := time.Unix(closedAt.Int64, 0).UTC()
		leg.ClosedAt = &t
	}

	return leg, nil
}

func nullTimeVal(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullDecimalVal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
