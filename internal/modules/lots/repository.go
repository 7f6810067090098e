package lots

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

// Repository handles stock lot persistence
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new lot repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "lots").Logger(),
	}
}

const lotColumns = `id, account_id, underlying_id, cycle_id, open_quantity, remaining, cost_basis, opened_at`

// Insert stores a new lot
func (r *Repository) Insert(q database.Querier, lot *StockLot) error {
	query := `
		INSERT INTO stock_lots
		(id, account_id, underlying_id, cycle_id, open_quantity, remaining, cost_basis, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.Exec(query,
		lot.ID,
		lot.AccountID,
		lot.UnderlyingID,
		nullString(lot.CycleID),
		lot.OpenQuantity,
		lot.Remaining,
		lot.CostBasis.String(),
		lot.OpenedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert lot: %w", err)
	}

	return nil
}

// Get returns a single lot by id
func (r *Repository) Get(q database.Querier, id string) (*StockLot, error) {
	row := q.QueryRow("SELECT "+lotColumns+" FROM stock_lots WHERE id = ?", id)

	lot, err := scanLot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "lot", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}

	return lot, nil
}

// OpenByUnderlying returns lots with remaining shares for an underlying,
// oldest first (the FIFO consumption order).
func (r *Repository) OpenByUnderlying(q database.Querier, underlyingID string) ([]StockLot, error) {
	query := `
		SELECT ` + lotColumns + ` FROM stock_lots
		WHERE underlying_id = ? AND remaining > 0
		ORDER BY opened_at ASC
	`

	rows, err := q.Query(query, underlyingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open lots: %w", err)
	}
	defer rows.Close()

	return collectLots(rows)
}

// OpenByAccount returns all open lots for an account
func (r *Repository) OpenByAccount(q database.Querier, accountID string) ([]StockLot, error) {
	query := `
		SELECT ` + lotColumns + ` FROM stock_lots
		WHERE account_id = ? AND remaining > 0
		ORDER BY opened_at ASC
	`

	rows, err := q.Query(query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open lots: %w", err)
	}
	defer rows.Close()

	return collectLots(rows)
}

// UpdateRemaining reduces a lot's remaining share count. The guard in the
// WHERE clause refuses to increase it or drive it negative.
func (r *Repository) UpdateRemaining(q database.Querier, lotID string, remaining int64) error {
	if remaining < 0 {
		return &domain.InvariantViolation{Reason: fmt.Sprintf("lot %s remaining would go negative", lotID)}
	}

	result, err := q.Exec(
		"UPDATE stock_lots SET remaining = ? WHERE id = ? AND remaining >= ?",
		remaining, lotID, remaining,
	)
	if err != nil {
		return fmt.Errorf("failed to update lot remaining: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.InvariantViolation{Reason: fmt.Sprintf("lot %s remaining may only decrease", lotID)}
	}

	return nil
}

// RemainingByCycle sums the remaining shares across lots created by one
// strategy cycle. Used by the finalization check.
func (r *Repository) RemainingByCycle(q database.Querier, cycleID string) (int64, error) {
	var total sql.NullInt64
	err := q.QueryRow(
		"SELECT SUM(remaining) FROM stock_lots WHERE cycle_id = ?",
		cycleID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum cycle lot remaining: %w", err)
	}

	if !total.Valid {
		return 0, nil
	}
	return total.Int64, nil
}

// TotalRemaining sums remaining shares for an underlying
func (r *Repository) TotalRemaining(q database.Querier, underlyingID string) (int64, error) {
	var total sql.NullInt64
	err := q.QueryRow(
		"SELECT SUM(remaining) FROM stock_lots WHERE underlying_id = ?",
		underlyingID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum lot remaining: %w", err)
	}

	if !total.Valid {
		return 0, nil
	}
	return total.Int64, nil
}

// Helper functions

func collectLots(rows *sql.Rows) ([]StockLot, error) {
	var lots []StockLot
	for rows.Next() {
		lot, err := scanLotFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, *lot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lots: %w", err)
	}

	return lots, nil
}

func scanLot(row *sql.Row) (*StockLot, error) {
	var lot StockLot
	var cycleID sql.NullString
	var costBasis string
	var openedAt int64

	if err := row.Scan(
		&lot.ID, &lot.AccountID, &lot.UnderlyingID, &cycleID,
		&lot.OpenQuantity, &lot.Remaining, &costBasis, &openedAt,
	); err != nil {
		return nil, err
	}

	return finishLot(&lot, cycleID, costBasis, openedAt)
}

func scanLotFromRows(rows *sql.Rows) (*StockLot, error) {
	var lot StockLot
	var cycleID sql.NullString
	var costBasis string
	var openedAt int64

	if err := rows.Scan(
		&lot.ID, &lot.AccountID, &lot.UnderlyingID, &cycleID,
		&lot.OpenQuantity, &lot.Remaining, &costBasis, &openedAt,
	); err != nil {
		return nil, err
	}

	return finishLot(&lot, cycleID, costBasis, openedAt)
}

func finishLot(lot *StockLot, cycleID sql.NullString, costBasis string, openedAt int64) (*StockLot, error) {
	parsed, err := decimal.NewFromString(costBasis)
	if err != nil {
		return nil, fmt.Errorf("corrupt cost basis: %w", err)
	}
	lot.CostBasis = parsed

	if cycleID.Valid {
		lot.CycleID = cycleID.String
	}
	lot.OpenedAt = time.Unix(openedAt, 0).UTC()

	return lot, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
