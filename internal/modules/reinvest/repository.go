package reinvest

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

// Repository handles reinvestment signal persistence
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new signal repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "reinvest").Logger(),
	}
}

const signalColumns = `id, account_id, cycle_id, amount, status, partial_amount, notes, created_at, resolved_at`

// Insert stores a new signal. The UNIQUE constraint on cycle_id enforces
// at most one signal per finalizing cycle.
func (r *Repository) Insert(q database.Querier, signal *Signal) error {
	query := `
		INSERT INTO reinvest_signals
		(id, account_id, cycle_id, amount, status, partial_amount, notes, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.Exec(query,
		signal.ID,
		signal.AccountID,
		nullString(signal.CycleID),
		signal.Amount.String(),
		string(signal.Status),
		nullDecimal(signal.PartialAmount),
		signal.Notes,
		signal.CreatedAt.Unix(),
		nullTime(signal.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	return nil
}

// Get returns the signal with the given id
func (r *Repository) Get(q database.Querier, id string) (*Signal, error) {
	row := q.QueryRow("SELECT "+signalColumns+" FROM reinvest_signals WHERE id = ?", id)

	signal, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "signal", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}

	return signal, nil
}

// GetPending returns all PENDING signals for an account, oldest first
func (r *Repository) GetPending(accountID string) ([]Signal, error) {
	query := `
		SELECT ` + signalColumns + ` FROM reinvest_signals
		WHERE account_id = ? AND status = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query, accountID, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending signals: %w", err)
	}
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		signal, err := scanSignalFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, *signal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return signals, nil
}

// Resolve moves a signal out of PENDING. The status guard in the WHERE
// clause makes concurrent resolutions race-safe: only one caller's
// update takes effect, the loser sees zero rows affected.
func (r *Repository) Resolve(q database.Querier, id string, status Status, partialAmount *decimal.Decimal, notes string, resolvedAt time.Time) error {
	query := `
		UPDATE reinvest_signals
		SET status = ?, partial_amount = ?, notes = ?, resolved_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := q.Exec(query,
		string(status),
		nullDecimal(partialAmount),
		notes,
		resolvedAt.Unix(),
		id,
		string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to resolve signal: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.StaleSignalError{SignalID: id, Status: "not PENDING"}
	}

	return nil
}

// Helper functions

func scanSignal(row *sql.Row) (*Signal, error) {
	var s Signal
	var cycleID sql.NullString
	var amount string
	var partial sql.NullString
	var createdAt int64
	var resolvedAt sql.NullInt64

	if err := row.Scan(&s.ID, &s.AccountID, &cycleID, &amount, &s.Status, &partial, &s.Notes, &createdAt, &resolvedAt); err != nil {
		return nil, err
	}

	return finishSignal(&s, cycleID, amount, partial, createdAt, resolvedAt)
}

func scanSignalFromRows(rows *sql.Rows) (*Signal, error) {
	var s Signal
	var cycleID sql.NullString
	var amount string
	var partial sql.NullString
	var createdAt int64
	var resolvedAt sql.NullInt64

	if err := rows.Scan(&s.ID, &s.AccountID, &cycleID, &amount, &s.Status, &partial, &s.Notes, &createdAt, &resolvedAt); err != nil {
		return nil, err
	}

	return finishSignal(&s, cycleID, amount, partial, createdAt, resolvedAt)
}

func finishSignal(s *Signal, cycleID sql.NullString, amount string, partial sql.NullString, createdAt int64, resolvedAt sql.NullInt64) (*Signal, error) {
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt signal amount: %w", err)
	}
	s.Amount = parsed

	if cycleID.Valid {
		s.CycleID = cycleID.String
	}
	if partial.Valid {
		p, err := decimal.NewFromString(partial.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt partial amount: %w", err)
		}
		s.PartialAmount = &p
	}
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	if resolvedAt.Valid {
		t := time.Unix(resolvedAt.Int64, 0).UTC()
		s.ResolvedAt = &t
	}

	return s, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
