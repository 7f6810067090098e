package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
)

// Repository handles ledger entry persistence. Entries are append-only;
// there are no update or delete operations.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

const entryColumns = `id, account_id, cycle_id, entry_type, amount, occurred_at, description, created_at`

// Insert appends an entry. Always called on the transaction that also
// adjusts the account's cash balance.
func (r *Repository) Insert(q database.Querier, entry *Entry) error {
	query := `
		INSERT INTO ledger_entries
		(id, account_id, cycle_id, entry_type, amount, occurred_at, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.Exec(query,
		entry.ID,
		entry.AccountID,
		nullString(entry.CycleID),
		string(entry.Type),
		entry.Amount.String(),
		entry.OccurredAt.Unix(),
		entry.Description,
		entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return nil
}

// ListByAccount returns entries for an account, oldest first
func (r *Repository) ListByAccount(accountID string, limit int) ([]Entry, error) {
	query := `
		SELECT ` + entryColumns + ` FROM ledger_entries
		WHERE account_id = ?
		ORDER BY occurred_at ASC, created_at ASC
		LIMIT ?
	`
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListByCycle returns the entries attached to one strategy cycle,
// oldest first. Used to compute realized P&L at finalization, so it
// accepts a Querier to run inside the finalizing transaction.
func (r *Repository) ListByCycle(q database.Querier, cycleID string) ([]Entry, error) {
	query := `
		SELECT ` + entryColumns + ` FROM ledger_entries
		WHERE cycle_id = ?
		ORDER BY occurred_at ASC, created_at ASC
	`

	rows, err := q.Query(query, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// SumByAccount returns the sum of all entry amounts for an account.
// Equals the cash balance whenever the reconciliation invariant holds.
func (r *Repository) SumByAccount(q database.Querier, accountID string) (decimal.Decimal, error) {
	rows, err := q.Query("SELECT amount FROM ledger_entries WHERE account_id = ?", accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query entry amounts: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt ledger amount: %w", err)
		}
		sum = sum.Add(amount)
	}

	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating amounts: %w", err)
	}

	return sum, nil
}

// Helper functions

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntryFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}

func scanEntryFromRows(rows *sql.Rows) (*Entry, error) {
	var entry Entry
	var cycleID sql.NullString
	var amount string
	var occurredAt, createdAt int64

	if err := rows.Scan(
		&entry.ID,
		&entry.AccountID,
		&cycleID,
		&entry.Type,
		&amount,
		&occurredAt,
		&entry.Description,
		&createdAt,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt ledger amount: %w", err)
	}
	entry.Amount = parsed

	if cycleID.Valid {
		entry.CycleID = cycleID.String
	}
	entry.OccurredAt = time.Unix(occurredAt, 0).UTC()
	entry.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &entry, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
