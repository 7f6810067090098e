package wheel

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
)

// Repository handles wheel target and classification persistence
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new wheel repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "wheel").Logger(),
	}
}

// UpsertTarget sets a category's target percentage, keyed by
// (account_id, category)
func (r *Repository) UpsertTarget(q database.Querier, target *Target) error {
	if err := target.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO wheel_targets (account_id, category, target_pct, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, category) DO UPDATE SET
			target_pct = excluded.target_pct,
			updated_at = excluded.updated_at
	`

	_, err := q.Exec(query,
		target.AccountID,
		target.Category,
		target.TargetPct.String(),
		target.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert target: %w", err)
	}

	return nil
}

// TargetsByAccount returns all configured targets, ordered by category
func (r *Repository) TargetsByAccount(q database.Querier, accountID string) ([]Target, error) {
	query := `
		SELECT account_id, category, target_pct, updated_at
		FROM wheel_targets
		WHERE account_id = ?
		ORDER BY category ASC
	`

	rows, err := q.Query(query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		var t Target
		var pct string
		var updatedAt int64

		if err := rows.Scan(&t.AccountID, &t.Category, &pct, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}

		parsed, err := decimal.NewFromString(pct)
		if err != nil {
			return nil, fmt.Errorf("corrupt target pct: %w", err)
		}
		t.TargetPct = parsed
		t.UpdatedAt = time.Unix(updatedAt, 0).UTC()

		targets = append(targets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating targets: %w", err)
	}

	return targets, nil
}

// DeleteTarget removes a category target
func (r *Repository) DeleteTarget(q database.Querier, accountID, category string) error {
	_, err := q.Exec(
		"DELETE FROM wheel_targets WHERE account_id = ? AND category = ?",
		accountID, category,
	)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}

	return nil
}

// UpsertClassification assigns an underlying to a category, keyed by
// (account_id, underlying_id); an underlying belongs to one category.
func (r *Repository) UpsertClassification(q database.Querier, c *Classification) error {
	if c.Category == "" {
		return fmt.Errorf("failed to upsert classification: empty category")
	}

	query := `
		INSERT INTO wheel_classifications (account_id, underlying_id, category, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, underlying_id) DO UPDATE SET
			category = excluded.category,
			updated_at = excluded.updated_at
	`

	_, err := q.Exec(query, c.AccountID, c.UnderlyingID, c.Category, c.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert classification: %w", err)
	}

	return nil
}

// ClassificationsByAccount returns the account's classification map
// keyed by underlying id
func (r *Repository) ClassificationsByAccount(q database.Querier, accountID string) (map[string]string, error) {
	query := `
		SELECT underlying_id, category
		FROM wheel_classifications
		WHERE account_id = ?
	`

	rows, err := q.Query(query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}
	defer rows.Close()

	classifications := make(map[string]string)
	for rows.Next() {
		var underlyingID, category string
		if err := rows.Scan(&underlyingID, &category); err != nil {
			return nil, fmt.Errorf("failed to scan classification: %w", err)
		}
		classifications[underlyingID] = category
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating classifications: %w", err)
	}

	return classifications, nil
}

// DeleteClassification removes an underlying's category assignment
func (r *Repository) DeleteClassification(q database.Querier, accountID, underlyingID string) error {
	_, err := q.Exec(
		"DELETE FROM wheel_classifications WHERE account_id = ? AND underlying_id = ?",
		accountID, underlyingID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete classification: %w", err)
	}

	return nil
}
