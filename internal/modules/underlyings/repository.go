package underlyings

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
)

// Repository handles underlying persistence
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new underlying repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "underlyings").Logger(),
	}
}

const underlyingColumns = `id, account_id, symbol, current_price, price_updated_at, created_at`

// NormalizeSymbol uppercases and trims a ticker symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// GetOrCreate returns the underlying for (account, symbol), creating it
// on first use. Runs on the caller's transaction so trade ingestion can
// register a new symbol atomically with its first lot or ledger entry.
func (r *Repository) GetOrCreate(q database.Querier, accountID, symbol string) (*Underlying, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, &domain.ValidationError{Field: "symbol", Reason: "cannot be empty"}
	}

	existing, err := r.getBySymbol(q, accountID, symbol)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	u := &Underlying{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Symbol:    symbol,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO underlyings (id, account_id, symbol, created_at)
		VALUES (?, ?, ?, ?)
	`

	if _, err := q.Exec(query, u.ID, u.AccountID, u.Symbol, u.CreatedAt.Unix()); err != nil {
		return nil, fmt.Errorf("failed to create underlying: %w", err)
	}

	r.log.Debug().Str("account_id", accountID).Str("symbol", symbol).Msg("Underlying registered")

	return u, nil
}

// Get returns the underlying with the given id
func (r *Repository) Get(q database.Querier, id string) (*Underlying, error) {
	row := q.QueryRow("SELECT "+underlyingColumns+" FROM underlyings WHERE id = ?", id)

	u, err := scanUnderlying(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "underlying", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying: %w", err)
	}

	return u, nil
}

// GetBySymbol returns the underlying for (account, symbol) or a
// NotFoundError
func (r *Repository) GetBySymbol(q database.Querier, accountID, symbol string) (*Underlying, error) {
	symbol = NormalizeSymbol(symbol)

	u, err := r.getBySymbol(q, accountID, symbol)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, &domain.NotFoundError{Resource: "underlying", ID: symbol}
	}

	return u, nil
}

// ListByAccount returns all underlyings for an account
func (r *Repository) ListByAccount(accountID string) ([]Underlying, error) {
	rows, err := r.db.Query(
		"SELECT "+underlyingColumns+" FROM underlyings WHERE account_id = ? ORDER BY symbol ASC",
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query underlyings: %w", err)
	}
	defer rows.Close()

	var result []Underlying
	for rows.Next() {
		u, err := scanUnderlyingFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan underlying: %w", err)
		}
		result = append(result, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating underlyings: %w", err)
	}

	return result, nil
}

// ActiveSymbols returns the distinct symbols for an account that still
// matter for pricing: anything with open lots or an OPEN cycle.
func (r *Repository) ActiveSymbols(accountID string) ([]string, error) {
	query := `
		SELECT DISTINCT u.symbol FROM underlyings u
		WHERE u.account_id = ?
		  AND (
			EXISTS (SELECT 1 FROM stock_lots l WHERE l.underlying_id = u.id AND l.remaining > 0)
			OR EXISTS (SELECT 1 FROM strategy_cycles c WHERE c.underlying_id = u.id AND c.status = 'OPEN')
		  )
		ORDER BY u.symbol ASC
	`

	rows, err := r.db.Query(query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}

// UpdatePrice stores a freshly fetched price for (account, symbol)
func (r *Repository) UpdatePrice(accountID, symbol string, price decimal.Decimal, asOf time.Time) error {
	result, err := r.db.Exec(
		"UPDATE underlyings SET current_price = ?, price_updated_at = ? WHERE account_id = ? AND symbol = ?",
		price.String(), asOf.Unix(), accountID, NormalizeSymbol(symbol),
	)
	if err != nil {
		return fmt.Errorf("failed to update price: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Resource: "underlying", ID: symbol}
	}

	return nil
}

// Internal helpers

func (r *Repository) getBySymbol(q database.Querier, accountID, symbol string) (*Underlying, error) {
	row := q.QueryRow(
		"SELECT "+underlyingColumns+" FROM underlyings WHERE account_id = ? AND symbol = ?",
		accountID, symbol,
	)

	u, err := scanUnderlying(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying by symbol: %w", err)
	}

	return u, nil
}

func scanUnderlying(row *sql.Row) (*Underlying, error) {
	var u Underlying
	var price sql.NullString
	var priceUpdatedAt sql.NullInt64
	var createdAt int64

	if err := row.Scan(&u.ID, &u.AccountID, &u.Symbol, &price, &priceUpdatedAt, &createdAt); err != nil {
		return nil, err
	}

	return finishUnderlying(&u, price, priceUpdatedAt, createdAt)
}

func scanUnderlyingFromRows(rows *sql.Rows) (*Underlying, error) {
	var u Underlying
	var price sql.NullString
	var priceUpdatedAt sql.NullInt64
	var createdAt int64

	if err := rows.Scan(&u.ID, &u.AccountID, &u.Symbol, &price, &priceUpdatedAt, &createdAt); err != nil {
		return nil, err
	}

	return finishUnderlying(&u, price, priceUpdatedAt, createdAt)
}

func finishUnderlying(u *Underlying, price sql.NullString, priceUpdatedAt sql.NullInt64, createdAt int64) (*Underlying, error) {
	if price.Valid {
		p, err := decimal.NewFromString(price.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt price for %s: %w", u.Symbol, err)
		}
		u.CurrentPrice = &p
	}
	if priceUpdatedAt.Valid {
		t := time.Unix(priceUpdatedAt.Int64, 0).UTC()
		u.PriceUpdatedAt = &t
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return u, nil
}
