package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
)

// Repository handles account persistence
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new account repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

const accountColumns = `id, name, cash_balance, cashflow_reserve, created_at`

// Create inserts a new account with a zero cash balance
func (r *Repository) Create(name string, cashflowReserve decimal.Decimal) (*Account, error) {
	account := &Account{
		ID:              uuid.NewString(),
		Name:            name,
		CashBalance:     decimal.Zero,
		CashflowReserve: cashflowReserve,
		CreatedAt:       time.Now().UTC(),
	}

	if err := account.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO accounts (id, name, cash_balance, cashflow_reserve, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		account.ID,
		account.Name,
		account.CashBalance.String(),
		account.CashflowReserve.String(),
		account.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	r.log.Info().Str("account_id", account.ID).Str("name", name).Msg("Account created")

	return account, nil
}

// Get returns the account with the given id
func (r *Repository) Get(q database.Querier, id string) (*Account, error) {
	row := q.QueryRow("SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "account", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// List returns all accounts ordered by creation time
func (r *Repository) List() ([]Account, error) {
	rows, err := r.db.Query("SELECT " + accountColumns + " FROM accounts ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		account, err := scanAccountFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// UpdateReserve sets the cashflow reserve for an account
func (r *Repository) UpdateReserve(id string, reserve decimal.Decimal) error {
	if reserve.IsNegative() {
		return &domain.ValidationError{Field: "cashflow_reserve", Reason: "cannot be negative"}
	}

	result, err := r.db.Exec("UPDATE accounts SET cashflow_reserve = ? WHERE id = ?", reserve.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update cashflow reserve: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Resource: "account", ID: id}
	}

	return nil
}

// Delete removes an account; foreign keys cascade to every owned row
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Resource: "account", ID: id}
	}

	r.log.Info().Str("account_id", id).Msg("Account deleted")

	return nil
}

// AdjustCashBalance atomically adds delta to the account's cash balance.
// Must run inside the same transaction as the ledger entry that caused
// it; callers pass the open *sql.Tx as q. Negative balances are allowed
// at this layer (margin timing is a legitimate broker state).
func (r *Repository) AdjustCashBalance(q database.Querier, id string, delta decimal.Decimal) error {
	var raw string
	err := q.QueryRow("SELECT cash_balance FROM accounts WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Resource: "account", ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to read cash balance: %w", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("corrupt cash balance for account %s: %w", id, err)
	}

	newBalance := balance.Add(delta)
	if _, err := q.Exec("UPDATE accounts SET cash_balance = ? WHERE id = ?", newBalance.String(), id); err != nil {
		return fmt.Errorf("failed to update cash balance: %w", err)
	}

	return nil
}

// AdjustReserve atomically adds delta to the cashflow reserve, flooring
// at zero. Used by the premium reserve policy to set aside collected
// option income.
func (r *Repository) AdjustReserve(q database.Querier, id string, delta decimal.Decimal) error {
	var raw string
	err := q.QueryRow("SELECT cashflow_reserve FROM accounts WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Resource: "account", ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to read cashflow reserve: %w", err)
	}

	reserve, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("corrupt cashflow reserve for account %s: %w", id, err)
	}

	newReserve := reserve.Add(delta)
	if newReserve.IsNegative() {
		newReserve = decimal.Zero
	}
	if _, err := q.Exec("UPDATE accounts SET cashflow_reserve = ? WHERE id = ?", newReserve.String(), id); err != nil {
		return fmt.Errorf("failed to update cashflow reserve: %w", err)
	}

	return nil
}

// Helper functions

func scanAccount(row *sql.Row) (*Account, error) {
	var account Account
	var balance, reserve string
	var createdAt int64

	if err := row.Scan(&account.ID, &account.Name, &balance, &reserve, &createdAt); err != nil {
		return nil, err
	}

	return finishAccount(&account, balance, reserve, createdAt)
}

func scanAccountFromRows(rows *sql.Rows) (*Account, error) {
	var account Account
	var balance, reserve string
	var createdAt int64

	if err := rows.Scan(&account.ID, &account.Name, &balance, &reserve, &createdAt); err != nil {
		return nil, err
	}

	return finishAccount(&account, balance, reserve, createdAt)
}

func finishAccount(account *Account, balance, reserve string, createdAt int64) (*Account, error) {
	var err error
	if account.CashBalance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("corrupt cash balance: %w", err)
	}
	if account.CashflowReserve, err = decimal.NewFromString(reserve); err != nil {
		return nil, fmt.Errorf("corrupt cashflow reserve: %w", err)
	}
	account.CreatedAt = time.Unix(createdAt, 0).UTC()
	return account, nil
}
