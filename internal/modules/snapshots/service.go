// Package snapshots persists periodic wheel allocation snapshots as
// msgpack blobs, one per account, so the UI can show the last known
// allocation without recomputing it.
package snapshots

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/wheel"
)

// Snapshot is a stored wheel picture with its capture time
type Snapshot struct {
	AccountID string        `json:"account_id"`
	Wheel     *wheel.Result `json:"wheel"`
	TakenAt   time.Time     `json:"taken_at"`
}

// Service takes and serves wheel snapshots
type Service struct {
	db         *database.DB
	accounts   *accounts.Repository
	calculator *wheel.Calculator
	log        zerolog.Logger
}

// NewService creates a new snapshot service
func NewService(db *database.DB, accountsRepo *accounts.Repository, calculator *wheel.Calculator, log zerolog.Logger) *Service {
	return &Service{
		db:         db,
		accounts:   accountsRepo,
		calculator: calculator,
		log:        log.With().Str("service", "snapshots").Logger(),
	}
}

// Take computes the account's wheel and stores it, replacing any
// previous snapshot
func (s *Service) Take(accountID string) (*Snapshot, error) {
	result, err := s.calculator.Calculate(accountID)
	if err != nil {
		return nil, err
	}

	payload, err := msgpack.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO wheel_snapshots (account_id, payload, taken_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			payload = excluded.payload,
			taken_at = excluded.taken_at
	`

	if _, err := s.db.Exec(query, accountID, payload, now.Unix()); err != nil {
		return nil, fmt.Errorf("failed to store snapshot: %w", err)
	}

	s.log.Debug().Str("account_id", accountID).Msg("Wheel snapshot taken")

	return &Snapshot{AccountID: accountID, Wheel: result, TakenAt: now}, nil
}

// Latest returns the stored snapshot for an account
func (s *Service) Latest(accountID string) (*Snapshot, error) {
	row := s.db.QueryRow(
		"SELECT payload, taken_at FROM wheel_snapshots WHERE account_id = ?",
		accountID,
	)

	var payload []byte
	var takenAt int64
	err := row.Scan(&payload, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "snapshot", ID: accountID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var result wheel.Result
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return &Snapshot{
		AccountID: accountID,
		Wheel:     &result,
		TakenAt:   time.Unix(takenAt, 0).UTC(),
	}, nil
}

// TakeAll snapshots every account; failures are logged per account and
// do not stop the batch
func (s *Service) TakeAll() error {
	all, err := s.accounts.List()
	if err != nil {
		return err
	}

	for _, account := range all {
		if _, err := s.Take(account.ID); err != nil {
			s.log.Error().Err(err).Str("account_id", account.ID).Msg("Snapshot failed")
		}
	}

	return nil
}
