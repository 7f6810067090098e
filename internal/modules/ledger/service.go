package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
	"wheelhouse/internal/modules/accounts"
)

// Service records ledger entries and keeps the cash balance reconciled
// with them. Record is a pure append; Post pairs the append with the
// matching cash adjustment so the two are committed or rolled back
// together.
type Service struct {
	db       *database.DB
	repo     *Repository
	accounts *accounts.Repository
	log      zerolog.Logger
}

// NewService creates a new ledger service
func NewService(db *database.DB, repo *Repository, accountsRepo *accounts.Repository, log zerolog.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		accounts: accountsRepo,
		log:      log.With().Str("service", "ledger").Logger(),
	}
}

// Record appends an entry without touching the cash balance. Amount must
// be a finite decimal with at most 2 fraction digits.
func (s *Service) Record(q database.Querier, accountID string, entryType EntryType, amount decimal.Decimal, occurredAt time.Time, description string) (*Entry, error) {
	return s.record(q, accountID, "", entryType, amount, occurredAt, description)
}

// RecordForCycle appends an entry attached to a strategy cycle
func (s *Service) RecordForCycle(q database.Querier, accountID, cycleID string, entryType EntryType, amount decimal.Decimal, occurredAt time.Time, description string) (*Entry, error) {
	return s.record(q, accountID, cycleID, entryType, amount, occurredAt, description)
}

// Post appends an entry and applies the same signed amount to the cash
// balance on the caller's transaction. This is the only way mutating
// services move cash, which is what keeps the reconciliation invariant
// trivially true.
func (s *Service) Post(q database.Querier, accountID, cycleID string, entryType EntryType, amount decimal.Decimal, occurredAt time.Time, description string) (*Entry, error) {
	entry, err := s.record(q, accountID, cycleID, entryType, amount, occurredAt, description)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.AdjustCashBalance(q, accountID, amount); err != nil {
		return nil, err
	}

	return entry, nil
}

// Reconciliation compares the entry sum with the stored cash balance.
type Reconciliation struct {
	AccountID   string          `json:"account_id"`
	EntrySum    decimal.Decimal `json:"entry_sum"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	Balanced    bool            `json:"balanced"`
}

// Reconcile verifies the reconciliation invariant for an account
func (s *Service) Reconcile(accountID string) (*Reconciliation, error) {
	account, err := s.accounts.Get(s.db, accountID)
	if err != nil {
		return nil, err
	}

	sum, err := s.repo.SumByAccount(s.db, accountID)
	if err != nil {
		return nil, err
	}

	rec := &Reconciliation{
		AccountID:   accountID,
		EntrySum:    sum,
		CashBalance: account.CashBalance,
		Balanced:    sum.Equal(account.CashBalance),
	}

	if !rec.Balanced {
		s.log.Error().
			Str("account_id", accountID).
			Str("entry_sum", sum.String()).
			Str("cash_balance", account.CashBalance.String()).
			Msg("Ledger out of balance")
	}

	return rec, nil
}

func (s *Service) record(q database.Querier, accountID, cycleID string, entryType EntryType, amount decimal.Decimal, occurredAt time.Time, description string) (*Entry, error) {
	entry := &Entry{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		CycleID:     cycleID,
		Type:        entryType,
		Amount:      amount,
		OccurredAt:  occurredAt.UTC(),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(q, entry); err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("account_id", accountID).
		Str("type", string(entryType)).
		Str("amount", amount.String()).
		Msg("Ledger entry recorded")

	return entry, nil
}
