package reinvest

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
	"wheelhouse/internal/events"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/ledger"
)

type serviceFixture struct {
	db           *database.DB
	svc          *Service
	repo         *Repository
	accountsRepo *accounts.Repository
	accountID    string
	cycleID      string
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.InitSchema(db))

	log := zerolog.Nop()
	accountsRepo := accounts.NewRepository(db, log)
	ledgerSvc := ledger.NewService(db, ledger.NewRepository(db, log), accountsRepo, log)
	repo := NewRepository(db, log)

	account, err := accountsRepo.Create("test", decimal.Zero)
	require.NoError(t, err)

	// Signals reference a finalized cycle; seed one directly to keep
	// this package's tests free of the cycle engine.
	underlyingID := uuid.NewString()
	_, err = db.Exec(
		"INSERT INTO underlyings (id, account_id, symbol, created_at) VALUES (?, ?, ?, ?)",
		underlyingID, account.ID, "XYZ", time.Now().Unix(),
	)
	require.NoError(t, err)

	cycleID := uuid.NewString()
	_, err = db.Exec(
		"INSERT INTO strategy_cycles (id, account_id, underlying_id, status, opened_at, finalized_at, realized_pnl) VALUES (?, ?, ?, 'FINALIZED', ?, ?, '500')",
		cycleID, account.ID, underlyingID, time.Now().Unix(), time.Now().Unix(),
	)
	require.NoError(t, err)

	return &serviceFixture{
		db:           db,
		svc:          NewService(db, repo, accountsRepo, ledgerSvc, events.NewBus(), log),
		repo:         repo,
		accountsRepo: accountsRepo,
		accountID:    account.ID,
		cycleID:      cycleID,
	}
}

func (f *serviceFixture) seedSignal(t *testing.T, amount string) *Signal {
	t.Helper()

	signal := &Signal{
		ID:        uuid.NewString(),
		AccountID: f.accountID,
		CycleID:   f.cycleID,
		Amount:    decimal.RequireFromString(amount),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.repo.Insert(f.db, signal))
	return signal
}

func (f *serviceFixture) cashBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	account, err := f.accountsRepo.Get(f.db, f.accountID)
	require.NoError(t, err)
	return account.CashBalance
}

func TestApproveWithdrawsFullAmount(t *testing.T) {
	f := setupService(t)
	signal := f.seedSignal(t, "500.00")

	resolved, err := f.svc.ProcessAction(signal.ID, ActionRequest{Action: ActionApprove})
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, decimal.RequireFromString("-500.00").Equal(f.cashBalance(t)))
}

func TestPartialWithdrawsExactly(t *testing.T) {
	f := setupService(t)
	signal := f.seedSignal(t, "500.00")

	partial := decimal.RequireFromString("300.00")
	resolved, err := f.svc.ProcessAction(signal.ID, ActionRequest{Action: ActionPartial, PartialAmount: &partial})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, resolved.Status)
	require.NotNil(t, resolved.PartialAmount)
	assert.True(t, partial.Equal(*resolved.PartialAmount))
	assert.True(t, decimal.RequireFromString("-300.00").Equal(f.cashBalance(t)))

	// The remainder is not re-queued
	pending, err := f.svc.GetPendingSignals(f.accountID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPartialBounds(t *testing.T) {
	f := setupService(t)
	signal := f.seedSignal(t, "500.00")

	for _, amount := range []string{"0", "-10", "500.00", "600.00"} {
		partial := decimal.RequireFromString(amount)
		_, err := f.svc.ProcessAction(signal.ID, ActionRequest{Action: ActionPartial, PartialAmount: &partial})
		assert.True(t, domain.IsValidation(err), "partial %s should be rejected", amount)
	}

	_, err := f.svc.ProcessAction(signal.ID, ActionRequest{Action: ActionPartial})
	assert.True(t, domain.IsValidation(err))

	// Failed attempts must not touch cash or resolve the signal
	assert.True(t, f.cashBalance(t).IsZero())
	pending, err := f.svc.GetPendingSignals(f.accountID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRejectMovesNoCash(t *testing.T) {
	f := setupService(t)
	signal := f.seedSignal(t, "500.00")

	resolved, err := f.svc.ProcessAction(signal.ID, ActionRequest{Action: ActionReject, Notes: "keeping dry powder"})
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, resolved.Status)
	assert.Equal(t, "keeping dry powder", resolved.Notes)
	assert.True(t, f.cashBalance(t).IsZero())
}

func TestResolvedSignalIsStale(t *testing.T) {
	f := setupService(t)
	signal := f.seedSignal(t, "500.00")

	_, err := f.svc.ProcessAction(signal.ID, ActionRequest{Action: ActionReject})
	require.NoError(t, err)

	for _, action := range []Action{ActionApprove, ActionReject, ActionPartial} {
		partial := decimal.RequireFromString("100.00")
		_, err := f.svc.ProcessAction(signal.ID, ActionRequest{Action: action, PartialAmount: &partial})

		var staleErr *domain.StaleSignalError
		require.True(t, errors.As(err, &staleErr), "action %s on resolved signal", action)
		assert.Equal(t, signal.ID, staleErr.SignalID)
	}

	assert.True(t, f.cashBalance(t).IsZero())
}

func TestProcessActionMissingSignal(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.ProcessAction(uuid.NewString(), ActionRequest{Action: ActionApprove})
	assert.True(t, domain.IsNotFound(err))
}

func TestReadyAmount(t *testing.T) {
	f := setupService(t)

	require.NoError(t, f.accountsRepo.AdjustCashBalance(f.db, f.accountID, decimal.NewFromInt(1000)))
	require.NoError(t, f.accountsRepo.UpdateReserve(f.accountID, decimal.NewFromInt(400)))

	ready, err := f.svc.ReadyAmount(f.accountID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(600).Equal(ready))

	// Reserve above cash floors at zero
	require.NoError(t, f.accountsRepo.UpdateReserve(f.accountID, decimal.NewFromInt(5000)))
	ready, err = f.svc.ReadyAmount(f.accountID)
	require.NoError(t, err)
	assert.True(t, ready.IsZero())
}
