package snapshots

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/lots"
	"wheelhouse/internal/modules/underlyings"
	"wheelhouse/internal/modules/wheel"
)

func setupSnapshots(t *testing.T) (*Service, *accounts.Repository, string) {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.InitSchema(db))

	log := zerolog.Nop()
	accountsRepo := accounts.NewRepository(db, log)
	underlyingsRepo := underlyings.NewRepository(db, log)
	tracker := lots.NewTracker(lots.NewRepository(db, log), underlyingsRepo, log)
	calculator := wheel.NewCalculator(db, wheel.NewRepository(db, log), accountsRepo, underlyingsRepo, tracker, log)

	account, err := accountsRepo.Create("test", decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, accountsRepo.AdjustCashBalance(db, account.ID, decimal.RequireFromString("1234.56")))

	return NewService(db, accountsRepo, calculator, log), accountsRepo, account.ID
}

func TestTakeAndLatest(t *testing.T) {
	svc, _, accountID := setupSnapshots(t)

	taken, err := svc.Take(accountID)
	require.NoError(t, err)
	require.NotNil(t, taken.Wheel)

	latest, err := svc.Latest(accountID)
	require.NoError(t, err)

	assert.Equal(t, accountID, latest.AccountID)
	assert.WithinDuration(t, taken.TakenAt, latest.TakenAt, time.Second)
	require.NotNil(t, latest.Wheel)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(latest.Wheel.CashBalance))
	assert.True(t, taken.Wheel.TotalValue.Equal(latest.Wheel.TotalValue))
}

func TestTakeReplacesPrevious(t *testing.T) {
	svc, accountsRepo, accountID := setupSnapshots(t)

	_, err := svc.Take(accountID)
	require.NoError(t, err)

	require.NoError(t, accountsRepo.AdjustCashBalance(svc.db, accountID, decimal.NewFromInt(100)))
	_, err = svc.Take(accountID)
	require.NoError(t, err)

	latest, err := svc.Latest(accountID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1334.56").Equal(latest.Wheel.CashBalance))
}

func TestLatestMissing(t *testing.T) {
	svc, _, accountID := setupSnapshots(t)

	_, err := svc.Latest(accountID)
	assert.True(t, domain.IsNotFound(err))
}

func TestTakeUnknownAccount(t *testing.T) {
	svc, _, _ := setupSnapshots(t)

	_, err := svc.Take("missing")
	assert.True(t, domain.IsNotFound(err))
}
