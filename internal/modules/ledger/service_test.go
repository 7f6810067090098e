package ledger

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
)

func setupTestService(t *testing.T) (*database.DB, *Service, *accounts.Repository, string) {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.InitSchema(db))

	accountsRepo := accounts.NewRepository(db, zerolog.Nop())
	account, err := accountsRepo.Create("test", decimal.Zero)
	require.NoError(t, err)

	svc := NewService(db, NewRepository(db, zerolog.Nop()), accountsRepo, zerolog.Nop())

	return db, svc, accountsRepo, account.ID
}

func TestPostMovesCashWithEntry(t *testing.T) {
	db, svc, accountsRepo, accountID := setupTestService(t)

	now := time.Now()
	entry, err := svc.Post(db, accountID, "", EntryDeposit, decimal.NewFromInt(1000), now, "initial funding")
	require.NoError(t, err)
	assert.Equal(t, EntryDeposit, entry.Type)

	account, err := accountsRepo.Get(db, accountID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(account.CashBalance))
}

func TestRecordDoesNotMoveCash(t *testing.T) {
	db, svc, accountsRepo, accountID := setupTestService(t)

	_, err := svc.Record(db, accountID, EntryFee, decimal.RequireFromString("-0.65"), time.Now(), "")
	require.NoError(t, err)

	account, err := accountsRepo.Get(db, accountID)
	require.NoError(t, err)
	assert.True(t, account.CashBalance.IsZero())
}

func TestRecordRejectsBadEntries(t *testing.T) {
	db, svc, _, accountID := setupTestService(t)

	_, err := svc.Record(db, accountID, "bogus", decimal.NewFromInt(1), time.Now(), "")
	assert.True(t, domain.IsValidation(err))

	_, err = svc.Record(db, accountID, EntryDeposit, decimal.RequireFromString("1.005"), time.Now(), "")
	assert.True(t, domain.IsValidation(err))

	_, err = svc.Record(db, accountID, EntryDeposit, decimal.NewFromInt(1), time.Time{}, "")
	assert.True(t, domain.IsValidation(err))
}

func TestReconcileBalanced(t *testing.T) {
	db, svc, _, accountID := setupTestService(t)

	now := time.Now()
	_, err := svc.Post(db, accountID, "", EntryDeposit, decimal.NewFromInt(1000), now, "")
	require.NoError(t, err)
	_, err = svc.Post(db, accountID, "", EntryPremiumCollected, decimal.RequireFromString("199.35"), now, "")
	require.NoError(t, err)
	_, err = svc.Post(db, accountID, "", EntryStockBuy, decimal.RequireFromString("-500.00"), now, "")
	require.NoError(t, err)

	rec, err := svc.Reconcile(accountID)
	require.NoError(t, err)
	assert.True(t, rec.Balanced)
	assert.True(t, decimal.RequireFromString("699.35").Equal(rec.EntrySum))
	assert.True(t, rec.EntrySum.Equal(rec.CashBalance))
}

func TestReconcileDetectsDrift(t *testing.T) {
	db, svc, accountsRepo, accountID := setupTestService(t)

	_, err := svc.Post(db, accountID, "", EntryDeposit, decimal.NewFromInt(100), time.Now(), "")
	require.NoError(t, err)

	// Cash moved without a matching entry
	require.NoError(t, accountsRepo.AdjustCashBalance(db, accountID, decimal.NewFromInt(1)))

	rec, err := svc.Reconcile(accountID)
	require.NoError(t, err)
	assert.False(t, rec.Balanced)
}

func TestListByAccountOrder(t *testing.T) {
	db, svc, _, accountID := setupTestService(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		_, err := svc.Post(db, accountID, "", EntryDeposit, decimal.NewFromInt(int64(i+1)), base.Add(time.Duration(i)*time.Minute), "")
		require.NoError(t, err)
	}

	entries, err := svc.repo.ListByAccount(accountID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, decimal.NewFromInt(1).Equal(entries[0].Amount))
	assert.True(t, decimal.NewFromInt(3).Equal(entries[2].Amount))
}
