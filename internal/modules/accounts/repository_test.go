package accounts

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
)

func setupTestRepo(t *testing.T) (*database.DB, *Repository) {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.InitSchema(db))

	return db, NewRepository(db, zerolog.Nop())
}

func TestCreateAndGet(t *testing.T) {
	db, repo := setupTestRepo(t)

	account, err := repo.Create("taxable", decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "taxable", account.Name)
	assert.True(t, account.CashBalance.IsZero())

	got, err := repo.Get(db, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
	assert.True(t, decimal.NewFromInt(500).Equal(got.CashflowReserve))
}

func TestCreateRejectsInvalid(t *testing.T) {
	_, repo := setupTestRepo(t)

	_, err := repo.Create("", decimal.Zero)
	assert.True(t, domain.IsValidation(err))

	_, err = repo.Create("ira", decimal.NewFromInt(-1))
	assert.True(t, domain.IsValidation(err))
}

func TestGetMissing(t *testing.T) {
	db, repo := setupTestRepo(t)

	_, err := repo.Get(db, "nope")
	assert.True(t, domain.IsNotFound(err))
}

func TestAdjustCashBalance(t *testing.T) {
	db, repo := setupTestRepo(t)

	account, err := repo.Create("taxable", decimal.Zero)
	require.NoError(t, err)

	require.NoError(t, repo.AdjustCashBalance(db, account.ID, decimal.NewFromInt(1000)))
	require.NoError(t, repo.AdjustCashBalance(db, account.ID, decimal.RequireFromString("-250.50")))

	got, err := repo.Get(db, account.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("749.50").Equal(got.CashBalance))
}

func TestAdjustCashBalanceAllowsNegative(t *testing.T) {
	db, repo := setupTestRepo(t)

	account, err := repo.Create("margin", decimal.Zero)
	require.NoError(t, err)

	require.NoError(t, repo.AdjustCashBalance(db, account.ID, decimal.NewFromInt(-100)))

	got, err := repo.Get(db, account.ID)
	require.NoError(t, err)
	assert.True(t, got.CashBalance.IsNegative())
}

func TestAdjustReserveFloorsAtZero(t *testing.T) {
	db, repo := setupTestRepo(t)

	account, err := repo.Create("taxable", decimal.NewFromInt(100))
	require.NoError(t, err)

	require.NoError(t, repo.AdjustReserve(db, account.ID, decimal.NewFromInt(-500)))

	got, err := repo.Get(db, account.ID)
	require.NoError(t, err)
	assert.True(t, got.CashflowReserve.IsZero())
}

func TestUpdateReserve(t *testing.T) {
	db, repo := setupTestRepo(t)

	account, err := repo.Create("taxable", decimal.Zero)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateReserve(account.ID, decimal.NewFromInt(750)))

	got, err := repo.Get(db, account.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(750).Equal(got.CashflowReserve))

	err = repo.UpdateReserve(account.ID, decimal.NewFromInt(-1))
	assert.True(t, domain.IsValidation(err))

	err = repo.UpdateReserve("missing", decimal.Zero)
	assert.True(t, domain.IsNotFound(err))
}

func TestDeleteCascades(t *testing.T) {
	db, repo := setupTestRepo(t)

	account, err := repo.Create("taxable", decimal.Zero)
	require.NoError(t, err)

	_, err = db.Exec(
		"INSERT INTO underlyings (id, account_id, symbol, created_at) VALUES (?, ?, ?, ?)",
		"u1", account.ID, "XYZ", 0,
	)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(account.ID))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM underlyings").Scan(&count))
	assert.Equal(t, 0, count)

	err = repo.Delete(account.ID)
	assert.True(t, domain.IsNotFound(err))
}
