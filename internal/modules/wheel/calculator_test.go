package wheel

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wheelhouse/internal/database"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/lots"
	"wheelhouse/internal/modules/underlyings"
)

type calcFixture struct {
	db           *database.DB
	calc         *Calculator
	repo         *Repository
	accountsRepo *accounts.Repository
	underlyings  *underlyings.Repository
	tracker      *lots.Tracker
	accountID    string
}

func setupCalculator(t *testing.T) *calcFixture {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.InitSchema(db))

	log := zerolog.Nop()
	accountsRepo := accounts.NewRepository(db, log)
	underlyingsRepo := underlyings.NewRepository(db, log)
	tracker := lots.NewTracker(lots.NewRepository(db, log), underlyingsRepo, log)
	repo := NewRepository(db, log)

	account, err := accountsRepo.Create("test", decimal.Zero)
	require.NoError(t, err)

	return &calcFixture{
		db:           db,
		calc:         NewCalculator(db, repo, accountsRepo, underlyingsRepo, tracker, log),
		repo:         repo,
		accountsRepo: accountsRepo,
		underlyings:  underlyingsRepo,
		tracker:      tracker,
		accountID:    account.ID,
	}
}

// holding opens a priced position: quantity shares of symbol classified
// under category, valued at price each.
func (f *calcFixture) holding(t *testing.T, symbol, category string, quantity int64, price string) {
	t.Helper()

	u, err := f.underlyings.GetOrCreate(f.db, f.accountID, symbol)
	require.NoError(t, err)

	_, err = f.tracker.OpenLot(f.db, f.accountID, u.ID, "", quantity, decimal.RequireFromString(price), time.Now())
	require.NoError(t, err)

	require.NoError(t, f.underlyings.UpdatePrice(f.accountID, symbol, decimal.RequireFromString(price), time.Now()))

	require.NoError(t, f.repo.UpsertClassification(f.db, &Classification{
		AccountID:    f.accountID,
		UnderlyingID: u.ID,
		Category:     category,
		UpdatedAt:    time.Now().UTC(),
	}))
}

func (f *calcFixture) target(t *testing.T, category, pct string) {
	t.Helper()
	require.NoError(t, f.repo.UpsertTarget(f.db, &Target{
		AccountID: f.accountID,
		Category:  category,
		TargetPct: decimal.RequireFromString(pct),
		UpdatedAt: time.Now().UTC(),
	}))
}

func TestCalculateAllocation(t *testing.T) {
	f := setupCalculator(t)

	require.NoError(t, f.accountsRepo.AdjustCashBalance(f.db, f.accountID, decimal.NewFromInt(2000)))
	f.holding(t, "AAA", "growth", 100, "50") // 5000
	f.holding(t, "BBB", "income", 100, "30") // 3000
	f.target(t, "growth", "60")
	f.target(t, "income", "40")

	result, err := f.calc.Calculate(f.accountID)
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(10000).Equal(result.TotalValue))
	assert.True(t, decimal.NewFromInt(2000).Equal(result.CashBalance))
	require.Len(t, result.Slices, 2)

	bySlice := make(map[string]Slice)
	for _, slice := range result.Slices {
		bySlice[slice.Category] = slice
	}

	growth := bySlice["growth"]
	assert.True(t, decimal.NewFromInt(5000).Equal(growth.CurrentValue))
	assert.True(t, decimal.NewFromInt(50).Equal(growth.ActualPct))
	assert.True(t, decimal.NewFromInt(10).Equal(growth.Delta))

	income := bySlice["income"]
	assert.True(t, decimal.NewFromInt(30).Equal(income.ActualPct))
	assert.True(t, decimal.NewFromInt(10).Equal(income.Delta))
}

func TestCalculateBounds(t *testing.T) {
	f := setupCalculator(t)

	require.NoError(t, f.accountsRepo.AdjustCashBalance(f.db, f.accountID, decimal.NewFromInt(1000)))
	f.holding(t, "AAA", "growth", 100, "50")
	f.target(t, "growth", "80")
	f.target(t, "income", "20")

	result, err := f.calc.Calculate(f.accountID)
	require.NoError(t, err)

	var sliceTotal decimal.Decimal
	for _, slice := range result.Slices {
		assert.False(t, slice.ActualPct.IsNegative())
		assert.True(t, slice.ActualPct.LessThanOrEqual(decimal.NewFromInt(100)))
		sliceTotal = sliceTotal.Add(slice.CurrentValue)
	}
	assert.True(t, sliceTotal.LessThanOrEqual(result.TotalValue))
}

func TestCalculateEmptyAccount(t *testing.T) {
	f := setupCalculator(t)
	f.target(t, "growth", "100")

	result, err := f.calc.Calculate(f.accountID)
	require.NoError(t, err)

	assert.True(t, result.TotalValue.IsZero())
	require.Len(t, result.Slices, 1)
	assert.True(t, result.Slices[0].ActualPct.IsZero())
	assert.True(t, decimal.NewFromInt(100).Equal(result.Slices[0].Delta))
}

func TestUnpricedHoldingContributesZero(t *testing.T) {
	f := setupCalculator(t)

	require.NoError(t, f.accountsRepo.AdjustCashBalance(f.db, f.accountID, decimal.NewFromInt(1000)))

	u, err := f.underlyings.GetOrCreate(f.db, f.accountID, "AAA")
	require.NoError(t, err)
	_, err = f.tracker.OpenLot(f.db, f.accountID, u.ID, "", 100, decimal.NewFromInt(50), time.Now())
	require.NoError(t, err)

	result, err := f.calc.Calculate(f.accountID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(result.TotalValue))
}

func TestTargetValidate(t *testing.T) {
	valid := &Target{AccountID: "a", Category: "growth", TargetPct: decimal.NewFromInt(60)}
	assert.NoError(t, valid.Validate())

	for _, pct := range []int64{-1, 101} {
		bad := &Target{AccountID: "a", Category: "growth", TargetPct: decimal.NewFromInt(pct)}
		assert.Error(t, bad.Validate())
	}

	noCategory := &Target{AccountID: "a", TargetPct: decimal.NewFromInt(10)}
	assert.Error(t, noCategory.Validate())
}
