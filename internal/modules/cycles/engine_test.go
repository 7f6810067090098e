package cycles

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/ledger"
	"wheelhouse/internal/modules/lots"
	"wheelhouse/internal/modules/reinvest"
	"wheelhouse/internal/modules/underlyings"
)

type engineFixture struct {
	db           *database.DB
	engine       *Engine
	repo         *Repository
	accountsRepo *accounts.Repository
	signalsRepo  *reinvest.Repository
	accountID    string
	underlyingID string
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.InitSchema(db))

	log := zerolog.Nop()
	accountsRepo := accounts.NewRepository(db, log)
	underlyingsRepo := underlyings.NewRepository(db, log)
	entriesRepo := ledger.NewRepository(db, log)
	ledgerSvc := ledger.NewService(db, entriesRepo, accountsRepo, log)
	lotsRepo := lots.NewRepository(db, log)
	lotTracker := lots.NewTracker(lotsRepo, underlyingsRepo, log)
	signalsRepo := reinvest.NewRepository(db, log)
	repo := NewRepository(db, log)

	account, err := accountsRepo.Create("test", decimal.Zero)
	require.NoError(t, err)

	underlying, err := underlyingsRepo.GetOrCreate(db, account.ID, "XYZ")
	require.NoError(t, err)

	return &engineFixture{
		db:           db,
		engine:       NewEngine(repo, ledgerSvc, entriesRepo, lotTracker, lotsRepo, signalsRepo, underlyingsRepo, log),
		repo:         repo,
		accountsRepo: accountsRepo,
		signalsRepo:  signalsRepo,
		accountID:    account.ID,
		underlyingID: underlying.ID,
	}
}

func (f *engineFixture) cashBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	account, err := f.accountsRepo.Get(f.db, f.accountID)
	require.NoError(t, err)
	return account.CashBalance
}

func putKey(strike string) LegKey {
	return LegKey{
		CallPut:    Put,
		Strike:     decimal.RequireFromString(strike),
		Expiration: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
	}
}

func callKey(strike string) LegKey {
	k := putKey(strike)
	k.CallPut = Call
	return k
}

func TestSellPutOpensCycle(t *testing.T) {
	f := setupEngine(t)

	result, err := f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, putKey("50"), 1, decimal.RequireFromString("2.00"), decimal.RequireFromString("0.65"), time.Now())
	require.NoError(t, err)

	assert.True(t, result.CycleCreated)
	assert.Equal(t, StatusOpen, result.Cycle.Status)
	require.NotNil(t, result.Leg)
	assert.Equal(t, int64(1), result.Leg.OpenContracts)

	// 2.00 * 1 * 100 - 0.65
	require.NotNil(t, result.Entry)
	assert.Equal(t, ledger.EntryPremiumCollected, result.Entry.Type)
	assert.True(t, decimal.RequireFromString("199.35").Equal(result.Entry.Amount))
	assert.True(t, decimal.RequireFromString("199.35").Equal(f.cashBalance(t)))
}

func TestSecondLegJoinsOpenCycle(t *testing.T) {
	f := setupEngine(t)

	first, err := f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, putKey("50"), 1, decimal.NewFromInt(2), decimal.Zero, time.Now())
	require.NoError(t, err)

	second, err := f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, putKey("48"), 1, decimal.NewFromInt(1), decimal.Zero, time.Now())
	require.NoError(t, err)

	assert.False(t, second.CycleCreated)
	assert.Equal(t, first.Cycle.ID, second.Cycle.ID)
}

func TestPutAssignmentOpensLot(t *testing.T) {
	f := setupEngine(t)

	now := time.Now()
	open, err := f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, putKey("50"), 1, decimal.NewFromInt(2), decimal.RequireFromString("0.65"), now)
	require.NoError(t, err)

	result, err := f.engine.AssignOption(f.db, f.accountID, f.underlyingID, putKey("50"), 1, decimal.Zero, now.Add(time.Hour))
	require.NoError(t, err)

	require.NotNil(t, result.Lot)
	assert.Equal(t, int64(100), result.Lot.Remaining)
	assert.True(t, decimal.NewFromInt(50).Equal(result.Lot.CostBasis))
	assert.Equal(t, open.Cycle.ID, result.Lot.CycleID)

	require.NotNil(t, result.Entry)
	assert.Equal(t, ledger.EntryAssignment, result.Entry.Type)
	assert.True(t, decimal.RequireFromString("-5000").Equal(result.Entry.Amount))

	// Shares still held, cycle must stay open
	assert.False(t, result.Finalized)
	cycle, err := f.repo.GetCycle(f.db, open.Cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, cycle.Status)
}

func TestCalledAwayFinalizesCycle(t *testing.T) {
	f := setupEngine(t)
	now := time.Now()

	// Put assigned at 50, then covered call at 55 called away
	_, err := f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, putKey("50"), 1, decimal.NewFromInt(2), decimal.RequireFromString("0.65"), now)
	require.NoError(t, err)
	_, err = f.engine.AssignOption(f.db, f.accountID, f.underlyingID, putKey("50"), 1, decimal.Zero, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, callKey("55"), 1, decimal.RequireFromString("1.50"), decimal.RequireFromString("0.65"), now.Add(2*time.Hour))
	require.NoError(t, err)

	result, err := f.engine.AssignOption(f.db, f.accountID, f.underlyingID, callKey("55"), 1, decimal.Zero, now.Add(3*time.Hour))
	require.NoError(t, err)

	require.NotNil(t, result.Consumption)
	assert.True(t, decimal.NewFromInt(500).Equal(result.Consumption.RealizedGain))

	assert.True(t, result.Finalized)
	require.NotNil(t, result.Cycle.RealizedPnL)
	// 199.35 - 5000 + 149.35 + 5500
	assert.True(t, decimal.RequireFromString("848.70").Equal(*result.Cycle.RealizedPnL))

	// Signal: premiums (199.35 + 149.35) + call assignment inflow 5500
	require.NotNil(t, result.Signal)
	assert.Equal(t, reinvest.StatusPending, result.Signal.Status)
	assert.True(t, decimal.RequireFromString("5848.70").Equal(result.Signal.Amount))

	pending, err := f.signalsRepo.GetPending(f.accountID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestExpireWorthlessFinalizes(t *testing.T) {
	f := setupEngine(t)
	now := time.Now()

	_, err := f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, putKey("50"), 1, decimal.NewFromInt(2), decimal.RequireFromString("0.65"), now)
	require.NoError(t, err)

	result, err := f.engine.ExpireOption(f.db, f.accountID, f.underlyingID, putKey("50"), now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, LegExpired, result.Leg.Status)
	assert.Nil(t, result.Entry)
	assert.True(t, result.Finalized)

	// Signal sized to the net premium kept
	require.NotNil(t, result.Signal)
	assert.True(t, decimal.RequireFromString("199.35").Equal(result.Signal.Amount))
	assert.True(t, decimal.RequireFromString("199.35").Equal(f.cashBalance(t)))
}

func TestBuyToCloseLoss(t *testing.T) {
	f := setupEngine(t)
	now := time.Now()

	_, err := f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, putKey("50"), 1, decimal.NewFromInt(2), decimal.Zero, now)
	require.NoError(t, err)

	result, err := f.engine.BuyToClose(f.db, f.accountID, f.underlyingID, putKey("50"), 1, decimal.NewFromInt(3), decimal.RequireFromString("0.65"), now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, ledger.EntryPremiumPaid, result.Entry.Type)
	assert.True(t, decimal.RequireFromString("-300.65").Equal(result.Entry.Amount))
	assert.True(t, result.Finalized)

	// Net premium is negative, nothing to reinvest
	assert.Nil(t, result.Signal)
	require.NotNil(t, result.Cycle.RealizedPnL)
	assert.True(t, decimal.RequireFromString("-100.65").Equal(*result.Cycle.RealizedPnL))
}

func TestOverAssignmentRejected(t *testing.T) {
	f := setupEngine(t)
	now := time.Now()

	_, err := f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, putKey("50"), 2, decimal.NewFromInt(2), decimal.Zero, now)
	require.NoError(t, err)

	_, err = f.engine.AssignOption(f.db, f.accountID, f.underlyingID, putKey("50"), 3, decimal.Zero, now.Add(time.Hour))

	var invariantErr *domain.InvariantViolation
	assert.True(t, errors.As(err, &invariantErr))
}

func TestPartialAssignmentKeepsLegOpen(t *testing.T) {
	f := setupEngine(t)
	now := time.Now()

	_, err := f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, putKey("50"), 2, decimal.NewFromInt(2), decimal.Zero, now)
	require.NoError(t, err)

	result, err := f.engine.AssignOption(f.db, f.accountID, f.underlyingID, putKey("50"), 1, decimal.Zero, now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Leg.OpenContracts)
	assert.Equal(t, LegOpen, result.Leg.Status)
	assert.False(t, result.Finalized)
}

func TestFinalizeOnlyOnce(t *testing.T) {
	f := setupEngine(t)
	now := time.Now()

	result, err := f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, putKey("50"), 1, decimal.NewFromInt(2), decimal.Zero, now)
	require.NoError(t, err)
	_, err = f.engine.ExpireOption(f.db, f.accountID, f.underlyingID, putKey("50"), now.Add(time.Hour))
	require.NoError(t, err)

	err = f.repo.Finalize(f.db, result.Cycle.ID, decimal.Zero, now.Add(2*time.Hour))
	var invariantErr *domain.InvariantViolation
	assert.True(t, errors.As(err, &invariantErr))
}

func TestNewCycleAfterFinalize(t *testing.T) {
	f := setupEngine(t)
	now := time.Now()

	first, err := f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, putKey("50"), 1, decimal.NewFromInt(2), decimal.Zero, now)
	require.NoError(t, err)
	_, err = f.engine.ExpireOption(f.db, f.accountID, f.underlyingID, putKey("50"), now.Add(time.Hour))
	require.NoError(t, err)

	second, err := f.engine.OpenShortOption(f.db, f.accountID, f.underlyingID, putKey("48"), 1, decimal.NewFromInt(1), decimal.Zero, now.Add(2*time.Hour))
	require.NoError(t, err)

	assert.True(t, second.CycleCreated)
	assert.NotEqual(t, first.Cycle.ID, second.Cycle.ID)
}

func TestMaybeFinalizeAfterStockSaleNoCycle(t *testing.T) {
	f := setupEngine(t)

	result, err := f.engine.MaybeFinalizeAfterStockSale(f.db, f.accountID, f.underlyingID, time.Now())
	require.NoError(t, err)
	assert.Nil(t, result.Cycle)
	assert.False(t, result.Finalized)
}
