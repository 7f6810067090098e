package prices

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wheelhouse/internal/clients/marketdata"
	"wheelhouse/internal/database"
	"wheelhouse/internal/events"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/lots"
	"wheelhouse/internal/modules/underlyings"
)

type pricesFixture struct {
	db          *database.DB
	underlyings *underlyings.Repository
	tracker     *lots.Tracker
	bus         *events.Bus
	accountID   string
}

func setupPrices(t *testing.T, handler http.HandlerFunc) (*pricesFixture, *Service) {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.InitSchema(db))

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log := zerolog.Nop()
	accountsRepo := accounts.NewRepository(db, log)
	underlyingsRepo := underlyings.NewRepository(db, log)
	tracker := lots.NewTracker(lots.NewRepository(db, log), underlyingsRepo, log)
	bus := events.NewBus()

	account, err := accountsRepo.Create("test", decimal.Zero)
	require.NoError(t, err)

	f := &pricesFixture{
		db:          db,
		underlyings: underlyingsRepo,
		tracker:     tracker,
		bus:         bus,
		accountID:   account.ID,
	}
	svc := NewService(accountsRepo, underlyingsRepo, marketdata.NewClient(server.URL, log), bus, log)
	return f, svc
}

// activeHolding creates an underlying with an open lot so it counts as
// active for refresh purposes.
func (f *pricesFixture) activeHolding(t *testing.T, symbol string) {
	t.Helper()
	u, err := f.underlyings.GetOrCreate(f.db, f.accountID, symbol)
	require.NoError(t, err)
	_, err = f.tracker.OpenLot(f.db, f.accountID, u.ID, "", 100, decimal.NewFromInt(10), time.Now())
	require.NoError(t, err)
}

func quoteBody(symbol string, price float64) string {
	return fmt.Sprintf(`{"quoteResponse":{"result":[{"symbol":%q,"regularMarketPrice":%g}],"error":null}}`, symbol, price)
}

func TestRefreshAccount(t *testing.T) {
	f, svc := setupPrices(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteBody(r.URL.Query().Get("symbols"), 42.5))
	})
	f.activeHolding(t, "XYZ")

	ch, cancel := f.bus.Subscribe()
	defer cancel()

	results, err := svc.RefreshAccount(f.accountID)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.True(t, results[0].Updated)
	require.NotNil(t, results[0].Price)
	assert.Equal(t, "42.5", results[0].Price.String())

	u, err := f.underlyings.GetBySymbol(f.db, f.accountID, "XYZ")
	require.NoError(t, err)
	require.NotNil(t, u.CurrentPrice)
	assert.Equal(t, "42.5", u.CurrentPrice.String())

	select {
	case event := <-ch:
		assert.Equal(t, events.TypePricesRefreshed, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a prices event")
	}
}

func TestRefreshSkipsDormantSymbols(t *testing.T) {
	f, svc := setupPrices(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteBody(r.URL.Query().Get("symbols"), 10))
	})

	// Underlying exists but has no open lots or cycle
	_, err := f.underlyings.GetOrCreate(f.db, f.accountID, "DORMANT")
	require.NoError(t, err)

	results, err := svc.RefreshAccount(f.accountID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRefreshIsolatesFailures(t *testing.T) {
	f, svc := setupPrices(t, func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbols")
		if symbol == "BAD" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, quoteBody(symbol, 42.5))
	})
	f.activeHolding(t, "BAD")
	f.activeHolding(t, "GOOD")

	results, err := svc.RefreshAccount(f.accountID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	bySymbol := make(map[string]RefreshResult)
	for _, result := range results {
		bySymbol[result.Symbol] = result
	}

	assert.False(t, bySymbol["BAD"].Updated)
	assert.NotEmpty(t, bySymbol["BAD"].Error)
	assert.True(t, bySymbol["GOOD"].Updated)
}
