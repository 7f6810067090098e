// Package prices refreshes underlying prices from the market data
// client. Each symbol is fetched and applied independently; one
// symbol's failure never rolls back the others.
package prices

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/clients/marketdata"
	"wheelhouse/internal/events"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/underlyings"
)

// RefreshResult is the per-symbol outcome of a refresh batch
type RefreshResult struct {
	Symbol  string           `json:"symbol"`
	Updated bool             `json:"updated"`
	Price   *decimal.Decimal `json:"price,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Service drives price refreshes
type Service struct {
	accounts    *accounts.Repository
	underlyings *underlyings.Repository
	client      *marketdata.Client
	bus         *events.Bus
	log         zerolog.Logger
}

// NewService creates a new price refresh service
func NewService(accountsRepo *accounts.Repository, underlyingsRepo *underlyings.Repository, client *marketdata.Client, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		accounts:    accountsRepo,
		underlyings: underlyingsRepo,
		client:      client,
		bus:         bus,
		log:         log.With().Str("service", "prices").Logger(),
	}
}

// RefreshAccount refreshes every active symbol of one account. Active
// means the symbol has open lots or an open cycle; dormant underlyings
// keep their stale price. Never returns an error for individual symbol
// failures, only for listing the symbols themselves.
func (s *Service) RefreshAccount(accountID string) ([]RefreshResult, error) {
	symbols, err := s.underlyings.ActiveSymbols(accountID)
	if err != nil {
		return nil, err
	}

	results := make([]RefreshResult, 0, len(symbols))
	updated := 0

	for _, symbol := range symbols {
		result := RefreshResult{Symbol: symbol}

		quote, err := s.client.GetQuote(symbol)
		if err != nil {
			result.Error = err.Error()
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote fetch failed, price left unchanged")
			results = append(results, result)
			continue
		}

		if err := s.underlyings.UpdatePrice(accountID, symbol, quote.Last, quote.Timestamp); err != nil {
			result.Error = err.Error()
			s.log.Error().Err(err).Str("symbol", symbol).Msg("Price update failed")
			results = append(results, result)
			continue
		}

		result.Updated = true
		result.Price = &quote.Last
		results = append(results, result)
		updated++
	}

	if updated > 0 {
		s.bus.Publish(events.Event{
			Type:      events.TypePricesRefreshed,
			AccountID: accountID,
			Payload:   results,
		})
	}

	s.log.Info().
		Str("account_id", accountID).
		Int("symbols", len(symbols)).
		Int("updated", updated).
		Msg("Price refresh complete")

	return results, nil
}

// RefreshAll refreshes every account, keyed by account id
func (s *Service) RefreshAll() (map[string][]RefreshResult, error) {
	all, err := s.accounts.List()
	if err != nil {
		return nil, err
	}

	results := make(map[string][]RefreshResult, len(all))
	for _, account := range all {
		accountResults, err := s.RefreshAccount(account.ID)
		if err != nil {
			s.log.Error().Err(err).Str("account_id", account.ID).Msg("Account refresh failed")
			continue
		}
		results[account.ID] = accountResults
	}

	return results, nil
}
