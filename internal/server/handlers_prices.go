package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"wheelhouse/internal/modules/prices"
)

// PriceHandlers serves manual price refresh
type PriceHandlers struct {
	prices *prices.Service
	log    zerolog.Logger
}

// NewPriceHandlers creates the price handlers
func NewPriceHandlers(pricesSvc *prices.Service, log zerolog.Logger) *PriceHandlers {
	return &PriceHandlers{
		prices: pricesSvc,
		log:    log.With().Str("handler", "prices").Logger(),
	}
}

// HandleRefresh handles POST /api/accounts/{id}/prices/refresh. Always
// 200 with the per-symbol outcomes; individual fetch failures are part
// of the report, not an error.
func (h *PriceHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	results, err := h.prices.RefreshAccount(chi.URLParam(r, "id"))
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	if results == nil {
		results = []prices.RefreshResult{}
	}

	writeJSON(w, http.StatusOK, results)
}
