package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"wheelhouse/internal/modules/trades"
)

// TradeHandlers serves the trade ingestion surface
type TradeHandlers struct {
	trades *trades.Service
	log    zerolog.Logger
}

// NewTradeHandlers creates the trade handlers
func NewTradeHandlers(tradesSvc *trades.Service, log zerolog.Logger) *TradeHandlers {
	return &TradeHandlers{
		trades: tradesSvc,
		log:    log.With().Str("handler", "trades").Logger(),
	}
}

// HandleDeposit handles POST /api/accounts/{id}/deposits
func (h *TradeHandlers) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req trades.DepositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	entry, err := h.trades.Deposit(chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// HandleStockTrade handles POST /api/accounts/{id}/trades/stock
func (h *TradeHandlers) HandleStockTrade(w http.ResponseWriter, r *http.Request) {
	var req trades.StockTradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	result, err := h.trades.RecordStockTrade(chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// HandleOptionTrade handles POST /api/accounts/{id}/trades/option
func (h *TradeHandlers) HandleOptionTrade(w http.ResponseWriter, r *http.Request) {
	var req trades.OptionTradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	result, err := h.trades.RecordOptionTrade(chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}
