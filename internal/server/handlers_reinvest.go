package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"wheelhouse/internal/modules/reinvest"
)

// ReinvestHandlers serves the reinvestment signal surface
type ReinvestHandlers struct {
	reinvest *reinvest.Service
	log      zerolog.Logger
}

// NewReinvestHandlers creates the reinvest handlers
func NewReinvestHandlers(reinvestSvc *reinvest.Service, log zerolog.Logger) *ReinvestHandlers {
	return &ReinvestHandlers{
		reinvest: reinvestSvc,
		log:      log.With().Str("handler", "reinvest").Logger(),
	}
}

type signalsResponse struct {
	Signals     []reinvest.Signal `json:"signals"`
	ReadyAmount string            `json:"ready_amount"`
}

// HandleGetSignals handles GET /api/accounts/{id}/signals: pending
// signals plus how much cash is actually free to redeploy
func (h *ReinvestHandlers) HandleGetSignals(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	signals, err := h.reinvest.GetPendingSignals(id)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	ready, err := h.reinvest.ReadyAmount(id)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	if signals == nil {
		signals = []reinvest.Signal{}
	}

	writeJSON(w, http.StatusOK, signalsResponse{
		Signals:     signals,
		ReadyAmount: ready.StringFixed(2),
	})
}

// HandleAction handles POST /api/signals/{id}/action
func (h *ReinvestHandlers) HandleAction(w http.ResponseWriter, r *http.Request) {
	var req reinvest.ActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	signal, err := h.reinvest.ProcessAction(chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, signal)
}
