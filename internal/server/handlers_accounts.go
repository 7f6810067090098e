package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/cycles"
	"wheelhouse/internal/modules/ledger"
	"wheelhouse/internal/modules/lots"
	"wheelhouse/internal/modules/underlyings"
)

// AccountHandlers serves the account, ledger, lot and cycle read
// surface plus account CRUD.
type AccountHandlers struct {
	db          *database.DB
	accounts    *accounts.Repository
	ledger      *ledger.Service
	entries     *ledger.Repository
	underlyings *underlyings.Repository
	lots        *lots.Repository
	cycles      *cycles.Repository
	log         zerolog.Logger
}

// NewAccountHandlers creates the account handlers
func NewAccountHandlers(db *database.DB, accountsRepo *accounts.Repository, ledgerSvc *ledger.Service, entriesRepo *ledger.Repository, underlyingsRepo *underlyings.Repository, lotsRepo *lots.Repository, cyclesRepo *cycles.Repository, log zerolog.Logger) *AccountHandlers {
	return &AccountHandlers{
		db:          db,
		accounts:    accountsRepo,
		ledger:      ledgerSvc,
		entries:     entriesRepo,
		underlyings: underlyingsRepo,
		lots:        lotsRepo,
		cycles:      cyclesRepo,
		log:         log.With().Str("handler", "accounts").Logger(),
	}
}

type createAccountRequest struct {
	Name            string          `json:"name"`
	CashflowReserve decimal.Decimal `json:"cashflow_reserve"`
}

// HandleCreate handles POST /api/accounts
func (h *AccountHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	account, err := h.accounts.Create(req.Name, req.CashflowReserve)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// HandleList handles GET /api/accounts
func (h *AccountHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.accounts.List()
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, all)
}

// HandleGet handles GET /api/accounts/{id}
func (h *AccountHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Get(h.db, chi.URLParam(r, "id"))
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

type updateAccountRequest struct {
	CashflowReserve decimal.Decimal `json:"cashflow_reserve"`
}

// HandleUpdate handles PUT /api/accounts/{id}; only the cashflow
// reserve is operator-adjustable, cash moves through the ledger
func (h *AccountHandlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	if err := h.accounts.UpdateReserve(id, req.CashflowReserve); err != nil {
		writeError(h.log, w, err)
		return
	}

	account, err := h.accounts.Get(h.db, id)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// HandleDelete handles DELETE /api/accounts/{id}
func (h *AccountHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleLedger handles GET /api/accounts/{id}/ledger
func (h *AccountHandlers) HandleLedger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.accounts.Get(h.db, id); err != nil {
		writeError(h.log, w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := h.entries.ListByAccount(id, limit)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// HandleReconciliation handles GET /api/accounts/{id}/ledger/reconciliation
func (h *AccountHandlers) HandleReconciliation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.ledger.Reconcile(chi.URLParam(r, "id"))
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// HandleLots handles GET /api/accounts/{id}/lots?underlying=SYM
func (h *AccountHandlers) HandleLots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.accounts.Get(h.db, id); err != nil {
		writeError(h.log, w, err)
		return
	}

	var openLots []lots.StockLot
	if symbol := r.URL.Query().Get("underlying"); symbol != "" {
		u, err := h.underlyings.GetBySymbol(h.db, id, symbol)
		if err != nil {
			writeError(h.log, w, err)
			return
		}
		openLots, err = h.lots.OpenByUnderlying(h.db, u.ID)
		if err != nil {
			writeError(h.log, w, err)
			return
		}
	} else {
		var err error
		openLots, err = h.lots.OpenByAccount(h.db, id)
		if err != nil {
			writeError(h.log, w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, openLots)
}

// HandleUnderlyings handles GET /api/accounts/{id}/underlyings
func (h *AccountHandlers) HandleUnderlyings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.accounts.Get(h.db, id); err != nil {
		writeError(h.log, w, err)
		return
	}

	all, err := h.underlyings.ListByAccount(id)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, all)
}

type cycleView struct {
	cycles.Cycle
	Legs []cycles.OptionLeg `json:"legs"`
}

// HandleCycles handles GET /api/accounts/{id}/cycles?status=OPEN
func (h *AccountHandlers) HandleCycles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.accounts.Get(h.db, id); err != nil {
		writeError(h.log, w, err)
		return
	}

	status := cycles.Status(r.URL.Query().Get("status"))
	list, err := h.cycles.ListByAccount(id, status)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	views := make([]cycleView, 0, len(list))
	for _, c := range list {
		legs, err := h.cycles.LegsByCycle(h.db, c.ID)
		if err != nil {
			writeError(h.log, w, err)
			return
		}
		views = append(views, cycleView{Cycle: c, Legs: legs})
	}

	writeJSON(w, http.StatusOK, views)
}
