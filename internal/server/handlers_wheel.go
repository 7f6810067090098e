package server

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/database"
	"wheelhouse/internal/domain"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/snapshots"
	"wheelhouse/internal/modules/underlyings"
	"wheelhouse/internal/modules/wheel"
)

// WheelHandlers serves the wealth wheel surface: targets,
// classifications, the live calculation and the stored snapshot.
type WheelHandlers struct {
	db          *database.DB
	accounts    *accounts.Repository
	underlyings *underlyings.Repository
	wheel       *wheel.Repository
	calculator  *wheel.Calculator
	snapshots   *snapshots.Service
	log         zerolog.Logger
}

// NewWheelHandlers creates the wheel handlers
func NewWheelHandlers(db *database.DB, accountsRepo *accounts.Repository, underlyingsRepo *underlyings.Repository, wheelRepo *wheel.Repository, calculator *wheel.Calculator, snapshotsSvc *snapshots.Service, log zerolog.Logger) *WheelHandlers {
	return &WheelHandlers{
		db:          db,
		accounts:    accountsRepo,
		underlyings: underlyingsRepo,
		wheel:       wheelRepo,
		calculator:  calculator,
		snapshots:   snapshotsSvc,
		log:         log.With().Str("handler", "wheel").Logger(),
	}
}

type wheelResponse struct {
	*wheel.Result
	Targets []wheel.Target `json:"targets"`
}

// HandleGetWheel handles GET /api/accounts/{id}/wheel
func (h *WheelHandlers) HandleGetWheel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.calculator.Calculate(id)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	targets, err := h.wheel.TargetsByAccount(h.db, id)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	if targets == nil {
		targets = []wheel.Target{}
	}

	writeJSON(w, http.StatusOK, wheelResponse{Result: result, Targets: targets})
}

type targetUpsert struct {
	Category  string          `json:"category"`
	TargetPct decimal.Decimal `json:"target_pct"`
}

type putTargetsRequest struct {
	Targets []targetUpsert `json:"targets"`
}

// HandlePutTargets handles PUT /api/accounts/{id}/wheel/targets; the
// whole batch commits or none of it does
func (h *WheelHandlers) HandlePutTargets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req putTargetsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	if _, err := h.accounts.Get(h.db, id); err != nil {
		writeError(h.log, w, err)
		return
	}

	now := time.Now().UTC()
	err := h.db.WithTx(func(tx *sql.Tx) error {
		for _, t := range req.Targets {
			err := h.wheel.UpsertTarget(tx, &wheel.Target{
				AccountID: id,
				Category:  t.Category,
				TargetPct: t.TargetPct,
				UpdatedAt: now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	targets, err := h.wheel.TargetsByAccount(h.db, id)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, targets)
}

type putClassificationRequest struct {
	UnderlyingID string `json:"underlying_id"`
	Category     string `json:"category"`
}

// HandlePutClassification handles PUT /api/accounts/{id}/wheel/classifications
func (h *WheelHandlers) HandlePutClassification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req putClassificationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	// The underlying must exist and belong to this account
	u, err := h.underlyings.Get(h.db, req.UnderlyingID)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	if u.AccountID != id {
		writeError(h.log, w, &domain.NotFoundError{Resource: "underlying", ID: req.UnderlyingID})
		return
	}

	classification := &wheel.Classification{
		AccountID:    id,
		UnderlyingID: req.UnderlyingID,
		Category:     req.Category,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := h.wheel.UpsertClassification(h.db, classification); err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, classification)
}

// HandleGetSnapshot handles GET /api/accounts/{id}/wheel/snapshot
func (h *WheelHandlers) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.snapshots.Latest(chi.URLParam(r, "id"))
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}
