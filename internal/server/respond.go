package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"wheelhouse/internal/domain"
)

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps the domain error taxonomy onto HTTP statuses.
// Invariant violations are 500s on purpose: they mean a bug, not bad
// input.
func writeError(log zerolog.Logger, w http.ResponseWriter, err error) {
	var (
		notFound     *domain.NotFoundError
		validation   *domain.ValidationError
		insufficient *domain.InsufficientLotError
		stale        *domain.StaleSignalError
		invariant    *domain.InvariantViolation
		provider     *domain.ProviderError
	)

	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: "not_found"})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "validation"})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Kind: "insufficient_lots"})
	case errors.As(err, &stale):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: "stale_signal"})
	case errors.As(err, &invariant):
		log.Error().Err(err).Msg("Invariant violation")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "invariant_violation"})
	case errors.As(err, &provider):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Kind: "provider"})
	default:
		log.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: "internal"})
	}
}

// decodeBody parses a JSON request body into dst
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}
