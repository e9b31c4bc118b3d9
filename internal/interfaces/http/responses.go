package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sawpanic/fxrates/internal/domain"
)

// errorType is the envelope discriminator callers switch on.
const errorType = "APPLICATION_ERROR"

// errorResponse is the wire shape of every non-2xx body.
type errorResponse struct {
	Type                  string `json:"type"`
	Message               string `json:"message"`
	Code                  string `json:"code,omitempty"`
	EarliestAvailableDate string `json:"earliestAvailableDate,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps the error kind to an HTTP status and renders the envelope.
// Internal errors hide their detail; everything else surfaces its message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)

	resp := errorResponse{Type: errorType, Message: err.Error(), Code: domain.CodeOf(err)}
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		resp.Message = "internal server error"
	}

	var appErr *domain.Error
	if errors.As(err, &appErr) && !appErr.Earliest.IsZero() {
		resp.EarliestAvailableDate = domain.FormatDate(appErr.Earliest)
	}

	writeJSON(w, status, resp)
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindBusinessRule:
		return http.StatusUnprocessableEntity
	case domain.KindProviderUnavailable, domain.KindProviderRejected,
		domain.KindProviderContract, domain.KindImportSanity:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
