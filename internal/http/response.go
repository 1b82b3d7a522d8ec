package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fjod/shopcart/internal/domain"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleDomainError converts a service error into a JSON error response.
// Internal details never reach the client.
func handleDomainError(w http.ResponseWriter, r *http.Request, l *slog.Logger, err error) {
	kind := domain.ErrorKind(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	respondError(w, status, string(kind), domain.ErrorMessage(err))
}

func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound, domain.KindItemNotFound, domain.KindCartNotFound, domain.KindSessionNotFound:
		return http.StatusNotFound
	case domain.KindCartUpdateFailed, domain.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
