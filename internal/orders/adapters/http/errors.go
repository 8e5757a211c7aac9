package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/go-chi/chi/v5/middleware"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	payload := map[string]any{"error": message}
	if requestID := middleware.GetReqID(r.Context()); requestID != "" {
		payload["request_id"] = requestID
	}
	writeJSON(w, status, payload)
}

// writeServiceError maps domain errors onto status codes. Anything unrecognised is logged
// and reported as a generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		transition *domain.InvalidTransitionError
		conflict   *domain.ConflictError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "validation failed",
			"problems": validation.Problems,
		})
	case errors.As(err, &notFound):
		writeError(w, r, http.StatusNotFound, notFound.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": transition.Error(),
			"from":  transition.From,
			"to":    transition.To,
		})
	case errors.As(err, &conflict):
		payload := map[string]any{"error": conflict.Reason}
		if conflict.ProductID != "" {
			payload["product_id"] = conflict.ProductID
		}
		writeJSON(w, http.StatusConflict, payload)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
