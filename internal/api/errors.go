package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/signalsfoundry/rail-planner/core"
	"github.com/signalsfoundry/rail-planner/internal/logging"
	"github.com/signalsfoundry/rail-planner/kb"
)

var (
	// ErrNotFound is used when a scenario, modification, train or station
	// cannot be located.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest is used for malformed bodies and query parameters.
	ErrInvalidRequest = errors.New("invalid request")
)

// statusFor maps planner errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound),
		errors.Is(err, kb.ErrTrainNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidTopology):
		return http.StatusBadRequest
	case errors.Is(err, kb.ErrTrainExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	log := logging.FromContext(r.Context(), s.log)
	if code >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed", logging.Err(err))
	} else {
		log.Debug(r.Context(), "request rejected", logging.Int("status", code), logging.Err(err))
	}
	writeJSON(w, code, errorBody{
		Error:     err.Error(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
