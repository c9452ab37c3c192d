package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/resilience"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps engine errors onto HTTP statuses. Validation and
// duplicate messages are reported without their wrapping context.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case model.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: eris.Cause(err).Error(), Code: "validation"})
	case model.IsDuplicate(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: eris.Cause(err).Error(), Code: "duplicate"})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, resilience.ErrBreakerOpen):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Code: "unavailable"})
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "bad_request"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// maxBodyBytes caps request bodies; bulk imports are the largest.
const maxBodyBytes = 32 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}
