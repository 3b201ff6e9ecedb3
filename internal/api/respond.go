package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/macro-finder/internal/menu"
	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/internal/store"
)

// maxBodyBytes caps request bodies; bulk uploads are the largest.
const maxBodyBytes = 4 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.String("component", "api"), zap.Error(err))
	}
}

// writeError maps err to a status code. Unclassified errors are logged and
// reported as a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error()})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, menu.ErrBrandNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, menu.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no nutrition source configured"})
	default:
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched when
// allowEmpty is set.
func decode(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return model.Invalid("body", "invalid JSON: %v", err)
	}
	return nil
}
