package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cnrosu/yt-ai-summariser/internal/jobapi"
	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

const maxRequestBody = 1 << 20

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}

// writeDomainError maps err onto its HTTP status
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}

func statusForError(err error) int {
	var (
		transportErr *model.TransportError
		remoteErr    *model.RemoteJobError
		runErr       *model.RunError
		upstreamErr  *jobapi.HTTPError
	)

	switch {
	case errors.Is(err, model.ErrInvalidResource), errors.Is(err, model.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAlreadyActive), errors.Is(err, model.ErrTurnInProgress):
		return http.StatusConflict
	// an abandoned turn
	case errors.Is(err, context.Canceled):
		return http.StatusConflict
	case errors.Is(err, model.ErrNoTranscript), errors.Is(err, model.ErrNoResource),
		errors.Is(err, model.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrStorageFull):
		return http.StatusInsufficientStorage
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, model.ErrShuttingDown), errors.As(err, &transportErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &remoteErr), errors.As(err, &runErr), errors.As(err, &upstreamErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(dst)
}

// parseQueryInt64 parses an integer query parameter with a default value
func parseQueryInt64(r *http.Request, key string, defaultValue int64) int64 {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return intValue
}
