package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"geoquiz/pkg/featurestore"
	"geoquiz/pkg/quiz"
	"geoquiz/pkg/search"
)

// maxBodyBytes bounds request bodies; a posted feature may carry a large outline.
const maxBodyBytes = 8 << 20

// ErrBadRequest marks malformed request input.
var ErrBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP status codes. Local precondition
// failures are client errors; provider failures are reported as 502.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, featurestore.ErrInvalidParent),
		errors.Is(err, featurestore.ErrInvalidFeature):
		return http.StatusBadRequest
	case errors.Is(err, ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, featurestore.ErrNotRenamable),
		errors.Is(err, featurestore.ErrNotDeletable),
		errors.Is(err, quiz.ErrUnknownFeature),
		errors.Is(err, quiz.ErrRootMismatch),
		errors.Is(err, search.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, search.ErrProviderUnavailable),
		errors.Is(err, search.ErrProviderMalformedResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decodeBody decodes a JSON request body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: failed to read body: %v", ErrBadRequest, err)
	}
	defer func() { _ = r.Body.Close() }()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrBadRequest, err)
	}
	return nil
}
