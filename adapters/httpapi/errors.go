package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/logging"
	"github.com/kompox/patchbay/usecase/command"
)

// Kinds reported for errors outside the pipeline taxonomy.
const (
	kindBadRequest  = "BadRequest"
	kindNotFound    = "NotFound"
	kindConflict    = "Conflict"
	kindUnavailable = "Unavailable"
	kindInternal    = "Internal"
)

type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
	// Data and Metadata carry the outcome of a command that ran before
	// the request failed.
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata any             `json:"metadata,omitempty"`
}

type errorDetail struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// classify maps err to an HTTP status and the error body.
func classify(err error) (int, errorDetail) {
	var me *model.Error
	if errors.As(err, &me) {
		return me.Kind.HTTPStatus(), errorDetail{Kind: string(me.Kind), Message: err.Error(), Details: me.Details}
	}
	var re *requestError
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, errorDetail{Kind: kindBadRequest, Message: err.Error()}
	case errors.As(err, &re),
		errors.Is(err, model.ErrWorkspaceInvalid),
		errors.Is(err, model.ErrCompanyInvalid):
		return http.StatusBadRequest, errorDetail{Kind: kindBadRequest, Message: err.Error()}
	case errors.Is(err, model.ErrWorkspaceNotFound), errors.Is(err, model.ErrCompanyNotFound):
		return http.StatusNotFound, errorDetail{Kind: kindNotFound, Message: err.Error()}
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrWorkspaceSessionBound):
		return http.StatusConflict, errorDetail{Kind: kindConflict, Message: err.Error()}
	case errors.Is(err, command.ErrAgentUnavailable):
		return http.StatusNotImplemented, errorDetail{Kind: kindUnavailable, Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorDetail{Kind: kindInternal, Message: err.Error()}
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, detail := classify(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(ctx).Error(ctx, "request failed", "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Success: false, Error: detail})
}

// writeOutcomeError is writeError for a command that already changed the
// workspace.
func writeOutcomeError(ctx context.Context, w http.ResponseWriter, err error, data json.RawMessage, meta any) {
	status, detail := classify(err)
	logging.FromContext(ctx).Warn(ctx, "command applied with error", "status", status, "err", err)
	writeJSON(w, status, errorBody{Success: false, Error: detail, Data: data, Metadata: meta})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
