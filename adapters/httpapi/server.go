// Package httpapi exposes the command pipeline over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/logging"
	"github.com/kompox/patchbay/usecase/command"
	"github.com/kompox/patchbay/usecase/envelope"
	"github.com/kompox/patchbay/usecase/patch"
)

// DefaultMaxBodyBytes bounds request bodies when Options leaves it unset.
const DefaultMaxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Commands  *command.UseCase
	Patches   *patch.UseCase
	Validator *envelope.Validator
	Logger    logging.Logger
	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64
}

// Server routes HTTP requests to the use cases.
type Server struct {
	opts Options
	mux  *http.ServeMux
}

// New builds the handler tree.
func New(opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /v1/envelopes/validate", s.handleValidate)
	s.mux.HandleFunc("POST /v1/workspaces/{id}/commands", s.handleDispatch)
	s.mux.HandleFunc("POST /v1/workspaces/{id}/ask", s.handleAsk)
	s.mux.HandleFunc("GET /v1/workspaces/{id}/patches", s.handleListPatches)
	s.mux.HandleFunc("GET /v1/workspaces/{id}/patches/{patch}", s.handleGetPatch)
	s.mux.HandleFunc("POST /v1/workspaces/{id}/patches/{patch}/undo", s.handleUndo)
}

// ServeHTTP attaches a request-scoped logger and delegates to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = ulid.Make().String()
	}
	w.Header().Set("X-Request-Id", reqID)
	logger := s.opts.Logger.With("request", reqID)
	ctx := logging.WithLogger(r.Context(), logger)
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	s.mux.ServeHTTP(rec, r.WithContext(ctx))
	logger.Info(ctx, "http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed_ms", time.Since(start).Milliseconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(r.Context(), w, badRequest(err))
		return
	}
	res := s.opts.Validator.Validate(raw)
	status := http.StatusOK
	if !res.Valid {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// dispatchRequest is the body of a command submission.
type dispatchRequest struct {
	Envelope       json.RawMessage        `json:"envelope"`
	Context        map[string]any         `json:"context,omitempty"`
	Messages       []model.BackendMessage `json:"messages,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if len(req.Envelope) == 0 {
		writeError(r.Context(), w, badRequest(errors.New("envelope is required")))
		return
	}
	out, err := s.opts.Commands.Dispatch(r.Context(), &command.DispatchInput{
		WorkspaceID:    r.PathValue("id"),
		Envelope:       req.Envelope,
		Context:        req.Context,
		Messages:       req.Messages,
		ConversationID: req.ConversationID,
	})
	if err != nil && out != nil {
		writeOutcomeError(r.Context(), w, err, out.Data, out.Metadata)
		return
	}
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type askRequest struct {
	Prompt         string                 `json:"prompt"`
	Context        map[string]any         `json:"context,omitempty"`
	Messages       []model.BackendMessage `json:"messages,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	out, err := s.opts.Commands.Ask(r.Context(), &command.AskInput{
		WorkspaceID:    r.PathValue("id"),
		Prompt:         req.Prompt,
		Context:        req.Context,
		Messages:       req.Messages,
		ConversationID: req.ConversationID,
	})
	if err != nil && out != nil && out.Dispatch != nil {
		writeOutcomeError(r.Context(), w, err, out.Dispatch.Data, out.Dispatch.Metadata)
		return
	}
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListPatches(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(r.Context(), w, badRequest(fmt.Errorf("invalid limit %q", v)))
			return
		}
		limit = n
	}
	out, err := s.opts.Patches.List(r.Context(), &patch.ListInput{WorkspaceID: r.PathValue("id"), Limit: limit})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	views := make([]PatchView, 0, len(out.Patches))
	for _, p := range out.Patches {
		views = append(views, NewPatchView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"patches": views})
}

func (s *Server) handleGetPatch(w http.ResponseWriter, r *http.Request) {
	p, err := s.opts.Patches.FindByPatchID(r.Context(), r.PathValue("id"), r.PathValue("patch"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewPatchView(p))
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	out, err := s.opts.Patches.Undo(r.Context(), &patch.UndoInput{WorkspaceID: r.PathValue("id"), PatchID: r.PathValue("patch")})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": out.Result.Success,
		"patch":   NewPatchView(out.Patch),
		"result":  out.Result,
	})
}

// PatchView is the wire form of a stored patch. The reverse diff stays
// server side.
type PatchView struct {
	PatchID        string             `json:"patch_id"`
	WorkspaceID    string             `json:"workspace_id"`
	EngineType     model.EngineType   `json:"engine_type"`
	Envelope       json.RawMessage    `json:"envelope"`
	TokensUsed     int64              `json:"tokens_used"`
	CreditsCharged int64              `json:"credits_charged"`
	Success        bool               `json:"success"`
	Timings        model.PatchTimings `json:"timings"`
	ETag           string             `json:"etag,omitempty"`
	HasReverseDiff bool               `json:"has_reverse_diff"`
	UndoneAt       *time.Time         `json:"undone_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// NewPatchView converts a stored patch.
func NewPatchView(p *model.Patch) PatchView {
	env := json.RawMessage(p.Envelope)
	if !json.Valid(env) {
		env = json.RawMessage("null")
	}
	return PatchView{
		PatchID:        p.PatchID,
		WorkspaceID:    p.WorkspaceID,
		EngineType:     p.EngineType,
		Envelope:       env,
		TokensUsed:     p.TokensUsed,
		CreditsCharged: p.CreditsCharged,
		Success:        p.Success,
		Timings:        p.Timings,
		ETag:           p.ETag,
		HasReverseDiff: len(p.ReverseDiff) > 0,
		UndoneAt:       p.UndoneAt,
		CreatedAt:      p.CreatedAt,
	}
}
