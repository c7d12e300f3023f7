package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompox/patchbay/adapters/httpapi"
	"github.com/kompox/patchbay/adapters/store/inmem"
	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/portalloc"
	"github.com/kompox/patchbay/internal/retry"
	"github.com/kompox/patchbay/usecase/classify"
	"github.com/kompox/patchbay/usecase/command"
	"github.com/kompox/patchbay/usecase/envelope"
	"github.com/kompox/patchbay/usecase/ledger"
	"github.com/kompox/patchbay/usecase/patch"
	"github.com/kompox/patchbay/usecase/session"
	"github.com/kompox/patchbay/usecase/session/sessiontest"
)

type fixture struct {
	srv     *httpapi.Server
	store   *inmem.Store
	backend *sessiontest.Backend
}

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()
	ctx := context.Background()
	st := inmem.NewStore()
	require.NoError(t, st.CompanyRepo.Create(ctx, &model.Company{ID: "co-1", Balance: balance}))
	require.NoError(t, st.WorkspaceRepo.Create(ctx, &model.Workspace{ID: "ws-pc", CompanyID: "co-1", EngineType: model.EnginePlayCanvas, Status: model.StatusReady}))
	require.NoError(t, st.WorkspaceRepo.Create(ctx, &model.Workspace{ID: "ws-ue", CompanyID: "co-1", EngineType: model.EngineUnreal, Status: model.StatusReady}))

	backend := &sessiontest.Backend{}
	backend.OnCommand = func(ctx context.Context, n int, req *model.BackendRequest) (*model.BackendResponse, error) {
		return &model.BackendResponse{Success: true, PatchID: "p-1", Patch: json.RawMessage(`{"ok":true}`), Raw: json.RawMessage(`{"success":true,"patch_id":"p-1"}`)}, nil
	}
	ports, err := portalloc.New("127.0.0.1", 42300, 42399)
	require.NoError(t, err)
	sessions := session.NewRegistry(map[model.EngineType]model.EngineDriver{
		model.EnginePlayCanvas: &sessiontest.Driver{EngineType: model.EnginePlayCanvas, Undo: true},
		model.EngineUnreal:     &sessiontest.Driver{EngineType: model.EngineUnreal},
	}, session.Deps{
		Workspaces: st.WorkspaceRepo,
		Sessions:   inmem.NewSessionStore(),
		Launcher:   &sessiontest.Launcher{},
		Backend:    backend,
		Ports:      ports,
		Retry:      retry.Policy{MaxAttempts: 1},
	}, session.Config{})

	validator := envelope.MustNew(envelope.Config{})
	patches := &patch.UseCase{Repos: &patch.Repos{Workspace: st.WorkspaceRepo, Patch: st.PatchRepo}, Sessions: sessions}
	cmds := &command.UseCase{
		Repos:      &command.Repos{Workspace: st.WorkspaceRepo, Company: st.CompanyRepo},
		Ledger:     ledger.New(&ledger.Repos{Company: st.CompanyRepo, Credit: st.CompanyRepo}, ledger.Config{}),
		Validator:  validator,
		Classifier: classify.New(nil, model.EnginePlayCanvas),
		Sessions:   sessions,
		Patches:    patches,
	}
	return &fixture{
		srv:     httpapi.New(httpapi.Options{Commands: cmds, Patches: patches, Validator: validator, MaxBodyBytes: 4096}),
		store:   st,
		backend: backend,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func errorKind(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "error body: %v", body)
	assert.Equal(t, false, body["success"])
	return e["kind"].(string)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, 100)
	rec, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestValidateEnvelope(t *testing.T) {
	f := newFixture(t, 100)
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"instruction":"add a cube","actions":[{"type":"create_entity","name":"Cube"}]}`, http.StatusOK},
		{"missing instruction", `{"actions":[]}`, http.StatusUnprocessableEntity},
		{"not json", `{`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.do(t, http.MethodPost, "/v1/envelopes/validate", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			assert.Equal(t, tt.status == http.StatusOK, body["valid"])
		})
	}
}

func TestDispatchAndUndo(t *testing.T) {
	f := newFixture(t, 100)
	rec, body := f.do(t, http.MethodPost, "/v1/workspaces/ws-pc/commands", `{"envelope":{"instruction":"add a cube"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, "playcanvas", meta["engine_type"])
	assert.Equal(t, "p-1", meta["patch_id"])
	assert.Equal(t, float64(90), meta["credits_remaining"])
	assert.Equal(t, "p-1", body["data"].(map[string]any)["patch_id"])

	rec, body = f.do(t, http.MethodGet, "/v1/workspaces/ws-pc/patches?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["patches"], 1)

	rec, body = f.do(t, http.MethodGet, "/v1/workspaces/ws-pc/patches/p-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"ok": true}, body["envelope"])

	rec, body = f.do(t, http.MethodPost, "/v1/workspaces/ws-pc/patches/p-1/undo", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.NotNil(t, body["patch"].(map[string]any)["undone_at"])

	rec, body = f.do(t, http.MethodPost, "/v1/workspaces/ws-pc/patches/p-1/undo", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "UndoFailed", errorKind(t, body))
}

func TestDispatchAppliedButNotCharged(t *testing.T) {
	f := newFixture(t, 100)
	f.backend.OnCommand = func(ctx context.Context, n int, req *model.BackendRequest) (*model.BackendResponse, error) {
		return &model.BackendResponse{
			Success:    true,
			PatchID:    "p-big",
			Patch:      json.RawMessage(`{}`),
			TokensUsed: 500,
			Raw:        json.RawMessage(`{"success":true,"patch_id":"p-big"}`),
		}, nil
	}
	rec, body := f.do(t, http.MethodPost, "/v1/workspaces/ws-pc/commands", `{"envelope":{"instruction":"build the whole level"}}`)
	require.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())
	assert.Equal(t, "InsufficientCredits", errorKind(t, body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, true, details["applied"])

	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "data: %v", body["data"])
	assert.Equal(t, "p-big", data["patch_id"])
	meta, ok := body["metadata"].(map[string]any)
	require.True(t, ok, "metadata: %v", body["metadata"])
	assert.Equal(t, "p-big", meta["patch_id"])
	assert.Equal(t, float64(0), meta["credits_used"])
	assert.Equal(t, float64(100), meta["credits_remaining"])
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		method  string
		path    string
		body    string
		status  int
		kind    string
	}{
		{"insufficient credits", 5, http.MethodPost, "/v1/workspaces/ws-pc/commands", `{"envelope":{"instruction":"add a cube"}}`, http.StatusPaymentRequired, "InsufficientCredits"},
		{"schema", 100, http.MethodPost, "/v1/workspaces/ws-pc/commands", `{"envelope":{"prompt":"x"}}`, http.StatusUnprocessableEntity, "SchemaValidationFailed"},
		{"unknown workspace", 100, http.MethodPost, "/v1/workspaces/nope/commands", `{"envelope":{"instruction":"x"}}`, http.StatusNotFound, "NotFound"},
		{"bad body", 100, http.MethodPost, "/v1/workspaces/ws-pc/commands", `not json`, http.StatusBadRequest, "BadRequest"},
		{"missing envelope", 100, http.MethodPost, "/v1/workspaces/ws-pc/commands", `{}`, http.StatusBadRequest, "BadRequest"},
		{"body too large", 100, http.MethodPost, "/v1/workspaces/ws-pc/commands", `{"envelope":{"instruction":"` + strings.Repeat("a", 5000) + `"}}`, http.StatusRequestEntityTooLarge, "BadRequest"},
		{"patch not found", 100, http.MethodGet, "/v1/workspaces/ws-pc/patches/none", "", http.StatusNotFound, "PatchNotFound"},
		{"bad limit", 100, http.MethodGet, "/v1/workspaces/ws-pc/patches?limit=x", "", http.StatusBadRequest, "BadRequest"},
		{"agent missing", 100, http.MethodPost, "/v1/workspaces/ws-pc/ask", `{"prompt":"hi"}`, http.StatusNotImplemented, "Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.balance)
			rec, body := f.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			assert.Equal(t, tt.kind, errorKind(t, body))
			assert.Equal(t, 0, f.backend.Commands())
		})
	}
}

func TestUndoUnsupportedEngine(t *testing.T) {
	f := newFixture(t, 100)
	require.NoError(t, f.store.PatchRepo.Create(context.Background(), &model.Patch{
		PatchID: "p-ue", WorkspaceID: "ws-ue", EngineType: model.EngineUnreal, Envelope: []byte(`{}`), Success: true,
	}))
	rec, body := f.do(t, http.MethodPost, "/v1/workspaces/ws-ue/patches/p-ue/undo", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "UndoUnsupported", errorKind(t, body))
	assert.Zero(t, f.backend.Undos())
}
