package command_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

var vocabs = map[model.EngineType]model.Vocabulary{
	model.EnginePlayCanvas: {Keywords: []string{"playcanvas"}, Signatures: []string{"pc.Entity", "pc.Application"}},
	model.EngineUnreal:     {Keywords: []string{"unreal", "blueprint"}, Signatures: []string{"BeginPlay", "UCLASS", "AActor"}},
}

type conversation struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (c *conversation) AddMessage(ctx context.Context, conversationID, role, content string, meta map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, conversationID+"/"+role+": "+content)
	return c.err
}

type agent struct {
	reply *model.AgentReply
	err   error
}

func (a *agent) Generate(ctx context.Context, prompt string, context map[string]any) (*model.AgentReply, error) {
	return a.reply, a.err
}

type env struct {
	store    *inmem.Store
	backend  *sessiontest.Backend
	launcher *sessiontest.Launcher
	ledger   *ledger.UseCase
	patches  *patch.UseCase
	uc       *command.UseCase
	conv     *conversation
}

func newEnv(t *testing.T, balance int64, plan model.Plan) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{
		store:    inmem.NewStore(),
		backend:  &sessiontest.Backend{},
		launcher: &sessiontest.Launcher{},
		conv:     &conversation{},
	}
	require.NoError(t, e.store.CompanyRepo.Create(ctx, &model.Company{ID: "co-1", Name: "Acme", Balance: balance, Plan: plan}))
	for _, ws := range []*model.Workspace{
		{ID: "ws-pc", CompanyID: "co-1", EngineType: model.EnginePlayCanvas, Status: model.StatusReady, ProjectDir: "/tmp/ws-pc"},
		{ID: "ws-ue", CompanyID: "co-1", EngineType: model.EngineUnreal, Status: model.StatusReady, ProjectDir: "/tmp/ws-ue"},
		{ID: "ws-new", CompanyID: "co-1", EngineType: model.EnginePlayCanvas, Status: model.StatusInitializing},
	} {
		require.NoError(t, e.store.WorkspaceRepo.Create(ctx, ws))
	}

	ports, err := portalloc.New("127.0.0.1", 42200, 42299)
	require.NoError(t, err)
	drivers := map[model.EngineType]model.EngineDriver{
		model.EnginePlayCanvas: &sessiontest.Driver{EngineType: model.EnginePlayCanvas, Undo: true},
		model.EngineUnreal:     &sessiontest.Driver{EngineType: model.EngineUnreal, Extra: 5},
	}
	sessions := session.NewRegistry(drivers, session.Deps{
		Workspaces: e.store.WorkspaceRepo,
		Sessions:   inmem.NewSessionStore(),
		Launcher:   e.launcher,
		Backend:    e.backend,
		Ports:      ports,
		Retry:      retry.Policy{MaxAttempts: 1},
	}, session.Config{})

	e.ledger = ledger.New(&ledger.Repos{Company: e.store.CompanyRepo, Credit: e.store.CompanyRepo}, ledger.Config{
		Surcharges: map[model.EngineType]int64{model.EnginePlayCanvas: 5, model.EngineUnreal: 5},
	})
	e.patches = &patch.UseCase{
		Repos:    &patch.Repos{Workspace: e.store.WorkspaceRepo, Patch: e.store.PatchRepo},
		Sessions: sessions,
	}
	e.uc = &command.UseCase{
		Repos:         &command.Repos{Workspace: e.store.WorkspaceRepo, Company: e.store.CompanyRepo},
		Ledger:        e.ledger,
		Validator:     envelope.MustNew(envelope.Config{}),
		Classifier:    classify.New(vocabs, model.EnginePlayCanvas),
		Sessions:      sessions,
		Patches:       e.patches,
		Conversations: e.conv,
	}
	return e
}

func (e *env) balance(t *testing.T) int64 {
	t.Helper()
	b, err := e.ledger.Balance(context.Background(), "co-1")
	require.NoError(t, err)
	return b
}

func (e *env) patchCount(t *testing.T, wsID string) int {
	t.Helper()
	out, err := e.patches.List(context.Background(), &patch.ListInput{WorkspaceID: wsID})
	require.NoError(t, err)
	return len(out.Patches)
}

// instruction pads text to n runes so that its estimate is n*3/10.
func instruction(text string, n int) string {
	return text + strings.Repeat(".", n-len(text))
}

func envelopeJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func patchReply(ctx context.Context, n int, req *model.BackendRequest) (*model.BackendResponse, error) {
	return &model.BackendResponse{
		Success: true,
		PatchID: fmt.Sprintf("p-%d", n),
		Patch:   json.RawMessage(`{"actions":[{"type":"create_entity","name":"Crate"}]}`),
	}, nil
}

func TestDispatchChargesEstimateAndSurcharge(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100, model.Plan{})
	e.backend.OnCommand = patchReply
	raw := envelopeJSON(t, map[string]any{"instruction": instruction("Add a red cube named Crate at the origin", 100)})

	out, err := e.uc.Dispatch(ctx, &command.DispatchInput{WorkspaceID: "ws-pc", Envelope: raw, ConversationID: "conv-1"})
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, int64(35), out.Metadata.CreditsUsed)
	assert.Equal(t, int64(65), out.Metadata.CreditsRemaining)
	assert.Equal(t, int64(5), out.Metadata.Surcharge)
	assert.Equal(t, model.EnginePlayCanvas, out.Metadata.EngineType)
	assert.Equal(t, classify.SourceWorkspace, out.Metadata.DetectedBy)
	assert.True(t, out.Metadata.Compatibility.Checked)
	assert.Equal(t, "p-1", out.Metadata.PatchID)
	assert.Equal(t, int64(65), e.balance(t))

	p, err := e.patches.FindByPatchID(ctx, "ws-pc", "p-1")
	require.NoError(t, err)
	assert.True(t, p.Success)
	assert.LessOrEqual(t, p.TokensUsed, int64(30))
	assert.Equal(t, int64(35), p.CreditsCharged)
	assert.JSONEq(t, `{"actions":[{"type":"create_entity","name":"Crate"}]}`, string(p.Envelope))

	txs, err := e.ledger.Transactions(ctx, &ledger.TransactionsInput{CompanyID: "co-1"})
	require.NoError(t, err)
	require.Len(t, txs.Transactions, 1)
	assert.Equal(t, int64(-35), txs.Transactions[0].Amount)
	assert.Equal(t, model.ReasonCommand, txs.Transactions[0].Reason)
	assert.Equal(t, "p-1", txs.Transactions[0].Metadata.PatchID)

	assert.Len(t, e.conv.msgs, 2)
}

func TestDispatchQueuedCommandSeesStatusChange(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100, model.Plan{})
	entered := make(chan struct{})
	release := make(chan struct{})
	e.backend.OnCommand = func(ctx context.Context, n int, req *model.BackendRequest) (*model.BackendResponse, error) {
		if n == 1 {
			close(entered)
			<-release
		}
		return patchReply(ctx, n, req)
	}
	raw := envelopeJSON(t, map[string]any{"instruction": instruction("Add a red cube", 100)})
	dispatch := func() <-chan error {
		ch := make(chan error, 1)
		go func() {
			_, err := e.uc.Dispatch(ctx, &command.DispatchInput{WorkspaceID: "ws-pc", Envelope: raw})
			ch <- err
		}()
		return ch
	}

	first := dispatch()
	<-entered
	second := dispatch()
	require.NoError(t, e.store.WorkspaceRepo.SetStatus(ctx, "ws-pc", model.StatusReady, model.StatusError))
	close(release)

	require.NoError(t, <-first)
	assert.ErrorIs(t, <-second, model.ErrWorkspaceNotReady)
	assert.Equal(t, 1, e.backend.Commands())
	assert.Equal(t, int64(65), e.balance(t))
	assert.Equal(t, 1, e.patchCount(t, "ws-pc"))
}

func TestDispatchInsufficientCredits(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 10, model.Plan{})
	e.backend.OnCommand = patchReply
	raw := envelopeJSON(t, map[string]any{"instruction": instruction("Add a red cube", 100)})

	_, err := e.uc.Dispatch(ctx, &command.DispatchInput{WorkspaceID: "ws-pc", Envelope: raw})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInsufficientCredits))
	var me *model.Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, int64(35), me.Details["required"])
	assert.Equal(t, int64(10), me.Details["available"])

	assert.Equal(t, int64(10), e.balance(t))
	assert.Equal(t, 0, e.patchCount(t, "ws-pc"))
	assert.Equal(t, 0, e.backend.Commands())
	assert.Equal(t, 0, e.launcher.Launches())
}

func TestDispatchRejectsBeforeBackend(t *testing.T) {
	manyActions := make([]map[string]any, 51)
	for i := range manyActions {
		manyActions[i] = map[string]any{"type": "delete_entity", "target": fmt.Sprintf("e%d", i)}
	}
	tests := []struct {
		name     string
		ws       string
		plan     model.Plan
		envelope any
		want     error
	}{
		{
			name:     "workspace not ready",
			ws:       "ws-new",
			envelope: map[string]any{"instruction": "add a cube"},
			want:     model.ErrWorkspaceNotReady,
		},
		{
			name:     "engine outside plan",
			ws:       "ws-pc",
			plan:     model.Plan{AllowedEngines: []model.EngineType{model.EngineUnreal}},
			envelope: map[string]any{"instruction": "add a cube"},
			want:     model.ErrCapabilityNotAllowed,
		},
		{
			name:     "feature outside plan",
			ws:       "ws-pc",
			envelope: map[string]any{"instruction": "add multiplayer lobby"},
			want:     model.ErrCapabilityNotAllowed,
		},
		{
			name:     "schema violation",
			ws:       "ws-pc",
			envelope: map[string]any{"instruction": "x", "actions": []any{map[string]any{"type": "explode"}}},
			want:     model.ErrSchemaValidationFailed,
		},
		{
			name:     "too many operations",
			ws:       "ws-pc",
			envelope: map[string]any{"instruction": "clean up", "actions": manyActions},
			want:     model.ErrTooManyOperations,
		},
		{
			name:     "foreign engine syntax",
			ws:       "ws-pc",
			envelope: map[string]any{"instruction": "BeginPlay Tick UCLASS"},
			want:     model.ErrCrossEngineCommandRejected,
		},
		{
			name:     "explicit engine differs from workspace",
			ws:       "ws-pc",
			envelope: map[string]any{"instruction": "add a cube", "engine": "unreal"},
			want:     model.ErrCrossEngineCommandRejected,
		},
		{
			name:     "missing workspace",
			ws:       "ws-missing",
			envelope: map[string]any{"instruction": "add a cube"},
			want:     model.ErrWorkspaceNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, 1000, tt.plan)
			_, err := e.uc.Dispatch(context.Background(), &command.DispatchInput{WorkspaceID: tt.ws, Envelope: envelopeJSON(t, tt.envelope)})
			if !errors.Is(err, tt.want) {
				t.Errorf("Dispatch() error = %v, want %v", err, tt.want)
			}
			assert.Equal(t, 0, e.backend.Commands())
			assert.Equal(t, int64(1000), e.balance(t))
		})
	}
}

func TestDispatchAcceptsOwnEngineSyntax(t *testing.T) {
	e := newEnv(t, 1000, model.Plan{})
	raw := envelopeJSON(t, map[string]any{"instruction": "spawn an AActor in BeginPlay"})
	out, err := e.uc.Dispatch(context.Background(), &command.DispatchInput{WorkspaceID: "ws-ue", Envelope: raw})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, model.EngineUnreal, out.Metadata.EngineType)
	assert.ElementsMatch(t, []string{"AActor", "BeginPlay"}, out.Metadata.Compatibility.OwnMatches)
}

func TestDispatchChargesReportedTokens(t *testing.T) {
	e := newEnv(t, 100, model.Plan{})
	e.backend.OnCommand = func(ctx context.Context, n int, req *model.BackendRequest) (*model.BackendResponse, error) {
		return &model.BackendResponse{Success: true, TokensUsed: 12}, nil
	}
	raw := envelopeJSON(t, map[string]any{"instruction": instruction("Rename Crate", 100)})
	out, err := e.uc.Dispatch(context.Background(), &command.DispatchInput{WorkspaceID: "ws-pc", Envelope: raw})
	require.NoError(t, err)
	assert.Equal(t, int64(17), out.Metadata.CreditsUsed)
	assert.Equal(t, int64(83), e.balance(t))
	assert.Empty(t, out.Metadata.PatchID, "no patch without a backend patch")
}

func TestDispatchBackendFailureIsNotCharged(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100, model.Plan{})
	e.backend.OnCommand = func(ctx context.Context, n int, req *model.BackendRequest) (*model.BackendResponse, error) {
		return &model.BackendResponse{Success: false, PatchID: "p-bad", Message: "entity not found"}, nil
	}
	raw := envelopeJSON(t, map[string]any{"instruction": "delete Crate"})
	out, err := e.uc.Dispatch(ctx, &command.DispatchInput{WorkspaceID: "ws-pc", Envelope: raw})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "entity not found", out.Message)
	assert.Zero(t, out.Metadata.CreditsUsed)
	assert.Equal(t, int64(100), out.Metadata.CreditsRemaining)
	assert.Equal(t, int64(100), e.balance(t))

	p, err := e.patches.FindByPatchID(ctx, "ws-pc", "p-bad")
	require.NoError(t, err)
	assert.False(t, p.Success)
	assert.JSONEq(t, string(raw), string(p.Envelope))
}

func TestDispatchBackendError(t *testing.T) {
	e := newEnv(t, 100, model.Plan{})
	e.backend.OnCommand = func(ctx context.Context, n int, req *model.BackendRequest) (*model.BackendResponse, error) {
		return nil, model.NewError(model.KindBackendError, "backend answered 500").WithDetail("status_code", 500)
	}
	raw := envelopeJSON(t, map[string]any{"instruction": "add a cube"})
	_, err := e.uc.Dispatch(context.Background(), &command.DispatchInput{WorkspaceID: "ws-pc", Envelope: raw})
	assert.True(t, errors.Is(err, model.ErrBackend))
	assert.Equal(t, 1, e.backend.Commands())
	assert.Equal(t, int64(100), e.balance(t))
	assert.Equal(t, 0, e.patchCount(t, "ws-pc"))
}

func TestDispatchDebitFailureKeepsPatch(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100, model.Plan{})
	e.backend.OnCommand = func(ctx context.Context, n int, req *model.BackendRequest) (*model.BackendResponse, error) {
		return &model.BackendResponse{Success: true, PatchID: "p-big", Patch: json.RawMessage(`{}`), TokensUsed: 500}, nil
	}
	raw := envelopeJSON(t, map[string]any{"instruction": "build the whole level"})
	out, err := e.uc.Dispatch(ctx, &command.DispatchInput{WorkspaceID: "ws-pc", Envelope: raw})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInsufficientCredits))
	var me *model.Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, true, me.Details["applied"])
	assert.Equal(t, "p-big", me.Details["patch_id"])

	require.NotNil(t, out)
	assert.True(t, out.Success)
	assert.Zero(t, out.Metadata.CreditsUsed)
	assert.Equal(t, int64(100), e.balance(t))

	p, err := e.patches.FindByPatchID(ctx, "ws-pc", "p-big")
	require.NoError(t, err)
	assert.True(t, p.Success)
	assert.Zero(t, p.CreditsCharged)
}

func TestDispatchSwallowsRecordFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100, model.Plan{})
	e.backend.OnCommand = func(ctx context.Context, n int, req *model.BackendRequest) (*model.BackendResponse, error) {
		return &model.BackendResponse{Success: true, PatchID: "p-dup", Patch: json.RawMessage(`{}`)}, nil
	}
	raw := envelopeJSON(t, map[string]any{"instruction": "add a cube"})
	_, err := e.uc.Dispatch(ctx, &command.DispatchInput{WorkspaceID: "ws-pc", Envelope: raw})
	require.NoError(t, err)

	out, err := e.uc.Dispatch(ctx, &command.DispatchInput{WorkspaceID: "ws-pc", Envelope: raw})
	require.NoError(t, err, "a duplicate patch id must not fail the command")
	assert.True(t, out.Success)
	assert.Empty(t, out.Metadata.PatchID)
	assert.Equal(t, int64(70), e.balance(t))
}

func TestDispatchForwardsContext(t *testing.T) {
	e := newEnv(t, 100, model.Plan{})
	raw := envelopeJSON(t, map[string]any{
		"instruction": "add a cube",
		"system":      "be brief",
		"context":     map[string]any{"scene": "main", "camera": "a"},
	})
	_, err := e.uc.Dispatch(context.Background(), &command.DispatchInput{
		WorkspaceID: "ws-pc",
		Envelope:    raw,
		Context:     map[string]any{"camera": "b"},
		Messages:    []model.BackendMessage{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	req := e.backend.LastCommand()
	require.NotNil(t, req)
	assert.Equal(t, "be brief", req.System)
	assert.Equal(t, map[string]any{"scene": "main", "camera": "b"}, req.Context)
	assert.Len(t, req.Messages, 1)
	assert.Equal(t, "add a cube", req.Command.Instruction)
}

func TestDispatchConversationFailureIgnored(t *testing.T) {
	e := newEnv(t, 100, model.Plan{})
	e.conv.err = errors.New("history store down")
	raw := envelopeJSON(t, map[string]any{"instruction": "add a cube"})
	out, err := e.uc.Dispatch(context.Background(), &command.DispatchInput{WorkspaceID: "ws-pc", Envelope: raw, ConversationID: "c"})
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("no agent", func(t *testing.T) {
		e := newEnv(t, 100, model.Plan{})
		_, err := e.uc.Ask(ctx, &command.AskInput{WorkspaceID: "ws-pc", Prompt: "hello"})
		assert.ErrorIs(t, err, command.ErrAgentUnavailable)
	})

	t.Run("text answer", func(t *testing.T) {
		e := newEnv(t, 100, model.Plan{})
		e.uc.Agent = &agent{reply: &model.AgentReply{Text: "Crate is at the origin."}}
		out, err := e.uc.Ask(ctx, &command.AskInput{WorkspaceID: "ws-pc", Prompt: "where is Crate?", ConversationID: "c"})
		require.NoError(t, err)
		assert.Equal(t, "Crate is at the origin.", out.Text)
		assert.Nil(t, out.Dispatch)
		assert.Equal(t, 0, e.backend.Commands())
		assert.Len(t, e.conv.msgs, 2)
	})

	t.Run("envelope answer is dispatched", func(t *testing.T) {
		e := newEnv(t, 100, model.Plan{})
		e.backend.OnCommand = patchReply
		e.uc.Agent = &agent{reply: &model.AgentReply{Envelope: &model.CommandEnvelope{
			Actions: []model.Action{{Type: "create_entity", Name: "Crate"}},
		}}}
		out, err := e.uc.Ask(ctx, &command.AskInput{WorkspaceID: "ws-pc", Prompt: "add a crate"})
		require.NoError(t, err)
		require.NotNil(t, out.Dispatch)
		assert.True(t, out.Dispatch.Success)
		assert.Equal(t, "add a crate", e.backend.LastCommand().Command.Instruction)
		assert.Less(t, e.balance(t), int64(100))
	})

	t.Run("agent error", func(t *testing.T) {
		e := newEnv(t, 100, model.Plan{})
		e.uc.Agent = &agent{err: errors.New("model overloaded")}
		_, err := e.uc.Ask(ctx, &command.AskInput{WorkspaceID: "ws-pc", Prompt: "hi"})
		assert.ErrorContains(t, err, "model overloaded")
	})
}
