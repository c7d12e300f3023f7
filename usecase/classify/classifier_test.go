package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompox/patchbay/domain/model"
)

var testVocabs = map[model.EngineType]model.Vocabulary{
	model.EnginePlayCanvas: {
		Keywords:   []string{"playcanvas", "webgl"},
		Signatures: []string{"pc.Application", "pc.Entity", "pc.createScript", "pc.Vec3", "this.entity", "this.app", "app.root", "addComponent("},
	},
	model.EngineUnreal: {
		Keywords:   []string{"unreal", "ue5", "blueprint"},
		Signatures: []string{"BeginPlay", "UCLASS", "UPROPERTY", "AActor", "FVector", "Super::"},
	},
	model.EngineGodot: {
		Keywords:   []string{"godot", "gdscript"},
		Signatures: []string{"extends Node", "func _ready", "get_node(", "@export", "queue_free("},
	},
}

func ws(engine model.EngineType) *model.Workspace {
	return &model.Workspace{ID: "ws-1", EngineType: engine, Status: model.StatusReady}
}

func TestGuard(t *testing.T) {
	c := New(testVocabs, model.EnginePlayCanvas)
	tests := []struct {
		name     string
		engine   model.EngineType
		text     string
		reject   bool
		detected model.EngineType
	}{
		{"unreal tokens in playcanvas", model.EnginePlayCanvas, "BeginPlay Tick UCLASS", true, model.EngineUnreal},
		{"godot tokens in unreal", model.EngineUnreal, "extends Node\nfunc _ready():\n\tqueue_free()", true, model.EngineGodot},
		{"own tokens", model.EnginePlayCanvas, "var e = new pc.Entity(); this.app.root.addChild(e)", false, ""},
		{"generic words", model.EnginePlayCanvas, "add a red cube, make it spin and play a sound when the player jumps", false, ""},
		{"generic words shared by engines", model.EngineGodot, "create an actor node with a script and a component", false, ""},
		{"foreign tokens with own keyword", model.EnginePlayCanvas, "port this BeginPlay logic to playcanvas", false, ""},
		{"word boundary", model.EnginePlayCanvas, "AActorish BeginPlayful", false, ""},
		{"signatures are case sensitive", model.EnginePlayCanvas, "beginplay uclass", false, ""},
		{"punctuated signature", model.EngineGodot, "call Super::Tick(DeltaTime)", true, model.EngineUnreal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp, err := c.Guard(tt.engine, tt.text)
			if (err != nil) != tt.reject {
				t.Fatalf("Guard() error = %v, want reject %v", err, tt.reject)
			}
			assert.True(t, comp.Checked)
			if !tt.reject {
				return
			}
			assert.True(t, errors.Is(err, model.ErrCrossEngineCommandRejected))
			var me *model.Error
			require.True(t, errors.As(err, &me))
			assert.Equal(t, string(tt.detected), me.Details["detected_engine"])
			assert.NotEmpty(t, me.Details["matched_tokens"])
		})
	}
}

func TestClassifyDetectionOrder(t *testing.T) {
	c := New(testVocabs, model.EngineGodot)
	tests := []struct {
		name   string
		req    *Request
		want   model.EngineType
		source Source
	}{
		{"explicit envelope field", &Request{Envelope: &model.CommandEnvelope{Engine: "Unreal", Instruction: "x"}}, model.EngineUnreal, SourceExplicit},
		{"explicit context", &Request{Envelope: &model.CommandEnvelope{Instruction: "x"}, Context: map[string]any{"engine": "playcanvas"}}, model.EnginePlayCanvas, SourceExplicit},
		{"workspace", &Request{Workspace: ws(model.EnginePlayCanvas), Envelope: &model.CommandEnvelope{Instruction: "spin the cube"}}, model.EnginePlayCanvas, SourceWorkspace},
		{"keywords", &Request{Envelope: &model.CommandEnvelope{Instruction: "in my UE5 project add a UPROPERTY"}}, model.EngineUnreal, SourceKeywords},
		{"default", &Request{Envelope: &model.CommandEnvelope{Instruction: "spin the cube"}}, model.EngineGodot, SourceDefault},
		{"keyword tie falls through", &Request{Envelope: &model.CommandEnvelope{Instruction: "godot or unreal?"}}, model.EngineGodot, SourceDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(tt.req)
			require.NoError(t, err)
			if got.Engine != tt.want || got.DetectedBy != tt.source {
				t.Errorf("Classify() = %v/%v, want %v/%v", got.Engine, got.DetectedBy, tt.want, tt.source)
			}
		})
	}
}

func TestClassifyRejections(t *testing.T) {
	c := New(testVocabs, model.EnginePlayCanvas)

	_, err := c.Classify(&Request{Workspace: ws(model.EnginePlayCanvas), Envelope: &model.CommandEnvelope{Instruction: "BeginPlay Tick UCLASS"}})
	assert.True(t, errors.Is(err, model.ErrCrossEngineCommandRejected))

	_, err = c.Classify(&Request{Workspace: ws(model.EnginePlayCanvas), Envelope: &model.CommandEnvelope{Instruction: "x", Engine: "godot"}})
	assert.True(t, errors.Is(err, model.ErrCrossEngineCommandRejected))

	_, err = c.Classify(&Request{Envelope: &model.CommandEnvelope{Instruction: "x", Engine: "unity"}})
	assert.True(t, errors.Is(err, model.ErrUnsupportedEngine))

	res, err := c.Classify(&Request{Workspace: ws(model.EnginePlayCanvas), Envelope: &model.CommandEnvelope{
		Instruction: "move it",
		Actions:     []model.Action{{Type: "create_script", Name: "pc.createScript('spin')"}},
	}})
	require.NoError(t, err)
	assert.Contains(t, res.Compatibility.OwnMatches, "pc.createScript")
}

func TestCustomChain(t *testing.T) {
	c := NewWithDetectors(testVocabs, NewKeywordDetector(testVocabs))
	res, err := c.Detect(&Request{Envelope: &model.CommandEnvelope{Instruction: "write gdscript"}})
	require.NoError(t, err)
	assert.Equal(t, model.EngineGodot, res.Engine)

	_, err = c.Detect(&Request{Envelope: &model.CommandEnvelope{Instruction: "nothing specific"}})
	assert.True(t, errors.Is(err, model.ErrUnsupportedEngine))
}

func TestCapabilities(t *testing.T) {
	c := New(testVocabs, model.EnginePlayCanvas)
	assert.Equal(t, []string{FeatureMultiplayer}, c.Capabilities("add a Matchmaking lobby"))
	assert.Empty(t, c.Capabilities("add a cube"))
	assert.Empty(t, c.Capabilities("lobbyist"))
}

func TestCheckReady(t *testing.T) {
	tests := []struct {
		status model.WorkspaceStatus
		ok     bool
	}{
		{model.StatusReady, true},
		{model.StatusPublished, true},
		{model.StatusInitializing, false},
		{model.StatusBuilding, false},
		{model.StatusError, false},
	}
	for _, tt := range tests {
		err := CheckReady(&model.Workspace{ID: "ws", Status: tt.status})
		if (err == nil) != tt.ok {
			t.Errorf("CheckReady(%s) error = %v, want ok %v", tt.status, err, tt.ok)
		}
		if err != nil && !errors.Is(err, model.ErrWorkspaceNotReady) {
			t.Errorf("CheckReady(%s) error kind = %v", tt.status, model.KindOf(err))
		}
	}
}

func TestCheckPlan(t *testing.T) {
	plan := model.Plan{AllowedEngines: []model.EngineType{model.EngineGodot}, Features: []string{"multiplayer"}}
	assert.NoError(t, CheckPlan(plan, model.EngineGodot, []string{"multiplayer"}))
	assert.True(t, errors.Is(CheckPlan(plan, model.EngineUnreal, nil), model.ErrCapabilityNotAllowed))
	assert.True(t, errors.Is(CheckPlan(model.Plan{}, model.EngineUnreal, []string{"multiplayer"}), model.ErrCapabilityNotAllowed))
	assert.NoError(t, CheckPlan(model.Plan{}, model.EngineUnreal, nil))
}
