package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompox/patchbay/adapters/store/inmem"
	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/keylock"
)

type stopper struct {
	stopped []string
}

func (s *stopper) Stop(ctx context.Context, workspaceID string) error {
	s.stopped = append(s.stopped, workspaceID)
	return nil
}

func newUseCase(t *testing.T) *UseCase {
	t.Helper()
	st := inmem.NewStore()
	require.NoError(t, st.CompanyRepo.Create(context.Background(), &model.Company{ID: "co-1", Name: "Acme"}))
	return &UseCase{
		Repos:          &Repos{Workspace: st.WorkspaceRepo, Company: st.CompanyRepo},
		WorkspacesRoot: t.TempDir(),
	}
}

func TestCreateValidation(t *testing.T) {
	uc := newUseCase(t)
	tests := []struct {
		name string
		in   *CreateInput
		want error
	}{
		{"nil", nil, model.ErrWorkspaceInvalid},
		{"no name", &CreateInput{CompanyID: "co-1", EngineType: "godot"}, model.ErrWorkspaceInvalid},
		{"no company", &CreateInput{Name: "w", EngineType: "godot"}, model.ErrWorkspaceInvalid},
		{"bad name", &CreateInput{Name: "../etc", CompanyID: "co-1", EngineType: "godot"}, model.ErrWorkspaceInvalid},
		{"unknown engine", &CreateInput{Name: "w", CompanyID: "co-1", EngineType: "unity"}, model.ErrUnsupportedEngine},
		{"bad status", &CreateInput{Name: "w", CompanyID: "co-1", EngineType: "godot", Status: "paused"}, model.ErrWorkspaceInvalid},
		{"missing company", &CreateInput{Name: "w", CompanyID: "co-9", EngineType: "godot"}, model.ErrCompanyNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Create(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	uc := newUseCase(t)

	out, err := uc.Create(ctx, &CreateInput{Name: "Level 1", CompanyID: "co-1", EngineType: "PlayCanvas"})
	require.NoError(t, err)
	w := out.Workspace
	assert.True(t, strings.HasPrefix(w.ID, "ws-"))
	assert.Equal(t, model.EnginePlayCanvas, w.EngineType)
	assert.Equal(t, model.StatusReady, w.Status)

	_, err = uc.Create(ctx, &CreateInput{Name: "Arena", CompanyID: "co-1", EngineType: "godot"})
	require.NoError(t, err)

	got, err := uc.Get(ctx, &GetInput{WorkspaceID: w.ID})
	require.NoError(t, err)
	assert.Equal(t, "Level 1", got.Workspace.Name)

	all, err := uc.List(ctx, &ListInput{})
	require.NoError(t, err)
	assert.Len(t, all.Workspaces, 2)
	godot, err := uc.List(ctx, &ListInput{EngineType: model.EngineGodot})
	require.NoError(t, err)
	require.Len(t, godot.Workspaces, 1)
	assert.Equal(t, "Arena", godot.Workspaces[0].Name)

	name := "Level One"
	up, err := uc.Update(ctx, &UpdateInput{WorkspaceID: w.ID, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Level One", up.Workspace.Name)

	_, err = uc.Delete(ctx, &DeleteInput{WorkspaceID: w.ID})
	require.NoError(t, err)
	_, err = uc.Get(ctx, &GetInput{WorkspaceID: w.ID})
	assert.ErrorIs(t, err, model.ErrWorkspaceNotFound)

	_, err = uc.Delete(ctx, &DeleteInput{})
	assert.NoError(t, err, "empty id is a no-op")
}

func TestDeleteBoundWorkspace(t *testing.T) {
	ctx := context.Background()
	uc := newUseCase(t)
	out, err := uc.Create(ctx, &CreateInput{Name: "w", CompanyID: "co-1", EngineType: "godot"})
	require.NoError(t, err)
	require.NoError(t, uc.Repos.Workspace.SetBinding(ctx, out.Workspace.ID, model.SessionBinding{Port: 17100, PID: 42}))

	_, err = uc.Delete(ctx, &DeleteInput{WorkspaceID: out.Workspace.ID})
	assert.ErrorIs(t, err, model.ErrWorkspaceSessionBound)

	dir := "/elsewhere"
	_, err = uc.Update(ctx, &UpdateInput{WorkspaceID: out.Workspace.ID, ProjectDir: &dir})
	assert.ErrorIs(t, err, model.ErrWorkspaceSessionBound)

	s := &stopper{}
	uc.Sessions = s
	require.NoError(t, uc.Repos.Workspace.SetBinding(ctx, out.Workspace.ID, model.SessionBinding{}))
	_, err = uc.Delete(ctx, &DeleteInput{WorkspaceID: out.Workspace.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{out.Workspace.ID}, s.stopped)
}

func TestTransition(t *testing.T) {
	ctx := context.Background()
	uc := newUseCase(t)
	out, err := uc.Create(ctx, &CreateInput{Name: "w", CompanyID: "co-1", EngineType: "unreal", Status: "initializing"})
	require.NoError(t, err)
	id := out.Workspace.ID

	steps := []struct {
		to      string
		wantErr bool
	}{
		{"published", true},
		{"ready", false},
		{"building", false},
		{"published", false},
		{"initializing", true},
		{"error", false},
		{"initializing", false},
		{"bogus", true},
	}
	for _, s := range steps {
		res, err := uc.Transition(ctx, &TransitionInput{WorkspaceID: id, To: s.to})
		if (err != nil) != s.wantErr {
			t.Fatalf("Transition(%s) error = %v, wantErr %v", s.to, err, s.wantErr)
		}
		if err != nil {
			assert.ErrorIs(t, err, model.ErrInvalidTransition)
			continue
		}
		assert.Equal(t, model.WorkspaceStatus(s.to), res.Workspace.Status)
	}
}

func TestTransitionWaitsForWorkspaceLock(t *testing.T) {
	ctx := context.Background()
	uc := newUseCase(t)
	uc.Locks = keylock.New()
	out, err := uc.Create(ctx, &CreateInput{Name: "w", CompanyID: "co-1", EngineType: "godot", Status: "ready"})
	require.NoError(t, err)
	id := out.Workspace.ID

	unlock, err := uc.Locks.Lock(ctx, id)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		_, err := uc.Transition(ctx, &TransitionInput{WorkspaceID: id, To: "building"})
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("Transition returned while the workspace was locked: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	got, err := uc.Repos.Workspace.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, got.Status)

	unlock()
	require.NoError(t, <-done)
	got, err = uc.Repos.Workspace.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBuilding, got.Status)
}

func TestCreateFromTemplate(t *testing.T) {
	ctx := context.Background()
	uc := newUseCase(t)

	out, err := uc.CreateFromTemplate(ctx, &CreateFromTemplateInput{Name: "My Platformer", CompanyID: "co-1", EngineType: "godot", TemplateID: "platformer-2d"})
	require.NoError(t, err)
	w := out.Workspace
	assert.Equal(t, model.StatusInitializing, w.Status)
	assert.Equal(t, "platformer-2d", w.TemplateID)
	assert.Equal(t, uc.WorkspacesRoot, filepath.Dir(w.ProjectDir))
	assert.True(t, strings.HasPrefix(filepath.Base(w.ProjectDir), "godot-my-platformer-"))
	fi, err := os.Stat(w.ProjectDir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	_, err = uc.CreateFromTemplate(ctx, &CreateFromTemplateInput{Name: "x", CompanyID: "co-9", EngineType: "godot", TemplateID: "t"})
	assert.ErrorIs(t, err, model.ErrCompanyNotFound)
	entries, err := os.ReadDir(uc.WorkspacesRoot)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed creation removes its directory")

	_, err = uc.CreateFromTemplate(ctx, &CreateFromTemplateInput{Name: "x", CompanyID: "co-1", EngineType: "godot"})
	assert.ErrorIs(t, err, model.ErrWorkspaceInvalid)
}
