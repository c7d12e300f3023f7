package inmem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kompox/patchbay/adapters/store/storetest"
	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
)

func TestStoreSuite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) *domain.Repositories {
		return NewStore().Repositories()
	})
}

func TestLoadFromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "seed.yml")
	seed := `
companies:
  - id: co-1
    name: Acme
    balance: 100
workspaces:
  - id: ws-1
    name: Runner
    companyId: co-1
    engine: playcanvas
  - id: ws-2
    name: Shooter
    companyId: co-1
    engine: unreal
    status: initializing
`
	if err := os.WriteFile(p, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore()
	ctx := context.Background()
	if err := s.LoadFromFile(ctx, p); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	bal, err := s.CompanyRepo.Balance(ctx, "co-1")
	if err != nil || bal != 100 {
		t.Errorf("Balance() = %d, %v, want 100", bal, err)
	}
	w, err := s.WorkspaceRepo.Get(ctx, "ws-2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if w.EngineType != model.EngineUnreal || w.Status != model.StatusInitializing {
		t.Errorf("Get() = %+v", w)
	}
	list, _ := s.WorkspaceRepo.List(ctx)
	if len(list) != 2 {
		t.Errorf("List() len = %d, want 2", len(list))
	}
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	s.Put(ctx, &model.ExecutionSession{WorkspaceID: "b", Port: 2})
	s.Put(ctx, &model.ExecutionSession{WorkspaceID: "a", Port: 1})

	got, ok := s.Get(ctx, "a")
	if !ok || got.Port != 1 {
		t.Fatalf("Get(a) = %+v, %v", got, ok)
	}
	got.Port = 99
	if again, _ := s.Get(ctx, "a"); again.Port != 1 {
		t.Error("Get must return a copy")
	}
	list := s.List(ctx)
	if len(list) != 2 || list[0].WorkspaceID != "a" {
		t.Errorf("List() = %+v", list)
	}
	s.Delete(ctx, "a")
	if _, ok := s.Get(ctx, "a"); ok {
		t.Error("Delete did not remove the session")
	}
}
