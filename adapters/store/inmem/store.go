package inmem

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kompox/patchbay/config/patchbaycfg"
	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
)

// Store provides a unified interface for all in-memory repositories.
type Store struct {
	WorkspaceRepo *WorkspaceRepository
	CompanyRepo   *CompanyRepository
	PatchRepo     *PatchRepository
}

// NewStore creates a new in-memory store with all repositories.
func NewStore() *Store {
	return &Store{
		WorkspaceRepo: NewWorkspaceRepository(),
		CompanyRepo:   NewCompanyRepository(),
		PatchRepo:     NewPatchRepository(),
	}
}

// Repositories returns the store as a domain.Repositories set.
func (s *Store) Repositories() *domain.Repositories {
	return &domain.Repositories{
		Workspace: s.WorkspaceRepo,
		Company:   s.CompanyRepo,
		Credit:    s.CompanyRepo,
		Patch:     s.PatchRepo,
	}
}

// LoadSeed stores the seeded companies and workspaces in dependency order.
func (s *Store) LoadSeed(ctx context.Context, seed *patchbaycfg.Seed) error {
	companies, workspaces, err := seed.ToModels(time.Now().UTC())
	if err != nil {
		return err
	}
	for _, c := range companies {
		if err := s.CompanyRepo.Create(ctx, c); err != nil {
			return fmt.Errorf("seed company %s: %w", c.ID, err)
		}
	}
	for _, w := range workspaces {
		if err := s.WorkspaceRepo.Create(ctx, w); err != nil {
			return fmt.Errorf("seed workspace %s: %w", w.ID, err)
		}
	}
	return nil
}

// LoadFromFile loads a seed file into the memory store.
func (s *Store) LoadFromFile(ctx context.Context, path string) error {
	seed, err := patchbaycfg.LoadSeed(path)
	if err != nil {
		return err
	}
	return s.LoadSeed(ctx, seed)
}

func sortByCreated(ws []*model.Workspace) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			return ws[i].ID < ws[j].ID
		}
		return ws[i].CreatedAt.Before(ws[j].CreatedAt)
	})
}
