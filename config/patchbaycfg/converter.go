package patchbaycfg

import (
	"fmt"
	"time"

	"github.com/kompox/patchbay/domain/model"
)

// ToModel converts a company spec to a domain company.
func (c CompanySpec) ToModel(now time.Time) (*model.Company, error) {
	if c.Balance < 0 {
		return nil, fmt.Errorf("company %q: balance must not be negative", c.Name)
	}
	plan := model.Plan{Features: append([]string(nil), c.Features...)}
	for _, e := range c.AllowedEngines {
		et, err := model.ParseEngineType(e)
		if err != nil {
			return nil, fmt.Errorf("company %q: %w", c.Name, err)
		}
		plan.AllowedEngines = append(plan.AllowedEngines, et)
	}
	return &model.Company{
		ID:        c.ID,
		Name:      c.Name,
		Balance:   c.Balance,
		Plan:      plan,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ToModel converts a workspace spec to a domain workspace. An empty status
// becomes ready, which is what seeded workspaces are used for.
func (w WorkspaceSpec) ToModel(now time.Time) (*model.Workspace, error) {
	et, err := model.ParseEngineType(w.Engine)
	if err != nil {
		return nil, fmt.Errorf("workspace %q: %w", w.Name, err)
	}
	status := model.StatusReady
	if w.Status != "" {
		status = model.WorkspaceStatus(w.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("workspace %q: invalid status %q", w.Name, w.Status)
		}
	}
	return &model.Workspace{
		ID:         w.ID,
		CompanyID:  w.CompanyID,
		Name:       w.Name,
		EngineType: et,
		Status:     status,
		TemplateID: w.TemplateID,
		ProjectDir: w.ProjectDir,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ToModels converts the whole seed in dependency order.
func (s *Seed) ToModels(now time.Time) ([]*model.Company, []*model.Workspace, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	companies := make([]*model.Company, 0, len(s.Companies))
	for _, c := range s.Companies {
		m, err := c.ToModel(now)
		if err != nil {
			return nil, nil, err
		}
		companies = append(companies, m)
	}
	workspaces := make([]*model.Workspace, 0, len(s.Workspaces))
	for _, w := range s.Workspaces {
		m, err := w.ToModel(now)
		if err != nil {
			return nil, nil, err
		}
		workspaces = append(workspaces, m)
	}
	return companies, workspaces, nil
}
