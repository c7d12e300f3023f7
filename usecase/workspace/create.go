package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/naming"
)

// CreateInput contains data to create a workspace.
type CreateInput struct {
	// ID is optional; the store assigns one when empty.
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	CompanyID  string `json:"company_id"`
	EngineType string `json:"engine_type"`
	// Status defaults to ready for a workspace with an existing project.
	Status     string `json:"status,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	ProjectDir string `json:"project_dir,omitempty"`
}

// CreateOutput wraps the created workspace.
type CreateOutput struct {
	Workspace *model.Workspace `json:"workspace"`
}

// Create persists a new workspace for an existing company.
func (u *UseCase) Create(ctx context.Context, in *CreateInput) (*CreateOutput, error) {
	if in == nil || in.Name == "" || in.CompanyID == "" {
		return nil, model.ErrWorkspaceInvalid
	}
	if err := naming.ValidateWorkspaceName(in.Name); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrWorkspaceInvalid, err)
	}
	engine, err := model.ParseEngineType(in.EngineType)
	if err != nil {
		return nil, err
	}
	status := model.StatusReady
	if in.Status != "" {
		status = model.WorkspaceStatus(in.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("%w: status %q", model.ErrWorkspaceInvalid, in.Status)
		}
	}
	if _, err := u.Repos.Company.Get(ctx, in.CompanyID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	w := &model.Workspace{
		ID:         in.ID,
		CompanyID:  in.CompanyID,
		Name:       in.Name,
		EngineType: engine,
		Status:     status,
		TemplateID: in.TemplateID,
		ProjectDir: in.ProjectDir,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := u.Repos.Workspace.Create(ctx, w); err != nil {
		return nil, err
	}
	return &CreateOutput{Workspace: w}, nil
}
