package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/logging"
	"github.com/kompox/patchbay/internal/naming"
)

// CreateFromTemplateInput contains data to create a workspace from a template.
type CreateFromTemplateInput struct {
	Name       string `json:"name"`
	CompanyID  string `json:"company_id"`
	EngineType string `json:"engine_type"`
	TemplateID string `json:"template_id"`
}

// CreateFromTemplate creates the project directory of a new workspace under
// WorkspacesRoot and records the workspace as initializing. Filling the
// directory from the template is left to the engine tooling, which moves
// the workspace to ready with Transition.
func (u *UseCase) CreateFromTemplate(ctx context.Context, in *CreateFromTemplateInput) (*CreateOutput, error) {
	if in == nil || in.TemplateID == "" {
		return nil, model.ErrWorkspaceInvalid
	}
	if u.WorkspacesRoot == "" {
		return nil, fmt.Errorf("workspaces root is not configured")
	}
	engine, err := model.ParseEngineType(in.EngineType)
	if err != nil {
		return nil, err
	}
	id := "ws-" + uuid.NewString()
	dir := filepath.Join(u.WorkspacesRoot, naming.ProjectDirName(string(engine), in.CompanyID, id, in.Name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}
	out, err := u.Create(ctx, &CreateInput{
		ID:         id,
		Name:       in.Name,
		CompanyID:  in.CompanyID,
		EngineType: string(engine),
		Status:     string(model.StatusInitializing),
		TemplateID: in.TemplateID,
		ProjectDir: dir,
	})
	if err != nil {
		if rmErr := os.Remove(dir); rmErr != nil {
			logging.FromContext(ctx).Warn(ctx, "remove project dir failed", "dir", dir, "err", rmErr)
		}
		return nil, err
	}
	return out, nil
}
