package workspace

import (
	"context"

	"github.com/kompox/patchbay/domain/model"
)

// ListInput defines optional filters for listing workspaces.
type ListInput struct {
	CompanyID  string           `json:"company_id,omitempty"`
	EngineType model.EngineType `json:"engine_type,omitempty"`
}

// ListOutput wraps listed workspaces.
type ListOutput struct {
	Workspaces []*model.Workspace `json:"workspaces"`
}

// List returns workspaces matching the filters.
func (u *UseCase) List(ctx context.Context, in *ListInput) (*ListOutput, error) {
	items, err := u.Repos.Workspace.List(ctx)
	if err != nil {
		return nil, err
	}
	if in == nil || (in.CompanyID == "" && in.EngineType == "") {
		return &ListOutput{Workspaces: items}, nil
	}
	out := items[:0]
	for _, w := range items {
		if in.CompanyID != "" && w.CompanyID != in.CompanyID {
			continue
		}
		if in.EngineType != "" && w.EngineType != in.EngineType {
			continue
		}
		out = append(out, w)
	}
	return &ListOutput{Workspaces: out}, nil
}
