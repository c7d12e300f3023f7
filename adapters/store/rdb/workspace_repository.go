package rdb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
	"gorm.io/gorm"
)

// WorkspaceRepository is a GORM-backed implementation of domain.WorkspaceRepository.
type WorkspaceRepository struct {
	db *gorm.DB
}

func NewWorkspaceRepository(db *gorm.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

func workspaceToRecord(w *model.Workspace) *WorkspaceRecord {
	return &WorkspaceRecord{
		ID:          w.ID,
		CompanyID:   w.CompanyID,
		Name:        w.Name,
		EngineType:  string(w.EngineType),
		Status:      string(w.Status),
		TemplateID:  w.TemplateID,
		ProjectDir:  w.ProjectDir,
		SessionPort: w.SessionPort,
		SessionPID:  w.SessionPID,
		PreviewURL:  w.PreviewURL,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func workspaceToModel(r *WorkspaceRecord) *model.Workspace {
	return &model.Workspace{
		ID:          r.ID,
		CompanyID:   r.CompanyID,
		Name:        r.Name,
		EngineType:  model.EngineType(r.EngineType),
		Status:      model.WorkspaceStatus(r.Status),
		TemplateID:  r.TemplateID,
		ProjectDir:  r.ProjectDir,
		SessionPort: r.SessionPort,
		SessionPID:  r.SessionPID,
		PreviewURL:  r.PreviewURL,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (r *WorkspaceRepository) Create(ctx context.Context, w *model.Workspace) error {
	rec := workspaceToRecord(w)
	if rec.ID == "" {
		rec.ID = "ws-" + uuid.NewString()
		w.ID = rec.ID
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *WorkspaceRepository) Get(ctx context.Context, id string) (*model.Workspace, error) {
	var rec WorkspaceRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrWorkspaceNotFound
		}
		return nil, err
	}
	return workspaceToModel(&rec), nil
}

func (r *WorkspaceRepository) List(ctx context.Context) ([]*model.Workspace, error) {
	var recs []WorkspaceRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Workspace, 0, len(recs))
	for i := range recs {
		out = append(out, workspaceToModel(&recs[i]))
	}
	return out, nil
}

// Update writes every mutable column. The engine type is part of the WHERE
// clause, so an attempt to change it updates nothing.
func (r *WorkspaceRepository) Update(ctx context.Context, w *model.Workspace) error {
	res := r.db.WithContext(ctx).Model(&WorkspaceRecord{}).
		Where("id = ? AND engine_type = ?", w.ID, string(w.EngineType)).
		Updates(map[string]any{
			"name":         w.Name,
			"status":       string(w.Status),
			"template_id":  w.TemplateID,
			"project_dir":  w.ProjectDir,
			"session_port": w.SessionPort,
			"session_pid":  w.SessionPID,
			"preview_url":  w.PreviewURL,
			"updated_at":   w.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, w.ID); err != nil {
			return err
		}
		return model.ErrWorkspaceInvalid
	}
	return nil
}

func (r *WorkspaceRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND session_port = 0 AND session_pid = 0", id).
		Delete(&WorkspaceRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return model.ErrWorkspaceSessionBound
	}
	return nil
}

func (r *WorkspaceRepository) SetBinding(ctx context.Context, id string, b model.SessionBinding) error {
	res := r.db.WithContext(ctx).Model(&WorkspaceRecord{}).Where("id = ?", id).
		Updates(map[string]any{
			"session_port": b.Port,
			"session_pid":  b.PID,
			"preview_url":  b.PreviewURL,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrWorkspaceNotFound
	}
	return nil
}

func (r *WorkspaceRepository) SetStatus(ctx context.Context, id string, from, to model.WorkspaceStatus) error {
	if !model.CanTransition(from, to) {
		return model.ErrInvalidTransition
	}
	res := r.db.WithContext(ctx).Model(&WorkspaceRecord{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return model.ErrInvalidTransition
	}
	return nil
}

// Ensure interface satisfaction.
var _ domain.WorkspaceRepository = (*WorkspaceRepository)(nil)
