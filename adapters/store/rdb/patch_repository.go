package rdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
	"gorm.io/gorm"
)

// PatchRepository is a GORM-backed implementation of domain.PatchRepository.
type PatchRepository struct {
	db *gorm.DB
}

func NewPatchRepository(db *gorm.DB) *PatchRepository {
	return &PatchRepository{db: db}
}

func patchToRecord(p *model.Patch) (*PatchRecord, error) {
	timings, err := json.Marshal(p.Timings)
	if err != nil {
		return nil, fmt.Errorf("encode timings: %w", err)
	}
	return &PatchRecord{
		WorkspaceID:    p.WorkspaceID,
		PatchID:        p.PatchID,
		EngineType:     string(p.EngineType),
		Envelope:       p.Envelope,
		ReverseDiff:    p.ReverseDiff,
		TokensUsed:     p.TokensUsed,
		CreditsCharged: p.CreditsCharged,
		Success:        p.Success,
		Timings:        string(timings),
		ETag:           p.ETag,
		UndoneAt:       p.UndoneAt,
		CreatedAt:      p.CreatedAt,
	}, nil
}

func patchToModel(r *PatchRecord) (*model.Patch, error) {
	p := &model.Patch{
		PatchID:        r.PatchID,
		WorkspaceID:    r.WorkspaceID,
		EngineType:     model.EngineType(r.EngineType),
		Envelope:       r.Envelope,
		ReverseDiff:    r.ReverseDiff,
		TokensUsed:     r.TokensUsed,
		CreditsCharged: r.CreditsCharged,
		Success:        r.Success,
		ETag:           r.ETag,
		UndoneAt:       r.UndoneAt,
		CreatedAt:      r.CreatedAt,
	}
	if r.Timings != "" {
		if err := json.Unmarshal([]byte(r.Timings), &p.Timings); err != nil {
			return nil, fmt.Errorf("decode timings of patch %s: %w", r.PatchID, err)
		}
	}
	return p, nil
}

func notFound(workspaceID, patchID string) error {
	return model.NewError(model.KindPatchNotFound, "patch %s not found in workspace %s", patchID, workspaceID)
}

func (r *PatchRepository) Create(ctx context.Context, p *model.Patch) error {
	rec, err := patchToRecord(p)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.ErrPatchExists
		}
		return err
	}
	return nil
}

func (r *PatchRepository) Get(ctx context.Context, workspaceID, patchID string) (*model.Patch, error) {
	var rec PatchRecord
	err := r.db.WithContext(ctx).First(&rec, "workspace_id = ? AND patch_id = ?", workspaceID, patchID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(workspaceID, patchID)
		}
		return nil, err
	}
	return patchToModel(&rec)
}

func (r *PatchRepository) List(ctx context.Context, workspaceID string, limit int) ([]*model.Patch, error) {
	q := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Order("created_at DESC, patch_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []PatchRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Patch, 0, len(recs))
	for i := range recs {
		p, err := patchToModel(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// MarkUndone is conditional on undone_at being NULL so two concurrent undos
// cannot both succeed.
func (r *PatchRepository) MarkUndone(ctx context.Context, workspaceID, patchID string) error {
	res := r.db.WithContext(ctx).Model(&PatchRecord{}).
		Where("workspace_id = ? AND patch_id = ? AND undone_at IS NULL", workspaceID, patchID).
		Update("undone_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, workspaceID, patchID); err != nil {
			return err
		}
		return model.ErrPatchAlreadyUndone
	}
	return nil
}

var _ domain.PatchRepository = (*PatchRepository)(nil)
