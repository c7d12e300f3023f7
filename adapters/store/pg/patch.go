package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
)

// PatchRepository is a pgx-backed implementation of domain.PatchRepository.
type PatchRepository struct {
	pool *pgxpool.Pool
}

func NewPatchRepository(pool *pgxpool.Pool) *PatchRepository {
	return &PatchRepository{pool: pool}
}

const patchColumns = `workspace_id, patch_id, engine_type, envelope, reverse_diff, tokens_used,
	credits_charged, success, timings, etag, undone_at, created_at`

func scanPatch(row pgx.Row) (*model.Patch, error) {
	var (
		p       model.Patch
		engine  string
		timings []byte
	)
	err := row.Scan(&p.WorkspaceID, &p.PatchID, &engine, &p.Envelope, &p.ReverseDiff, &p.TokensUsed,
		&p.CreditsCharged, &p.Success, &timings, &p.ETag, &p.UndoneAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.EngineType = model.EngineType(engine)
	if len(timings) > 0 {
		if err := json.Unmarshal(timings, &p.Timings); err != nil {
			return nil, fmt.Errorf("decode timings of patch %s: %w", p.PatchID, err)
		}
	}
	return &p, nil
}

func (r *PatchRepository) Create(ctx context.Context, p *model.Patch) error {
	timings, err := json.Marshal(p.Timings)
	if err != nil {
		return err
	}
	envelope := p.Envelope
	if len(envelope) == 0 {
		envelope = []byte("null")
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO patches (`+patchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.WorkspaceID, p.PatchID, string(p.EngineType), string(envelope), p.ReverseDiff, p.TokensUsed,
		p.CreditsCharged, p.Success, string(timings), p.ETag, p.UndoneAt, p.CreatedAt)
	if isUniqueViolation(err) {
		return model.ErrPatchExists
	}
	return err
}

func (r *PatchRepository) Get(ctx context.Context, workspaceID, patchID string) (*model.Patch, error) {
	p, err := scanPatch(r.pool.QueryRow(ctx, `SELECT `+patchColumns+` FROM patches
		WHERE workspace_id = $1 AND patch_id = $2`, workspaceID, patchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewError(model.KindPatchNotFound, "patch %s not found in workspace %s", patchID, workspaceID)
	}
	return p, err
}

func (r *PatchRepository) List(ctx context.Context, workspaceID string, limit int) ([]*model.Patch, error) {
	q := `SELECT ` + patchColumns + ` FROM patches WHERE workspace_id = $1 ORDER BY created_at DESC, patch_id DESC`
	args := []any{workspaceID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Patch
	for rows.Next() {
		p, err := scanPatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PatchRepository) MarkUndone(ctx context.Context, workspaceID, patchID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE patches SET undone_at = $3
		WHERE workspace_id = $1 AND patch_id = $2 AND undone_at IS NULL`, workspaceID, patchID, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, workspaceID, patchID); err != nil {
			return err
		}
		return model.ErrPatchAlreadyUndone
	}
	return nil
}

var _ domain.PatchRepository = (*PatchRepository)(nil)
