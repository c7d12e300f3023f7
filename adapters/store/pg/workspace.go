package pg

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
)

// WorkspaceRepository is a pgx-backed implementation of domain.WorkspaceRepository.
type WorkspaceRepository struct {
	pool *pgxpool.Pool
}

func NewWorkspaceRepository(pool *pgxpool.Pool) *WorkspaceRepository {
	return &WorkspaceRepository{pool: pool}
}

const workspaceColumns = `id, company_id, name, engine_type, status, template_id, project_dir,
	session_port, session_pid, preview_url, created_at, updated_at`

func scanWorkspace(row pgx.Row) (*model.Workspace, error) {
	var (
		w              model.Workspace
		engine, status string
	)
	err := row.Scan(&w.ID, &w.CompanyID, &w.Name, &engine, &status, &w.TemplateID, &w.ProjectDir,
		&w.SessionPort, &w.SessionPID, &w.PreviewURL, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.EngineType = model.EngineType(engine)
	w.Status = model.WorkspaceStatus(status)
	return &w, nil
}

func (r *WorkspaceRepository) Create(ctx context.Context, w *model.Workspace) error {
	if w.ID == "" {
		w.ID = "ws-" + uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO workspaces (`+workspaceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		w.ID, w.CompanyID, w.Name, string(w.EngineType), string(w.Status), w.TemplateID, w.ProjectDir,
		w.SessionPort, w.SessionPID, w.PreviewURL, w.CreatedAt, w.UpdatedAt)
	if isUniqueViolation(err) {
		return model.ErrWorkspaceInvalid
	}
	return err
}

func (r *WorkspaceRepository) Get(ctx context.Context, id string) (*model.Workspace, error) {
	w, err := scanWorkspace(r.pool.QueryRow(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrWorkspaceNotFound
	}
	return w, err
}

func (r *WorkspaceRepository) List(ctx context.Context) ([]*model.Workspace, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+workspaceColumns+` FROM workspaces ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *WorkspaceRepository) Update(ctx context.Context, w *model.Workspace) error {
	tag, err := r.pool.Exec(ctx, `UPDATE workspaces SET name = $3, status = $4, template_id = $5, project_dir = $6,
		session_port = $7, session_pid = $8, preview_url = $9, updated_at = $10
		WHERE id = $1 AND engine_type = $2`,
		w.ID, string(w.EngineType), w.Name, string(w.Status), w.TemplateID, w.ProjectDir,
		w.SessionPort, w.SessionPID, w.PreviewURL, w.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, w.ID); err != nil {
			return err
		}
		return model.ErrWorkspaceInvalid
	}
	return nil
}

func (r *WorkspaceRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workspaces WHERE id = $1 AND session_port = 0 AND session_pid = 0`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return model.ErrWorkspaceSessionBound
	}
	return nil
}

func (r *WorkspaceRepository) SetBinding(ctx context.Context, id string, b model.SessionBinding) error {
	tag, err := r.pool.Exec(ctx, `UPDATE workspaces SET session_port = $2, session_pid = $3, preview_url = $4, updated_at = $5
		WHERE id = $1`, id, b.Port, b.PID, b.PreviewURL, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrWorkspaceNotFound
	}
	return nil
}

func (r *WorkspaceRepository) SetStatus(ctx context.Context, id string, from, to model.WorkspaceStatus) error {
	if !model.CanTransition(from, to) {
		return model.ErrInvalidTransition
	}
	tag, err := r.pool.Exec(ctx, `UPDATE workspaces SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return model.ErrInvalidTransition
	}
	return nil
}

var _ domain.WorkspaceRepository = (*WorkspaceRepository)(nil)
