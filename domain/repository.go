package domain

import (
	"context"

	"github.com/kompox/patchbay/domain/model"
)

// WorkspaceRepository stores and retrieves Workspace aggregates.
type WorkspaceRepository interface {
	Create(ctx context.Context, w *model.Workspace) error
	Get(ctx context.Context, id string) (*model.Workspace, error)
	List(ctx context.Context) ([]*model.Workspace, error)
	Update(ctx context.Context, w *model.Workspace) error
	// Delete fails with model.ErrWorkspaceSessionBound while a binding is recorded.
	Delete(ctx context.Context, id string) error
	// SetBinding overwrites the session binding fields only.
	SetBinding(ctx context.Context, id string, b model.SessionBinding) error
	// SetStatus moves the workspace from one status to another. It fails with
	// model.ErrInvalidTransition when the stored status is not from.
	SetStatus(ctx context.Context, id string, from, to model.WorkspaceStatus) error
}

// CompanyRepository stores and retrieves Company aggregates.
type CompanyRepository interface {
	Create(ctx context.Context, c *model.Company) error
	Get(ctx context.Context, id string) (*model.Company, error)
	List(ctx context.Context) ([]*model.Company, error)
	// Update changes name and plan. The balance is owned by CreditRepository.
	Update(ctx context.Context, c *model.Company) error
}

// CreditRepository owns company balances and the transaction log.
type CreditRepository interface {
	Balance(ctx context.Context, companyID string) (int64, error)
	// Debit atomically decrements the balance by amount when balance >= amount
	// and appends tx. It fails with model.ErrInsufficientCredits otherwise.
	// tx.ID, tx.Amount, tx.BalanceAfter and tx.CreatedAt are filled in.
	Debit(ctx context.Context, companyID string, amount int64, tx *model.CreditTransaction) error
	// Credit increments the balance and appends tx.
	Credit(ctx context.Context, companyID string, amount int64, tx *model.CreditTransaction) error
	// CreateFunded creates c with its opening balance c.Balance and appends
	// tx for that amount, both or neither.
	CreateFunded(ctx context.Context, c *model.Company, tx *model.CreditTransaction) error
	// Transactions lists the newest entries first. limit <= 0 means all.
	Transactions(ctx context.Context, companyID string, limit int) ([]*model.CreditTransaction, error)
}

// PatchRepository persists patch records keyed by (workspace, patch id).
type PatchRepository interface {
	// Create fails with model.ErrPatchExists on a duplicate key.
	Create(ctx context.Context, p *model.Patch) error
	// Get fails with model.ErrPatchNotFound when absent.
	Get(ctx context.Context, workspaceID, patchID string) (*model.Patch, error)
	// List returns the newest patches first. limit <= 0 means all.
	List(ctx context.Context, workspaceID string, limit int) ([]*model.Patch, error)
	// MarkUndone sets UndoneAt once. It fails with model.ErrPatchAlreadyUndone
	// when it is already set.
	MarkUndone(ctx context.Context, workspaceID, patchID string) error
}

// SessionStore holds live execution sessions by workspace id.
type SessionStore interface {
	Get(ctx context.Context, workspaceID string) (*model.ExecutionSession, bool)
	Put(ctx context.Context, s *model.ExecutionSession)
	Delete(ctx context.Context, workspaceID string)
	List(ctx context.Context) []*model.ExecutionSession
}

// Repositories groups the persistent repositories of one store.
type Repositories struct {
	Workspace WorkspaceRepository
	Company   CompanyRepository
	Credit    CreditRepository
	Patch     PatchRepository
}
