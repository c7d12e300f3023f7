package ledger

import (
	"context"
	"fmt"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/logging"
)

// CanAfford is an advisory read of the balance. A true result does not
// reserve anything: only Debit decides.
func (u *UseCase) CanAfford(ctx context.Context, companyID string, cost int64) (bool, error) {
	bal, err := u.Repos.Credit.Balance(ctx, companyID)
	if err != nil {
		return false, err
	}
	return bal >= cost, nil
}

// Admit is CanAfford returning an InsufficientCredits error with the
// required and available amounts when the balance is short.
func (u *UseCase) Admit(ctx context.Context, companyID string, cost int64) (int64, error) {
	bal, err := u.Repos.Credit.Balance(ctx, companyID)
	if err != nil {
		return 0, err
	}
	if bal < cost {
		return bal, model.NewError(model.KindInsufficientCredits, "command needs %d credits, %d available", cost, bal).
			WithDetail("required", cost).
			WithDetail("available", bal)
	}
	return bal, nil
}

// Debit removes amount from the company balance in a single conditional
// update and records the transaction. It fails with InsufficientCredits when
// the balance is short at the time of the update, whatever an earlier
// CanAfford said.
func (u *UseCase) Debit(ctx context.Context, companyID string, amount int64, reason string, meta model.TransactionMetadata) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	tx := &model.CreditTransaction{CompanyID: companyID, Reason: reason, Metadata: meta}
	if err := u.Repos.Credit.Debit(ctx, companyID, amount, tx); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info(ctx, "credits debited",
		"company", companyID, "amount", amount, "balance", tx.BalanceAfter, "reason", reason)
	return tx, nil
}

// GrantInput carries a credit grant.
type GrantInput struct {
	CompanyID string `json:"company_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason,omitempty"`
}

// GrantOutput wraps the recorded transaction.
type GrantOutput struct {
	Transaction *model.CreditTransaction `json:"transaction"`
}

// Grant adds credits to a company.
func (u *UseCase) Grant(ctx context.Context, in *GrantInput) (*GrantOutput, error) {
	if in == nil || in.CompanyID == "" || in.Amount <= 0 {
		return nil, model.ErrCompanyInvalid
	}
	reason := in.Reason
	if reason == "" {
		reason = model.ReasonGrant
	}
	tx := &model.CreditTransaction{CompanyID: in.CompanyID, Reason: reason}
	if err := u.Repos.Credit.Credit(ctx, in.CompanyID, in.Amount, tx); err != nil {
		return nil, err
	}
	return &GrantOutput{Transaction: tx}, nil
}
