package ledger

import (
	"context"

	"github.com/kompox/patchbay/domain/model"
)

// Balance returns the current balance of a company.
func (u *UseCase) Balance(ctx context.Context, companyID string) (int64, error) {
	return u.Repos.Credit.Balance(ctx, companyID)
}

// TransactionsInput selects ledger entries.
type TransactionsInput struct {
	CompanyID string `json:"company_id"`
	// Limit caps the number of entries; <= 0 means all.
	Limit int `json:"limit,omitempty"`
}

// TransactionsOutput lists ledger entries, newest first.
type TransactionsOutput struct {
	Transactions []*model.CreditTransaction `json:"transactions"`
}

// Transactions lists a company's ledger.
func (u *UseCase) Transactions(ctx context.Context, in *TransactionsInput) (*TransactionsOutput, error) {
	if in == nil || in.CompanyID == "" {
		return nil, model.ErrCompanyInvalid
	}
	txs, err := u.Repos.Credit.Transactions(ctx, in.CompanyID, in.Limit)
	if err != nil {
		return nil, err
	}
	return &TransactionsOutput{Transactions: txs}, nil
}
