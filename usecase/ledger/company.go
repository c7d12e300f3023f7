package ledger

import (
	"context"
	"time"

	"github.com/kompox/patchbay/domain/model"
)

// CreateCompanyInput contains data to create a company.
type CreateCompanyInput struct {
	ID   string     `json:"id,omitempty"`
	Name string     `json:"name"`
	Plan model.Plan `json:"plan"`
	// InitialCredits is recorded as the first ledger entry, written together
	// with the company.
	InitialCredits int64 `json:"initial_credits,omitempty"`
}

// CreateCompanyOutput wraps the created company.
type CreateCompanyOutput struct {
	Company *model.Company `json:"company"`
}

// CreateCompany persists a new company.
func (u *UseCase) CreateCompany(ctx context.Context, in *CreateCompanyInput) (*CreateCompanyOutput, error) {
	if in == nil || in.Name == "" || in.InitialCredits < 0 {
		return nil, model.ErrCompanyInvalid
	}
	for _, e := range in.Plan.AllowedEngines {
		if !e.Valid() {
			return nil, model.ErrCompanyInvalid
		}
	}
	now := time.Now().UTC()
	c := &model.Company{ID: in.ID, Name: in.Name, Plan: in.Plan, CreatedAt: now, UpdatedAt: now}
	if in.InitialCredits == 0 {
		if err := u.Repos.Company.Create(ctx, c); err != nil {
			return nil, err
		}
		return &CreateCompanyOutput{Company: c}, nil
	}
	c.Balance = in.InitialCredits
	tx := &model.CreditTransaction{Reason: "initial"}
	if err := u.Repos.Credit.CreateFunded(ctx, c, tx); err != nil {
		return nil, err
	}
	return &CreateCompanyOutput{Company: c}, nil
}

// GetCompanyInput identifies a company.
type GetCompanyInput struct {
	CompanyID string `json:"company_id"`
}

// GetCompanyOutput wraps a company.
type GetCompanyOutput struct {
	Company *model.Company `json:"company"`
}

// GetCompany returns a company with its current balance.
func (u *UseCase) GetCompany(ctx context.Context, in *GetCompanyInput) (*GetCompanyOutput, error) {
	if in == nil || in.CompanyID == "" {
		return nil, model.ErrCompanyInvalid
	}
	c, err := u.Repos.Company.Get(ctx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	return &GetCompanyOutput{Company: c}, nil
}

// ListCompaniesOutput lists companies.
type ListCompaniesOutput struct {
	Companies []*model.Company `json:"companies"`
}

// ListCompanies returns all companies.
func (u *UseCase) ListCompanies(ctx context.Context) (*ListCompaniesOutput, error) {
	cs, err := u.Repos.Company.List(ctx)
	if err != nil {
		return nil, err
	}
	return &ListCompaniesOutput{Companies: cs}, nil
}

// UpdateCompanyInput specifies company fields that can be changed.
type UpdateCompanyInput struct {
	CompanyID string      `json:"company_id"`
	Name      *string     `json:"name,omitempty"`
	Plan      *model.Plan `json:"plan,omitempty"`
}

// UpdateCompany changes name or plan. Balances move only through the ledger.
func (u *UseCase) UpdateCompany(ctx context.Context, in *UpdateCompanyInput) (*GetCompanyOutput, error) {
	if in == nil || in.CompanyID == "" {
		return nil, model.ErrCompanyInvalid
	}
	c, err := u.Repos.Company.Get(ctx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil && *in.Name != "" {
		c.Name = *in.Name
	}
	if in.Plan != nil {
		c.Plan = *in.Plan
	}
	c.UpdatedAt = time.Now().UTC()
	if err := u.Repos.Company.Update(ctx, c); err != nil {
		return nil, err
	}
	return &GetCompanyOutput{Company: c}, nil
}
