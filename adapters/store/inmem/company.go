package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
	"github.com/oklog/ulid/v2"
)

// CompanyRepository stores companies and their credit ledger. It implements
// both domain.CompanyRepository and domain.CreditRepository so that balance
// changes and transaction appends happen under one lock.
type CompanyRepository struct {
	mu        sync.Mutex
	companies map[string]*model.Company
	txs       map[string][]*model.CreditTransaction
}

func NewCompanyRepository() *CompanyRepository {
	return &CompanyRepository{
		companies: make(map[string]*model.Company),
		txs:       make(map[string][]*model.CreditTransaction),
	}
}

func (r *CompanyRepository) Create(_ context.Context, c *model.Company) error {
	if c.Balance < 0 {
		return model.ErrCompanyInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = "co-" + uuid.NewString()
	}
	if _, exists := r.companies[c.ID]; exists {
		return model.ErrCompanyInvalid
	}
	cp := *c
	r.companies[c.ID] = &cp
	return nil
}

func (r *CompanyRepository) CreateFunded(_ context.Context, c *model.Company, tx *model.CreditTransaction) error {
	if c.Balance < 0 {
		return model.ErrCompanyInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = "co-" + uuid.NewString()
	}
	if _, exists := r.companies[c.ID]; exists {
		return model.ErrCompanyInvalid
	}
	cp := *c
	r.companies[c.ID] = &cp
	r.appendTx(&cp, cp.Balance, tx)
	c.UpdatedAt = cp.UpdatedAt
	return nil
}

func (r *CompanyRepository) Get(_ context.Context, id string) (*model.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, model.ErrCompanyNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CompanyRepository) List(_ context.Context) ([]*model.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Company, 0, len(r.companies))
	for _, c := range r.companies {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *CompanyRepository) Update(_ context.Context, c *model.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.companies[c.ID]
	if !ok {
		return model.ErrCompanyNotFound
	}
	existing.Name = c.Name
	existing.Plan = c.Plan
	existing.UpdatedAt = c.UpdatedAt
	return nil
}

func (r *CompanyRepository) Balance(_ context.Context, companyID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[companyID]
	if !ok {
		return 0, model.ErrCompanyNotFound
	}
	return c.Balance, nil
}

// Debit is the in-memory rendition of "UPDATE ... WHERE balance >= amount":
// the comparison and the decrement happen under the same lock.
func (r *CompanyRepository) Debit(_ context.Context, companyID string, amount int64, tx *model.CreditTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[companyID]
	if !ok {
		return model.ErrCompanyNotFound
	}
	if amount < 0 || c.Balance < amount {
		return model.NewError(model.KindInsufficientCredits, "company %s cannot pay %d credits", companyID, amount).
			WithDetail("required", amount).
			WithDetail("available", c.Balance)
	}
	c.Balance -= amount
	r.appendTx(c, -amount, tx)
	return nil
}

func (r *CompanyRepository) Credit(_ context.Context, companyID string, amount int64, tx *model.CreditTransaction) error {
	if amount < 0 {
		return model.ErrCompanyInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[companyID]
	if !ok {
		return model.ErrCompanyNotFound
	}
	c.Balance += amount
	r.appendTx(c, amount, tx)
	return nil
}

func (r *CompanyRepository) appendTx(c *model.Company, signed int64, tx *model.CreditTransaction) {
	now := time.Now().UTC()
	c.UpdatedAt = now
	if tx.ID == "" {
		tx.ID = ulid.Make().String()
	}
	tx.CompanyID = c.ID
	tx.Amount = signed
	tx.BalanceAfter = c.Balance
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	cp := *tx
	r.txs[c.ID] = append(r.txs[c.ID], &cp)
}

func (r *CompanyRepository) Transactions(_ context.Context, companyID string, limit int) ([]*model.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.companies[companyID]; !ok {
		return nil, model.ErrCompanyNotFound
	}
	log := r.txs[companyID]
	out := make([]*model.CreditTransaction, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *log[i]
		out = append(out, &cp)
	}
	return out, nil
}

var (
	_ domain.CompanyRepository = (*CompanyRepository)(nil)
	_ domain.CreditRepository  = (*CompanyRepository)(nil)
)
