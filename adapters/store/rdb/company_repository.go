package rdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
	"gorm.io/gorm"
)

// CompanyRepository is a GORM-backed implementation of domain.CompanyRepository.
type CompanyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

func companyToRecord(c *model.Company) (*CompanyRecord, error) {
	plan, err := json.Marshal(c.Plan)
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return &CompanyRecord{
		ID:        c.ID,
		Name:      c.Name,
		Balance:   c.Balance,
		Plan:      string(plan),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}, nil
}

func companyToModel(r *CompanyRecord) (*model.Company, error) {
	c := &model.Company{
		ID:        r.ID,
		Name:      r.Name,
		Balance:   r.Balance,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Plan != "" {
		if err := json.Unmarshal([]byte(r.Plan), &c.Plan); err != nil {
			return nil, fmt.Errorf("decode plan of company %s: %w", r.ID, err)
		}
	}
	return c, nil
}

func (r *CompanyRepository) Create(ctx context.Context, c *model.Company) error {
	if c.Balance < 0 {
		return model.ErrCompanyInvalid
	}
	rec, err := companyToRecord(c)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = "co-" + uuid.NewString()
		c.ID = rec.ID
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *CompanyRepository) Get(ctx context.Context, id string) (*model.Company, error) {
	var rec CompanyRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrCompanyNotFound
		}
		return nil, err
	}
	return companyToModel(&rec)
}

func (r *CompanyRepository) List(ctx context.Context) ([]*model.Company, error) {
	var recs []CompanyRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Company, 0, len(recs))
	for i := range recs {
		c, err := companyToModel(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Update changes name and plan only.
func (r *CompanyRepository) Update(ctx context.Context, c *model.Company) error {
	rec, err := companyToRecord(c)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&CompanyRecord{}).Where("id = ?", c.ID).
		Updates(map[string]any{"name": rec.Name, "plan": rec.Plan, "updated_at": rec.UpdatedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrCompanyNotFound
	}
	return nil
}

var _ domain.CompanyRepository = (*CompanyRepository)(nil)
