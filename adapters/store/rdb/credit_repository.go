package rdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// CreditRepository implements the ledger on top of the companies and
// credit_transactions tables.
type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) Balance(ctx context.Context, companyID string) (int64, error) {
	var rec CompanyRecord
	err := r.db.WithContext(ctx).Select("balance").First(&rec, "id = ?", companyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, model.ErrCompanyNotFound
	}
	return rec.Balance, err
}

// Debit runs "UPDATE companies SET balance = balance - n WHERE id = ? AND
// balance >= n" and inserts the transaction row in the same DB transaction.
// Zero affected rows means the balance was insufficient at the time of the
// update, whatever an earlier read said.
func (r *CreditRepository) Debit(ctx context.Context, companyID string, amount int64, tx *model.CreditTransaction) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must not be negative: %d", amount)
	}
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		res := db.Model(&CompanyRecord{}).
			Where("id = ? AND balance >= ?", companyID, amount).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance - ?", amount),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var rec CompanyRecord
			if err := db.Select("balance").First(&rec, "id = ?", companyID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return model.ErrCompanyNotFound
				}
				return err
			}
			return model.NewError(model.KindInsufficientCredits, "company %s cannot pay %d credits", companyID, amount).
				WithDetail("required", amount).
				WithDetail("available", rec.Balance)
		}
		return r.appendTx(db, companyID, -amount, tx)
	})
}

func (r *CreditRepository) Credit(ctx context.Context, companyID string, amount int64, tx *model.CreditTransaction) error {
	if amount < 0 {
		return model.ErrCompanyInvalid
	}
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		res := db.Model(&CompanyRecord{}).Where("id = ?", companyID).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance + ?", amount),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrCompanyNotFound
		}
		return r.appendTx(db, companyID, amount, tx)
	})
}

// CreateFunded inserts the company row and its opening transaction in one
// DB transaction.
func (r *CreditRepository) CreateFunded(ctx context.Context, c *model.Company, tx *model.CreditTransaction) error {
	if c.Balance < 0 {
		return model.ErrCompanyInvalid
	}
	rec, err := companyToRecord(c)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = "co-" + uuid.NewString()
	}
	err = r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Create(rec).Error; err != nil {
			return err
		}
		return r.appendTx(db, rec.ID, rec.Balance, tx)
	})
	if err != nil {
		return err
	}
	c.ID = rec.ID
	return nil
}

func (r *CreditRepository) appendTx(db *gorm.DB, companyID string, signed int64, tx *model.CreditTransaction) error {
	var rec CompanyRecord
	if err := db.Select("balance").First(&rec, "id = ?", companyID).Error; err != nil {
		return err
	}
	if tx.ID == "" {
		tx.ID = ulid.Make().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.CompanyID = companyID
	tx.Amount = signed
	tx.BalanceAfter = rec.Balance
	meta, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("encode transaction metadata: %w", err)
	}
	return db.Create(&CreditTransactionRecord{
		ID:           tx.ID,
		CompanyID:    companyID,
		Amount:       signed,
		Reason:       tx.Reason,
		Metadata:     string(meta),
		BalanceAfter: tx.BalanceAfter,
		CreatedAt:    tx.CreatedAt,
	}).Error
}

func (r *CreditRepository) Transactions(ctx context.Context, companyID string, limit int) ([]*model.CreditTransaction, error) {
	if _, err := r.Balance(ctx, companyID); err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).Where("company_id = ?", companyID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []CreditTransactionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*model.CreditTransaction, 0, len(recs))
	for _, rec := range recs {
		tx := &model.CreditTransaction{
			ID:           rec.ID,
			CompanyID:    rec.CompanyID,
			Amount:       rec.Amount,
			Reason:       rec.Reason,
			BalanceAfter: rec.BalanceAfter,
			CreatedAt:    rec.CreatedAt,
		}
		if rec.Metadata != "" {
			if err := json.Unmarshal([]byte(rec.Metadata), &tx.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of transaction %s: %w", rec.ID, err)
			}
		}
		out = append(out, tx)
	}
	return out, nil
}

var _ domain.CreditRepository = (*CreditRepository)(nil)
