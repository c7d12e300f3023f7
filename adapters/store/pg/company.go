package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
	"github.com/oklog/ulid/v2"
)

// CompanyRepository implements companies and the credit ledger.
type CompanyRepository struct {
	pool *pgxpool.Pool
}

func NewCompanyRepository(pool *pgxpool.Pool) *CompanyRepository {
	return &CompanyRepository{pool: pool}
}

const companyColumns = `id, name, balance, plan, created_at, updated_at`

func scanCompany(row pgx.Row) (*model.Company, error) {
	var (
		c    model.Company
		plan []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Balance, &plan, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if len(plan) > 0 {
		if err := json.Unmarshal(plan, &c.Plan); err != nil {
			return nil, fmt.Errorf("decode plan of company %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func (r *CompanyRepository) Create(ctx context.Context, c *model.Company) error {
	if c.Balance < 0 {
		return model.ErrCompanyInvalid
	}
	plan, err := json.Marshal(c.Plan)
	if err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = "co-" + uuid.NewString()
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO companies (`+companyColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.Balance, string(plan), c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return model.ErrCompanyInvalid
	}
	return err
}

func (r *CompanyRepository) Get(ctx context.Context, id string) (*model.Company, error) {
	c, err := scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrCompanyNotFound
	}
	return c, err
}

func (r *CompanyRepository) List(ctx context.Context) ([]*model.Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CompanyRepository) Update(ctx context.Context, c *model.Company) error {
	plan, err := json.Marshal(c.Plan)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE companies SET name = $2, plan = $3, updated_at = $4 WHERE id = $1`,
		c.ID, c.Name, string(plan), c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrCompanyNotFound
	}
	return nil
}

func (r *CompanyRepository) Balance(ctx context.Context, companyID string) (int64, error) {
	var bal int64
	err := r.pool.QueryRow(ctx, `SELECT balance FROM companies WHERE id = $1`, companyID).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, model.ErrCompanyNotFound
	}
	return bal, err
}

// Debit decrements with a conditional UPDATE ... RETURNING and inserts the
// transaction row before committing.
func (r *CompanyRepository) Debit(ctx context.Context, companyID string, amount int64, tx *model.CreditTransaction) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must not be negative: %d", amount)
	}
	return pgx.BeginFunc(ctx, r.pool, func(dbtx pgx.Tx) error {
		var after int64
		err := dbtx.QueryRow(ctx, `UPDATE companies SET balance = balance - $2, updated_at = now()
			WHERE id = $1 AND balance >= $2 RETURNING balance`, companyID, amount).Scan(&after)
		if errors.Is(err, pgx.ErrNoRows) {
			var available int64
			if err := dbtx.QueryRow(ctx, `SELECT balance FROM companies WHERE id = $1`, companyID).Scan(&available); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return model.ErrCompanyNotFound
				}
				return err
			}
			return model.NewError(model.KindInsufficientCredits, "company %s cannot pay %d credits", companyID, amount).
				WithDetail("required", amount).
				WithDetail("available", available)
		}
		if err != nil {
			return err
		}
		return insertTx(ctx, dbtx, companyID, -amount, after, tx)
	})
}

func (r *CompanyRepository) Credit(ctx context.Context, companyID string, amount int64, tx *model.CreditTransaction) error {
	if amount < 0 {
		return model.ErrCompanyInvalid
	}
	return pgx.BeginFunc(ctx, r.pool, func(dbtx pgx.Tx) error {
		var after int64
		err := dbtx.QueryRow(ctx, `UPDATE companies SET balance = balance + $2, updated_at = now()
			WHERE id = $1 RETURNING balance`, companyID, amount).Scan(&after)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrCompanyNotFound
		}
		if err != nil {
			return err
		}
		return insertTx(ctx, dbtx, companyID, amount, after, tx)
	})
}

// CreateFunded inserts the company and its opening transaction in one
// transaction.
func (r *CompanyRepository) CreateFunded(ctx context.Context, c *model.Company, tx *model.CreditTransaction) error {
	if c.Balance < 0 {
		return model.ErrCompanyInvalid
	}
	plan, err := json.Marshal(c.Plan)
	if err != nil {
		return err
	}
	id := c.ID
	if id == "" {
		id = "co-" + uuid.NewString()
	}
	err = pgx.BeginFunc(ctx, r.pool, func(dbtx pgx.Tx) error {
		_, err := dbtx.Exec(ctx, `INSERT INTO companies (`+companyColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			id, c.Name, c.Balance, string(plan), c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return err
		}
		return insertTx(ctx, dbtx, id, c.Balance, c.Balance, tx)
	})
	if isUniqueViolation(err) {
		return model.ErrCompanyInvalid
	}
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func insertTx(ctx context.Context, dbtx pgx.Tx, companyID string, signed, after int64, tx *model.CreditTransaction) error {
	if tx.ID == "" {
		tx.ID = ulid.Make().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.CompanyID = companyID
	tx.Amount = signed
	tx.BalanceAfter = after
	meta, err := json.Marshal(tx.Metadata)
	if err != nil {
		return err
	}
	_, err = dbtx.Exec(ctx, `INSERT INTO credit_transactions (id, company_id, amount, reason, metadata, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, tx.ID, companyID, signed, tx.Reason, string(meta), after, tx.CreatedAt)
	return err
}

func (r *CompanyRepository) Transactions(ctx context.Context, companyID string, limit int) ([]*model.CreditTransaction, error) {
	if _, err := r.Balance(ctx, companyID); err != nil {
		return nil, err
	}
	q := `SELECT id, company_id, amount, reason, metadata, balance_after, created_at
		FROM credit_transactions WHERE company_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{companyID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.CreditTransaction
	for rows.Next() {
		var (
			tx   model.CreditTransaction
			meta []byte
		)
		if err := rows.Scan(&tx.ID, &tx.CompanyID, &tx.Amount, &tx.Reason, &meta, &tx.BalanceAfter, &tx.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &tx.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of transaction %s: %w", tx.ID, err)
			}
		}
		out = append(out, &tx)
	}
	return out, rows.Err()
}

var (
	_ domain.CompanyRepository = (*CompanyRepository)(nil)
	_ domain.CreditRepository  = (*CompanyRepository)(nil)
)
