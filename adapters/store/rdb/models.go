package rdb

import "time"

// WorkspaceRecord is the RDB persistence model for domain Workspace.
// Table name: workspaces
type WorkspaceRecord struct {
	ID          string    `gorm:"primaryKey;type:text;not null"`
	CompanyID   string    `gorm:"type:text;not null;index"` // references Company
	Name        string    `gorm:"type:text;not null"`
	EngineType  string    `gorm:"type:text;not null"`
	Status      string    `gorm:"type:text;not null"`
	TemplateID  string    `gorm:"type:text"`
	ProjectDir  string    `gorm:"type:text"`
	SessionPort int       `gorm:"not null;default:0"`
	SessionPID  int       `gorm:"column:session_pid;not null;default:0"`
	PreviewURL  string    `gorm:"column:preview_url;type:text"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (WorkspaceRecord) TableName() string { return "workspaces" }

// CompanyRecord persistence model
type CompanyRecord struct {
	ID        string    `gorm:"primaryKey;type:text;not null"`
	Name      string    `gorm:"type:text;not null"`
	Balance   int64     `gorm:"not null;default:0;check:balance >= 0"`
	Plan      string    `gorm:"type:text"` // JSON encoded model.Plan
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (CompanyRecord) TableName() string { return "companies" }

// CreditTransactionRecord persistence model. Rows are insert-only.
type CreditTransactionRecord struct {
	ID           string    `gorm:"primaryKey;type:text;not null"`
	CompanyID    string    `gorm:"type:text;not null;index:idx_credit_tx_company,priority:1"`
	Amount       int64     `gorm:"not null"`
	Reason       string    `gorm:"type:text;not null"`
	Metadata     string    `gorm:"type:text"` // JSON encoded model.TransactionMetadata
	BalanceAfter int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_credit_tx_company,priority:2"`
}

func (CreditTransactionRecord) TableName() string { return "credit_transactions" }

// PatchRecord persistence model keyed by (workspace_id, patch_id).
type PatchRecord struct {
	WorkspaceID    string     `gorm:"primaryKey;type:text;not null"`
	PatchID        string     `gorm:"primaryKey;type:text;not null"`
	EngineType     string     `gorm:"type:text;not null"`
	Envelope       []byte     `gorm:"not null"` // JSON
	ReverseDiff    []byte     // gzip
	TokensUsed     int64      `gorm:"not null;default:0"`
	CreditsCharged int64      `gorm:"not null;default:0"`
	Success        bool       `gorm:"not null"`
	Timings        string     `gorm:"type:text"` // JSON encoded model.PatchTimings
	ETag           string     `gorm:"column:etag;type:text"`
	UndoneAt       *time.Time
	CreatedAt      time.Time  `gorm:"not null;index"`
}

func (PatchRecord) TableName() string { return "patches" }
