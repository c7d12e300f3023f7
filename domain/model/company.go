package model

import "time"

// Company owns a credit balance and a set of workspaces.
type Company struct {
	ID        string
	Name      string
	Balance   int64 // never negative
	Plan      Plan
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Plan lists what a company's subscription allows.
type Plan struct {
	// AllowedEngines is empty when every engine family is allowed.
	AllowedEngines []EngineType `json:"allowedEngines,omitempty" yaml:"allowedEngines,omitempty"`
	Features       []string     `json:"features,omitempty" yaml:"features,omitempty"`
}

// AllowsEngine reports whether the plan admits commands for e.
func (p Plan) AllowsEngine(e EngineType) bool {
	if len(p.AllowedEngines) == 0 {
		return true
	}
	for _, a := range p.AllowedEngines {
		if a == e {
			return true
		}
	}
	return false
}

// HasFeature reports whether the plan includes feature f.
func (p Plan) HasFeature(f string) bool {
	for _, x := range p.Features {
		if x == f {
			return true
		}
	}
	return false
}

// Transaction reasons.
const (
	ReasonCommand = "command"
	ReasonGrant   = "grant"
)

// CreditTransaction is an immutable ledger entry.
type CreditTransaction struct {
	ID           string
	CompanyID    string
	Amount       int64 // negative for debits
	Reason       string
	Metadata     TransactionMetadata
	BalanceAfter int64
	CreatedAt    time.Time
}

// TransactionMetadata describes what a ledger entry paid for.
type TransactionMetadata struct {
	EngineType     EngineType `json:"engine_type,omitempty"`
	WorkspaceID    string     `json:"workspace_id,omitempty"`
	CommandPreview string     `json:"command_preview,omitempty"`
	PatchID        string     `json:"patch_id,omitempty"`
	Surcharge      int64      `json:"surcharge,omitempty"`
}
