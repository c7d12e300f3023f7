package patchbaycfg

import (
	"errors"
	"fmt"

	"github.com/kompox/patchbay/domain/model"
)

// Validate performs semantic validation on the configuration tree.
func (r *Root) Validate() error {
	var errs []error
	if r.Store.URL == "" {
		errs = append(errs, fmt.Errorf("store.url: must not be empty"))
	}
	if r.Ledger.MinCost < 0 || r.Ledger.MaxCost < r.Ledger.MinCost {
		errs = append(errs, fmt.Errorf("ledger: need 0 <= minCost <= maxCost, got %d..%d", r.Ledger.MinCost, r.Ledger.MaxCost))
	}
	if r.Envelope.DefaultMaxOps < 1 || r.Envelope.HardMaxOps < r.Envelope.DefaultMaxOps {
		errs = append(errs, fmt.Errorf("envelope: need 1 <= defaultMaxOps <= hardMaxOps, got %d..%d", r.Envelope.DefaultMaxOps, r.Envelope.HardMaxOps))
	}
	if err := r.Session.validate(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}
	if _, err := model.ParseEngineType(r.DefaultEngine); err != nil {
		errs = append(errs, fmt.Errorf("defaultEngine: %w", err))
	}
	for name, e := range r.Engines {
		if _, err := model.ParseEngineType(name); err != nil {
			errs = append(errs, fmt.Errorf("engines.%s: %w", name, err))
		}
		if e.Surcharge != nil && *e.Surcharge < 0 {
			errs = append(errs, fmt.Errorf("engines.%s.surcharge: must not be negative", name))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) validate() error {
	if s.PortMin <= 0 || s.PortMax > 65535 || s.PortMin > s.PortMax {
		return fmt.Errorf("invalid port range %d-%d", s.PortMin, s.PortMax)
	}
	if s.ReadyTimeout <= 0 || s.CommandTimeout <= 0 || s.IdleTimeout <= 0 {
		return fmt.Errorf("readyTimeout, commandTimeout and idleTimeout must be positive")
	}
	if s.ReadyPollInterval <= 0 || s.ReadyPollInterval > s.ReadyTimeout {
		return fmt.Errorf("readyPollInterval must be positive and not exceed readyTimeout")
	}
	if s.ReapInterval <= 0 {
		return fmt.Errorf("reapInterval must be positive")
	}
	return nil
}

// Validate checks a seed file for references and duplicates.
func (s *Seed) Validate() error {
	companies := map[string]bool{}
	for i, c := range s.Companies {
		if c.ID == "" || c.Name == "" {
			return fmt.Errorf("companies[%d]: id and name are required", i)
		}
		if companies[c.ID] {
			return fmt.Errorf("companies[%d]: duplicate id %q", i, c.ID)
		}
		companies[c.ID] = true
	}
	seen := map[string]bool{}
	for i, w := range s.Workspaces {
		if w.ID == "" || w.Name == "" {
			return fmt.Errorf("workspaces[%d]: id and name are required", i)
		}
		if seen[w.ID] {
			return fmt.Errorf("workspaces[%d]: duplicate id %q", i, w.ID)
		}
		seen[w.ID] = true
		if !companies[w.CompanyID] {
			return fmt.Errorf("workspaces[%d]: unknown companyId %q", i, w.CompanyID)
		}
	}
	return nil
}
