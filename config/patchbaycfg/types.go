// Package patchbaycfg defines the configuration schema of patchbay.yml and the
// seed file format used by the in-memory store.
package patchbaycfg

import "time"

// Root is the root structure of patchbay.yml.
type Root struct {
	Version       string            `yaml:"version"`
	Store         Store             `yaml:"store"`
	Logging       Logging           `yaml:"logging"`
	Ledger        Ledger            `yaml:"ledger"`
	Envelope      Envelope          `yaml:"envelope"`
	Session       Session           `yaml:"session"`
	DefaultEngine string            `yaml:"defaultEngine"`
	Engines       map[string]Engine `yaml:"engines,omitempty"`
	Server        Server            `yaml:"server"`
}

// Store selects the persistence backend.
type Store struct {
	// URL is a db-url: file:<seed.yml>, sqlite:<dsn>, postgres://...
	URL string `yaml:"url"`
}

// Logging configures log output.
type Logging struct {
	Format        string `yaml:"format,omitempty"` // human (default), text, json
	Level         string `yaml:"level,omitempty"`  // DEBUG, INFO (default), WARN, ERROR
	Dir           string `yaml:"dir,omitempty"`    // log directory for serve
	Output        string `yaml:"output,omitempty"` // "-" for stderr (default), "none", or a path
	RetentionDays int    `yaml:"retentionDays,omitempty"`
}

// Ledger configures cost estimation.
type Ledger struct {
	MinCost int64 `yaml:"minCost"`
	MaxCost int64 `yaml:"maxCost"`
}

// Envelope configures envelope validation.
type Envelope struct {
	DefaultMaxOps int `yaml:"defaultMaxOps"`
	HardMaxOps    int `yaml:"hardMaxOps"`
}

// Session configures backend session lifecycle.
type Session struct {
	Host              string        `yaml:"host,omitempty"`
	PortMin           int           `yaml:"portMin"`
	PortMax           int           `yaml:"portMax"`
	ReadyTimeout      time.Duration `yaml:"readyTimeout"`
	ReadyPollInterval time.Duration `yaml:"readyPollInterval"`
	CommandTimeout    time.Duration `yaml:"commandTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ReapInterval      time.Duration `yaml:"reapInterval"`
	RetryBackoff      time.Duration `yaml:"retryBackoff"`
	WorkspacesRoot    string        `yaml:"workspacesRoot"`
	LogDir            string        `yaml:"logDir,omitempty"`
}

// Engine overrides the defaults of one engine driver.
// Args may contain {port}, {dir} and {workspace} placeholders.
type Engine struct {
	Command     string   `yaml:"command,omitempty"`
	Args        []string `yaml:"args,omitempty"`
	Env         []string `yaml:"env,omitempty"`
	Surcharge   *int64   `yaml:"surcharge,omitempty"`
	HealthPath  string   `yaml:"healthPath,omitempty"`
	CommandPath string   `yaml:"commandPath,omitempty"`
	UndoPath    string   `yaml:"undoPath,omitempty"`
	PreviewURL  string   `yaml:"previewURL,omitempty"`
}

// Server configures the HTTP surface of `patchbay serve`.
type Server struct {
	Listen            string        `yaml:"listen"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
}

// Seed is the content of a file: db-url, loaded into the in-memory store.
type Seed struct {
	Companies  []CompanySpec   `yaml:"companies"`
	Workspaces []WorkspaceSpec `yaml:"workspaces"`
}

// CompanySpec describes a company in a seed file or an admin spec file.
type CompanySpec struct {
	ID             string   `yaml:"id,omitempty" json:"id,omitempty"`
	Name           string   `yaml:"name" json:"name"`
	Balance        int64    `yaml:"balance,omitempty" json:"balance,omitempty"`
	AllowedEngines []string `yaml:"allowedEngines,omitempty" json:"allowedEngines,omitempty"`
	Features       []string `yaml:"features,omitempty" json:"features,omitempty"`
}

// WorkspaceSpec describes a workspace in a seed file or an admin spec file.
type WorkspaceSpec struct {
	ID         string `yaml:"id,omitempty" json:"id,omitempty"`
	Name       string `yaml:"name" json:"name"`
	CompanyID  string `yaml:"companyId" json:"companyId"`
	Engine     string `yaml:"engine" json:"engine"`
	Status     string `yaml:"status,omitempty" json:"status,omitempty"`
	TemplateID string `yaml:"templateId,omitempty" json:"templateId,omitempty"`
	ProjectDir string `yaml:"projectDir,omitempty" json:"projectDir,omitempty"`
}
