package patchbaycfg

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvConfig    = "PATCHBAY_CONFIG"
	EnvDBURL     = "PATCHBAY_DB_URL"
	EnvLogFormat = "PATCHBAY_LOG_FORMAT"
)

// DefaultFileName is looked up in the working directory when no path is given.
const DefaultFileName = "patchbay.yml"

// Default returns the configuration used when no file is present.
func Default() *Root {
	return &Root{
		Version: "v1",
		Store:   Store{URL: "sqlite:./patchbay.db"},
		Logging: Logging{Format: "human", Level: "INFO", Output: "-", RetentionDays: 7},
		Ledger:  Ledger{MinCost: 10, MaxCost: 4000},
		Envelope: Envelope{
			DefaultMaxOps: 50,
			HardMaxOps:    200,
		},
		Session: Session{
			Host:              "127.0.0.1",
			PortMin:           17100,
			PortMax:           17999,
			ReadyTimeout:      15 * time.Second,
			ReadyPollInterval: 250 * time.Millisecond,
			CommandTimeout:    120 * time.Second,
			IdleTimeout:       15 * time.Minute,
			ReapInterval:      time.Minute,
			RetryBackoff:      250 * time.Millisecond,
			WorkspacesRoot:    "./workspaces",
		},
		DefaultEngine: "playcanvas",
		Server: Server{
			Listen:            "127.0.0.1:8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			MaxBodyBytes:      1 << 20,
		},
	}
}

// Load reads a YAML file on top of Default. Keys absent from the file keep
// their default values.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default.
func Parse(data []byte) (*Root, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return cfg, nil
}

// Resolve loads the configuration selected by path, $PATCHBAY_CONFIG, or
// ./patchbay.yml in that order, then applies environment overrides. A missing
// ./patchbay.yml is not an error.
func Resolve(path string, getenv func(string) string) (*Root, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	explicit := path != ""
	if !explicit {
		if v := getenv(EnvConfig); v != "" {
			path, explicit = v, true
		} else {
			path = DefaultFileName
		}
	}
	var cfg *Root
	if _, err := os.Stat(path); err != nil && !explicit && os.IsNotExist(err) {
		cfg = Default()
	} else {
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(getenv)
	return cfg, nil
}

// ApplyEnv overrides fields from PATCHBAY_* environment variables.
func (r *Root) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvDBURL); v != "" {
		r.Store.URL = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		r.Logging.Format = v
	}
}

// LoadSeed reads a seed file for the in-memory store.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return &s, nil
}

// Marshal encodes r as YAML.
func (r *Root) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}
