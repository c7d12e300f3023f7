package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kompox/patchbay/adapters/backend"
	enginedrv "github.com/kompox/patchbay/adapters/drivers/engine"
	"github.com/kompox/patchbay/adapters/process"
	"github.com/kompox/patchbay/adapters/store/inmem"
	"github.com/kompox/patchbay/config/patchbaycfg"
	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/keylock"
	"github.com/kompox/patchbay/internal/portalloc"
	"github.com/kompox/patchbay/internal/retry"
	"github.com/kompox/patchbay/usecase/classify"
	"github.com/kompox/patchbay/usecase/command"
	"github.com/kompox/patchbay/usecase/envelope"
	"github.com/kompox/patchbay/usecase/ledger"
	"github.com/kompox/patchbay/usecase/patch"
	"github.com/kompox/patchbay/usecase/session"
	"github.com/kompox/patchbay/usecase/workspace"
)

// services is the command pipeline of one process. Sessions live in memory,
// so every command of the process must share the same registry.
type services struct {
	Config     *patchbaycfg.Root
	Repos      *domain.Repositories
	Drivers    map[model.EngineType]model.EngineDriver
	Ledger     *ledger.UseCase
	Validator  *envelope.Validator
	Classifier *classify.Classifier
	Sessions   *session.Registry
	Patches    *patch.UseCase
	Commands   *command.UseCase
	Workspaces *workspace.UseCase
}

var (
	servicesCache *services
	servicesMu    sync.Mutex
)

// buildServices wires every use case from the resolved configuration.
func buildServices(cmd *cobra.Command) (*services, error) {
	servicesMu.Lock()
	defer servicesMu.Unlock()
	if servicesCache != nil {
		return servicesCache, nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	repos, err := buildRepos(cmd)
	if err != nil {
		return nil, err
	}
	s, err := newServices(cfg, repos, process.New(0), backend.New(backend.WithUserAgent("patchbay/"+version)))
	if err != nil {
		return nil, err
	}
	servicesCache = s
	return s, nil
}

// newServices wires the pipeline over explicit adapters.
func newServices(cfg *patchbaycfg.Root, repos *domain.Repositories, launcher model.ProcessLauncher, client model.BackendClient) (*services, error) {
	drivers, err := enginedrv.Build(cfg.Engines)
	if err != nil {
		return nil, err
	}
	defaultEngine, err := model.ParseEngineType(cfg.DefaultEngine)
	if err != nil {
		return nil, err
	}
	if _, ok := drivers[defaultEngine]; !ok {
		return nil, fmt.Errorf("default engine %s has no registered driver", defaultEngine)
	}

	surcharges := make(map[model.EngineType]int64, len(drivers))
	for e, d := range drivers {
		surcharges[e] = d.Surcharge()
	}
	led := ledger.New(&ledger.Repos{Company: repos.Company, Credit: repos.Credit}, ledger.Config{
		MinCost:    cfg.Ledger.MinCost,
		MaxCost:    cfg.Ledger.MaxCost,
		Surcharges: surcharges,
	})

	validator, err := envelope.New(envelope.Config{
		DefaultMaxOps: cfg.Envelope.DefaultMaxOps,
		HardMaxOps:    cfg.Envelope.HardMaxOps,
	})
	if err != nil {
		return nil, err
	}

	ports, err := portalloc.New(cfg.Session.Host, cfg.Session.PortMin, cfg.Session.PortMax)
	if err != nil {
		return nil, err
	}
	locks := keylock.New()
	registry := session.NewRegistry(drivers, session.Deps{
		Workspaces: repos.Workspace,
		Sessions:   inmem.NewSessionStore(),
		Launcher:   launcher,
		Backend:    client,
		Ports:      ports,
		Locks:      locks,
		Retry:      retry.Policy{MaxAttempts: 2, Backoff: cfg.Session.RetryBackoff},
	}, session.Config{
		Host:              cfg.Session.Host,
		ReadyTimeout:      cfg.Session.ReadyTimeout,
		ReadyPollInterval: cfg.Session.ReadyPollInterval,
		CommandTimeout:    cfg.Session.CommandTimeout,
		IdleTimeout:       cfg.Session.IdleTimeout,
		LogDir:            cfg.Session.LogDir,
	})

	patches := &patch.UseCase{
		Repos:    &patch.Repos{Workspace: repos.Workspace, Patch: repos.Patch},
		Sessions: registry,
	}
	classifier := classify.New(enginedrv.Vocabularies(drivers), defaultEngine)
	return &services{
		Config:     cfg,
		Repos:      repos,
		Drivers:    drivers,
		Ledger:     led,
		Validator:  validator,
		Classifier: classifier,
		Sessions:   registry,
		Patches:    patches,
		Commands: &command.UseCase{
			Repos:      &command.Repos{Workspace: repos.Workspace, Company: repos.Company},
			Ledger:     led,
			Validator:  validator,
			Classifier: classifier,
			Sessions:   registry,
			Patches:    patches,
		},
		Workspaces: &workspace.UseCase{
			Repos:          &workspace.Repos{Workspace: repos.Workspace, Company: repos.Company},
			WorkspacesRoot: cfg.Session.WorkspacesRoot,
			Sessions:       registry,
			Locks:          locks,
		},
	}, nil
}
