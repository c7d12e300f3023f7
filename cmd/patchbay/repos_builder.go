package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kompox/patchbay/adapters/store/inmem"
	"github.com/kompox/patchbay/adapters/store/pg"
	"github.com/kompox/patchbay/adapters/store/rdb"
	"github.com/kompox/patchbay/config/patchbaycfg"
	"github.com/kompox/patchbay/domain"
)

// configRoot holds the configuration resolved by the first command that
// needed it.
var (
	configRoot   *patchbaycfg.Root
	configRootMu sync.Mutex
)

// reposCache caches repositories per db-url for the process lifetime. The
// file: scheme needs it so that use case builders share one seeded memory
// store; database schemes reuse the open pool.
var (
	reposCache   = map[string]*domain.Repositories{}
	reposCacheMu sync.Mutex
)

// findFlag recursively searches parents for a flag.
func findFlag(cmd *cobra.Command, name string) *pflag.Flag {
	for c := cmd; c != nil; c = c.Parent() {
		if f := c.Flags().Lookup(name); f != nil {
			return f
		}
		if f := c.PersistentFlags().Lookup(name); f != nil {
			return f
		}
	}
	return nil
}

func flagString(cmd *cobra.Command, name string) string {
	if f := findFlag(cmd, name); f != nil {
		return f.Value.String()
	}
	return ""
}

// loadConfig resolves patchbay.yml and the environment, then applies the
// root flags on top.
func loadConfig(cmd *cobra.Command) (*patchbaycfg.Root, error) {
	configRootMu.Lock()
	defer configRootMu.Unlock()
	if configRoot != nil {
		return configRoot, nil
	}
	cfg, err := patchbaycfg.Resolve(flagString(cmd, "config"), nil)
	if err != nil {
		return nil, err
	}
	if v := flagString(cmd, "db-url"); v != "" {
		cfg.Store.URL = v
	}
	if v := flagString(cmd, "log-format"); v != "" {
		cfg.Logging.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	configRoot = cfg
	return cfg, nil
}

// getDBURL returns the effective db-url.
func getDBURL(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return cfg.Store.URL, nil
}

// buildRepos creates repositories from db-url.
func buildRepos(cmd *cobra.Command) (*domain.Repositories, error) {
	dbURL, err := getDBURL(cmd)
	if err != nil {
		return nil, err
	}

	reposCacheMu.Lock()
	defer reposCacheMu.Unlock()
	if cached, ok := reposCache[dbURL]; ok {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var repos *domain.Repositories
	switch {
	case strings.HasPrefix(dbURL, "file:"):
		filePath := strings.TrimPrefix(dbURL, "file:")
		if filePath == "" {
			return nil, fmt.Errorf("file path is required for file: URL")
		}
		store := inmem.NewStore()
		if err := store.LoadFromFile(ctx, filePath); err != nil {
			return nil, fmt.Errorf("failed to load seed from %s: %w", filePath, err)
		}
		repos = store.Repositories()

	case strings.HasPrefix(dbURL, "sqlite:") || strings.HasPrefix(dbURL, "sqlite3:"):
		db, err := rdb.OpenFromURL(dbURL)
		if err != nil {
			return nil, err
		}
		if err := rdb.AutoMigrate(db); err != nil {
			return nil, err
		}
		repos = rdb.Repositories(db)

	case pg.IsURL(dbURL):
		pool, err := pg.Open(ctx, dbURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		repos = pg.Repositories(pool)

	default:
		return nil, fmt.Errorf("unsupported db scheme: %s", dbURL)
	}
	reposCache[dbURL] = repos
	return repos, nil
}
