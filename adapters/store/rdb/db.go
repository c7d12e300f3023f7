package rdb

import (
	"fmt"
	"strings"

	"github.com/kompox/patchbay/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenFromURL opens a GORM DB based on a simple db-url string.
// Supported:
//   - sqlite:<dsn>   e.g., sqlite:./patchbay.db or sqlite::memory:
//   - sqlite3:<dsn>  alias of sqlite
func OpenFromURL(dbURL string) (*gorm.DB, error) {
	var dsn string
	switch {
	case strings.HasPrefix(dbURL, "sqlite:"):
		dsn = strings.TrimPrefix(dbURL, "sqlite:")
	case strings.HasPrefix(dbURL, "sqlite3:"):
		dsn = strings.TrimPrefix(dbURL, "sqlite3:")
	default:
		return nil, fmt.Errorf("unsupported db scheme: %s", dbURL)
	}
	if dsn == "" {
		dsn = "./patchbay.db"
	}
	db, err := gorm.Open(sqlite.Open(withBusyTimeout(dsn)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer. One connection also keeps a
	// ":memory:" database alive and shared across goroutines.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}

// AutoMigrate applies schema migrations for all RDB models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&WorkspaceRecord{}, &CompanyRecord{}, &CreditTransactionRecord{}, &PatchRecord{})
}

// Repositories returns every GORM repository over db.
func Repositories(db *gorm.DB) *domain.Repositories {
	credit := NewCreditRepository(db)
	return &domain.Repositories{
		Workspace: NewWorkspaceRepository(db),
		Company:   NewCompanyRepository(db),
		Credit:    credit,
		Patch:     NewPatchRepository(db),
	}
}
