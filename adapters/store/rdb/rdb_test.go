package rdb

import (
	"path/filepath"
	"testing"

	"github.com/kompox/patchbay/adapters/store/storetest"
	"github.com/kompox/patchbay/domain"
)

func openTestDB(t *testing.T) *domain.Repositories {
	t.Helper()
	db, err := OpenFromURL("sqlite:" + filepath.Join(t.TempDir(), "patchbay.db"))
	if err != nil {
		t.Fatalf("OpenFromURL() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	return Repositories(db)
}

func TestStoreSuite(t *testing.T) {
	storetest.Run(t, openTestDB)
}

func TestOpenFromURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"sqlite::memory:", false},
		{"sqlite3::memory:", false},
		{"postgres://localhost/db", true},
		{"mysql:x", true},
	}
	for _, tt := range tests {
		db, err := OpenFromURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("OpenFromURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
		if db != nil {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	}
}

func TestWithBusyTimeout(t *testing.T) {
	tests := map[string]string{
		"./a.db":                    "./a.db?_busy_timeout=5000",
		"file:a.db?cache=shared":    "file:a.db?cache=shared&_busy_timeout=5000",
		"a.db?_busy_timeout=100":    "a.db?_busy_timeout=100",
	}
	for in, want := range tests {
		if got := withBusyTimeout(in); got != want {
			t.Errorf("withBusyTimeout(%q) = %q, want %q", in, got, want)
		}
	}
}
