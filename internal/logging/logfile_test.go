package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGenerateLogFilename(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected string
	}{
		{
			name:     "basic timestamp",
			time:     time.Date(2026, 3, 4, 9, 51, 5, 123000000, time.UTC),
			expected: "patchbay-20260304-095105-123.log",
		},
		{
			name:     "midnight",
			time:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: "patchbay-20260101-000000-000.log",
		},
		{
			name:     "non-UTC input is normalized",
			time:     time.Date(2026, 6, 15, 21, 30, 45, 456789000, time.FixedZone("JST", 9*3600)),
			expected: "patchbay-20260615-123045-456.log",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GenerateLogFilename(tt.time); got != tt.expected {
				t.Errorf("GenerateLogFilename() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNewLogFile_Outputs(t *testing.T) {
	dir := t.TempDir()

	t.Run("none", func(t *testing.T) {
		lf, err := NewLogFile(&LogConfig{Output: "none", Dir: dir})
		if err != nil {
			t.Fatalf("NewLogFile() error = %v", err)
		}
		defer lf.Close()
		if lf.Path != "" || lf.Writer() == nil {
			t.Errorf("unexpected LogFile %+v", lf)
		}
	})

	t.Run("stderr", func(t *testing.T) {
		lf, err := NewLogFile(&LogConfig{Output: "-", Dir: dir})
		if err != nil {
			t.Fatalf("NewLogFile() error = %v", err)
		}
		defer lf.Close()
		if lf.Writer() != os.Stderr {
			t.Error("Writer should be os.Stderr")
		}
	})

	t.Run("generated", func(t *testing.T) {
		lf, err := NewLogFile(&LogConfig{Dir: dir})
		if err != nil {
			t.Fatalf("NewLogFile() error = %v", err)
		}
		defer lf.Close()
		if filepath.Dir(lf.Path) != dir {
			t.Errorf("Path = %q, want under %q", lf.Path, dir)
		}
		if _, err := os.Stat(lf.Path); err != nil {
			t.Errorf("log file not created: %v", err)
		}
	})

	t.Run("relative", func(t *testing.T) {
		lf, err := NewLogFile(&LogConfig{Output: "serve.log", Dir: dir})
		if err != nil {
			t.Fatalf("NewLogFile() error = %v", err)
		}
		defer lf.Close()
		if want := filepath.Join(dir, "serve.log"); lf.Path != want {
			t.Errorf("Path = %q, want %q", lf.Path, want)
		}
	})
}

func TestCleanupOldLogFiles(t *testing.T) {
	dir := t.TempDir()
	oldTime := time.Now().AddDate(0, 0, -10)
	newTime := time.Now().AddDate(0, 0, -3)

	write := func(name string, mt time.Time) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, mt, mt); err != nil {
			t.Fatal(err)
		}
		return p
	}
	oldFile := write("patchbay-20260101-120000-000.log", oldTime)
	newFile := write("patchbay-20260108-120000-000.log", newTime)
	otherFile := write("other.log", oldTime)

	removed, err := CleanupOldLogFiles(dir, 7)
	if err != nil {
		t.Fatalf("CleanupOldLogFiles() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanupOldLogFiles() removed = %d, want 1", removed)
	}
	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Errorf("old log file should have been deleted: %s", oldFile)
	}
	for _, p := range []string{newFile, otherFile} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("file should have been kept: %s", p)
		}
	}
}

func TestCleanupOldLogFiles_Noop(t *testing.T) {
	if n, err := CleanupOldLogFiles("/nonexistent/path", 7); err != nil || n != 0 {
		t.Errorf("CleanupOldLogFiles(missing) = %d, %v", n, err)
	}
	dir := t.TempDir()
	file := filepath.Join(dir, "patchbay-20260101-120000-000.log")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := CleanupOldLogFiles(dir, 0); err != nil {
		t.Fatalf("CleanupOldLogFiles() error = %v", err)
	}
	if _, err := os.Stat(file); err != nil {
		t.Errorf("file should be kept with 0 retention: %s", file)
	}
}
