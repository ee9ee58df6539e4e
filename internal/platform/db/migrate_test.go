package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

const migDir = "/migrations"

func writeMigrations(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(fs, filepath.Join(migDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return fs
}

func TestLoadMigrations_SortedByVersion(t *testing.T) {
	fs := writeMigrations(t, map[string]string{
		"010_reminders.sql": "SELECT 10;",
		"002_catalog.sql":   "SELECT 2;",
		"001_actors.sql":    "SELECT 1;",
	})

	migs, err := NewMigrator(nil, fs, migDir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migs))
	}
	want := []int{1, 2, 10}
	for i, v := range want {
		if migs[i].Version != v {
			t.Errorf("migs[%d].Version = %d, want %d", i, migs[i].Version, v)
		}
	}
	if migs[0].SQL != "SELECT 1;" {
		t.Errorf("unexpected SQL %q", migs[0].SQL)
	}
}

func TestLoadMigrations_SkipsNonMigrations(t *testing.T) {
	fs := writeMigrations(t, map[string]string{
		"001_init.sql": "SELECT 1;",
		"README.md":    "docs",
		"seed.sql":     "SELECT 0;",
		"abc_x.sql":    "SELECT 0;",
	})
	if err := fs.Mkdir(filepath.Join(migDir, "002_dir.sql"), 0o755); err != nil {
		t.Fatal(err)
	}

	migs, err := NewMigrator(nil, fs, migDir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) != 1 || migs[0].Name != "001_init.sql" {
		t.Fatalf("expected only 001_init.sql, got %+v", migs)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fs := writeMigrations(t, map[string]string{
		"001_a.sql":  "SELECT 1;",
		"0001_b.sql": "SELECT 1;",
	})
	if _, err := NewMigrator(nil, fs, migDir).LoadMigrations(); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	if _, err := NewMigrator(nil, afero.NewMemMapFs(), "/nonexistent/migrations").LoadMigrations(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestPendingAndStatus(t *testing.T) {
	migs := []Migration{
		{Version: 1, Name: "001_actors.sql"},
		{Version: 2, Name: "002_visits.sql"},
		{Version: 3, Name: "003_reminders.sql"},
	}
	appliedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	done := map[int]time.Time{1: appliedAt}

	p := pending(migs, done)
	if len(p) != 2 || p[0].Version != 2 || p[1].Version != 3 {
		t.Fatalf("unexpected pending set %+v", p)
	}

	st := statusOf(migs, done)
	if !st[0].Applied || st[0].AppliedAt == nil || !st[0].AppliedAt.Equal(appliedAt) {
		t.Errorf("expected first migration applied at %v, got %+v", appliedAt, st[0])
	}
	if st[1].Applied || st[1].AppliedAt != nil {
		t.Errorf("expected second migration pending, got %+v", st[1])
	}
}
