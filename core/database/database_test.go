package database

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := Config{Host: " db ", Name: "papers"}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Host != "db" || cfg.Port != "5432" || cfg.SSLMode != "disable" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxConnections != 5 || cfg.MigrationsDir != "migrations" || cfg.WaitSeconds != 30 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestNormalizeRequiresHostAndName(t *testing.T) {
	for _, cfg := range []Config{{Name: "papers"}, {Host: "db"}} {
		if err := cfg.Normalize(); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
	var nilCfg *Config
	if err := nilCfg.Normalize(); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestDSNQuotesValues(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: `it's secret`, Name: "papers", SSLMode: "disable"}
	dsn := cfg.DSN()
	if !strings.Contains(dsn, `password='it\'s secret'`) {
		t.Fatalf("password not quoted: %s", dsn)
	}
	if !strings.HasPrefix(dsn, "host='db' port='5432'") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}

func TestURLEscapesCredentials(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: "p@ss/word", Name: "papers", SSLMode: "require"}
	got := cfg.URL()
	want := "postgres://bot:p%40ss%2Fword@db:5432/papers?sslmode=require"
	if got != want {
		t.Fatalf("URL() = %s, want %s", got, want)
	}
}

func TestMigrationFileSelection(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000002_paper_index.up.sql",
		"000001_paper_delivery_outbox.up.sql",
		"000001_paper_delivery_outbox.down.sql",
		"000003_requests.up.sql",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	files := listMigrationFiles(dir)
	want := []string{"000001_paper_delivery_outbox.up.sql", "000002_paper_index.up.sql", "000003_requests.up.sql"}
	if !reflect.DeepEqual(files, want) {
		t.Fatalf("files = %v", files)
	}
	if got := selectApplied(files, 1, 3); !reflect.DeepEqual(got, want[1:]) {
		t.Fatalf("applied = %v", got)
	}
	if got := selectApplied(files, 3, 3); len(got) != 0 {
		t.Fatalf("expected nothing applied, got %v", got)
	}
	if parseVersion("garbage.up.sql") != 0 {
		t.Fatal("expected version 0 for unnumbered file")
	}
}
