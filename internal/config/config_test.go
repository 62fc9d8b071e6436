package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Config{
		Store:        StoreFile,
		DataDir:      "./data",
		Journal:      "./data/journal.jsonl",
		LogLevel:     "info",
		MaxRetries:   5,
		RetryBackoff: 500 * time.Millisecond,
	}
	if cfg != want {
		t.Fatalf("config mismatch: %+v != %+v", cfg, want)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "amm.yaml")
	content := "store: pebble\ndata-dir: /var/lib/amm\nlog-level: debug\nmax-retries: 2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AMM_DATA_DIR", "/srv/amm")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	if err := flags.Parse([]string{"--log-level=warn"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StorePebble {
		t.Fatalf("store mismatch: %q", cfg.Store)
	}
	if cfg.DataDir != "/srv/amm" {
		t.Fatalf("env override mismatch: %q", cfg.DataDir)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("flag override mismatch: %q", cfg.LogLevel)
	}
	if cfg.MaxRetries != 2 {
		t.Fatalf("file value mismatch: %d", cfg.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"file", Config{Store: StoreFile, DataDir: "d"}, true},
		{"pebble without dir", Config{Store: StorePebble}, false},
		{"postgres", Config{Store: StorePostgres, PGDSN: "postgres://x"}, true},
		{"postgres without dsn", Config{Store: StorePostgres}, false},
		{"unknown", Config{Store: "redis", DataDir: "d"}, false},
		{"negative retries", Config{Store: StoreFile, DataDir: "d", MaxRetries: -1}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("%s: validate returned %v", tc.name, err)
		}
	}
}

func TestStatsWindowSeconds(t *testing.T) {
	secs, err := StatsConfig{Window: "5m"}.WindowSeconds()
	if err != nil || secs != 300 {
		t.Fatalf("window mismatch: %d %v", secs, err)
	}
	if _, err := (StatsConfig{Window: "500ms"}).WindowSeconds(); err == nil {
		t.Fatalf("expected sub-second window to fail")
	}
	if _, err := (StatsConfig{Window: "soon"}).WindowSeconds(); err == nil {
		t.Fatalf("expected invalid window to fail")
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]uint64{
		"":                     0,
		"1700000000":           1_700_000_000,
		"2023-11-14T22:13:20Z": 1_700_000_000,
	}
	for in, want := range cases {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q mismatch: %d != %d", in, got, want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error")
	}
}
