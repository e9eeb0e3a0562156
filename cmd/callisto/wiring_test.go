package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/policy/engine"
	"mercator-hq/callisto/pkg/policy/ruleset"
	"mercator-hq/callisto/pkg/sds"
)

var passStart = time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)

const printRules = `{
  "PRINT_RAW": {
    "description": "log raw files",
    "functionName": "testPrint",
    "options": {},
    "conditions": [{"functionName": "assertQualityPolicy", "options": {"qualities": ["D"]}}]
  }
}`

// testConfig returns a default configuration over a temporary archive
// with an in-memory ledger.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Archive.Root = filepath.Join(dir, "archive")
	cfg.Rules.RulesPath = filepath.Join(dir, "rules.json")
	cfg.Ledger.Backend = "memory"
	writeFile(t, cfg.Rules.RulesPath, printRules)
	return cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func addArchiveFile(t *testing.T, root, name string) sds.File {
	t.Helper()
	f := sds.MustParse(name)
	writeFile(t, f.Path(root), "miniseed")
	return f
}

func useFakeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fake := clockwork.NewFakeClockAt(passStart)
	prev := clock
	clock = fake
	t.Cleanup(func() { clock = prev })
	return fake
}

func openTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := openApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestOpenApp_Defaults(t *testing.T) {
	cfg := testConfig(t)
	a := openTestApp(t, cfg)

	if a.env.Archive == nil || a.env.Archive.Root() != cfg.Archive.Root {
		t.Errorf("archive not configured: %+v", a.env.Archive)
	}
	if a.env.ObjectStore != nil || a.env.Catalog != nil || a.env.PIDs != nil || a.env.Replicator != nil {
		t.Error("disabled backends should stay nil")
	}
	if a.env.Repacker == nil || a.env.Extractor == nil || a.env.Deletions == nil {
		t.Error("repacker, extractor and deletions should be configured")
	}
}

func TestOpenApp_EnabledBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.ObjectStore.Enabled = true
	cfg.ObjectStore.URL = "mem://"
	cfg.Catalog.Enabled = true
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "db", "catalog.db")
	cfg.Handle.Enabled = true
	cfg.Handle.BaseURL = "http://pid.example.org"
	cfg.Replication.Enabled = true
	cfg.Replication.BaseURL = "http://replication.example.org"

	a := openTestApp(t, cfg)
	if a.env.ObjectStore == nil || a.env.Catalog == nil || a.env.PIDs == nil || a.env.Replicator == nil {
		t.Errorf("expected every backend to be configured: %+v", a.env)
	}
	if _, err := os.Stat(cfg.Catalog.Path); err != nil {
		t.Errorf("catalog database not created: %v", err)
	}
}

func TestOpenLedger(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.LedgerConfig
		wantErr  bool
		exitCode int
	}{
		{name: "memory", cfg: config.LedgerConfig{Backend: "memory"}},
		{name: "sqlite", cfg: config.LedgerConfig{Backend: "sqlite", SQLite: config.LedgerSQLiteConfig{Path: filepath.Join(t.TempDir(), "data", "ledger.db")}}},
		{name: "unsupported", cfg: config.LedgerConfig{Backend: "postgres"}, wantErr: true, exitCode: cli.ExitConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openLedger(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openLedger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if code := cli.ExitCode(err); code != tt.exitCode {
					t.Errorf("ExitCode() = %d, want %d", code, tt.exitCode)
				}
				return
			}
			defer store.Close()
			if _, err := store.CountPasses(context.Background()); err != nil {
				t.Errorf("CountPasses() error = %v", err)
			}
		})
	}
}

func TestNewEngine_RejectsMissingBackend(t *testing.T) {
	a := openTestApp(t, testConfig(t))
	table, err := ruleset.NewLoader(nil, nil).Parse([]byte(`{
	  "INGEST": {"functionName": "ingestionS3Rule", "options": {}, "conditions": []}
	}`), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	_, err = a.newEngine(table)
	if err == nil {
		t.Fatal("expected an error for a rule needing the object store")
	}
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("ExitCode() = %d, want %d (err %v)", code, cli.ExitConfig, err)
	}
}

func TestAsConfigError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "rule table problems", err: &ruleset.ConfigError{Source: "rules.json"}, want: cli.ExitConfig},
		{name: "unreadable rule file", err: &ruleset.LoadError{FilePath: "rules.json", Message: "not found"}, want: cli.ExitConfig},
		{name: "engine configuration", err: fmt.Errorf("%w: workers", engine.ErrInvalidConfig), want: cli.ExitConfig},
		{name: "other", err: errors.New("disk full"), want: cli.ExitFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cli.ExitCode(asConfigError(tt.err)); got != tt.want {
				t.Errorf("ExitCode(asConfigError()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestServiceConfig_ResolvesSecrets(t *testing.T) {
	secretDir := t.TempDir()
	writeFile(t, filepath.Join(secretDir, "handle-token"), "file-token\n")
	if err := os.Chmod(filepath.Join(secretDir, "handle-token"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CALLISTO_SECRET_REPLICATION_TOKEN", "env-token")

	cfg := testConfig(t)
	cfg.Secrets.Dir = secretDir
	a := openTestApp(t, cfg)

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr bool
	}{
		{name: "literal", token: "plain", want: "plain"},
		{name: "file secret", token: "${secret:handle-token}", want: "file-token"},
		{name: "env secret", token: "${secret:replication-token}", want: "env-token"},
		{name: "missing secret", token: "${secret:unknown-token}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := a.serviceConfig(context.Background(), "handle", &config.ServiceConfig{
				Enabled: true,
				BaseURL: "http://pid.example.org",
				Token:   tt.token,
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("serviceConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if code := cli.ExitCode(err); code != cli.ExitConfig {
					t.Errorf("ExitCode() = %d, want %d", code, cli.ExitConfig)
				}
				return
			}
			if svc.Token != tt.want {
				t.Errorf("Token = %q, want %q", svc.Token, tt.want)
			}
		})
	}
}

func TestOpenApp_MissingSecretsDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Secrets.Dir = filepath.Join(t.TempDir(), "missing")

	_, err := openApp(context.Background(), cfg)
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("ExitCode() = %d, want %d (err %v)", code, cli.ExitConfig, err)
	}
}
