package config

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	tests := []struct {
		name  string
		input Config
		check func(*testing.T, *Config)
	}{
		{
			name:  "empty config gets all defaults",
			input: Config{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Archive.Root != DefaultArchiveRoot {
					t.Errorf("expected archive root %q, got %q", DefaultArchiveRoot, cfg.Archive.Root)
				}
				if cfg.Rules.RulesPath != DefaultRulesPath {
					t.Errorf("expected rules path %q, got %q", DefaultRulesPath, cfg.Rules.RulesPath)
				}
				if !cfg.Rules.Watch {
					t.Error("expected rule watching to default to true")
				}
				if cfg.Rules.DefaultTimeout != DefaultRuleTimeout {
					t.Errorf("expected rule timeout %v, got %v", DefaultRuleTimeout, cfg.Rules.DefaultTimeout)
				}
				if cfg.Engine.Workers != DefaultEngineWorkers {
					t.Errorf("expected workers %d, got %d", DefaultEngineWorkers, cfg.Engine.Workers)
				}
				if cfg.Handle.RetryCount != DefaultServiceRetries {
					t.Errorf("expected retries %d, got %d", DefaultServiceRetries, cfg.Handle.RetryCount)
				}
				if !cfg.Repack.Enabled {
					t.Error("expected repack to default to enabled")
				}
				if cfg.Ledger.Backend != DefaultLedgerBackend {
					t.Errorf("expected ledger backend %q, got %q", DefaultLedgerBackend, cfg.Ledger.Backend)
				}
				if !cfg.Ledger.SQLite.WALMode {
					t.Error("expected WAL mode to default to true")
				}
				if cfg.Ledger.Retention.Days != DefaultRetentionDays {
					t.Errorf("expected retention days %d, got %d", DefaultRetentionDays, cfg.Ledger.Retention.Days)
				}
				if cfg.Schedule.Cron != DefaultScheduleCron {
					t.Errorf("expected cron %q, got %q", DefaultScheduleCron, cfg.Schedule.Cron)
				}
				if cfg.Telemetry.Logging.Level != DefaultLoggingLevel {
					t.Errorf("expected logging level %q, got %q", DefaultLoggingLevel, cfg.Telemetry.Logging.Level)
				}
				if !cfg.Telemetry.Metrics.Enabled {
					t.Error("expected metrics to default to enabled")
				}
				if cfg.Secrets.EnvPrefix != DefaultSecretsEnvPrefix || cfg.Secrets.CacheTTL != DefaultSecretsCacheTTL {
					t.Errorf("unexpected secrets defaults: %+v", cfg.Secrets)
				}
			},
		},
		{
			name:  "secrets directory without cache",
			input: Config{Secrets: SecretsConfig{Dir: "/run/secrets"}},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Secrets.CacheTTL != 0 {
					t.Errorf("expected caching to stay disabled, got %v", cfg.Secrets.CacheTTL)
				}
				if cfg.Secrets.EnvPrefix != DefaultSecretsEnvPrefix {
					t.Errorf("expected env prefix %q, got %q", DefaultSecretsEnvPrefix, cfg.Secrets.EnvPrefix)
				}
			},
		},
		{
			name: "explicit values are kept",
			input: Config{
				Engine:   EngineConfig{Workers: 16, StopGrace: time.Second},
				Schedule: ScheduleConfig{Cron: "*/5 * * * *", PastDays: 1},
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Engine.Workers != 16 {
					t.Errorf("expected workers 16, got %d", cfg.Engine.Workers)
				}
				if cfg.Engine.StopGrace != time.Second {
					t.Errorf("expected stop grace 1s, got %v", cfg.Engine.StopGrace)
				}
				if cfg.Schedule.Cron != "*/5 * * * *" {
					t.Errorf("expected cron to be kept, got %q", cfg.Schedule.Cron)
				}
			},
		},
		{
			name: "false booleans in a configured section are kept",
			input: Config{
				Rules:  RulesConfig{RulesPath: "custom.json"},
				Repack: RepackConfig{DataselectPath: "/opt/dataselect"},
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Rules.Watch {
					t.Error("expected watch to stay false")
				}
				if cfg.Repack.Enabled {
					t.Error("expected repack to stay disabled")
				}
				if cfg.Repack.MsrepackPath != DefaultMsrepackPath {
					t.Errorf("expected msrepack path %q, got %q", DefaultMsrepackPath, cfg.Repack.MsrepackPath)
				}
			},
		},
		{
			name: "retention section set keeps empty prune schedule",
			input: Config{
				Ledger: LedgerConfig{Retention: RetentionConfig{MaxPasses: 10}},
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Ledger.Retention.PruneSchedule != "" {
					t.Errorf("expected no prune schedule, got %q", cfg.Ledger.Retention.PruneSchedule)
				}
				if cfg.Ledger.Retention.Days != 0 {
					t.Errorf("expected unlimited days, got %d", cfg.Ledger.Retention.Days)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.input
			ApplyDefaults(&cfg)
			tt.check(t, &cfg)
		})
	}
}

func TestApplyDefaults_Validates(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
}
