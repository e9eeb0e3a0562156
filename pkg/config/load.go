package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CALLISTO_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration file %q: %w", path, err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CALLISTO_SECTION_FIELD (e.g., CALLISTO_ARCHIVE_ROOT).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
//
// An empty path skips the file and starts from defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = &Config{}
		ApplyDefaults(cfg)
	} else {
		var err error
		if cfg, err = parseFile(path); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// envOverrides collects the first parse error of an override.
type envOverrides struct {
	err error
}

func (o *envOverrides) lookup(name string) (string, bool) {
	val := os.Getenv(EnvPrefix + name)
	return val, val != ""
}

func (o *envOverrides) fail(name, val string, err error) {
	if o.err == nil {
		o.err = fmt.Errorf("invalid value %q for %s%s: %w", val, EnvPrefix, name, err)
	}
}

func (o *envOverrides) str(name string, dst *string) {
	if val, ok := o.lookup(name); ok {
		*dst = val
	}
}

func (o *envOverrides) boolean(name string, dst *bool) {
	if val, ok := o.lookup(name); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			o.fail(name, val, err)
			return
		}
		*dst = b
	}
}

func (o *envOverrides) integer(name string, dst *int) {
	if val, ok := o.lookup(name); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			o.fail(name, val, err)
			return
		}
		*dst = i
	}
}

func (o *envOverrides) integer64(name string, dst *int64) {
	if val, ok := o.lookup(name); ok {
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			o.fail(name, val, err)
			return
		}
		*dst = i
	}
}

func (o *envOverrides) float(name string, dst *float64) {
	if val, ok := o.lookup(name); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			o.fail(name, val, err)
			return
		}
		*dst = f
	}
}

func (o *envOverrides) duration(name string, dst *time.Duration) {
	if val, ok := o.lookup(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			o.fail(name, val, err)
			return
		}
		*dst = d
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format CALLISTO_SECTION_FIELD. A value that
// does not parse is an error.
func applyEnvOverrides(cfg *Config) error {
	o := &envOverrides{}

	// Archive and rules
	o.str("ARCHIVE_ROOT", &cfg.Archive.Root)
	o.str("RULES_RULES_PATH", &cfg.Rules.RulesPath)
	o.str("RULES_SEQUENCE_PATH", &cfg.Rules.SequencePath)
	o.duration("RULES_DEFAULT_TIMEOUT", &cfg.Rules.DefaultTimeout)
	o.integer64("RULES_MAX_FILE_SIZE", &cfg.Rules.MaxFileSize)
	o.boolean("RULES_WATCH", &cfg.Rules.Watch)
	o.boolean("RULES_GIT_ENABLED", &cfg.Rules.Git.Enabled)
	o.str("RULES_GIT_REPOSITORY", &cfg.Rules.Git.Repository)
	o.str("RULES_GIT_BRANCH", &cfg.Rules.Git.Branch)
	o.str("RULES_GIT_CHECKOUT", &cfg.Rules.Git.Checkout)
	o.duration("RULES_GIT_POLL_INTERVAL", &cfg.Rules.Git.PollInterval)
	o.str("RULES_GIT_AUTH_TYPE", &cfg.Rules.Git.Auth.Type)
	o.str("RULES_GIT_AUTH_TOKEN", &cfg.Rules.Git.Auth.Token)

	// Engine
	o.integer("ENGINE_WORKERS", &cfg.Engine.Workers)
	o.str("ENGINE_LOCK_DIR", &cfg.Engine.LockDir)
	o.duration("ENGINE_STOP_GRACE", &cfg.Engine.StopGrace)

	// Backends
	o.boolean("OBJECT_STORE_ENABLED", &cfg.ObjectStore.Enabled)
	o.str("OBJECT_STORE_URL", &cfg.ObjectStore.URL)
	o.str("OBJECT_STORE_PREFIX", &cfg.ObjectStore.Prefix)
	o.boolean("CATALOG_ENABLED", &cfg.Catalog.Enabled)
	o.str("CATALOG_PATH", &cfg.Catalog.Path)
	applyServiceEnvOverrides(o, "HANDLE_", &cfg.Handle)
	applyServiceEnvOverrides(o, "REPLICATION_", &cfg.Replication)
	o.boolean("REPACK_ENABLED", &cfg.Repack.Enabled)
	o.str("REPACK_DATASELECT_PATH", &cfg.Repack.DataselectPath)
	o.str("REPACK_MSREPACK_PATH", &cfg.Repack.MsrepackPath)
	o.str("METADATA_PUBLISHER", &cfg.Metadata.Publisher)

	// Ledger
	o.str("LEDGER_BACKEND", &cfg.Ledger.Backend)
	o.str("LEDGER_SQLITE_PATH", &cfg.Ledger.SQLite.Path)
	o.boolean("LEDGER_SQLITE_WAL_MODE", &cfg.Ledger.SQLite.WALMode)
	o.duration("LEDGER_SQLITE_BUSY_TIMEOUT", &cfg.Ledger.SQLite.BusyTimeout)
	o.integer("LEDGER_RETENTION_DAYS", &cfg.Ledger.Retention.Days)
	o.integer("LEDGER_RETENTION_MAX_PASSES", &cfg.Ledger.Retention.MaxPasses)
	o.str("LEDGER_RETENTION_PRUNE_SCHEDULE", &cfg.Ledger.Retention.PruneSchedule)

	// Schedule
	o.str("SCHEDULE_CRON", &cfg.Schedule.Cron)
	o.integer("SCHEDULE_PAST_DAYS", &cfg.Schedule.PastDays)

	// Secrets
	o.str("SECRETS_ENV_PREFIX", &cfg.Secrets.EnvPrefix)
	o.str("SECRETS_DIR", &cfg.Secrets.Dir)
	o.duration("SECRETS_CACHE_TTL", &cfg.Secrets.CacheTTL)

	// Telemetry
	o.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	o.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	o.boolean("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	o.boolean("TELEMETRY_LOGGING_REDACT_SECRETS", &cfg.Telemetry.Logging.RedactSecrets)
	o.boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	o.str("TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	o.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	o.boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	o.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	o.boolean("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
	o.str("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	o.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
	o.boolean("TELEMETRY_HEALTH_ENABLED", &cfg.Telemetry.Health.Enabled)
	o.duration("TELEMETRY_HEALTH_MAX_PASS_AGE", &cfg.Telemetry.Health.MaxPassAge)

	return o.err
}

// applyServiceEnvOverrides applies the overrides of one HTTP service, for
// example CALLISTO_HANDLE_TOKEN.
func applyServiceEnvOverrides(o *envOverrides, prefix string, svc *ServiceConfig) {
	o.boolean(prefix+"ENABLED", &svc.Enabled)
	o.str(prefix+"BASE_URL", &svc.BaseURL)
	o.str(prefix+"TOKEN", &svc.Token)
	o.duration(prefix+"TIMEOUT", &svc.Timeout)
	o.integer(prefix+"RETRY_COUNT", &svc.RetryCount)
}
