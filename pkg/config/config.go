package config

import "time"

// Config is the root configuration structure for callisto.
// It describes the archive, the rule files, the engine, every external
// backend, the ledger, the daemon schedule and telemetry.
type Config struct {
	// Archive contains the location of the SDS archive.
	Archive ArchiveConfig `yaml:"archive"`

	// Rules contains the rule map and rule sequence files.
	Rules RulesConfig `yaml:"rules"`

	// Engine contains pass execution settings.
	Engine EngineConfig `yaml:"engine"`

	// ObjectStore contains the object store used for ingestion.
	ObjectStore ObjectStoreConfig `yaml:"object_store"`

	// Catalog contains the waveform catalog database.
	Catalog CatalogConfig `yaml:"catalog"`

	// Handle contains the PID (handle) service client.
	Handle ServiceConfig `yaml:"handle"`

	// Replication contains the replication service client.
	Replication ServiceConfig `yaml:"replication"`

	// Repack contains the external repacking tools.
	Repack RepackConfig `yaml:"repack"`

	// Metadata contains settings of the metadata extractor.
	Metadata MetadataConfig `yaml:"metadata"`

	// Ledger contains the pass ledger storage and retention.
	Ledger LedgerConfig `yaml:"ledger"`

	// Schedule contains the daemon schedule.
	Schedule ScheduleConfig `yaml:"schedule"`

	// Secrets contains the sources of ${secret:name} references.
	Secrets SecretsConfig `yaml:"secrets"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ArchiveConfig describes the SDS archive.
type ArchiveConfig struct {
	// Root is the archive root directory holding YEAR/NET/STA/CHA.Q trees.
	// Default: "/data/archive"
	Root string `yaml:"root" validate:"required"`
}

// RulesConfig describes the rule table files.
type RulesConfig struct {
	// RulesPath is the rule map JSON file.
	// Default: "rules.json"
	RulesPath string `yaml:"rules_path" validate:"required"`

	// SequencePath is the optional rule sequence JSON file selecting and
	// ordering the rules.
	SequencePath string `yaml:"sequence_path"`

	// DefaultTimeout bounds actions of rules without a timeout.
	// Default: 30s
	DefaultTimeout time.Duration `yaml:"default_timeout" validate:"gt=0"`

	// MaxFileSize is the largest accepted rule file in bytes.
	// Default: 1048576 (1MB)
	MaxFileSize int64 `yaml:"max_file_size" validate:"gt=0"`

	// Watch reloads the rule table when the files change (daemon only).
	// Default: true
	Watch bool `yaml:"watch"`

	// Git checks the rule files out of a git repository. RulesPath and
	// SequencePath are then relative to the checkout.
	Git RulesGitConfig `yaml:"git"`
}

// RulesGitConfig describes a git repository holding the rule files.
type RulesGitConfig struct {
	// Enabled controls whether the rules come from git.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Repository is the clone URL (HTTPS, SSH or a local path).
	Repository string `yaml:"repository" validate:"required_if=Enabled true"`

	// Branch is the tracked branch.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Checkout is the local working copy.
	// Default: "data/rules"
	Checkout string `yaml:"checkout"`

	// Depth limits the clone history. 0 clones everything.
	Depth int `yaml:"depth" validate:"gte=0"`

	// PollInterval is how often the daemon pulls. 0 disables polling.
	// Default: 5m
	PollInterval time.Duration `yaml:"poll_interval" validate:"gte=0"`

	// Timeout bounds each clone or pull.
	// Default: 1m
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// Auth configures repository authentication.
	Auth GitAuthConfig `yaml:"auth"`
}

// GitAuthConfig configures git authentication.
type GitAuthConfig struct {
	// Type is "none", "token" (HTTPS) or "ssh".
	// Default: "none"
	Type string `yaml:"type" validate:"omitempty,oneof=none token ssh"`

	// Token is the HTTPS access token. It may hold ${secret:name}
	// references.
	Token string `yaml:"token" validate:"required_if=Type token"`

	// SSHKeyPath is the private key for SSH.
	SSHKeyPath string `yaml:"ssh_key_path" validate:"required_if=Type ssh"`

	// SSHKeyPassphrase unlocks an encrypted key. It may hold
	// ${secret:name} references.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// EngineConfig contains pass execution settings.
type EngineConfig struct {
	// Workers is the number of files evaluated concurrently.
	// Default: 4
	Workers int `yaml:"workers" validate:"min=1,max=256"`

	// LockDir holds per-file lock files shared with other processes.
	// Empty restricts locking to the process.
	LockDir string `yaml:"lock_dir"`

	// StopGrace is how long a cancelled action may take to return.
	// Default: 10s
	StopGrace time.Duration `yaml:"stop_grace" validate:"gt=0"`
}

// ObjectStoreConfig describes the object store.
type ObjectStoreConfig struct {
	// Enabled controls whether the object store is configured.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// URL is a gocloud.dev bucket URL, for example "s3://bucket?region=eu-west-1",
	// "file:///data/objects" or "mem://".
	URL string `yaml:"url" validate:"required_if=Enabled true"`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`
}

// CatalogConfig describes the waveform catalog database.
type CatalogConfig struct {
	// Enabled controls whether the catalog is configured.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file.
	// Default: "data/catalog.db"
	Path string `yaml:"path" validate:"required_if=Enabled true"`
}

// ServiceConfig describes an HTTP service client.
type ServiceConfig struct {
	// Enabled controls whether the service is configured.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// BaseURL is the service root URL.
	BaseURL string `yaml:"base_url" validate:"required_if=Enabled true,omitempty,url"`

	// Token is sent as a bearer token. It may hold ${secret:name}
	// references resolved through the secrets section.
	Token string `yaml:"token"`

	// Timeout bounds each request.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// RetryCount is the number of retries on transient errors. -1
	// disables retries.
	// Default: 3
	RetryCount int `yaml:"retry_count" validate:"gte=-1,lte=10"`
}

// RepackConfig describes the repacking tools.
type RepackConfig struct {
	// Enabled controls whether a repacker is configured.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// DataselectPath is the dataselect executable.
	// Default: "dataselect"
	DataselectPath string `yaml:"dataselect_path"`

	// MsrepackPath is the msrepack executable.
	// Default: "msrepack"
	MsrepackPath string `yaml:"msrepack_path"`
}

// MetadataConfig configures the metadata extractor.
type MetadataConfig struct {
	// Publisher is written into Dublin Core documents.
	// Default: "ORFEUS Data Center"
	Publisher string `yaml:"publisher"`
}

// LedgerConfig describes pass ledger storage.
type LedgerConfig struct {
	// Backend selects the storage.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend" validate:"oneof=sqlite memory"`

	// SQLite configures the SQLite backend.
	SQLite LedgerSQLiteConfig `yaml:"sqlite"`

	// Retention configures pass report retention.
	Retention RetentionConfig `yaml:"retention"`
}

// LedgerSQLiteConfig configures the SQLite ledger.
type LedgerSQLiteConfig struct {
	// Path is the database file.
	// Default: "data/ledger.db"
	Path string `yaml:"path"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout" validate:"gte=0"`
}

// RetentionConfig configures pass report retention.
type RetentionConfig struct {
	// Days is the number of days to keep pass reports. 0 keeps them forever.
	// Default: 90
	Days int `yaml:"days" validate:"gte=0"`

	// MaxPasses is the maximum number of pass reports. 0 means unlimited.
	// Default: 0
	MaxPasses int `yaml:"max_passes" validate:"gte=0"`

	// PruneSchedule is a cron expression for pruning. Empty disables it.
	// Default: "0 4 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// ScheduleConfig configures the daemon.
type ScheduleConfig struct {
	// Cron is the pass schedule as a cron expression.
	// Default: "0 * * * *" (hourly)
	Cron string `yaml:"cron" validate:"required"`

	// PastDays selects the files of the PastDays-1 days before each
	// pass, the day of the pass excluded.
	// Default: 7
	PastDays int `yaml:"past_days" validate:"min=1"`
}

// SecretsConfig describes where secret references are looked up.
type SecretsConfig struct {
	// EnvPrefix prefixes the environment variable of each secret: the
	// secret "handle-token" is read from CALLISTO_SECRET_HANDLE_TOKEN.
	// Default: "CALLISTO_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret, consulted before the environment.
	// Files must not be readable by group or others.
	Dir string `yaml:"dir"`

	// CacheTTL is how long a resolved secret is reused. 0 disables caching.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

// TelemetryConfig contains logging and metrics configuration.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing configures OpenTelemetry tracing.
	Tracing TracingConfig `yaml:"tracing"`

	// Health configures the health endpoints served next to metrics.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level: "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format" validate:"oneof=json text console"`

	// AddSource adds the source location to log records.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets removes credentials from log records.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled controls whether the daemon serves metrics.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the metrics server address.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address" validate:"required_if=Enabled true,omitempty,hostname_port"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path" validate:"required_if=Enabled true,omitempty,startswith=/"`
}

// TracingConfig configures OpenTelemetry tracing of passes and actions.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint" validate:"required_if=Enabled true,omitempty,hostname_port"`

	// Insecure disables TLS towards the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// Sampler is "always", "never" or "ratio".
	// Default: "always"
	Sampler string `yaml:"sampler" validate:"oneof=always never ratio"`

	// SampleRatio is the sampled fraction for the "ratio" sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "callisto"
	ServiceName string `yaml:"service_name"`
}

// HealthConfig configures the health endpoints.
type HealthConfig struct {
	// Enabled controls whether the daemon serves /health and /ready.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// MaxPassAge marks the daemon not ready when no pass finished within
	// this duration. 0 disables the check.
	// Default: 0
	MaxPassAge time.Duration `yaml:"max_pass_age" validate:"gte=0"`

	// CheckTimeout bounds each readiness check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout" validate:"gte=0"`
}
