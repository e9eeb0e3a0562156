package config

import "time"

// Default values for configuration fields.
const (
	// Archive defaults
	DefaultArchiveRoot = "/data/archive"

	// Rules defaults
	DefaultRulesPath    = "rules.json"
	DefaultRuleTimeout  = 30 * time.Second
	DefaultRuleFileSize = int64(1 << 20) // 1MB
	DefaultRulesWatch   = true
	DefaultGitBranch    = "main"
	DefaultGitCheckout  = "data/rules"
	DefaultGitPoll      = 5 * time.Minute
	DefaultGitTimeout   = time.Minute
	DefaultGitAuthType  = "none"

	// Engine defaults
	DefaultEngineWorkers = 4
	DefaultStopGrace     = 10 * time.Second

	// Backend defaults
	DefaultCatalogPath    = "data/catalog.db"
	DefaultServiceTimeout = 30 * time.Second
	DefaultServiceRetries = 3
	DefaultRepackEnabled  = true
	DefaultDataselectPath = "dataselect"
	DefaultMsrepackPath   = "msrepack"
	DefaultPublisher      = "ORFEUS Data Center"

	// Ledger defaults
	DefaultLedgerBackend     = "sqlite"
	DefaultLedgerSQLitePath  = "data/ledger.db"
	DefaultLedgerWALMode     = true
	DefaultLedgerBusyTimeout = 5 * time.Second
	DefaultRetentionDays     = 90
	DefaultRetentionSchedule = "0 4 * * *"

	// Schedule defaults
	DefaultScheduleCron     = "0 * * * *"
	DefaultSchedulePastDays = 7

	// Secrets defaults
	DefaultSecretsEnvPrefix = "CALLISTO_SECRET_"
	DefaultSecretsCacheTTL  = 5 * time.Minute

	// Telemetry defaults
	DefaultLoggingLevel    = "info"
	DefaultLoggingFormat   = "json"
	DefaultLoggingRedact   = true
	DefaultMetricsEnabled  = true
	DefaultMetricsListen   = "127.0.0.1:9464"
	DefaultPrometheusPath  = "/metrics"
	DefaultTracingEndpoint = "localhost:4317"
	DefaultTracingTimeout  = 10 * time.Second
	DefaultTracingSampler  = "always"
	DefaultTracingRatio    = 1.0
	DefaultServiceName     = "callisto"
	DefaultHealthEnabled   = true
	DefaultHealthTimeout   = 5 * time.Second
)

// ApplyDefaults fills in zero-valued fields of cfg with their defaults.
// Boolean fields whose default is true are only set when the whole
// section is unset, so an explicit false in a file is kept.
func ApplyDefaults(cfg *Config) {
	applyArchiveDefaults(&cfg.Archive)
	applyRulesDefaults(&cfg.Rules)
	applyEngineDefaults(&cfg.Engine)
	applyCatalogDefaults(&cfg.Catalog)
	applyServiceDefaults(&cfg.Handle)
	applyServiceDefaults(&cfg.Replication)
	applyRepackDefaults(&cfg.Repack)
	applyMetadataDefaults(&cfg.Metadata)
	applyLedgerDefaults(&cfg.Ledger)
	applyScheduleDefaults(&cfg.Schedule)
	applySecretsDefaults(&cfg.Secrets)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyArchiveDefaults(cfg *ArchiveConfig) {
	if cfg.Root == "" {
		cfg.Root = DefaultArchiveRoot
	}
}

func applyRulesDefaults(cfg *RulesConfig) {
	if *cfg == (RulesConfig{}) {
		cfg.Watch = DefaultRulesWatch
	}
	if cfg.RulesPath == "" {
		cfg.RulesPath = DefaultRulesPath
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = DefaultRuleTimeout
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = DefaultRuleFileSize
	}
	applyGitDefaults(&cfg.Git)
}

func applyGitDefaults(cfg *RulesGitConfig) {
	if *cfg == (RulesGitConfig{}) {
		cfg.PollInterval = DefaultGitPoll
	}
	if cfg.Branch == "" {
		cfg.Branch = DefaultGitBranch
	}
	if cfg.Checkout == "" {
		cfg.Checkout = DefaultGitCheckout
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultGitTimeout
	}
	if cfg.Auth.Type == "" {
		cfg.Auth.Type = DefaultGitAuthType
	}
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = DefaultEngineWorkers
	}
	if cfg.StopGrace == 0 {
		cfg.StopGrace = DefaultStopGrace
	}
}

func applyCatalogDefaults(cfg *CatalogConfig) {
	if cfg.Path == "" {
		cfg.Path = DefaultCatalogPath
	}
}

func applyServiceDefaults(cfg *ServiceConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultServiceTimeout
	}
	if cfg.RetryCount == 0 {
		cfg.RetryCount = DefaultServiceRetries
	}
}

func applyRepackDefaults(cfg *RepackConfig) {
	if *cfg == (RepackConfig{}) {
		cfg.Enabled = DefaultRepackEnabled
	}
	if cfg.DataselectPath == "" {
		cfg.DataselectPath = DefaultDataselectPath
	}
	if cfg.MsrepackPath == "" {
		cfg.MsrepackPath = DefaultMsrepackPath
	}
}

func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Publisher == "" {
		cfg.Publisher = DefaultPublisher
	}
}

func applyLedgerDefaults(cfg *LedgerConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultLedgerBackend
	}
	if cfg.SQLite == (LedgerSQLiteConfig{}) {
		cfg.SQLite.WALMode = DefaultLedgerWALMode
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultLedgerSQLitePath
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultLedgerBusyTimeout
	}
	if cfg.Retention == (RetentionConfig{}) {
		cfg.Retention.Days = DefaultRetentionDays
		cfg.Retention.PruneSchedule = DefaultRetentionSchedule
	}
}

func applyScheduleDefaults(cfg *ScheduleConfig) {
	if cfg.Cron == "" {
		cfg.Cron = DefaultScheduleCron
	}
	if cfg.PastDays == 0 {
		cfg.PastDays = DefaultSchedulePastDays
	}
}

func applySecretsDefaults(cfg *SecretsConfig) {
	if *cfg == (SecretsConfig{}) {
		cfg.CacheTTL = DefaultSecretsCacheTTL
	}
	if cfg.EnvPrefix == "" {
		cfg.EnvPrefix = DefaultSecretsEnvPrefix
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging == (LoggingConfig{}) {
		cfg.Logging.RedactSecrets = DefaultLoggingRedact
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics == (MetricsConfig{}) {
		cfg.Metrics.Enabled = DefaultMetricsEnabled
	}
	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsListen
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultPrometheusPath
	}

	if cfg.Tracing == (TracingConfig{}) {
		cfg.Tracing.SampleRatio = DefaultTracingRatio
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultServiceName
	}

	if cfg.Health == (HealthConfig{}) {
		cfg.Health.Enabled = DefaultHealthEnabled
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthTimeout
	}
}
