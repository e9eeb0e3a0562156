package config

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with defaults applied. The
// resulting configuration is valid and can be used immediately.
func NewTestConfig() *ConfigBuilder {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Archive.Root = "/tmp/archive"
	cfg.Ledger.Backend = "memory"
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithWorkers sets the engine worker count.
func (b *ConfigBuilder) WithWorkers(n int) *ConfigBuilder {
	b.cfg.Engine.Workers = n
	return b
}

// WithReplication enables the replication service.
func (b *ConfigBuilder) WithReplication(baseURL string) *ConfigBuilder {
	b.cfg.Replication.Enabled = true
	b.cfg.Replication.BaseURL = baseURL
	return b
}

// WithObjectStore enables the object store.
func (b *ConfigBuilder) WithObjectStore(url string) *ConfigBuilder {
	b.cfg.ObjectStore.Enabled = true
	b.cfg.ObjectStore.URL = url
	return b
}

// WithSchedule sets the daemon cron schedule.
func (b *ConfigBuilder) WithSchedule(cron string) *ConfigBuilder {
	b.cfg.Schedule.Cron = cron
	return b
}

// MinimalConfig returns a minimal valid configuration for testing.
func MinimalConfig() *Config {
	return NewTestConfig().Build()
}
