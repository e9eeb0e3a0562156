package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/backend/catalog"
	"mercator-hq/callisto/pkg/backend/handle"
	"mercator-hq/callisto/pkg/backend/metadata"
	"mercator-hq/callisto/pkg/backend/objectstore"
	"mercator-hq/callisto/pkg/backend/repack"
	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/inventory"
	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/ledger/storage"
	"mercator-hq/callisto/pkg/policy/engine"
	"mercator-hq/callisto/pkg/policy/git"
	"mercator-hq/callisto/pkg/policy/manager"
	"mercator-hq/callisto/pkg/policy/ruleset"
	"mercator-hq/callisto/pkg/security/secrets"
	"mercator-hq/callisto/pkg/telemetry/logging"
)

// loadConfig loads the configuration with environment overrides and
// installs the default logger. Callers pass the result down explicitly.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.WrapConfigError("failed to load config", err)
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:         cfg.Telemetry.Logging.Level,
		Format:        cfg.Telemetry.Logging.Format,
		AddSource:     cfg.Telemetry.Logging.AddSource,
		RedactSecrets: cfg.Telemetry.Logging.RedactSecrets,
	})
	if err != nil {
		return nil, cli.WrapConfigError("invalid logging configuration", err)
	}
	slog.SetDefault(logger)
	return cfg, nil
}

// app holds the backends opened for one command.
type app struct {
	cfg     *config.Config
	ledger  ledger.Storage
	secrets *secrets.Manager
	env     *backend.Env
	closers []func() error

	// rulesRepo is the git working copy of the rule files, nil when the
	// rules are plain files.
	rulesRepo *git.Repository
}

// openApp opens the ledger and every configured backend.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	mgr, err := openSecrets(&cfg.Secrets)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, secrets: mgr}

	store, err := openLedger(&cfg.Ledger)
	if err != nil {
		return nil, err
	}
	a.ledger = store
	a.closers = append(a.closers, store.Close)

	env, err := a.openBackends(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.env = env

	if err := a.syncRules(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// syncRules checks the rule files out of git when rules.git is enabled
// and points the rule paths into the working copy.
func (a *app) syncRules(ctx context.Context) error {
	cfg := &a.cfg.Rules
	if !cfg.Git.Enabled {
		return nil
	}

	authCfg := cfg.Git.Auth
	var err error
	if authCfg.Token, err = a.secrets.Resolve(ctx, authCfg.Token); err != nil {
		return cli.WrapConfigError("rules.git.auth.token", err)
	}
	if authCfg.SSHKeyPassphrase, err = a.secrets.Resolve(ctx, authCfg.SSHKeyPassphrase); err != nil {
		return cli.WrapConfigError("rules.git.auth.ssh_key_passphrase", err)
	}
	auth, err := git.NewAuth(&authCfg)
	if err != nil {
		return cli.WrapConfigError("invalid rules.git.auth", err)
	}
	repo, err := git.NewRepository(&cfg.Git, auth)
	if err != nil {
		return cli.WrapConfigError("invalid rules.git", err)
	}

	res, err := repo.Sync(ctx)
	if err != nil {
		return err
	}
	slog.Info("rule repository synced",
		"repository", cfg.Git.Repository,
		"branch", cfg.Git.Branch,
		"commit", res.To,
	)
	a.rulesRepo = repo
	return nil
}

// rulePaths returns the rule map and sequence files to load.
func (a *app) rulePaths() (rules, sequence string) {
	rules, sequence = a.cfg.Rules.RulesPath, a.cfg.Rules.SequencePath
	if a.rulesRepo == nil {
		return rules, sequence
	}
	if sequence != "" {
		sequence = a.rulesRepo.Path(sequence)
	}
	return a.rulesRepo.Path(rules), sequence
}

// rulesSyncer polls the rule repository and reloads the manager, or
// returns nil when the rules are not in git or polling is off.
func (a *app) rulesSyncer(mgr *manager.RuleManager) *git.Syncer {
	if a.rulesRepo == nil || a.cfg.Rules.Git.PollInterval <= 0 {
		return nil
	}
	watched := []string{a.cfg.Rules.RulesPath, a.cfg.Rules.SequencePath}
	return git.NewSyncer(a.rulesRepo, a.cfg.Rules.Git.PollInterval, watched, func() error {
		_, err := mgr.Reload()
		return err
	}, slog.Default())
}

// openSecrets returns the manager resolving ${secret:name} references,
// reading the secrets directory before the environment.
func openSecrets(cfg *config.SecretsConfig) (*secrets.Manager, error) {
	var providers []secrets.Provider
	if cfg.Dir != "" {
		files, err := secrets.NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, cli.WrapConfigError("invalid secrets.dir", err)
		}
		providers = append(providers, files)
	}
	providers = append(providers, secrets.NewEnvProvider(cfg.EnvPrefix))
	return secrets.NewManager(secrets.CacheConfig{TTL: cfg.CacheTTL}, providers...), nil
}

func openLedger(cfg *config.LedgerConfig) (ledger.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryStorageWithClock(clock), nil
	case "sqlite":
		if err := ensureDir(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:        cfg.SQLite.Path,
			WALMode:     cfg.SQLite.WALMode,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		}, clock)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		return store, nil
	default:
		return nil, cli.NewConfigError("ledger.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend))
	}
}

// openBackends builds the backend environment. Backends that are not
// enabled stay nil; rules that need them are rejected when compiled.
func (a *app) openBackends(ctx context.Context) (*backend.Env, error) {
	cfg := a.cfg
	env := &backend.Env{
		Archive:   inventory.NewOSArchive(cfg.Archive.Root),
		Extractor: metadata.New(metadata.Config{Publisher: cfg.Metadata.Publisher}),
		Deletions: a.ledger,
	}

	if cfg.ObjectStore.Enabled {
		store, err := objectstore.Open(ctx, cfg.ObjectStore.URL, cfg.ObjectStore.Prefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		env.ObjectStore = store
	}

	if cfg.Catalog.Enabled {
		if err := ensureDir(cfg.Catalog.Path); err != nil {
			return nil, err
		}
		store, err := catalog.Open(cfg.Catalog.Path, clock)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		env.Catalog = store
	}

	if cfg.Handle.Enabled {
		svc, err := a.serviceConfig(ctx, "handle", &cfg.Handle)
		if err != nil {
			return nil, err
		}
		env.PIDs = handle.NewPIDClient(svc)
	}
	if cfg.Replication.Enabled {
		svc, err := a.serviceConfig(ctx, "replication", &cfg.Replication)
		if err != nil {
			return nil, err
		}
		env.Replicator = handle.NewReplicationClient(svc)
	}

	if cfg.Repack.Enabled {
		env.Repacker = repack.New(repack.Config{
			DataselectPath: cfg.Repack.DataselectPath,
			MsrepackPath:   cfg.Repack.MsrepackPath,
		})
	}

	return env, nil
}

// serviceConfig builds a client configuration, resolving secret
// references in the token.
func (a *app) serviceConfig(ctx context.Context, section string, cfg *config.ServiceConfig) (handle.Config, error) {
	token, err := a.secrets.Resolve(ctx, cfg.Token)
	if err != nil {
		return handle.Config{}, cli.WrapConfigError(section+".token", err)
	}
	return handle.Config{
		BaseURL:    cfg.BaseURL,
		Token:      token,
		Timeout:    cfg.Timeout,
		RetryCount: cfg.RetryCount,
	}, nil
}

// loader returns the rule loader configured from the rules section.
func (a *app) loader() *ruleset.Loader {
	return ruleset.NewLoader(nil, &ruleset.LoaderConfig{
		DefaultTimeout: a.cfg.Rules.DefaultTimeout,
		MaxFileSize:    a.cfg.Rules.MaxFileSize,
	})
}

// loadRules reads and validates the rule table.
func (a *app) loadRules() (*ruleset.Table, error) {
	rules, sequence := a.rulePaths()
	table, err := a.loader().Load(rules, sequence)
	if err != nil {
		return nil, asConfigError(err)
	}
	return table, nil
}

// ruleManager returns a manager for the configured rule files.
func (a *app) ruleManager() (*manager.RuleManager, error) {
	rules, sequence := a.rulePaths()
	return manager.NewRuleManager(&manager.Config{
		RulesPath:    rules,
		SequencePath: sequence,
		Watch:        a.cfg.Rules.Watch,
	}, a.loader(), nil, slog.Default())
}

// newEngine builds an engine for table recording into the ledger.
func (a *app) newEngine(table *ruleset.Table, opts ...engine.Option) (*engine.Engine, error) {
	engineCfg := engine.DefaultEngineConfig().
		WithWorkers(a.cfg.Engine.Workers).
		WithLockDir(a.cfg.Engine.LockDir)
	engineCfg.StopGrace = a.cfg.Engine.StopGrace

	opts = append([]engine.Option{engine.WithLedger(a.ledger)}, opts...)
	eng, err := engine.NewEngine(engineCfg, a.env, table, opts...)
	if err != nil {
		return nil, asConfigError(err)
	}
	return eng, nil
}

// Close closes the backends in reverse opening order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// asConfigError marks rule table problems as configuration errors so the
// process exits with the configuration status.
func asConfigError(err error) error {
	var ruleErr *ruleset.ConfigError
	var loadErr *ruleset.LoadError
	if errors.As(err, &ruleErr) || errors.As(err, &loadErr) || errors.Is(err, engine.ErrInvalidConfig) {
		return &cli.ConfigError{Message: err.Error(), Err: err}
	}
	return err
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
