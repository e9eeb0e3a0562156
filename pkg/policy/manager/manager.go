package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"mercator-hq/callisto/pkg/policy/ruleset"
)

// Reloader accepts a new rule table. engine.Engine implements it.
type Reloader interface {
	Reload(table *ruleset.Table) error
}

// Config configures a RuleManager.
type Config struct {
	// RulesPath is the rule map file.
	RulesPath string

	// SequencePath is the optional rule sequence file.
	SequencePath string

	// Watch enables reloading when either file changes.
	Watch bool

	// Watcher configures the file watcher. Paths are filled in from
	// RulesPath and SequencePath.
	Watcher *FileWatcherConfig
}

// RuleManager loads the rule table and keeps a Reloader supplied with the
// latest valid version. A table that fails to load or compile is logged and
// the previous table stays active.
type RuleManager struct {
	config *Config
	loader *ruleset.Loader
	target Reloader
	logger *slog.Logger

	mu      sync.Mutex
	current *ruleset.Table
	lastErr error
	reloads int
}

// NewRuleManager creates a manager. target may be nil until SetTarget is
// called.
func NewRuleManager(config *Config, loader *ruleset.Loader, target Reloader, logger *slog.Logger) (*RuleManager, error) {
	if config == nil || config.RulesPath == "" {
		return nil, fmt.Errorf("rules path is required")
	}
	if loader == nil {
		loader = ruleset.NewLoader(nil, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleManager{
		config: config,
		loader: loader,
		target: target,
		logger: logger.With("component", "policy.manager"),
	}, nil
}

// SetTarget sets the reloader that receives new tables.
func (m *RuleManager) SetTarget(target Reloader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target = target
}

// Load reads the rule files, records the table as current and returns it.
// The target is not notified.
func (m *RuleManager) Load() (*ruleset.Table, error) {
	m.logger.Info("Loading rule table",
		"rules", m.config.RulesPath,
		"sequence", m.config.SequencePath,
	)
	table, err := m.loader.Load(m.config.RulesPath, m.config.SequencePath)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
	if err != nil {
		return nil, err
	}
	m.current = table
	return table, nil
}

// Reload reads the rule files and hands the table to the target. It
// reports whether a new table was activated; unchanged content is skipped.
func (m *RuleManager) Reload() (bool, error) {
	table, err := m.loader.Load(m.config.RulesPath, m.config.SequencePath)
	if err != nil {
		m.setErr(err)
		m.logger.Error("Failed to reload rule table, keeping previous table", "error", err)
		return false, err
	}

	m.mu.Lock()
	target := m.target
	unchanged := m.current != nil && m.current.Digest == table.Digest
	m.mu.Unlock()

	if unchanged {
		m.logger.Debug("Rule table unchanged", "digest", table.Digest)
		m.setErr(nil)
		return false, nil
	}

	if target != nil {
		if err := target.Reload(table); err != nil {
			m.setErr(err)
			m.logger.Error("Rule table rejected, keeping previous table", "error", err)
			return false, err
		}
	}

	m.mu.Lock()
	m.current = table
	m.lastErr = nil
	m.reloads++
	m.mu.Unlock()

	m.logger.Info("Rule table reloaded",
		"rules", len(table.Rules),
		"digest", table.Digest,
	)
	return true, nil
}

func (m *RuleManager) setErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// Current returns the active table, nil before the first load.
func (m *RuleManager) Current() *ruleset.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Status returns the number of successful reloads and the error of the
// last load attempt.
func (m *RuleManager) Status() (reloads int, lastErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloads, m.lastErr
}

// Watch reloads the table whenever a rule file changes. It blocks until
// ctx is cancelled. With watching disabled it returns immediately.
func (m *RuleManager) Watch(ctx context.Context) error {
	if !m.config.Watch {
		m.logger.Debug("Rule file watching disabled in configuration")
		return nil
	}

	wc := DefaultFileWatcherConfig()
	if m.config.Watcher != nil {
		*wc = *m.config.Watcher
	}
	wc.Paths = []string{m.config.RulesPath}
	if m.config.SequencePath != "" {
		wc.Paths = append(wc.Paths, m.config.SequencePath)
	}

	watcher, err := NewFileWatcher(wc, m.logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if err := watcher.Stop(); err != nil {
			m.logger.Error("Failed to stop file watcher", "error", err)
		}
	}()

	return watcher.Watch(ctx, func() {
		_, _ = m.Reload()
	})
}
