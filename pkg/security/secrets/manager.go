package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// refPattern matches ${secret:name}.
var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager looks secrets up in its providers, first match wins.
type Manager struct {
	providers []Provider
	cache     *Cache
}

// NewManager creates a manager over providers, consulted in order.
func NewManager(cache CacheConfig, providers ...Provider) *Manager {
	return &Manager{providers: providers, cache: NewCache(cache)}
}

// Get returns the value of the secret name from the first provider that
// holds it. A provider failing for another reason than ErrNotFound stops
// the lookup.
func (m *Manager) Get(ctx context.Context, name string) (string, error) {
	if value, ok := m.cache.Get(name); ok {
		return value, nil
	}

	for _, p := range m.providers {
		value, err := p.Lookup(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("secret %q from %s provider: %w", redact(name), p.Name(), err)
		}
		slog.Debug("secret resolved", "name", redact(name), "provider", p.Name())
		m.cache.Set(name, value)
		return value, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, redact(name))
}

// Resolve replaces every ${secret:name} reference in s. Strings without
// references are returned unchanged. Every unresolved reference is
// reported; the returned string is only meaningful when err is nil.
func (m *Manager) Resolve(ctx context.Context, s string) (string, error) {
	if !strings.Contains(s, "${secret:") {
		return s, nil
	}

	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := strings.TrimSpace(refPattern.FindStringSubmatch(ref)[1])
		value, err := m.Get(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return value
	})
	if len(errs) > 0 {
		return "", fmt.Errorf("failed to resolve secret references: %w", errors.Join(errs...))
	}
	return out, nil
}

// Refresh drops cached values so the next lookups read the providers.
func (m *Manager) Refresh() {
	m.cache.Clear()
}

// redact shortens a secret name for logs and errors.
func redact(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
