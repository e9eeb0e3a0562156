package manager

import (
	"errors"
	"testing"

	"github.com/spf13/afero"

	"mercator-hq/callisto/pkg/policy/ruleset"
)

const (
	rulesV1 = `{"PRINT": {"description": "print", "functionName": "testPrint", "options": {}, "conditions": []}}`
	rulesV2 = `{"PRINT": {"description": "print v2", "functionName": "testPrint", "options": {}, "conditions": []},
	            "SAY": {"description": "say", "functionName": "printWithMessage", "options": {"message": "hi"}, "conditions": []}}`
)

type recorder struct {
	tables []*ruleset.Table
	err    error
}

func (r *recorder) Reload(table *ruleset.Table) error {
	if r.err != nil {
		return r.err
	}
	r.tables = append(r.tables, table)
	return nil
}

func newTestManager(t *testing.T, rules string, target Reloader) (*RuleManager, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	write(t, fs, "/etc/callisto/rules.json", rules)
	m, err := NewRuleManager(&Config{RulesPath: "/etc/callisto/rules.json"}, ruleset.NewLoader(fs, nil), target, nil)
	if err != nil {
		t.Fatalf("NewRuleManager() error = %v", err)
	}
	return m, fs
}

func write(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestNewRuleManager_RequiresRulesPath(t *testing.T) {
	if _, err := NewRuleManager(&Config{}, nil, nil, nil); err == nil {
		t.Error("NewRuleManager() succeeded without rules path")
	}
}

func TestRuleManager_Load(t *testing.T) {
	target := &recorder{}
	m, _ := newTestManager(t, rulesV1, target)

	table, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(table.Rules) != 1 || m.Current() != table {
		t.Errorf("Load() = %d rules, Current() = %p", len(table.Rules), m.Current())
	}
	if len(target.tables) != 0 {
		t.Error("Load() notified the target")
	}
}

func TestRuleManager_Reload(t *testing.T) {
	target := &recorder{}
	m, fs := newTestManager(t, rulesV1, target)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	changed, err := m.Reload()
	if err != nil || changed {
		t.Errorf("Reload() unchanged = %v, %v; want false, nil", changed, err)
	}

	write(t, fs, "/etc/callisto/rules.json", rulesV2)
	changed, err = m.Reload()
	if err != nil || !changed {
		t.Fatalf("Reload() = %v, %v; want true, nil", changed, err)
	}
	if len(target.tables) != 1 || len(target.tables[0].Rules) != 2 {
		t.Errorf("target received %d tables", len(target.tables))
	}
	if reloads, lastErr := m.Status(); reloads != 1 || lastErr != nil {
		t.Errorf("Status() = %d, %v", reloads, lastErr)
	}
}

func TestRuleManager_ReloadKeepsPreviousTable(t *testing.T) {
	tests := []struct {
		name   string
		rules  string
		reject error
	}{
		{"malformed json", `{"PRINT": `, nil},
		{"unknown rule field", `{"PRINT": {"functionName": "testPrint", "colour": "red"}}`, nil},
		{"rejected by target", rulesV2, errors.New("unknown action")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &recorder{}
			m, fs := newTestManager(t, rulesV1, target)
			before, err := m.Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			target.err = tt.reject
			write(t, fs, "/etc/callisto/rules.json", tt.rules)
			if changed, err := m.Reload(); err == nil || changed {
				t.Fatalf("Reload() = %v, %v; want error", changed, err)
			}
			if m.Current() != before {
				t.Error("Current() changed after failed reload")
			}
			if _, lastErr := m.Status(); lastErr == nil {
				t.Error("Status() lost the reload error")
			}
		})
	}
}

func TestRuleManager_SetTarget(t *testing.T) {
	m, fs := newTestManager(t, rulesV1, nil)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	target := &recorder{}
	m.SetTarget(target)
	write(t, fs, "/etc/callisto/rules.json", rulesV2)
	if _, err := m.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if len(target.tables) != 1 {
		t.Errorf("target received %d tables, want 1", len(target.tables))
	}
}
