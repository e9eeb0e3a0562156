package ruleset

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

const rulesJSON = `{
  "PRUNE": {
    "description": "prune raw files",
    "functionName": "pruneRule",
    "timeout": 60,
    "options": {"cut_boundaries": true, "repack": false, "repackRecordSize": 4096, "removeOverlap": true},
    "conditions": [
      {"functionName": "assertQualityPolicy", "options": {"qualities": ["D"]}},
      {"functionName": "!assertPrunedFileExistsPolicy", "options": {}},
      {"functionName": "assertModificationTimePolicy", "options": {"olderThan": 1, "apply_to": "next"}}
    ]
  },
  "INGEST": {
    "description": "ingest pruned files",
    "functionName": "ingestionS3Rule",
    "options": {"exitOnFailure": true},
    "conditions": [
      {"functionName": "assertQualityPolicy", "options": {"qualities": ["Q"]}}
    ]
  },
  "ALWAYS": {
    "description": "print",
    "functionName": "testPrint",
    "options": {},
    "conditions": []
  }
}`

func TestParse_KeepsDocumentOrder(t *testing.T) {
	table, err := NewLoader(nil, nil).Parse([]byte(rulesJSON), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff([]string{"PRUNE", "INGEST", "ALWAYS"}, table.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}

	prune, _ := table.Lookup("PRUNE")
	if prune.Timeout != 60*time.Second {
		t.Errorf("PRUNE timeout = %v", prune.Timeout)
	}
	if len(prune.Conditions) != 3 {
		t.Fatalf("PRUNE conditions = %d", len(prune.Conditions))
	}
	neg := prune.Conditions[1]
	if !neg.Negate || neg.Predicate != "assertPrunedFileExistsPolicy" || neg.FunctionName() != "!assertPrunedFileExistsPolicy" {
		t.Errorf("negated condition = %+v", neg)
	}
	next := prune.Conditions[2]
	if next.ApplyTo != TargetNext {
		t.Errorf("apply_to = %v, want next", next.ApplyTo)
	}
	if _, ok := next.Options[ApplyToOption]; ok {
		t.Error("apply_to left in options")
	}

	ingest, _ := table.Lookup("INGEST")
	if ingest.Timeout != DefaultTimeout {
		t.Errorf("INGEST timeout = %v, want default", ingest.Timeout)
	}
}

func TestParse_Sequence(t *testing.T) {
	table, err := NewLoader(nil, nil).Parse([]byte(rulesJSON), []byte(`["ALWAYS", "PRUNE"]`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff([]string{"ALWAYS", "PRUNE"}, table.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		rules    string
		sequence string
		want     []string
	}{
		{
			name:  "not an object",
			rules: `["PRUNE"]`,
			want:  []string{"must be a JSON object"},
		},
		{
			name:  "syntax",
			rules: `{"A": {`,
			want:  []string{"not valid JSON"},
		},
		{
			name:  "unknown field",
			rules: `{"A": {"functionName": "testPrint", "extra": 1}}`,
			want:  []string{"malformed rule"},
		},
		{
			name:  "missing action",
			rules: `{"A": {"options": {}}}`,
			want:  []string{"action function name is required"},
		},
		{
			name:  "zero timeout",
			rules: `{"A": {"functionName": "testPrint", "timeout": 0}}`,
			want:  []string{"positive integer"},
		},
		{
			name:  "fractional timeout",
			rules: `{"A": {"functionName": "testPrint", "timeout": 1.5}}`,
			want:  []string{"positive integer"},
		},
		{
			name:  "string timeout",
			rules: `{"A": {"functionName": "testPrint", "timeout": "5"}}`,
			want:  []string{"positive integer"},
		},
		{
			name:  "bad apply_to",
			rules: `{"A": {"functionName": "testPrint", "conditions": [{"functionName": "assertPIDPolicy", "options": {"apply_to": "sideways"}}]}}`,
			want:  []string{"unknown apply_to"},
		},
		{
			name:  "bare negation",
			rules: `{"A": {"functionName": "testPrint", "conditions": [{"functionName": "!", "options": {}}]}}`,
			want:  []string{"predicate function name is required"},
		},
		{
			name:  "duplicate rule",
			rules: `{"A": {"functionName": "testPrint"}, "A": {"functionName": "testPrint"}}`,
			want:  []string{"duplicate rule name"},
		},
		{
			name:     "undefined sequence entry",
			rules:    `{"A": {"functionName": "testPrint"}}`,
			sequence: `["A", "B"]`,
			want:     []string{`rule "B"`, "not defined"},
		},
		{
			name:     "sequence repeats a rule",
			rules:    `{"A": {"functionName": "testPrint"}}`,
			sequence: `["A", "A"]`,
			want:     []string{"listed twice"},
		},
		{
			name:  "problems are collected",
			rules: `{"A": {"timeout": -1}, "B": {"functionName": ""}}`,
			want:  []string{"3 problems", `rule "A"`, `rule "B"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seq []byte
			if tt.sequence != "" {
				seq = []byte(tt.sequence)
			}
			_, err := NewLoader(nil, nil).Parse([]byte(tt.rules), seq)
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("Parse() error = %v, want *ConfigError", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not contain %q", err, w)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/etc/callisto/rules.json", []byte(rulesJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/etc/callisto/sequence.json", []byte(`["INGEST"]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/etc/callisto/broken.json", []byte(`{"A": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/etc/callisto/big.json", []byte(strings.Repeat(" ", 64)), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(fs, &LoaderConfig{DefaultTimeout: 5 * time.Second, MaxFileSize: 32 << 10})

	t.Run("with sequence", func(t *testing.T) {
		table, err := loader.Load("/etc/callisto/rules.json", "/etc/callisto/sequence.json")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if table.Source != "/etc/callisto/rules.json" || table.Digest == "" {
			t.Errorf("table source/digest = %q, %q", table.Source, table.Digest)
		}
		rule, ok := table.Lookup("INGEST")
		if !ok || rule.Timeout != 5*time.Second {
			t.Errorf("INGEST = %+v, %v", rule, ok)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loader.Load("/etc/callisto/nope.json", "")
		var lerr *LoadError
		if !errors.As(err, &lerr) || lerr.Message != "file not found" {
			t.Errorf("Load() error = %v, want file not found", err)
		}
	})

	t.Run("config error carries source", func(t *testing.T) {
		_, err := loader.Load("/etc/callisto/broken.json", "")
		var cerr *ConfigError
		if !errors.As(err, &cerr) || cerr.Source != "/etc/callisto/broken.json" {
			t.Errorf("Load() error = %v", err)
		}
	})

	t.Run("too large", func(t *testing.T) {
		small := NewLoader(fs, &LoaderConfig{MaxFileSize: 16})
		_, err := small.Load("/etc/callisto/big.json", "")
		var lerr *LoadError
		if !errors.As(err, &lerr) || !strings.Contains(lerr.Message, "exceeds maximum") {
			t.Errorf("Load() error = %v", err)
		}
	})
}

func TestConditionSet(t *testing.T) {
	a := Rule{Conditions: []Condition{
		{Predicate: "assertQualityPolicy", Options: map[string]any{"qualities": []any{"Q"}}},
		{Predicate: "assertDeletionPolicy", Negate: true, Options: map[string]any{}},
	}}
	b := Rule{Conditions: []Condition{
		{Predicate: "assertDeletionPolicy", Negate: true},
		{Predicate: "assertQualityPolicy", Options: map[string]any{"qualities": []any{"Q"}}},
	}}
	c := Rule{Conditions: []Condition{
		{Predicate: "assertDeletionPolicy", Negate: true, ApplyTo: TargetNext},
		{Predicate: "assertQualityPolicy", Options: map[string]any{"qualities": []any{"Q"}}},
	}}

	if a.ConditionSet() != b.ConditionSet() {
		t.Errorf("reordered condition sets differ:\n%s\n%s", a.ConditionSet(), b.ConditionSet())
	}
	if a.ConditionSet() == c.ConditionSet() {
		t.Error("condition sets with different targets are equal")
	}
}
