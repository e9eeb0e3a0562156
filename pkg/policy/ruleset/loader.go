package ruleset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/afero"
)

const (
	// DefaultTimeout bounds actions of rules without a timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxFileSize limits rule and sequence files.
	DefaultMaxFileSize = 1 << 20
)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// DefaultTimeout is used for rules without a timeout field.
	DefaultTimeout time.Duration

	// MaxFileSize is the largest accepted file in bytes.
	MaxFileSize int64
}

// DefaultLoaderConfig returns the default loader configuration.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		DefaultTimeout: DefaultTimeout,
		MaxFileSize:    DefaultMaxFileSize,
	}
}

// LoadError is returned when a rule or sequence file cannot be read.
type LoadError struct {
	// FilePath is the file that failed to load.
	FilePath string

	// Message describes the error.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load rule file %q: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load rule file %q: %s", e.FilePath, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Loader reads rule maps and rule sequences.
type Loader struct {
	fs     afero.Fs
	config *LoaderConfig
}

// NewLoader creates a loader reading from fsys. A nil fsys is the OS
// filesystem.
func NewLoader(fsys afero.Fs, config *LoaderConfig) *Loader {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if config == nil {
		config = DefaultLoaderConfig()
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultTimeout
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	return &Loader{fs: fsys, config: config}
}

// Load reads the rule map at rulesPath and, when sequencePath is not
// empty, the rule sequence selecting and ordering the rules.
func (l *Loader) Load(rulesPath, sequencePath string) (*Table, error) {
	rules, err := l.readFile(rulesPath)
	if err != nil {
		return nil, err
	}
	var sequence []byte
	if sequencePath != "" {
		if sequence, err = l.readFile(sequencePath); err != nil {
			return nil, err
		}
	}

	table, err := l.Parse(rules, sequence)
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			cerr.Source = rulesPath
		}
		return nil, err
	}
	table.Source = rulesPath
	return table, nil
}

// Parse builds a table from a rule map document and an optional sequence
// document. Without a sequence the rules keep their document order.
func (l *Loader) Parse(rules, sequence []byte) (*Table, error) {
	cerr := &ConfigError{}

	parsed, declared := l.parseRules(rules, cerr)
	ordered := parsed
	if sequence != nil {
		ordered = applySequence(parsed, declared, sequence, cerr)
	}

	if err := cerr.Err(); err != nil {
		return nil, err
	}

	h := sha256.New()
	h.Write(rules)
	h.Write([]byte{0})
	h.Write(sequence)
	return &Table{Rules: ordered, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

type ruleDocument struct {
	Description  string              `json:"description"`
	FunctionName string              `json:"functionName"`
	Timeout      json.RawMessage     `json:"timeout"`
	Options      map[string]any      `json:"options"`
	Conditions   []conditionDocument `json:"conditions"`
}

type conditionDocument struct {
	FunctionName string         `json:"functionName"`
	Options      map[string]any `json:"options"`
}

// parseRules decodes the rule map token by token so the document order of
// the keys is kept. declared holds every rule name, valid or not.
func (l *Loader) parseRules(data []byte, cerr *ConfigError) (rules []Rule, declared map[string]bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		cerr.Add("", "", err, "rule map is not valid JSON")
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		cerr.Add("", "", nil, "rule map must be a JSON object")
		return nil, nil
	}

	declared = make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			cerr.Add("", "", err, "rule map is not valid JSON")
			return nil, nil
		}
		name, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			cerr.Add(name, "", err, "rule is not valid JSON")
			return nil, nil
		}
		if declared[name] {
			cerr.Add(name, "", nil, "duplicate rule name")
			continue
		}
		declared[name] = true

		if rule, ok := l.parseRule(name, raw, cerr); ok {
			rules = append(rules, rule)
		}
	}
	if _, err := dec.Token(); err != nil {
		cerr.Add("", "", err, "rule map is not valid JSON")
		return nil, nil
	}
	if _, err := dec.Token(); err != io.EOF {
		cerr.Add("", "", nil, "unexpected data after rule map")
	}
	return rules, declared
}

func (l *Loader) parseRule(name string, raw json.RawMessage, cerr *ConfigError) (Rule, bool) {
	if strings.TrimSpace(name) == "" {
		cerr.Add(name, "", nil, "rule name must not be empty")
		return Rule{}, false
	}

	var doc ruleDocument
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		cerr.Add(name, "", err, "malformed rule")
		return Rule{}, false
	}

	before := len(cerr.Problems)
	rule := Rule{
		Name:        name,
		Description: doc.Description,
		Action:      doc.FunctionName,
		Timeout:     l.config.DefaultTimeout,
		Options:     doc.Options,
	}
	if rule.Action == "" {
		cerr.Add(name, "functionName", nil, "action function name is required")
	}
	if timeout, ok, err := parseTimeout(doc.Timeout); err != nil {
		cerr.Add(name, "timeout", nil, "%v", err)
	} else if ok {
		rule.Timeout = timeout
	}

	for i, c := range doc.Conditions {
		field := fmt.Sprintf("conditions[%d]", i)
		cond, err := parseCondition(c)
		if err != nil {
			cerr.Add(name, field, nil, "%v", err)
			continue
		}
		rule.Conditions = append(rule.Conditions, cond)
	}

	return rule, len(cerr.Problems) == before
}

// parseTimeout accepts a positive integer number of seconds. A missing or
// null timeout reports ok false.
func parseTimeout(raw json.RawMessage) (time.Duration, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, err
	}
	n, isNumber := v.(float64)
	if !isNumber || n <= 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false, fmt.Errorf("timeout must be a positive integer number of seconds, got %s", raw)
	}
	return time.Duration(n) * time.Second, true, nil
}

func parseCondition(doc conditionDocument) (Condition, error) {
	cond := Condition{Predicate: doc.FunctionName}
	if strings.HasPrefix(cond.Predicate, NegationPrefix) {
		cond.Negate = true
		cond.Predicate = strings.TrimPrefix(cond.Predicate, NegationPrefix)
	}
	if cond.Predicate == "" {
		return Condition{}, errors.New("predicate function name is required")
	}

	cond.Options = make(map[string]any, len(doc.Options))
	for k, v := range doc.Options {
		if k == ApplyToOption {
			continue
		}
		cond.Options[k] = v
	}

	if v, ok := doc.Options[ApplyToOption]; ok {
		s, isString := v.(string)
		if !isString {
			return Condition{}, fmt.Errorf("apply_to must be a string, got %v", v)
		}
		target, err := ParseTarget(s)
		if err != nil {
			return Condition{}, err
		}
		cond.ApplyTo = target
	}
	return cond, nil
}

// applySequence selects and orders rules by the names in sequence.
func applySequence(rules []Rule, declared map[string]bool, data []byte, cerr *ConfigError) []Rule {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		cerr.Add("", "sequence", err, "rule sequence must be a JSON array of rule names")
		return nil
	}

	byName := make(map[string]Rule, len(rules))
	for _, r := range rules {
		byName[r.Name] = r
	}

	ordered := make([]Rule, 0, len(names))
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		field := fmt.Sprintf("sequence[%d]", i)
		if seen[name] {
			cerr.Add(name, field, nil, "rule listed twice in sequence")
			continue
		}
		seen[name] = true
		r, ok := byName[name]
		if !ok {
			if !declared[name] {
				cerr.Add(name, field, nil, "sequence names a rule that is not defined")
			}
			continue
		}
		ordered = append(ordered, r)
	}
	return ordered
}

func (l *Loader) readFile(path string) ([]byte, error) {
	info, err := l.fs.Stat(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, &LoadError{FilePath: path, Message: "file not found", Cause: err}
		case os.IsPermission(err):
			return nil, &LoadError{FilePath: path, Message: "permission denied", Cause: err}
		default:
			return nil, &LoadError{FilePath: path, Message: "failed to access file", Cause: err}
		}
	}
	if !info.Mode().IsRegular() {
		return nil, &LoadError{FilePath: path, Message: "not a regular file"}
	}
	if info.Size() > l.config.MaxFileSize {
		return nil, &LoadError{
			FilePath: path,
			Message:  fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", info.Size(), l.config.MaxFileSize),
		}
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to read file", Cause: err}
	}
	if !utf8.Valid(data) {
		return nil, &LoadError{FilePath: path, Message: "file contains invalid UTF-8 encoding"}
	}
	return data, nil
}
