package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "engine.workers").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// HasField reports whether field has an error.
func (e ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

var (
	validateOnce    sync.Once
	structValidator *validator.Validate
)

// fieldValidator returns the struct tag validator. Field names in errors
// are the YAML keys.
func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// Struct tag checks run first, then the checks that span fields; all errors
// are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	if err := fieldValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, FieldError{
				Field:   fieldPath(fe.Namespace()),
				Message: tagMessage(fe),
			})
		}
	}

	errs = append(errs, validateRules(&cfg.Rules)...)
	errs = append(errs, validateObjectStore(&cfg.ObjectStore)...)
	errs = append(errs, validateLedger(&cfg.Ledger)...)
	errs = append(errs, validateSchedule(&cfg.Schedule)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "required_if":
		return "field is required when the section is enabled"
	case "oneof":
		return fmt.Sprintf("invalid value %q: must be one of %s", fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "url":
		return fmt.Sprintf("invalid URL %q", fe.Value())
	case "hostname_port":
		return fmt.Sprintf("invalid address %q: must be host:port", fe.Value())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// validateRules validates rule file configuration.
func validateRules(cfg *RulesConfig) []FieldError {
	var errs []FieldError

	if cfg.SequencePath != "" && filepath.Clean(cfg.SequencePath) == filepath.Clean(cfg.RulesPath) {
		errs = append(errs, FieldError{
			Field:   "rules.sequence_path",
			Message: "sequence path must differ from rules path",
		})
	}

	if cfg.Git.Enabled {
		paths := []struct{ field, path string }{
			{"rules.rules_path", cfg.RulesPath},
			{"rules.sequence_path", cfg.SequencePath},
		}
		for _, p := range paths {
			if p.path != "" && !filepath.IsLocal(p.path) {
				errs = append(errs, FieldError{
					Field:   p.field,
					Message: "must be a path inside the git checkout",
				})
			}
		}
	}

	return errs
}

// validateObjectStore validates object store configuration.
func validateObjectStore(cfg *ObjectStoreConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled || cfg.URL == "" {
		return errs
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		errs = append(errs, FieldError{
			Field:   "object_store.url",
			Message: fmt.Sprintf("invalid URL format: %v", err),
		})
		return errs
	}

	validSchemes := map[string]bool{"s3": true, "file": true, "mem": true}
	if !validSchemes[u.Scheme] {
		errs = append(errs, FieldError{
			Field:   "object_store.url",
			Message: fmt.Sprintf("unsupported scheme %q: must be 's3', 'file', or 'mem'", u.Scheme),
		})
	}

	return errs
}

// validateLedger validates ledger configuration.
func validateLedger(cfg *LedgerConfig) []FieldError {
	var errs []FieldError

	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{
			Field:   "ledger.sqlite.path",
			Message: "SQLite path is required when backend is 'sqlite'",
		})
	}

	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "ledger.retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateSchedule validates the daemon schedule.
func validateSchedule(cfg *ScheduleConfig) []FieldError {
	var errs []FieldError

	if cfg.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Cron); err != nil {
			errs = append(errs, FieldError{
				Field:   "schedule.cron",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}
