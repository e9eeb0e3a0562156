// Package config provides configuration management for callisto.
//
// Configuration is read from a YAML file, completed with defaults,
// overridden from the environment and validated before use.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("callisto.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("callisto.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CALLISTO_SECTION_FIELD:
//
//   - CALLISTO_ARCHIVE_ROOT overrides archive.root
//   - CALLISTO_HANDLE_TOKEN overrides handle.token
//   - CALLISTO_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// A value that does not parse (for example CALLISTO_ENGINE_WORKERS=many)
// fails the load.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// Struct tags are checked with go-playground/validator; cron expressions,
// the object store URL scheme and the ledger backend are checked
// afterwards. All errors are reported together:
//
//	configuration validation failed with 2 errors:
//	  - engine.workers: must be at least 1
//	  - schedule.cron: invalid cron expression: ...
//
// # Example Configuration
//
//	archive:
//	  root: "/data/archive"
//
//	rules:
//	  rules_path: "rules.json"
//	  sequence_path: "sequence.json"
//
//	replication:
//	  enabled: true
//	  base_url: "https://irods.example.org/api"
//
//	ledger:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "/var/lib/callisto/ledger.db"
//
//	schedule:
//	  cron: "15 * * * *"
//	  past_days: 3
package config
