// Package health provides the health endpoints of the callisto daemon.
//
// The daemon serves them next to the metrics endpoint:
//
//   - /health: liveness, always 200 while the process runs
//   - /ready: readiness, 503 while any registered check fails
//   - /version: build information
//
// Registered checks:
//
//   - ledger: the pass ledger answers queries
//   - rules: the last rule table load succeeded
//   - passes: a pass finished within telemetry.health.max_pass_age
package health
