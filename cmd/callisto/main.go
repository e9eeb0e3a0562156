// Callisto applies lifecycle rules to the daily files of an SDS waveform
// archive.
//
// A rule table maps conditions on a file (quality, age, presence in the
// object store, catalog or PID registry) to actions (prune, ingest,
// replicate, publish metadata, quarantine, purge). Every pass evaluates the
// rules against a selection of archive files and records the outcome of
// each application in the ledger.
//
// Usage:
//
//	# Run one pass over the files of yesterday and the six days before it
//	callisto run --config /etc/callisto/config.yaml --past-days 8
//
//	# Show what a pass over one date would do
//	callisto run --date 2024-02-20 --dry-run
//
//	# Run passes on the configured schedule
//	callisto daemon --config /etc/callisto/config.yaml
//
//	# Check the rule table against the configured backends
//	callisto validate
//
//	# List recent passes
//	callisto history --limit 20
package main

import "os"

func main() {
	os.Exit(Execute())
}
