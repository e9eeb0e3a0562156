package tracing

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span names.
const (
	SpanPass     = "callisto.pass"
	SpanDispatch = "callisto.dispatch"
)

// Attribute keys of callisto spans.
const (
	AttrPassID    = "callisto.pass.id"
	AttrPassFiles = "callisto.pass.files"
	AttrDryRun    = "callisto.pass.dry_run"
	AttrMatched   = "callisto.pass.matched"
	AttrApplied   = "callisto.pass.applied"
	AttrFailed    = "callisto.pass.failed"
	AttrStatus    = "callisto.pass.status"

	AttrRule    = "callisto.rule"
	AttrAction  = "callisto.action"
	AttrFile    = "callisto.file"
	AttrOutcome = "callisto.outcome"
)

// PassAttributes describes a pass when it starts.
func PassAttributes(passID string, files int, dryRun bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrPassID, passID),
		attribute.Int(AttrPassFiles, files),
		attribute.Bool(AttrDryRun, dryRun),
	}
}

// ReportAttributes describes a finished pass.
func ReportAttributes(files, matched, applied, failed int, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrPassFiles, files),
		attribute.Int(AttrMatched, matched),
		attribute.Int(AttrApplied, applied),
		attribute.Int(AttrFailed, failed),
		attribute.String(AttrStatus, status),
	}
}

// ActionAttributes describes one dispatched action.
func ActionAttributes(rule, action, file string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRule, rule),
		attribute.String(AttrAction, action),
		attribute.String(AttrFile, file),
	}
}

// OutcomeAttribute records the outcome of an action.
func OutcomeAttribute(outcome string) attribute.KeyValue {
	return attribute.String(AttrOutcome, outcome)
}
