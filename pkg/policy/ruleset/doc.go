// Package ruleset loads lifecycle rule tables.
//
// A rule table is a JSON object mapping rule names to rules:
//
//	{
//	  "PRUNE": {
//	    "description": "Prune raw files modified in the last five days",
//	    "functionName": "pruneRule",
//	    "timeout": 60,
//	    "options": {"cut_boundaries": true, "repack": false, "repackRecordSize": 4096, "removeOverlap": true},
//	    "conditions": [
//	      {"functionName": "assertQualityPolicy", "options": {"qualities": ["D"]}},
//	      {"functionName": "assertModificationTimePolicy", "options": {"newerThan": 5}},
//	      {"functionName": "!assertPrunedFileExistsPolicy", "options": {}}
//	    ]
//	  }
//	}
//
// A separate sequence document, a JSON array of rule names, selects and
// orders the active rules. Without one the rules apply in document order.
//
// Structural problems (syntax, unknown fields, bad timeout or apply_to,
// undefined sequence entries) are collected into a single *ConfigError.
// Predicate and action names are checked when the engine compiles the
// table.
package ruleset
