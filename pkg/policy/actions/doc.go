// Package actions implements the effects lifecycle rules apply to archive
// files.
//
// Every action belongs to one Class. External actions talk to backends;
// Mutating actions write a new quality sibling (pruning); Destructive
// actions remove data. The engine holds a per-file lock around Mutating and
// Destructive actions and journals Destructive ones.
//
// Actions are idempotent: when the effect already holds, Apply returns nil
// without doing work. Options are decoded once, when the factory builds the
// action:
//
//	spec, _ := actions.Default().Lookup("pruneRule")
//	action, err := spec.New(map[string]any{"cut_boundaries": true, "repack": false})
//	err = action.Apply(ctx, actions.Subject{File: f, Entry: entry, Env: env})
package actions
