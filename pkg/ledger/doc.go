// Package ledger records what the rule engine did.
//
// The ledger holds three kinds of data:
//
//  1. Pass reports - one PassRecord per execution pass with its ordered
//     (file, rule, outcome) entries
//  2. Marks - intent records for destructive actions. A mark is written as
//     pending before the action runs and resolved to done or failed after.
//     A mark still pending when the next pass starts is reported as
//     interrupted.
//  3. The deletion database - files scheduled for removal from every
//     backend
//
// Rules never read pass reports; they only observe backend state. Marks and
// deletions are the exceptions because they are part of that state.
//
// # Backends
//
// Package storage provides a SQLite backend for production and an in-memory
// backend for tests:
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path: "data/ledger.db",
//	}, nil)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// # Retention
//
// Package retention prunes old pass reports by age and count, on a cron
// schedule.
package ledger
