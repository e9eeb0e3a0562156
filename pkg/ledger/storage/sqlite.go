package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/callisto/pkg/ledger"
)

// SQLiteConfig contains configuration for the SQLite ledger backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// WALMode enables Write-Ahead Logging mode.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:        "data/ledger.db",
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteStorage implements ledger.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewSQLiteStorage opens the database and initializes the schema. Resolved
// marks are stamped with clock; a nil clock uses the real clock.
func NewSQLiteStorage(config *SQLiteConfig, clock clockwork.Clock) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.Path == "" {
		return nil, ledger.NewStorageError("sqlite", "open", errors.New("path cannot be empty"))
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "ledger.storage.sqlite")

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		clock:  clock,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite ledger initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// initialize sets pragmas and creates the schema.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return ledger.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return ledger.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return ledger.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return ledger.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil && err != sql.ErrNoRows {
		return ledger.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return ledger.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// SavePass writes a pass and its entries in one transaction.
func (s *SQLiteStorage) SavePass(ctx context.Context, pass *ledger.PassRecord, entries []ledger.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.NewStorageError("sqlite", "save_pass", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO passes (id, started, finished, files, matched, applied, failed, unresolvable, fatal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pass.ID, pass.Started.UnixNano(), pass.Finished.UnixNano(),
		pass.Files, pass.Matched, pass.Applied, pass.Failed, pass.Unresolvable, pass.Fatal,
	)
	if err != nil {
		return ledger.NewStorageError("sqlite", "save_pass", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pass_entries (pass_id, seq, file, rule, outcome, error, duration_ns, recorded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return ledger.NewStorageError("sqlite", "save_pass", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		var errVal interface{}
		if e.Error != "" {
			errVal = e.Error
		}
		if _, err := stmt.ExecContext(ctx, pass.ID, i, e.File, e.Rule, string(e.Outcome), errVal,
			e.Duration.Nanoseconds(), e.Time.UnixNano()); err != nil {
			return ledger.NewStorageError("sqlite", "save_entry", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ledger.NewStorageError("sqlite", "save_pass", err)
	}
	return nil
}

// ListPasses returns up to limit passes, newest first.
func (s *SQLiteStorage) ListPasses(ctx context.Context, limit int) ([]ledger.PassRecord, error) {
	query := `SELECT id, started, finished, files, matched, applied, failed, unresolvable, fatal
		FROM passes ORDER BY started DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "list_passes", err)
	}
	defer rows.Close()

	passes := []ledger.PassRecord{}
	for rows.Next() {
		var p ledger.PassRecord
		var started, finished int64
		if err := rows.Scan(&p.ID, &started, &finished, &p.Files, &p.Matched, &p.Applied, &p.Failed, &p.Unresolvable, &p.Fatal); err != nil {
			return nil, ledger.NewStorageError("sqlite", "scan", err)
		}
		p.Started = time.Unix(0, started).UTC()
		p.Finished = time.Unix(0, finished).UTC()
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.NewStorageError("sqlite", "list_passes", err)
	}
	return passes, nil
}

// PassEntries returns the entries of one pass in recorded order.
func (s *SQLiteStorage) PassEntries(ctx context.Context, passID string) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file, rule, outcome, error, duration_ns, recorded
		FROM pass_entries WHERE pass_id = ? ORDER BY seq`, passID)
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "pass_entries", err)
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		e := ledger.Entry{PassID: passID}
		var outcome string
		var errVal sql.NullString
		var durationNs, recorded int64
		if err := rows.Scan(&e.File, &e.Rule, &outcome, &errVal, &durationNs, &recorded); err != nil {
			return nil, ledger.NewStorageError("sqlite", "scan", err)
		}
		e.Outcome = ledger.Outcome(outcome)
		if errVal.Valid {
			e.Error = errVal.String
		}
		e.Duration = time.Duration(durationNs)
		e.Time = time.Unix(0, recorded).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.NewStorageError("sqlite", "pass_entries", err)
	}
	return entries, nil
}

// CountPasses returns the number of stored passes.
func (s *SQLiteStorage) CountPasses(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM passes").Scan(&count); err != nil {
		return 0, ledger.NewStorageError("sqlite", "count_passes", err)
	}
	return count, nil
}

// DeletePassesBefore removes passes started before cutoff.
func (s *SQLiteStorage) DeletePassesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deletePasses(ctx, "delete_before",
		"SELECT id FROM passes WHERE started < ?", cutoff.UnixNano())
}

// DeleteOldestPasses keeps only the newest keep passes.
func (s *SQLiteStorage) DeleteOldestPasses(ctx context.Context, keep int) (int64, error) {
	return s.deletePasses(ctx, "delete_oldest",
		"SELECT id FROM passes ORDER BY started DESC LIMIT -1 OFFSET ?", keep)
}

// deletePasses removes the passes selected by selectQuery and their entries.
func (s *SQLiteStorage) deletePasses(ctx context.Context, op, selectQuery string, arg interface{}) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, ledger.NewStorageError("sqlite", op, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM pass_entries WHERE pass_id IN ("+selectQuery+")", arg); err != nil {
		return 0, ledger.NewStorageError("sqlite", op, err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM passes WHERE id IN ("+selectQuery+")", arg)
	if err != nil {
		return 0, ledger.NewStorageError("sqlite", op, err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, ledger.NewStorageError("sqlite", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, ledger.NewStorageError("sqlite", op, err)
	}
	return count, nil
}

// Mark records a pending mark, replacing any earlier mark with the same key.
func (s *SQLiteStorage) Mark(ctx context.Context, mark ledger.Mark) error {
	if mark.State == "" {
		mark.State = ledger.MarkPending
	}
	if mark.Updated.IsZero() {
		mark.Updated = mark.Created
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO marks (pass_id, file, rule, state, created, updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pass_id, file, rule) DO UPDATE SET state = excluded.state, updated = excluded.updated`,
		mark.PassID, mark.File, mark.Rule, string(mark.State), mark.Created.UnixNano(), mark.Updated.UnixNano(),
	)
	if err != nil {
		return ledger.NewStorageError("sqlite", "mark", err)
	}
	return nil
}

// Resolve moves a mark to state.
func (s *SQLiteStorage) Resolve(ctx context.Context, passID, file, rule string, state ledger.MarkState) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE marks SET state = ?, updated = ? WHERE pass_id = ? AND file = ? AND rule = ?`,
		string(state), s.clock.Now().UnixNano(), passID, file, rule,
	)
	if err != nil {
		return ledger.NewStorageError("sqlite", "resolve", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return ledger.NewStorageError("sqlite", "resolve", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s/%s: %w", passID, file, rule, ledger.ErrMarkNotFound)
	}
	return nil
}

// PendingMarks returns every pending mark, oldest first.
func (s *SQLiteStorage) PendingMarks(ctx context.Context) ([]ledger.Mark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pass_id, file, rule, state, created, updated
		FROM marks WHERE state = ? ORDER BY created, file, rule`, string(ledger.MarkPending))
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "pending_marks", err)
	}
	defer rows.Close()

	marks := []ledger.Mark{}
	for rows.Next() {
		var m ledger.Mark
		var state string
		var created, updated int64
		if err := rows.Scan(&m.PassID, &m.File, &m.Rule, &state, &created, &updated); err != nil {
			return nil, ledger.NewStorageError("sqlite", "scan", err)
		}
		m.State = ledger.MarkState(state)
		m.Created = time.Unix(0, created).UTC()
		m.Updated = time.Unix(0, updated).UTC()
		marks = append(marks, m)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.NewStorageError("sqlite", "pending_marks", err)
	}
	return marks, nil
}

// ScheduleDeletion lists file for deletion.
func (s *SQLiteStorage) ScheduleDeletion(ctx context.Context, file string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deletions (file, scheduled) VALUES (?, ?)
		ON CONFLICT(file) DO NOTHING`, file, at.UnixNano())
	if err != nil {
		return ledger.NewStorageError("sqlite", "schedule_deletion", err)
	}
	return nil
}

// InDeletion reports whether file is listed for deletion.
func (s *SQLiteStorage) InDeletion(ctx context.Context, file string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM deletions WHERE file = ?", file).Scan(&n)
	if err != nil {
		return false, ledger.NewStorageError("sqlite", "in_deletion", err)
	}
	return n > 0, nil
}

// RemoveDeletion drops file from the deletion list.
func (s *SQLiteStorage) RemoveDeletion(ctx context.Context, file string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM deletions WHERE file = ?", file); err != nil {
		return ledger.NewStorageError("sqlite", "remove_deletion", err)
	}
	return nil
}

// ListDeletions returns every listed file ordered by name.
func (s *SQLiteStorage) ListDeletions(ctx context.Context) ([]ledger.Deletion, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT file, scheduled FROM deletions ORDER BY file")
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "list_deletions", err)
	}
	defer rows.Close()

	deletions := []ledger.Deletion{}
	for rows.Next() {
		var d ledger.Deletion
		var scheduled int64
		if err := rows.Scan(&d.File, &scheduled); err != nil {
			return nil, ledger.NewStorageError("sqlite", "scan", err)
		}
		d.Scheduled = time.Unix(0, scheduled).UTC()
		deletions = append(deletions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.NewStorageError("sqlite", "list_deletions", err)
	}
	return deletions, nil
}

// Close releases the database connection.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return ledger.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite ledger closed")
	return nil
}
