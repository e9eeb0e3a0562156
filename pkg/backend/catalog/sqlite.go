package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"mercator-hq/callisto/pkg/backend"
)

// ErrNoDocument is returned by SetPID when no document exists to update.
var ErrNoDocument = errors.New("no catalog document")

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    kind TEXT NOT NULL,
    file_id TEXT NOT NULL,
    segment INTEGER NOT NULL,
    checksum TEXT NOT NULL,
    pid TEXT,
    body TEXT NOT NULL,
    updated INTEGER NOT NULL,
    PRIMARY KEY (kind, file_id, segment)
);
CREATE INDEX IF NOT EXISTS idx_documents_file ON documents(file_id);
`

// Store implements backend.Catalog on SQLite.
type Store struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger *slog.Logger
}

// Open opens or creates the catalog database at path. Documents written
// without an update time are stamped with clock; a nil clock uses the real
// clock.
func Open(path string, clock clockwork.Clock) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog path cannot be empty")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize catalog: %w", err)
		}
	}

	return &Store{
		db:     db,
		clock:  clock,
		logger: slog.Default().With("component", "backend.catalog"),
	}, nil
}

// Exists reports whether a document of kind exists for fileID.
func (s *Store) Exists(ctx context.Context, kind backend.Kind, fileID, checksum string) (bool, error) {
	query := "SELECT COUNT(*) FROM documents WHERE kind = ? AND file_id = ?"
	args := []interface{}{string(kind), fileID}
	if checksum != "" {
		query += " AND checksum = ?"
		args = append(args, checksum)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("catalog exists %s/%s: %w", kind, fileID, err)
	}
	return n > 0, nil
}

// Put replaces the documents of each (kind, file) present in docs.
func (s *Store) Put(ctx context.Context, docs ...backend.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog put: %w", err)
	}
	defer tx.Rollback()

	cleared := make(map[[2]string]bool)
	for _, doc := range docs {
		key := [2]string{string(doc.Kind), doc.FileID}
		if !cleared[key] {
			if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE kind = ? AND file_id = ?", key[0], key[1]); err != nil {
				return fmt.Errorf("catalog put %s/%s: %w", doc.Kind, doc.FileID, err)
			}
			cleared[key] = true
		}

		body, err := json.Marshal(doc.Body)
		if err != nil {
			return fmt.Errorf("catalog put %s/%s: failed to encode body: %w", doc.Kind, doc.FileID, err)
		}
		updated := doc.Updated
		if updated.IsZero() {
			updated = s.clock.Now()
		}

		var pid interface{}
		if doc.PID != "" {
			pid = doc.PID
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (kind, file_id, segment, checksum, pid, body, updated)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(doc.Kind), doc.FileID, doc.Segment, doc.Checksum, pid, string(body), updated.UnixNano(),
		); err != nil {
			return fmt.Errorf("catalog put %s/%s: %w", doc.Kind, doc.FileID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog put: %w", err)
	}
	s.logger.Debug("catalog documents written", "count", len(docs), "file", docs[0].FileID)
	return nil
}

// Get returns the documents of kind for fileID ordered by segment.
func (s *Store) Get(ctx context.Context, kind backend.Kind, fileID string) ([]backend.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT segment, checksum, pid, body, updated FROM documents
		WHERE kind = ? AND file_id = ? ORDER BY segment`, string(kind), fileID)
	if err != nil {
		return nil, fmt.Errorf("catalog get %s/%s: %w", kind, fileID, err)
	}
	defer rows.Close()

	var docs []backend.Document
	for rows.Next() {
		doc := backend.Document{Kind: kind, FileID: fileID}
		var pid sql.NullString
		var body string
		var updated int64
		if err := rows.Scan(&doc.Segment, &doc.Checksum, &pid, &body, &updated); err != nil {
			return nil, fmt.Errorf("catalog get %s/%s: %w", kind, fileID, err)
		}
		if pid.Valid {
			doc.PID = pid.String
		}
		if err := json.Unmarshal([]byte(body), &doc.Body); err != nil {
			return nil, fmt.Errorf("catalog get %s/%s: failed to decode body: %w", kind, fileID, err)
		}
		doc.Updated = time.Unix(0, updated).UTC()
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes the documents of kind for fileID.
func (s *Store) Delete(ctx context.Context, kind backend.Kind, fileID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE kind = ? AND file_id = ?", string(kind), fileID); err != nil {
		return fmt.Errorf("catalog delete %s/%s: %w", kind, fileID, err)
	}
	return nil
}

// SetPID writes pid into the documents of kind for fileID.
func (s *Store) SetPID(ctx context.Context, kind backend.Kind, fileID, pid string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE documents SET pid = ? WHERE kind = ? AND file_id = ?", pid, string(kind), fileID)
	if err != nil {
		return fmt.Errorf("catalog set pid %s/%s: %w", kind, fileID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog set pid %s/%s: %w", kind, fileID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", kind, fileID, ErrNoDocument)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
