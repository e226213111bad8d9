// Package ledger persists the audit trail of merge and rollback activity:
// operation rows, per-path conflicts with their resolutions, and the
// dependency graph maintained at commit time. Rows are created when an
// operation starts, updated as it progresses, and never deleted.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("ledger row not found")
	// ErrAlreadyResolved indicates a conflict already carries a resolution.
	ErrAlreadyResolved = errors.New("conflict already resolved")
)

// DB wraps the SQLite connection backing the operation ledger.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the ledger database at path and
// applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ledger pragma %s: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger migrate: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS merge_operations (
	id TEXT PRIMARY KEY,
	source_branch TEXT NOT NULL DEFAULT '',
	target_branch TEXT NOT NULL DEFAULT '',
	source_commit TEXT NOT NULL,
	target_commit TEXT NOT NULL,
	merge_base TEXT NOT NULL DEFAULT '',
	no_common_ancestor BOOLEAN NOT NULL DEFAULT FALSE,
	strategy TEXT NOT NULL,
	status TEXT NOT NULL,
	conflicts_detected INTEGER NOT NULL DEFAULT 0,
	conflicts_resolved INTEGER NOT NULL DEFAULT 0,
	result_commit TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS merge_conflicts (
	id TEXT PRIMARY KEY,
	merge_id TEXT NOT NULL REFERENCES merge_operations(id),
	path TEXT NOT NULL,
	object_kind TEXT NOT NULL,
	base_hash TEXT NOT NULL DEFAULT '',
	source_hash TEXT NOT NULL DEFAULT '',
	target_hash TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL,
	severity TEXT NOT NULL,
	auto_resolvable BOOLEAN NOT NULL,
	resolution TEXT NOT NULL DEFAULT '',
	resolved_hash TEXT NOT NULL DEFAULT '',
	resolved_at INTEGER,
	UNIQUE (merge_id, path)
);

CREATE INDEX IF NOT EXISTS idx_merge_conflicts_merge
ON merge_conflicts (merge_id);

CREATE TABLE IF NOT EXISTS rollback_operations (
	id TEXT PRIMARY KEY,
	branch TEXT NOT NULL,
	kind TEXT NOT NULL,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	source_commits TEXT NOT NULL DEFAULT '',
	target_commit TEXT NOT NULL DEFAULT '',
	rollback_commit TEXT NOT NULL DEFAULT '',
	objects_affected INTEGER NOT NULL DEFAULT 0,
	breaking_changes INTEGER NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dependencies (
	dependent TEXT NOT NULL,
	depends_on TEXT NOT NULL,
	kind TEXT NOT NULL,
	PRIMARY KEY (dependent, depends_on, kind)
);

CREATE INDEX IF NOT EXISTS idx_dependencies_depends_on
ON dependencies (depends_on);
`
