package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MergeOperation is one persisted merge attempt.
type MergeOperation struct {
	ID                string
	SourceBranch      string
	TargetBranch      string
	SourceCommit      string
	TargetCommit      string
	MergeBase         string
	NoCommonAncestor  bool
	Strategy          string
	Status            string // PENDING -> SUCCESS | CONFLICT | ABORTED
	ConflictsDetected int
	ConflictsResolved int
	ResultCommit      string
	Message           string
	CreatedAt         int64
	UpdatedAt         int64
}

// Conflict is one persisted per-path merge conflict.
type Conflict struct {
	ID             string
	MergeID        string
	Path           string
	ObjectKind     string
	BaseHash       string
	SourceHash     string
	TargetHash     string
	Classification string
	Severity       string
	AutoResolvable bool
	Resolution     string // "", SOURCE, TARGET, CUSTOM
	ResolvedHash   string
	ResolvedAt     int64 // zero when unresolved
}

// Resolved reports whether this conflict carries a resolution.
func (c *Conflict) Resolved() bool { return c.Resolution != "" }

// CreateMergeOperation inserts a new merge row.
func (db *DB) CreateMergeOperation(ctx context.Context, op *MergeOperation) error {
	now := time.Now().UnixMilli()
	op.CreatedAt = now
	op.UpdatedAt = now
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO merge_operations
			(id, source_branch, target_branch, source_commit, target_commit,
			 merge_base, no_common_ancestor, strategy, status,
			 conflicts_detected, conflicts_resolved, result_commit, message,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.SourceBranch, op.TargetBranch,
		op.SourceCommit, op.TargetCommit, op.MergeBase, op.NoCommonAncestor,
		op.Strategy, op.Status, op.ConflictsDetected, op.ConflictsResolved,
		op.ResultCommit, op.Message, op.CreatedAt, op.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create merge operation: %w", err)
	}
	return nil
}

// GetMergeOperation fetches a merge row by id.
func (db *DB) GetMergeOperation(ctx context.Context, id string) (*MergeOperation, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, source_branch, target_branch, source_commit, target_commit,
		       merge_base, no_common_ancestor, strategy, status,
		       conflicts_detected, conflicts_resolved, result_commit, message,
		       created_at, updated_at
		FROM merge_operations WHERE id = ?`, id)
	op := &MergeOperation{}
	err := row.Scan(
		&op.ID, &op.SourceBranch, &op.TargetBranch,
		&op.SourceCommit, &op.TargetCommit, &op.MergeBase, &op.NoCommonAncestor,
		&op.Strategy, &op.Status, &op.ConflictsDetected, &op.ConflictsResolved,
		&op.ResultCommit, &op.Message, &op.CreatedAt, &op.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("merge operation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get merge operation: %w", err)
	}
	return op, nil
}

// FindOpenMerge returns the newest CONFLICT-status merge between the two
// commits, if any. Re-merging the same heads reuses this row so resolved
// conflicts are not recreated.
func (db *DB) FindOpenMerge(ctx context.Context, sourceCommit, targetCommit string) (*MergeOperation, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id FROM merge_operations
		WHERE source_commit = ? AND target_commit = ? AND status = 'CONFLICT'
		ORDER BY created_at DESC LIMIT 1`, sourceCommit, targetCommit)
	var id string
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open merge %s..%s: %w", sourceCommit, targetCommit, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find open merge: %w", err)
	}
	return db.GetMergeOperation(ctx, id)
}

// UpdateMergeOperation rewrites the mutable columns of a merge row.
func (db *DB) UpdateMergeOperation(ctx context.Context, op *MergeOperation) error {
	op.UpdatedAt = time.Now().UnixMilli()
	res, err := db.conn.ExecContext(ctx, `
		UPDATE merge_operations
		SET strategy = ?, status = ?, conflicts_detected = ?, conflicts_resolved = ?,
		    result_commit = ?, message = ?, updated_at = ?
		WHERE id = ?`,
		op.Strategy, op.Status, op.ConflictsDetected, op.ConflictsResolved,
		op.ResultCommit, op.Message, op.UpdatedAt, op.ID,
	)
	if err != nil {
		return fmt.Errorf("update merge operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update merge operation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("merge operation %s: %w", op.ID, ErrNotFound)
	}
	return nil
}

// InsertConflict persists one conflict row. Inserting the same
// (merge, path) twice is ignored, so repeat detection passes cannot
// duplicate or reset rows.
func (db *DB) InsertConflict(ctx context.Context, c *Conflict) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO merge_conflicts
			(id, merge_id, path, object_kind, base_hash, source_hash, target_hash,
			 classification, severity, auto_resolvable, resolution, resolved_hash, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (merge_id, path) DO NOTHING`,
		c.ID, c.MergeID, c.Path, c.ObjectKind, c.BaseHash, c.SourceHash, c.TargetHash,
		c.Classification, c.Severity, c.AutoResolvable, c.Resolution, c.ResolvedHash, nullableInt(c.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert conflict: %w", err)
	}
	return nil
}

// GetConflict fetches a conflict row by id.
func (db *DB) GetConflict(ctx context.Context, id string) (*Conflict, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, merge_id, path, object_kind, base_hash, source_hash, target_hash,
		       classification, severity, auto_resolvable, resolution, resolved_hash,
		       COALESCE(resolved_at, 0)
		FROM merge_conflicts WHERE id = ?`, id)
	c := &Conflict{}
	err := row.Scan(
		&c.ID, &c.MergeID, &c.Path, &c.ObjectKind, &c.BaseHash, &c.SourceHash, &c.TargetHash,
		&c.Classification, &c.Severity, &c.AutoResolvable, &c.Resolution, &c.ResolvedHash,
		&c.ResolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conflict %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict: %w", err)
	}
	return c, nil
}

// ConflictsByMerge returns every conflict of one merge, ordered by path.
func (db *DB) ConflictsByMerge(ctx context.Context, mergeID string) ([]*Conflict, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, merge_id, path, object_kind, base_hash, source_hash, target_hash,
		       classification, severity, auto_resolvable, resolution, resolved_hash,
		       COALESCE(resolved_at, 0)
		FROM merge_conflicts WHERE merge_id = ? ORDER BY path`, mergeID)
	if err != nil {
		return nil, fmt.Errorf("conflicts by merge: %w", err)
	}
	defer rows.Close()

	var out []*Conflict
	for rows.Next() {
		c := &Conflict{}
		if err := rows.Scan(
			&c.ID, &c.MergeID, &c.Path, &c.ObjectKind, &c.BaseHash, &c.SourceHash, &c.TargetHash,
			&c.Classification, &c.Severity, &c.AutoResolvable, &c.Resolution, &c.ResolvedHash,
			&c.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("conflicts by merge: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conflicts by merge: %w", err)
	}
	return out, nil
}

// ResolveConflict records a resolution on an unresolved conflict. A row
// that already carries a resolution fails with ErrAlreadyResolved.
func (db *DB) ResolveConflict(ctx context.Context, id, resolution, resolvedHash string) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE merge_conflicts
		SET resolution = ?, resolved_hash = ?, resolved_at = ?
		WHERE id = ? AND resolution = ''`,
		resolution, resolvedHash, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("resolve conflict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve conflict: %w", err)
	}
	if n == 0 {
		// Distinguish missing from already-resolved.
		if _, err := db.GetConflict(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("conflict %s: %w", id, ErrAlreadyResolved)
	}
	return nil
}

// OpenMergeObjects returns every object hash an unfinished merge still
// needs to complete: the source, target, and base commits of PENDING and
// CONFLICT operations, plus the replacement blobs held by their recorded
// resolutions. GC treats these as roots.
func (db *DB) OpenMergeObjects(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT source_commit AS h FROM merge_operations WHERE status IN ('PENDING', 'CONFLICT')
		UNION
		SELECT target_commit FROM merge_operations WHERE status IN ('PENDING', 'CONFLICT')
		UNION
		SELECT merge_base FROM merge_operations WHERE status IN ('PENDING', 'CONFLICT')
		UNION
		SELECT c.resolved_hash FROM merge_conflicts c
		JOIN merge_operations m ON m.id = c.merge_id
		WHERE m.status IN ('PENDING', 'CONFLICT')`)
	if err != nil {
		return nil, fmt.Errorf("open merge objects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("open merge objects: scan: %w", err)
		}
		if h != "" {
			out = append(out, h)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("open merge objects: %w", err)
	}
	return out, nil
}

// ResolveConflictByPath applies a resolution to a merge's conflict row at
// the given path when it is still unresolved. Rows that are missing or
// already resolved are left untouched.
func (db *DB) ResolveConflictByPath(ctx context.Context, mergeID, path, resolution, resolvedHash string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE merge_conflicts
		SET resolution = ?, resolved_hash = ?, resolved_at = ?
		WHERE merge_id = ? AND path = ? AND resolution = ''`,
		resolution, resolvedHash, time.Now().UnixMilli(), mergeID, path,
	)
	if err != nil {
		return fmt.Errorf("resolve conflict by path: %w", err)
	}
	return nil
}

func nullableInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
