package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RollbackOperation is one persisted rollback/undo attempt.
type RollbackOperation struct {
	ID              string
	Branch          string
	Kind            string // SINGLE_COMMIT, RANGE, TO_TIMESTAMP, UNDO
	Mode            string // DRY_RUN, VALIDATED, EXECUTED
	Status          string
	SourceCommits   []string
	TargetCommit    string
	RollbackCommit  string
	ObjectsAffected int
	BreakingChanges int
	Message         string
	CreatedAt       int64
	ElapsedMS       int64
}

// CreateRollbackOperation inserts a new rollback row.
func (db *DB) CreateRollbackOperation(ctx context.Context, op *RollbackOperation) error {
	op.CreatedAt = time.Now().UnixMilli()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO rollback_operations
			(id, branch, kind, mode, status, source_commits, target_commit,
			 rollback_commit, objects_affected, breaking_changes, message,
			 created_at, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.Branch, op.Kind, op.Mode, op.Status,
		strings.Join(op.SourceCommits, " "), op.TargetCommit,
		op.RollbackCommit, op.ObjectsAffected, op.BreakingChanges, op.Message,
		op.CreatedAt, op.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("create rollback operation: %w", err)
	}
	return nil
}

// UpdateRollbackOperation rewrites the mutable columns of a rollback row.
func (db *DB) UpdateRollbackOperation(ctx context.Context, op *RollbackOperation) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE rollback_operations
		SET mode = ?, status = ?, rollback_commit = ?, objects_affected = ?,
		    breaking_changes = ?, message = ?, elapsed_ms = ?
		WHERE id = ?`,
		op.Mode, op.Status, op.RollbackCommit, op.ObjectsAffected,
		op.BreakingChanges, op.Message, op.ElapsedMS, op.ID,
	)
	if err != nil {
		return fmt.Errorf("update rollback operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rollback operation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rollback operation %s: %w", op.ID, ErrNotFound)
	}
	return nil
}

// GetRollbackOperation fetches a rollback row by id.
func (db *DB) GetRollbackOperation(ctx context.Context, id string) (*RollbackOperation, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, branch, kind, mode, status, source_commits, target_commit,
		       rollback_commit, objects_affected, breaking_changes, message,
		       created_at, elapsed_ms
		FROM rollback_operations WHERE id = ?`, id)
	op := &RollbackOperation{}
	var sources string
	err := row.Scan(
		&op.ID, &op.Branch, &op.Kind, &op.Mode, &op.Status, &sources, &op.TargetCommit,
		&op.RollbackCommit, &op.ObjectsAffected, &op.BreakingChanges, &op.Message,
		&op.CreatedAt, &op.ElapsedMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rollback operation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rollback operation: %w", err)
	}
	if sources != "" {
		op.SourceCommits = strings.Fields(sources)
	}
	return op, nil
}
