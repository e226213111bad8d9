package ledger

import (
	"context"
	"fmt"
)

// Dependency is one directed edge: Dependent depends on DependsOn.
type Dependency struct {
	Dependent string
	DependsOn string
	Kind      string
}

// ReplaceDependencies atomically replaces every outgoing edge of one
// dependent with the given set. Called at commit time so the graph always
// reflects the object's latest definition.
func (db *DB) ReplaceDependencies(ctx context.Context, dependent string, edges []Dependency) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace dependencies: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE dependent = ?`, dependent); err != nil {
		return fmt.Errorf("replace dependencies: delete: %w", err)
	}
	for _, e := range edges {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dependencies (dependent, depends_on, kind)
			VALUES (?, ?, ?)
			ON CONFLICT (dependent, depends_on, kind) DO NOTHING`,
			dependent, e.DependsOn, e.Kind,
		); err != nil {
			return fmt.Errorf("replace dependencies: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace dependencies: commit: %w", err)
	}
	return nil
}

// DeleteDependenciesOf removes every outgoing edge of a dropped object.
func (db *DB) DeleteDependenciesOf(ctx context.Context, dependent string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM dependencies WHERE dependent = ?`, dependent); err != nil {
		return fmt.Errorf("delete dependencies of %q: %w", dependent, err)
	}
	return nil
}

// DependenciesOf returns the outgoing edges of an object (what it needs).
func (db *DB) DependenciesOf(ctx context.Context, path string) ([]Dependency, error) {
	return db.queryDeps(ctx, `
		SELECT dependent, depends_on, kind FROM dependencies
		WHERE dependent = ? ORDER BY depends_on, kind`, path)
}

// DependentsOf returns the incoming edges of an object (who needs it).
func (db *DB) DependentsOf(ctx context.Context, path string) ([]Dependency, error) {
	return db.queryDeps(ctx, `
		SELECT dependent, depends_on, kind FROM dependencies
		WHERE depends_on = ? ORDER BY dependent, kind`, path)
}

func (db *DB) queryDeps(ctx context.Context, query, path string) ([]Dependency, error) {
	rows, err := db.conn.QueryContext(ctx, query, path)
	if err != nil {
		return nil, fmt.Errorf("query dependencies: %w", err)
	}
	defer rows.Close()

	var out []Dependency
	for rows.Next() {
		var d Dependency
		if err := rows.Scan(&d.Dependent, &d.DependsOn, &d.Kind); err != nil {
			return nil, fmt.Errorf("query dependencies: scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query dependencies: %w", err)
	}
	return out, nil
}
