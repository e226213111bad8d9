// Package depgraph maintains the schema dependency graph. Edges are
// re-derived from an object's definition each time a commit touches it
// and persisted in the ledger, so rollback validation can consult the
// graph without re-parsing the whole catalog.
package depgraph

import (
	"context"
	"fmt"

	"github.com/odvcencio/stratum/pkg/ddl"
	"github.com/odvcencio/stratum/pkg/ledger"
)

// Edge is one typed dependency: Dependent depends on DependsOn.
type Edge struct {
	Dependent string
	DependsOn string
	Kind      ddl.DependencyKind
}

// Hard reports whether the edge breaks its dependent outright when the
// dependency disappears.
func (e Edge) Hard() bool { return e.Kind.Hard() }

// Graph provides typed access to the persisted dependency edges.
type Graph struct {
	db *ledger.DB
}

// New wraps a ledger database.
func New(db *ledger.DB) *Graph {
	return &Graph{db: db}
}

// Apply re-derives the outgoing edges of one object from its definition
// and replaces the persisted set.
func (g *Graph) Apply(ctx context.Context, path string, definition []byte) error {
	refs := ddl.ExtractReferences(string(definition))
	edges := make([]ledger.Dependency, 0, len(refs))
	for _, ref := range refs {
		edges = append(edges, ledger.Dependency{
			Dependent: path,
			DependsOn: ref.Target,
			Kind:      string(ref.Kind),
		})
	}
	if err := g.db.ReplaceDependencies(ctx, path, edges); err != nil {
		return fmt.Errorf("depgraph apply %q: %w", path, err)
	}
	return nil
}

// Remove drops the outgoing edges of a deleted object. Incoming edges
// stay: dependents that still reference the dropped object are exactly
// what rollback validation needs to find.
func (g *Graph) Remove(ctx context.Context, path string) error {
	if err := g.db.DeleteDependenciesOf(ctx, path); err != nil {
		return fmt.Errorf("depgraph remove %q: %w", path, err)
	}
	return nil
}

// DependentsOf returns who depends on the given object.
func (g *Graph) DependentsOf(ctx context.Context, path string) ([]Edge, error) {
	rows, err := g.db.DependentsOf(ctx, path)
	if err != nil {
		return nil, err
	}
	return toEdges(rows), nil
}

// DependenciesOf returns what the given object depends on.
func (g *Graph) DependenciesOf(ctx context.Context, path string) ([]Edge, error) {
	rows, err := g.db.DependenciesOf(ctx, path)
	if err != nil {
		return nil, err
	}
	return toEdges(rows), nil
}

func toEdges(rows []ledger.Dependency) []Edge {
	edges := make([]Edge, 0, len(rows))
	for _, d := range rows {
		edges = append(edges, Edge{
			Dependent: d.Dependent,
			DependsOn: d.DependsOn,
			Kind:      ddl.DependencyKind(d.Kind),
		})
	}
	return edges
}
