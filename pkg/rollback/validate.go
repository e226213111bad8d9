package rollback

import (
	"context"
	"fmt"

	"github.com/odvcencio/stratum/pkg/object"
	"github.com/odvcencio/stratum/pkg/repo"
)

// validate inspects a plan read-only and returns every finding the
// dependency graph and commit shapes surface. It never mutates state.
func (e *Engine) validate(ctx context.Context, p *plan) ([]Finding, error) {
	var findings []Finding

	planned := make(map[string]change, len(p.changes))
	for _, c := range p.changes {
		planned[c.path] = c
	}

	headEntries, err := e.repo.TreeEntriesAt(p.head)
	if err != nil {
		return nil, err
	}
	head := repo.EntriesByPath(headEntries)

	for _, h := range p.sources {
		c, err := e.repo.Store.ReadCommit(h)
		if err != nil {
			return nil, err
		}
		if len(c.Parents) > 1 {
			findings = append(findings, Finding{
				Path:     string(h),
				Severity: SeverityWarning,
				Code:     "MERGE_COMMIT",
				Detail:   "reverting a merge commit affects both merged lineages",
			})
		}
	}

	for _, c := range p.changes {
		if !c.restore && head[c.path].Kind == object.KindTable {
			findings = append(findings, Finding{
				Path:     c.path,
				Severity: SeverityWarning,
				Code:     "DATA_LOSS",
				Detail:   "dropping this table discards its data",
			})
		}

		dependents, err := e.graph.DependentsOf(ctx, c.path)
		if err != nil {
			return nil, err
		}
		for _, edge := range dependents {
			// A dependent that the plan itself reverts cannot be
			// orphaned by it.
			if _, alsoPlanned := planned[edge.Dependent]; alsoPlanned {
				continue
			}
			sev := SeverityWarning
			code := "SOFT_DEPENDENT"
			if edge.Hard() {
				code = "HARD_DEPENDENT"
				sev = SeverityError
				if !c.restore {
					sev = SeverityCritical
				}
			}
			findings = append(findings, Finding{
				Path:     c.path,
				Severity: sev,
				Code:     code,
				Detail:   fmt.Sprintf("%s depends on %s via %s", edge.Dependent, c.path, edge.Kind),
			})
		}
	}
	return findings, nil
}
