package repo

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/stratum/pkg/object"
)

// GC sweeps loose objects unreachable from any root, honoring the
// configured safety window: unreferenced objects younger than the window
// survive, so a sweep cannot race an in-flight commit or merge that has
// written objects whose ref advance is still pending.
//
// Roots are every ref plus the commits and resolution blobs held by open
// merge operations in the ledger: an unfinished merge whose source or
// target branch was deleted still needs those objects to finalize.
func (r *Repo) GC(ctx context.Context) (*object.GCSummary, error) {
	refs, err := r.ListRefs("")
	if err != nil {
		return nil, err
	}

	rootSet := make(map[object.Hash]struct{}, len(refs))
	for _, h := range refs {
		h = object.Hash(strings.TrimSpace(string(h)))
		if h == "" {
			continue
		}
		rootSet[h] = struct{}{}
	}

	held, err := r.Ledger.OpenMergeObjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, h := range held {
		rootSet[object.Hash(h)] = struct{}{}
	}

	roots := make([]object.Hash, 0, len(rootSet))
	for h := range rootSet {
		roots = append(roots, h)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	window := time.Duration(r.Config.GCSafetyWindowMinutes) * time.Minute
	return r.Store.Sweep(roots, window)
}
