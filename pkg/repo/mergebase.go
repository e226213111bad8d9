package repo

import (
	"errors"
	"fmt"

	"github.com/odvcencio/stratum/pkg/object"
)

// MergeBaseResult describes the common ancestor of two commits.
type MergeBaseResult struct {
	Base   object.Hash
	DepthA int
	DepthB int
	// NoCommonAncestor is set when the two histories are disjoint. Base
	// then holds the configured default root branch head (or "" when that
	// branch does not exist) and the caller decides whether to proceed.
	NoCommonAncestor bool
}

type mergeBaseFrontierItem struct {
	hash  object.Hash
	depth int
}

// FindMergeBase finds the best common ancestor of a and b with a
// simultaneous breadth-first walk up both parent chains, recording the
// depth each commit was first reached at from each side. The winner is
// the common commit with minimum combined depth; ties break toward the
// candidate closer to a (the first-walked side). a == b returns a at
// depth zero. The walk is bounded by the configured maximum depth so
// pathological histories cannot pin the caller.
func (r *Repo) FindMergeBase(a, b object.Hash) (*MergeBaseResult, error) {
	if a == "" || b == "" {
		return nil, fmt.Errorf("find merge base: %w: empty commit hash", object.ErrValidation)
	}
	if a == b {
		return &MergeBaseResult{Base: a}, nil
	}

	maxDepth := r.Config.MergeBaseMaxDepth

	depthA := map[object.Hash]int{a: 0}
	depthB := map[object.Hash]int{b: 0}
	queueA := []mergeBaseFrontierItem{{hash: a}}
	queueB := []mergeBaseFrontierItem{{hash: b}}

	best := &MergeBaseResult{NoCommonAncestor: true}
	bestCombined := -1
	consider := func(h object.Hash) {
		da, inA := depthA[h]
		db, inB := depthB[h]
		if !inA || !inB {
			return
		}
		combined := da + db
		if bestCombined < 0 || combined < bestCombined ||
			(combined == bestCombined && da < best.DepthA) {
			best = &MergeBaseResult{Base: h, DepthA: da, DepthB: db}
			bestCombined = combined
		}
	}

	// Alternate one step per side so neither walk starves the other.
	for len(queueA) > 0 || len(queueB) > 0 {
		if len(queueA) > 0 {
			item := queueA[0]
			queueA = queueA[1:]
			if item.depth > maxDepth {
				return nil, fmt.Errorf("find merge base: traversal exceeded maximum depth (%d)", maxDepth)
			}
			next, err := r.expandParents(item, depthA)
			if err != nil {
				return nil, err
			}
			queueA = append(queueA, next...)
			consider(item.hash)
			for _, n := range next {
				consider(n.hash)
			}
		}
		if len(queueB) > 0 {
			item := queueB[0]
			queueB = queueB[1:]
			if item.depth > maxDepth {
				return nil, fmt.Errorf("find merge base: traversal exceeded maximum depth (%d)", maxDepth)
			}
			next, err := r.expandParents(item, depthB)
			if err != nil {
				return nil, err
			}
			queueB = append(queueB, next...)
			consider(item.hash)
			for _, n := range next {
				consider(n.hash)
			}
		}
		// Once a base is known, stop when no remaining frontier can still
		// surface a better candidate. A commit one side discovers later may
		// already be known to the other side at any depth, so the lower
		// bound on a future candidate's combined depth is the shallower
		// active frontier, not the frontier sum.
		if bestCombined >= 0 {
			bound := -1
			if len(queueA) > 0 {
				bound = queueA[0].depth
			}
			if len(queueB) > 0 && (bound < 0 || queueB[0].depth < bound) {
				bound = queueB[0].depth
			}
			if bound > bestCombined {
				break
			}
		}
	}

	if best.NoCommonAncestor {
		// Disjoint histories: fall back to the configured default root,
		// flagged so callers can refuse instead of silently proceeding.
		root, err := r.ResolveHead(r.Config.DefaultRootBranch)
		if err != nil && !errors.Is(err, ErrRefNotFound) {
			return nil, fmt.Errorf("find merge base: default root: %w", err)
		}
		best.Base = root
		return best, nil
	}
	return best, nil
}

func (r *Repo) expandParents(item mergeBaseFrontierItem, depths map[object.Hash]int) ([]mergeBaseFrontierItem, error) {
	c, err := r.Store.ReadCommit(item.hash)
	if err != nil {
		return nil, fmt.Errorf("find merge base: read %s: %w", item.hash, err)
	}
	var next []mergeBaseFrontierItem
	for _, p := range c.Parents {
		if p == "" {
			continue
		}
		if _, seen := depths[p]; seen {
			continue
		}
		depths[p] = item.depth + 1
		next = append(next, mergeBaseFrontierItem{hash: p, depth: item.depth + 1})
	}
	return next, nil
}
