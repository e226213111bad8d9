package repo

import (
	"errors"
	"fmt"

	"github.com/odvcencio/stratum/pkg/object"
)

// TreeEntriesAt returns the full schema snapshot recorded by a commit.
func (r *Repo) TreeEntriesAt(commit object.Hash) ([]object.TreeEntry, error) {
	c, err := r.Store.ReadCommit(commit)
	if err != nil {
		return nil, fmt.Errorf("state at %s: %w", commit, err)
	}
	tr, err := r.Store.ReadTree(c.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("state at %s: %w", commit, err)
	}
	return tr.Entries, nil
}

// EntriesByPath indexes tree entries by object path.
func EntriesByPath(entries []object.TreeEntry) map[string]object.TreeEntry {
	m := make(map[string]object.TreeEntry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

// Log walks commit history from start, following first-parent links,
// returning up to limit commits newest first (limit <= 0 means all).
func (r *Repo) Log(start object.Hash, limit int) ([]object.Hash, []*object.CommitObj, error) {
	var hashes []object.Hash
	var commits []*object.CommitObj
	current := start

	for current != "" {
		if limit > 0 && len(commits) >= limit {
			break
		}
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			if errors.Is(err, object.ErrNotFound) {
				break
			}
			return nil, nil, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		hashes = append(hashes, current)
		commits = append(commits, c)

		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}

	return hashes, commits, nil
}

// CommitsBetween walks first-parent history from "to" back toward "from"
// and returns the commits in the half-open interval (from, to], newest
// first. Fails validation when from is not a first-parent ancestor of to.
func (r *Repo) CommitsBetween(from, to object.Hash) ([]object.Hash, []*object.CommitObj, error) {
	if from == to {
		return nil, nil, nil
	}

	var hashes []object.Hash
	var commits []*object.CommitObj
	current := to

	for current != "" {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			return nil, nil, fmt.Errorf("commits between: read %s: %w", current, err)
		}
		hashes = append(hashes, current)
		commits = append(commits, c)

		if len(c.Parents) == 0 {
			return nil, nil, fmt.Errorf("commits between: %w: %s is not an ancestor of %s", object.ErrValidation, from, to)
		}
		current = c.Parents[0]
		if current == from {
			return hashes, commits, nil
		}
	}
	return nil, nil, fmt.Errorf("commits between: %w: %s is not an ancestor of %s", object.ErrValidation, from, to)
}

// IsFirstParentAncestor reports whether ancestor appears on descendant's
// first-parent chain (inclusive).
func (r *Repo) IsFirstParentAncestor(ancestor, descendant object.Hash) (bool, error) {
	current := descendant
	for current != "" {
		if current == ancestor {
			return true, nil
		}
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			return false, fmt.Errorf("ancestor check: read %s: %w", current, err)
		}
		if len(c.Parents) == 0 {
			return false, nil
		}
		current = c.Parents[0]
	}
	return false, nil
}

// CommitAtTime returns the newest commit on the branch's first-parent
// chain whose timestamp is <= t (unix seconds). Fails validation when t
// predates the branch's first commit.
func (r *Repo) CommitAtTime(branch string, t int64) (object.Hash, error) {
	head, err := r.ResolveHead(branch)
	if err != nil {
		return "", err
	}

	current := head
	var oldest object.Hash
	for current != "" {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			return "", fmt.Errorf("commit at time: read %s: %w", current, err)
		}
		if c.Timestamp <= t {
			return current, nil
		}
		oldest = current
		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}
	return "", fmt.Errorf("commit at time: %w: timestamp predates first commit %s of branch %q", object.ErrValidation, oldest, branch)
}

// FirstCommit returns the root of the branch's first-parent chain.
func (r *Repo) FirstCommit(branch string) (object.Hash, *object.CommitObj, error) {
	head, err := r.ResolveHead(branch)
	if err != nil {
		return "", nil, err
	}

	current := head
	for {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			return "", nil, fmt.Errorf("first commit: read %s: %w", current, err)
		}
		if len(c.Parents) == 0 {
			return current, c, nil
		}
		current = c.Parents[0]
	}
}
