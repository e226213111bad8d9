package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/odvcencio/stratum/pkg/object"
)

// CreateBranch creates a new branch pointing at the given commit.
// Fails with ErrAlreadyExists when the name is taken and ErrNotFound
// (wrapped) when the target commit is not in the store.
func (r *Repo) CreateBranch(name string, target object.Hash) error {
	if name == "" {
		return fmt.Errorf("create branch: %w: empty name", object.ErrValidation)
	}
	if _, err := r.Store.ReadCommit(target); err != nil {
		return fmt.Errorf("create branch %q: target: %w", name, err)
	}
	if err := r.UpdateRefCAS(name, target, "", "branch: created"); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return fmt.Errorf("create branch %q: %w", name, ErrAlreadyExists)
		}
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes the branch ref under the same lock protocol as
// ref updates and records the deletion in the reflog. Protected branches
// (per config) fail with ErrProtectedRef unless force is set. Missing
// branches fail with ErrRefNotFound.
func (r *Repo) DeleteBranch(name string, force bool) error {
	if r.Config.IsProtected(name) && !force {
		return fmt.Errorf("delete branch %q: %w", name, ErrProtectedRef)
	}

	refPath := r.refPath(name)
	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("delete branch %q: lock: %w", name, err)
	}
	defer func() {
		_ = lockFile.Close()
		_ = os.Remove(lockPath)
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("delete branch %q: read hash: %w", name, err)
	}
	if oldHash == "" {
		return fmt.Errorf("delete branch %q: %w", name, ErrRefNotFound)
	}

	if err := os.Remove(refPath); err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}

	if err := r.appendReflog(name, oldHash, "", "branch: deleted"); err != nil {
		return fmt.Errorf("delete branch %q: ref removed but reflog append failed: %w", name, err)
	}
	return nil
}

// ListBranches returns branch names sorted alphabetically.
func (r *Repo) ListBranches() ([]string, error) {
	headsDir := filepath.Join(r.Dir, "refs", "heads")

	entries, err := os.ReadDir(headsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list branches: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".lock" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ResolveHead resolves a branch name to its head commit hash.
func (r *Repo) ResolveHead(branch string) (object.Hash, error) {
	return r.ResolveRef(branch)
}
