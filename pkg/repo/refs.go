package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/stratum/pkg/object"
)

// ErrConcurrentModification indicates a ref compare-and-swap lost to a
// concurrent writer; the caller must re-read the head and retry.
var ErrConcurrentModification = errors.New("ref compare-and-swap mismatch")

// ErrRefNotFound indicates the named ref does not exist.
var ErrRefNotFound = errors.New("ref not found")

// ErrAlreadyExists indicates a ref with that name already exists.
var ErrAlreadyExists = errors.New("ref already exists")

// ErrProtectedRef indicates the operation targets a protected branch.
var ErrProtectedRef = errors.New("ref is protected")

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// refPath maps a ref name to its file. Bare names resolve under
// refs/heads/; fully qualified names ("refs/...") are used as-is.
func (r *Repo) refPath(name string) string {
	if strings.HasPrefix(name, "refs/") {
		return filepath.Join(r.Dir, filepath.FromSlash(name))
	}
	return filepath.Join(r.Dir, "refs", "heads", name)
}

// ResolveRef resolves a ref name to a commit hash. Returns ErrRefNotFound
// (wrapped) when no such ref exists.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	data, err := os.ReadFile(r.refPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("resolve ref %q: %w", name, ErrRefNotFound)
		}
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}

// UpdateRefCAS writes a hash to the named ref using lockfile + rename
// atomic semantics, succeeding only when the ref's current value matches
// expectedOld ("" means the ref must not yet exist). On mismatch it fails
// with ErrConcurrentModification and leaves the ref untouched.
//
// Every successful update appends a reflog entry; a reflog append failure
// after the rename is reported but does not undo the update.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, expectedOld object.Hash, reason string) error {
	refPath := r.refPath(name)

	dir := filepath.Dir(refPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if oldHash != expectedOld {
		return fmt.Errorf(
			"update ref %q: %w (expected %s, found %s)",
			name,
			ErrConcurrentModification,
			expectedOld,
			oldHash,
		)
	}

	if _, err := lockFile.WriteString(string(h) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		os.Remove(lockPath)
		cleanupLock = false
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	if err := r.appendReflog(name, oldHash, h, reason); err != nil {
		return fmt.Errorf("update ref %q: ref updated but reflog append failed: %w", name, err)
	}

	return nil
}

// ListRefs lists refs under .stratum/refs. Names are returned relative to
// the refs root, e.g. "heads/main", "tags/v1".
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	root := filepath.Join(r.Dir, "refs")
	dir := root
	if strings.TrimSpace(prefix) != "" {
		dir = filepath.Join(root, filepath.FromSlash(prefix))
	}

	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		refs[filepath.ToSlash(rel)] = object.Hash(strings.TrimSpace(string(data)))
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func readRefHash(refPath string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}
