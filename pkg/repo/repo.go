// Package repo implements the schema repository: a content-addressed
// object store holding snapshots of database schema objects, named refs
// advanced by compare-and-swap, and an operation ledger for merge and
// rollback audit rows.
//
// There is no ambient "current branch": every operation that touches a
// branch names it explicitly, so concurrent sessions against the same
// repository never share hidden state.
package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/stratum/pkg/ledger"
	"github.com/odvcencio/stratum/pkg/object"
)

// RepoDirName is the metadata directory created inside a repository root.
const RepoDirName = ".stratum"

// Repo represents an opened schema repository.
type Repo struct {
	RootDir string        // repository root
	Dir     string        // .stratum/ directory
	Store   *object.Store // content-addressed object store
	Ledger  *ledger.DB    // merge/conflict/rollback/dependency tables
	Config  *Config
}

// Init creates a new repository at path: the .stratum/ directory with
// objects/, refs/heads/, refs/tags/, reflog storage, a default config,
// and the operation ledger. Fails if a repository already exists there.
func Init(path string) (*Repo, error) {
	dir := filepath.Join(path, RepoDirName)

	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", dir)
	}

	dirs := []string{
		filepath.Join(dir, "objects"),
		filepath.Join(dir, "refs", "heads"),
		filepath.Join(dir, "refs", "tags"),
		filepath.Join(dir, "logs", "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	cfg := DefaultConfig()
	if err := writeConfig(dir, cfg); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	db, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		return nil, fmt.Errorf("init: open ledger: %w", err)
	}

	return &Repo{
		RootDir: path,
		Dir:     dir,
		Store:   object.NewStore(dir),
		Ledger:  db,
		Config:  cfg,
	}, nil
}

// Open searches upward from path for a .stratum/ directory and opens the
// repository found there.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		dir := filepath.Join(cur, RepoDirName)
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			cfg, err := readConfig(dir)
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			db, err := ledger.Open(filepath.Join(dir, "ledger.db"))
			if err != nil {
				return nil, fmt.Errorf("open: ledger: %w", err)
			}
			return &Repo{
				RootDir: cur,
				Dir:     dir,
				Store:   object.NewStore(dir),
				Ledger:  db,
				Config:  cfg,
			}, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not a stratum repository (or any parent up to /)")
		}
		cur = parent
	}
}

// Close releases the ledger database handle.
func (r *Repo) Close() error {
	if r.Ledger == nil {
		return nil
	}
	return r.Ledger.Close()
}
