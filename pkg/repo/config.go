package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config stores repository-local settings, persisted as
// .stratum/config.toml.
type Config struct {
	// DefaultAuthor is used when a mutating call omits an author.
	DefaultAuthor string `toml:"default_author"`

	// ProtectedBranches cannot be deleted without force.
	ProtectedBranches []string `toml:"protected_branches"`

	// DefaultRootBranch is the fallback merge base used when two commits
	// share no history; FindMergeBase flags this case explicitly.
	DefaultRootBranch string `toml:"default_root_branch"`

	// MergeBaseMaxDepth bounds the ancestry walk per side.
	MergeBaseMaxDepth int `toml:"merge_base_max_depth"`

	// RollbackPageSize caps commits processed per rollback-range call.
	RollbackPageSize int `toml:"rollback_page_size"`

	// GCSafetyWindowMinutes: unreferenced objects younger than this are
	// never swept.
	GCSafetyWindowMinutes int `toml:"gc_safety_window_minutes"`

	// SigningKeyPath optionally points at an SSH private key used to sign
	// commits.
	SigningKeyPath string `toml:"signing_key_path,omitempty"`
}

// DefaultConfig returns the settings written by Init.
func DefaultConfig() *Config {
	return &Config{
		ProtectedBranches:     []string{"main"},
		DefaultRootBranch:     "main",
		MergeBaseMaxDepth:     100_000,
		RollbackPageSize:      500,
		GCSafetyWindowMinutes: 60,
	}
}

// IsProtected reports whether the branch name is configured as protected.
func (c *Config) IsProtected(branch string) bool {
	for _, p := range c.ProtectedBranches {
		if p == branch {
			return true
		}
	}
	return false
}

func configPath(dir string) string {
	return filepath.Join(dir, "config.toml")
}

func readConfig(dir string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(configPath(dir), cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if cfg.MergeBaseMaxDepth <= 0 {
		cfg.MergeBaseMaxDepth = DefaultConfig().MergeBaseMaxDepth
	}
	if cfg.RollbackPageSize <= 0 {
		cfg.RollbackPageSize = DefaultConfig().RollbackPageSize
	}
	return cfg, nil
}

func writeConfig(dir string, cfg *Config) error {
	tmp, err := os.CreateTemp(dir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, configPath(dir)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// WriteConfig persists the repository config.
func (r *Repo) WriteConfig() error {
	return writeConfig(r.Dir, r.Config)
}
