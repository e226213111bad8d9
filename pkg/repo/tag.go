package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/odvcencio/stratum/pkg/object"
)

// CreateTag writes an annotated tag object pointing at target and a ref
// under refs/tags/. Tags are immutable: re-tagging an existing name fails
// with ErrAlreadyExists.
func (r *Repo) CreateTag(name string, target object.Hash, tagger, message string) (object.Hash, error) {
	if name == "" {
		return "", fmt.Errorf("create tag: %w: empty name", object.ErrValidation)
	}
	if _, err := r.Store.ReadCommit(target); err != nil {
		return "", fmt.Errorf("create tag %q: target: %w", name, err)
	}

	tagHash, err := r.Store.WriteTag(&object.TagObj{
		TargetHash: target,
		Name:       name,
		Tagger:     tagger,
		Timestamp:  time.Now().Unix(),
		Message:    message,
	})
	if err != nil {
		return "", fmt.Errorf("create tag %q: %w", name, err)
	}

	refName := "refs/tags/" + name
	if err := r.UpdateRefCAS(refName, tagHash, "", "tag: created"); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return "", fmt.Errorf("create tag %q: %w", name, ErrAlreadyExists)
		}
		return "", fmt.Errorf("create tag %q: %w", name, err)
	}
	return tagHash, nil
}

// ListTags returns tag names sorted alphabetically.
func (r *Repo) ListTags() ([]string, error) {
	tagsDir := filepath.Join(r.Dir, "refs", "tags")

	entries, err := os.ReadDir(tagsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list tags: %w", err)
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
