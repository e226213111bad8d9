package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/odvcencio/stratum/pkg/depgraph"
	"github.com/odvcencio/stratum/pkg/object"
)

// CommitSigner signs canonical commit payload bytes and returns an encoded
// signature string persisted in the commit object.
type CommitSigner func(payload []byte) (string, error)

// Commit turns the staged changes into a new commit on the named branch:
//
//  1. Read staging; empty staging fails validation.
//  2. Resolve the branch head (a missing branch starts a new root).
//  3. Apply staged upserts/tombstones to the head snapshot.
//  4. Write tree + commit, CAS-advance the branch ref.
//  5. Refresh the dependency graph for every touched object.
//  6. Clear staging.
//
// A concurrent head move between steps 2 and 4 surfaces as
// ErrConcurrentModification; the caller re-reads and retries.
func (r *Repo) Commit(ctx context.Context, branch, message, author string) (object.Hash, error) {
	return r.CommitWithSigner(ctx, branch, message, author, nil)
}

// CommitWithSigner creates a commit and signs it when signer is non-nil.
func (r *Repo) CommitWithSigner(ctx context.Context, branch, message, author string, signer CommitSigner) (object.Hash, error) {
	if branch == "" {
		return "", fmt.Errorf("commit: %w: empty branch name", object.ErrValidation)
	}
	if author == "" {
		author = r.Config.DefaultAuthor
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if len(stg.Entries) == 0 {
		return "", fmt.Errorf("commit: %w: nothing staged", object.ErrValidation)
	}

	// Resolve head; a missing branch means this commit starts it.
	var parents []object.Hash
	head, err := r.ResolveHead(branch)
	switch {
	case err == nil:
		parents = []object.Hash{head}
	case errors.Is(err, ErrRefNotFound):
		head = ""
	default:
		return "", fmt.Errorf("commit: %w", err)
	}

	treeHash, err := r.applyStagedTree(head, stg)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	commitObj := &object.CommitObj{
		TreeHash:  treeHash,
		Parents:   parents,
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}
	if signer != nil {
		signature, err := signer(object.CommitSigningPayload(commitObj))
		if err != nil {
			return "", fmt.Errorf("commit: sign commit: %w", err)
		}
		commitObj.Signature = signature
	}

	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	if err := r.UpdateRefCAS(branch, commitHash, head, "commit: "+firstLine(message)); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	if err := r.updateDependencyGraph(ctx, stg); err != nil {
		return "", fmt.Errorf("commit %s: %w", commitHash, err)
	}

	if err := r.ClearStaging(); err != nil {
		return "", fmt.Errorf("commit %s: clear staging: %w", commitHash, err)
	}

	return commitHash, nil
}

// applyStagedTree merges the staged entries over the head snapshot and
// writes the resulting tree.
func (r *Repo) applyStagedTree(head object.Hash, stg *Staging) (object.Hash, error) {
	byPath := make(map[string]object.TreeEntry)
	if head != "" {
		entries, err := r.TreeEntriesAt(head)
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			byPath[e.Path] = e
		}
	}

	for path, entry := range stg.Entries {
		if entry.Deleted {
			delete(byPath, path)
			continue
		}
		byPath[path] = object.TreeEntry{
			Path:     path,
			Kind:     entry.Kind,
			BlobHash: entry.BlobHash,
		}
	}

	entries := make([]object.TreeEntry, 0, len(byPath))
	for _, e := range byPath {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	return r.Store.WriteTree(&object.TreeObj{Entries: entries})
}

// updateDependencyGraph refreshes edges for every staged object.
func (r *Repo) updateDependencyGraph(ctx context.Context, stg *Staging) error {
	graph := depgraph.New(r.Ledger)
	for path, entry := range stg.Entries {
		if entry.Deleted {
			if err := graph.Remove(ctx, path); err != nil {
				return err
			}
			continue
		}
		blob, err := r.Store.ReadBlob(entry.BlobHash)
		if err != nil {
			return fmt.Errorf("dependency graph: %w", err)
		}
		if err := graph.Apply(ctx, path, blob.Data); err != nil {
			return err
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
