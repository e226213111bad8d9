// Package merge executes strategy-driven three-way merges between
// branches and manages the conflict resolution flow. A merge either
// commits (two parents, target ref advanced by CAS) or surfaces conflicts
// as ledger rows for manual resolution; conflicts are normal outcomes,
// not errors.
package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/stratum/pkg/diff"
	"github.com/odvcencio/stratum/pkg/ledger"
	"github.com/odvcencio/stratum/pkg/object"
	"github.com/odvcencio/stratum/pkg/repo"
)

// Strategy selects how classified conflicts are handled.
type Strategy string

const (
	// AbortOnConflict blocks on any classified conflict, even
	// auto-resolvable ones.
	AbortOnConflict Strategy = "ABORT_ON_CONFLICT"
	// SourceWins takes the source side unconditionally; always succeeds.
	SourceWins Strategy = "SOURCE_WINS"
	// TargetWins takes the target side unconditionally; always succeeds.
	TargetWins Strategy = "TARGET_WINS"
	// Union auto-resolves per classification and leaves BOTH_MODIFIED
	// paths as conflicts.
	Union Strategy = "UNION"
	// ManualReview always stops for sign-off, even with zero conflicts.
	ManualReview Strategy = "MANUAL_REVIEW"
)

// ValidStrategy reports whether s names a known strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case AbortOnConflict, SourceWins, TargetWins, Union, ManualReview:
		return true
	}
	return false
}

// Status is the terminal state of a merge operation.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSuccess  Status = "SUCCESS"
	StatusConflict Status = "CONFLICT"
	StatusAborted  Status = "ABORTED"
)

// Options configures one merge invocation.
type Options struct {
	SourceBranch string
	TargetBranch string
	Strategy     Strategy
	Message      string
	Author       string
	// AllowDisjoint lets the merge proceed against the configured default
	// root when the two histories share no ancestor. Without it a
	// disjoint merge fails validation rather than silently choosing a
	// base.
	AllowDisjoint bool
}

// Result is the structured outcome of a merge attempt.
type Result struct {
	MergeID           string
	Status            Status
	MergeBase         object.Hash
	NoCommonAncestor  bool
	ConflictsDetected int
	ConflictsResolved int
	ResultCommit      object.Hash
	Conflicts         []*ledger.Conflict
	Message           string
}

// Executor runs merges against one repository.
type Executor struct {
	repo *repo.Repo
}

// New builds an Executor.
func New(r *repo.Repo) *Executor {
	return &Executor{repo: r}
}

// DetectConflicts classifies source vs target against their merge base
// (or the given base override) without touching refs or the ledger.
func (e *Executor) DetectConflicts(ctx context.Context, sourceCommit, targetCommit, baseOverride object.Hash) ([]diff.Finding, *repo.MergeBaseResult, error) {
	var mb *repo.MergeBaseResult
	if baseOverride != "" {
		mb = &repo.MergeBaseResult{Base: baseOverride}
	} else {
		var err error
		mb, err = e.repo.FindMergeBase(sourceCommit, targetCommit)
		if err != nil {
			return nil, nil, err
		}
	}

	var baseEntries []object.TreeEntry
	if mb.Base != "" {
		var err error
		baseEntries, err = e.repo.TreeEntriesAt(mb.Base)
		if err != nil {
			return nil, nil, err
		}
	}
	sourceEntries, err := e.repo.TreeEntriesAt(sourceCommit)
	if err != nil {
		return nil, nil, err
	}
	targetEntries, err := e.repo.TreeEntriesAt(targetCommit)
	if err != nil {
		return nil, nil, err
	}

	return diff.Classify(baseEntries, sourceEntries, targetEntries), mb, nil
}

// Merge merges the source branch into the target branch under the given
// strategy. Conflict outcomes are returned in the Result, not as errors.
func (e *Executor) Merge(ctx context.Context, opts Options) (*Result, error) {
	if !ValidStrategy(opts.Strategy) {
		return nil, fmt.Errorf("merge: %w: unknown strategy %q", object.ErrValidation, opts.Strategy)
	}

	sourceHead, err := e.repo.ResolveHead(opts.SourceBranch)
	if err != nil {
		return nil, fmt.Errorf("merge: source branch: %w", err)
	}
	targetHead, err := e.repo.ResolveHead(opts.TargetBranch)
	if err != nil {
		return nil, fmt.Errorf("merge: target branch: %w", err)
	}
	if sourceHead == targetHead {
		return &Result{Status: StatusAborted, Message: "already up to date"}, nil
	}

	findings, mb, err := e.DetectConflicts(ctx, sourceHead, targetHead, "")
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if mb.NoCommonAncestor && !opts.AllowDisjoint {
		return nil, fmt.Errorf("merge: %w: branches %q and %q share no common ancestor (pass AllowDisjoint to merge against the default root)",
			object.ErrValidation, opts.SourceBranch, opts.TargetBranch)
	}

	op, err := e.openOperation(ctx, opts, sourceHead, targetHead, mb)
	if err != nil {
		return nil, err
	}

	blocking, recorded := partitionFindings(opts.Strategy, findings)
	op.ConflictsDetected = len(blocking) + len(recorded)
	op.ConflictsResolved = len(recorded)

	if err := e.persistConflicts(ctx, op, blocking, recorded, opts.Strategy); err != nil {
		return nil, err
	}

	stop := len(blocking) > 0 || opts.Strategy == ManualReview ||
		(opts.Strategy == AbortOnConflict && op.ConflictsDetected > 0)
	if stop {
		op.Status = string(StatusConflict)
		op.Message = fmt.Sprintf("merge blocked: %d conflict(s) require resolution", len(blocking))
		if opts.Strategy == ManualReview && len(blocking) == 0 {
			op.Message = "manual review required before finalize"
		}
		if err := e.repo.Ledger.UpdateMergeOperation(ctx, op); err != nil {
			return nil, err
		}
		conflicts, err := e.repo.Ledger.ConflictsByMerge(ctx, op.ID)
		if err != nil {
			return nil, err
		}
		return e.result(op, mb, conflicts), nil
	}

	resultCommit, err := e.commitMerge(ctx, opts.TargetBranch, opts.Message, opts.Author, op, findings, nil)
	if err != nil {
		return nil, err
	}

	op.Status = string(StatusSuccess)
	op.ResultCommit = string(resultCommit)
	op.Message = "merged " + opts.SourceBranch + " into " + opts.TargetBranch
	if err := e.repo.Ledger.UpdateMergeOperation(ctx, op); err != nil {
		return nil, err
	}
	return e.result(op, mb, nil), nil
}

// openOperation reuses an open CONFLICT operation for the same heads so
// re-merging after partial resolution cannot duplicate resolved rows;
// otherwise it creates a fresh PENDING row. A reused operation adopts the
// retry's strategy: the stored one belongs to the attempt that blocked.
func (e *Executor) openOperation(ctx context.Context, opts Options, sourceHead, targetHead object.Hash, mb *repo.MergeBaseResult) (*ledger.MergeOperation, error) {
	existing, err := e.repo.Ledger.FindOpenMerge(ctx, string(sourceHead), string(targetHead))
	if err == nil {
		existing.Strategy = string(opts.Strategy)
		return existing, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	op := &ledger.MergeOperation{
		ID:               uuid.NewString(),
		SourceBranch:     opts.SourceBranch,
		TargetBranch:     opts.TargetBranch,
		SourceCommit:     string(sourceHead),
		TargetCommit:     string(targetHead),
		MergeBase:        string(mb.Base),
		NoCommonAncestor: mb.NoCommonAncestor,
		Strategy:         string(opts.Strategy),
		Status:           string(StatusPending),
	}
	if err := e.repo.Ledger.CreateMergeOperation(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// partitionFindings splits classified findings into blocking conflicts
// and strategy-auto-resolved conflicts worth recording.
func partitionFindings(strategy Strategy, findings []diff.Finding) (blocking, recorded []diff.Finding) {
	for _, f := range findings {
		switch {
		case f.Classification == diff.BothModified:
			if strategy == SourceWins || strategy == TargetWins {
				recorded = append(recorded, f)
			} else {
				blocking = append(blocking, f)
			}
		case f.Classification == diff.NoConflict:
			// Agreeing outcome; nothing to record.
		case strategy == AbortOnConflict:
			// Any classified conflict blocks, auto-resolvable or not.
			blocking = append(blocking, f)
		case strategy == Union:
			// Auto-resolutions are individually recorded for audit.
			recorded = append(recorded, f)
		}
	}
	return blocking, recorded
}

// persistConflicts writes blocking conflicts unresolved and recorded
// conflicts with their automatic resolution. Duplicate (merge, path) rows
// from a re-merge are ignored by the ledger; a pre-existing unresolved
// row whose path the strategy now auto-resolves is resolved in place so
// the operation's resolved count stays true.
func (e *Executor) persistConflicts(ctx context.Context, op *ledger.MergeOperation, blocking, recorded []diff.Finding, strategy Strategy) error {
	for _, f := range blocking {
		if err := e.repo.Ledger.InsertConflict(ctx, conflictRow(op.ID, f, "", "")); err != nil {
			return err
		}
	}
	for _, f := range recorded {
		choice, hash := autoResolution(strategy, f)
		row := conflictRow(op.ID, f, choice, hash)
		row.ResolvedAt = time.Now().UnixMilli()
		if err := e.repo.Ledger.InsertConflict(ctx, row); err != nil {
			return err
		}
		if err := e.repo.Ledger.ResolveConflictByPath(ctx, op.ID, f.Path, choice, hash); err != nil {
			return err
		}
	}
	return nil
}

func conflictRow(mergeID string, f diff.Finding, resolution, resolvedHash string) *ledger.Conflict {
	return &ledger.Conflict{
		ID:             uuid.NewString(),
		MergeID:        mergeID,
		Path:           f.Path,
		ObjectKind:     string(f.Kind),
		BaseHash:       string(f.BaseHash),
		SourceHash:     string(f.SourceHash),
		TargetHash:     string(f.TargetHash),
		Classification: string(f.Classification),
		Severity:       string(f.Severity),
		AutoResolvable: f.AutoResolvable,
		Resolution:     resolution,
		ResolvedHash:   resolvedHash,
	}
}

// autoResolution names the side a strategy picks for a finding.
func autoResolution(strategy Strategy, f diff.Finding) (choice, hash string) {
	switch strategy {
	case SourceWins:
		return "SOURCE", string(f.SourceHash)
	case TargetWins:
		return "TARGET", string(f.TargetHash)
	}
	// Union: the classification names the winner.
	switch f.Classification {
	case diff.SourceModified, diff.DeletedSource:
		return "SOURCE", string(f.SourceHash)
	case diff.TargetModified, diff.DeletedTarget:
		return "TARGET", string(f.TargetHash)
	}
	return "SOURCE", string(f.SourceHash)
}

// commitMerge builds the merged tree, writes the merge commit with
// parents [target, source], and CAS-advances the target ref. resolutions
// maps conflict paths to their resolved blob hash ("" = delete) and wins
// over the strategy default.
func (e *Executor) commitMerge(ctx context.Context, targetBranch, message, author string, op *ledger.MergeOperation, findings []diff.Finding, resolutions map[string]resolvedPath) (object.Hash, error) {
	targetEntries, err := e.repo.TreeEntriesAt(object.Hash(op.TargetCommit))
	if err != nil {
		return "", err
	}
	sourceEntries, err := e.repo.TreeEntriesAt(object.Hash(op.SourceCommit))
	if err != nil {
		return "", err
	}
	sourceByPath := repo.EntriesByPath(sourceEntries)

	merged := repo.EntriesByPath(targetEntries)
	strategy := Strategy(op.Strategy)

	for _, f := range findings {
		if res, ok := resolutions[f.Path]; ok {
			applyResolved(merged, f, res)
			continue
		}
		applyAuto(merged, sourceByPath, strategy, f)
	}

	entries := make([]object.TreeEntry, 0, len(merged))
	for _, entry := range merged {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	treeHash, err := e.repo.Store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("merge tree: %w", err)
	}

	if author == "" {
		author = e.repo.Config.DefaultAuthor
	}
	if message == "" {
		message = fmt.Sprintf("Merge %s into %s", op.SourceBranch, op.TargetBranch)
	}
	commitHash, err := e.repo.Store.WriteCommit(&object.CommitObj{
		TreeHash:  treeHash,
		Parents:   []object.Hash{object.Hash(op.TargetCommit), object.Hash(op.SourceCommit)},
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	})
	if err != nil {
		return "", fmt.Errorf("merge commit: %w", err)
	}

	if err := e.repo.UpdateRefCAS(targetBranch, commitHash, object.Hash(op.TargetCommit), "merge: "+op.SourceBranch); err != nil {
		return "", err
	}
	return commitHash, nil
}

type resolvedPath struct {
	hash object.Hash // "" means the resolution deletes the object
	kind object.SchemaKind
}

func applyResolved(merged map[string]object.TreeEntry, f diff.Finding, res resolvedPath) {
	if res.hash == "" {
		delete(merged, f.Path)
		return
	}
	kind := res.kind
	if kind == "" {
		kind = f.Kind
	}
	merged[f.Path] = object.TreeEntry{Path: f.Path, Kind: kind, BlobHash: res.hash}
}

// applyAuto applies the strategy's default action for one finding to the
// merged snapshot (which starts as the target side).
func applyAuto(merged map[string]object.TreeEntry, sourceByPath map[string]object.TreeEntry, strategy Strategy, f diff.Finding) {
	takeSource := func() {
		if entry, ok := sourceByPath[f.Path]; ok {
			merged[f.Path] = entry
		} else {
			delete(merged, f.Path)
		}
	}

	switch f.Classification {
	case diff.NoConflict:
		// Identical adds exist only on the source map when target lacks
		// them; both-deleted paths are already absent from target.
		if _, inMerged := merged[f.Path]; !inMerged {
			if entry, ok := sourceByPath[f.Path]; ok {
				merged[f.Path] = entry
			}
		}
	case diff.SourceModified, diff.DeletedSource:
		takeSource()
	case diff.TargetModified, diff.DeletedTarget:
		// Target side already reflects this.
	case diff.BothModified:
		switch strategy {
		case SourceWins:
			takeSource()
		case TargetWins:
			// Keep target.
		}
	}
}

func (e *Executor) result(op *ledger.MergeOperation, mb *repo.MergeBaseResult, conflicts []*ledger.Conflict) *Result {
	return &Result{
		MergeID:           op.ID,
		Status:            Status(op.Status),
		MergeBase:         object.Hash(op.MergeBase),
		NoCommonAncestor:  op.NoCommonAncestor,
		ConflictsDetected: op.ConflictsDetected,
		ConflictsResolved: op.ConflictsResolved,
		ResultCommit:      object.Hash(op.ResultCommit),
		Conflicts:         conflicts,
		Message:           op.Message,
	}
}
