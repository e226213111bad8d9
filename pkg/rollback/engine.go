// Package rollback appends inverse commits to a branch: the original
// commits stay retrievable by hash, only the branch ref advances. Every
// plan is validated against the live dependency graph before anything is
// written.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/stratum/pkg/depgraph"
	"github.com/odvcencio/stratum/pkg/ledger"
	"github.com/odvcencio/stratum/pkg/object"
	"github.com/odvcencio/stratum/pkg/repo"
)

// ErrDependencyViolation is returned when an execution would orphan a
// hard dependent and no override was given.
var ErrDependencyViolation = errors.New("rollback would break a hard dependency")

// Kind names which rollback operation produced a plan.
type Kind string

const (
	KindSingleCommit Kind = "SINGLE_COMMIT"
	KindRange        Kind = "RANGE"
	KindToTimestamp  Kind = "TO_TIMESTAMP"
	KindUndo         Kind = "UNDO"
)

// Mode controls how far an operation goes.
type Mode string

const (
	// DryRun validates and counts; nothing is committed.
	DryRun Mode = "DRY_RUN"
	// Validated runs the full validation pipeline and records the
	// outcome; nothing is committed.
	Validated Mode = "VALIDATED"
	// Executed validates and, absent blocking findings (or with Force),
	// appends the inverse commit and advances the branch.
	Executed Mode = "EXECUTED"
)

// Status is the terminal state of one rollback operation.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusBlocked Status = "BLOCKED"
)

// FindingSeverity ranks validation findings. ERROR and CRITICAL block
// execution; WARNING is advisory.
type FindingSeverity string

const (
	SeverityWarning  FindingSeverity = "WARNING"
	SeverityError    FindingSeverity = "ERROR"
	SeverityCritical FindingSeverity = "CRITICAL"
)

// Finding is one validation observation about a planned change.
type Finding struct {
	Path     string
	Severity FindingSeverity
	Code     string // HARD_DEPENDENT, SOFT_DEPENDENT, MERGE_COMMIT, DATA_LOSS
	Detail   string
}

// Blocking reports whether the finding prevents execution.
func (f Finding) Blocking() bool {
	return f.Severity == SeverityError || f.Severity == SeverityCritical
}

// Options tunes one rollback invocation.
type Options struct {
	Mode   Mode
	Author string
	// Force executes past blocking dependency findings. Validation
	// findings are still reported in the result.
	Force bool
}

// Result is the structured outcome of a rollback or undo.
type Result struct {
	RollbackID        string
	Kind              Kind
	Mode              Mode
	Status            Status
	RollbackCommit    object.Hash
	ObjectsAffected   int
	BreakingChanges   int
	ConflictsResolved int // paths touched by more than one reverted commit
	SkippedPaths      []string
	Findings          []Finding
	Message           string
	Elapsed           time.Duration
}

// Engine plans and executes rollbacks against one repository.
type Engine struct {
	repo  *repo.Repo
	graph *depgraph.Graph
}

// New builds an Engine.
func New(r *repo.Repo) *Engine {
	return &Engine{repo: r, graph: depgraph.New(r.Ledger)}
}

// change is one planned mutation of the branch head tree: restore the
// path to entry, or delete it when restore is false.
type change struct {
	path    string
	restore bool
	entry   object.TreeEntry
}

// plan is a computed inverse changeset, paths sorted.
type plan struct {
	kind              Kind
	branch            string
	head              object.Hash
	sources           []object.Hash
	changes           []change
	conflictsResolved int
	skipped           []string
	message           string
}

// RollbackCommit inverts exactly one commit's diff and appends the
// inverse as a new commit on the branch.
func (e *Engine) RollbackCommit(ctx context.Context, branch string, commit object.Hash, opts Options) (*Result, error) {
	p, err := e.planCommit(branch, commit, nil)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, p, opts)
}

// RollbackRange inverts every commit in the half-open interval
// (from, to] in reverse-chronological order. A path touched by more than
// one reverted commit is counted as an informational resolved conflict,
// never a blocker. The interval is capped by the configured page size;
// callers paginate by calling again with the reported boundary.
func (e *Engine) RollbackRange(ctx context.Context, branch string, from, to object.Hash, opts Options) (*Result, error) {
	head, err := e.repo.ResolveHead(branch)
	if err != nil {
		return nil, err
	}
	hashes, commits, err := e.repo.CommitsBetween(from, to)
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, fmt.Errorf("rollback range: %w: no commits between %s and %s", object.ErrValidation, shortHash(from), shortHash(to))
	}
	if limit := e.repo.Config.RollbackPageSize; limit > 0 && len(hashes) > limit {
		return nil, fmt.Errorf("rollback range: %w: %d commits exceeds page size %d, split the range", object.ErrValidation, len(hashes), limit)
	}

	// Newest first: for every path the baseline state wins, which is the
	// state at `from` since each commit's inverse restores its first
	// parent. Later inverses on the same path overwrite earlier ones, so
	// walking newest->oldest leaves the oldest commit's parent state.
	touched := make(map[string]int)
	merged := make(map[string]change)
	for i, h := range hashes {
		deltas, err := e.commitDelta(h, commits[i])
		if err != nil {
			return nil, err
		}
		for _, c := range deltas {
			touched[c.path]++
			merged[c.path] = c
		}
	}

	p := &plan{
		kind:    KindRange,
		branch:  branch,
		head:    head,
		sources: hashes,
		changes: sortedChanges(merged),
		message: fmt.Sprintf("Rollback %d commit(s) %s..%s", len(hashes), shortHash(from), shortHash(to)),
	}
	for _, n := range touched {
		if n > 1 {
			p.conflictsResolved++
		}
	}
	return e.run(ctx, p, opts)
}

// RollbackToTimestamp restores the branch to its state at t by diffing
// the snapshot at t against the current head and committing the inverse.
func (e *Engine) RollbackToTimestamp(ctx context.Context, branch string, t time.Time, opts Options) (*Result, error) {
	if !t.Before(time.Now()) {
		return nil, fmt.Errorf("rollback to timestamp: %w: %s is not in the past", object.ErrValidation, t.Format(time.RFC3339))
	}
	head, err := e.repo.ResolveHead(branch)
	if err != nil {
		return nil, err
	}
	at, err := e.repo.CommitAtTime(branch, t.Unix())
	if err != nil {
		return nil, err
	}

	wantEntries, err := e.repo.TreeEntriesAt(at)
	if err != nil {
		return nil, err
	}
	headEntries, err := e.repo.TreeEntriesAt(head)
	if err != nil {
		return nil, err
	}
	changes := treeDelta(repo.EntriesByPath(headEntries), repo.EntriesByPath(wantEntries))

	p := &plan{
		kind:    KindToTimestamp,
		branch:  branch,
		head:    head,
		sources: []object.Hash{at},
		changes: changes,
		message: "Rollback to " + t.UTC().Format(time.RFC3339),
	}
	return e.run(ctx, p, opts)
}

// UndoChanges reverts only the named object paths out of one commit's
// diff; everything else keeps its current state. Paths the commit never
// touched are skipped and reported, not fatal.
func (e *Engine) UndoChanges(ctx context.Context, branch string, paths []string, commit object.Hash, opts Options) (*Result, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("undo: %w: no object paths given", object.ErrValidation)
	}
	scope := make(map[string]bool, len(paths))
	for _, p := range paths {
		scope[p] = true
	}
	p, err := e.planCommit(branch, commit, scope)
	if err != nil {
		return nil, err
	}
	p.kind = KindUndo
	p.message = fmt.Sprintf("Undo %d object(s) from %s", len(p.changes), shortHash(commit))
	return e.run(ctx, p, opts)
}

// UndoRange reverts the named object paths out of every commit in the
// half-open interval (from, to], leaving everything else at its current
// state. Like RollbackRange the commits invert newest first, so a scoped
// path lands on its state at `from`; scope paths no commit in the range
// touched are skipped and reported.
func (e *Engine) UndoRange(ctx context.Context, branch string, paths []string, from, to object.Hash, opts Options) (*Result, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("undo: %w: no object paths given", object.ErrValidation)
	}
	head, err := e.repo.ResolveHead(branch)
	if err != nil {
		return nil, err
	}
	hashes, commits, err := e.repo.CommitsBetween(from, to)
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, fmt.Errorf("undo range: %w: no commits between %s and %s", object.ErrValidation, shortHash(from), shortHash(to))
	}
	if limit := e.repo.Config.RollbackPageSize; limit > 0 && len(hashes) > limit {
		return nil, fmt.Errorf("undo range: %w: %d commits exceeds page size %d, split the range", object.ErrValidation, len(hashes), limit)
	}

	scope := make(map[string]bool, len(paths))
	for _, p := range paths {
		scope[p] = true
	}

	touched := make(map[string]int)
	merged := make(map[string]change)
	for i, h := range hashes {
		deltas, err := e.commitDelta(h, commits[i])
		if err != nil {
			return nil, err
		}
		for _, c := range deltas {
			if !scope[c.path] {
				continue
			}
			touched[c.path]++
			merged[c.path] = c
		}
	}

	p := &plan{
		kind:    KindUndo,
		branch:  branch,
		head:    head,
		sources: hashes,
		changes: sortedChanges(merged),
		message: fmt.Sprintf("Undo %d object(s) over %s..%s", len(merged), shortHash(from), shortHash(to)),
	}
	for _, n := range touched {
		if n > 1 {
			p.conflictsResolved++
		}
	}
	for path := range scope {
		if touched[path] == 0 {
			p.skipped = append(p.skipped, path)
		}
	}
	sort.Strings(p.skipped)
	return e.run(ctx, p, opts)
}

// planCommit computes the inverse of a single commit, optionally scoped
// to a path set.
func (e *Engine) planCommit(branch string, commit object.Hash, scope map[string]bool) (*plan, error) {
	head, err := e.repo.ResolveHead(branch)
	if err != nil {
		return nil, err
	}
	c, err := e.repo.Store.ReadCommit(commit)
	if err != nil {
		return nil, err
	}
	deltas, err := e.commitDelta(commit, c)
	if err != nil {
		return nil, err
	}

	p := &plan{
		kind:    KindSingleCommit,
		branch:  branch,
		head:    head,
		sources: []object.Hash{commit},
		message: "Rollback commit " + shortHash(commit),
	}
	if scope == nil {
		p.changes = deltas
		return p, nil
	}

	seen := make(map[string]bool, len(deltas))
	for _, d := range deltas {
		seen[d.path] = true
		if scope[d.path] {
			p.changes = append(p.changes, d)
		}
	}
	for path := range scope {
		if !seen[path] {
			p.skipped = append(p.skipped, path)
		}
	}
	sort.Strings(p.skipped)
	return p, nil
}

// commitDelta computes the inverse changeset of one commit: each path it
// touched, restored to its state in the first parent. A root commit's
// inverse deletes everything it introduced.
func (e *Engine) commitDelta(h object.Hash, c *object.CommitObj) ([]change, error) {
	after, err := e.repo.TreeEntriesAt(h)
	if err != nil {
		return nil, err
	}
	var before []object.TreeEntry
	if len(c.Parents) > 0 {
		before, err = e.repo.TreeEntriesAt(c.Parents[0])
		if err != nil {
			return nil, err
		}
	}
	return treeDelta(repo.EntriesByPath(after), repo.EntriesByPath(before)), nil
}

// treeDelta lists the changes turning `from` into `to`, paths sorted.
func treeDelta(from, to map[string]object.TreeEntry) []change {
	merged := make(map[string]change)
	for path, want := range to {
		have, ok := from[path]
		if !ok || have.BlobHash != want.BlobHash {
			merged[path] = change{path: path, restore: true, entry: want}
		}
	}
	for path := range from {
		if _, ok := to[path]; !ok {
			merged[path] = change{path: path}
		}
	}
	return sortedChanges(merged)
}

func sortedChanges(m map[string]change) []change {
	out := make([]change, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// run validates the plan, persists the operation row, and commits the
// inverse when the mode and findings allow it.
func (e *Engine) run(ctx context.Context, p *plan, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Mode == "" {
		opts.Mode = DryRun
	}

	findings, err := e.validate(ctx, p)
	if err != nil {
		return nil, err
	}
	blocking := 0
	for _, f := range findings {
		if f.Blocking() {
			blocking++
		}
	}

	res := &Result{
		RollbackID:        uuid.NewString(),
		Kind:              p.kind,
		Mode:              opts.Mode,
		Status:            StatusSuccess,
		ObjectsAffected:   len(p.changes),
		BreakingChanges:   blocking,
		ConflictsResolved: p.conflictsResolved,
		SkippedPaths:      p.skipped,
		Findings:          findings,
		Message:           p.message,
	}

	execute := opts.Mode == Executed
	if blocking > 0 {
		res.Status = StatusBlocked
		if execute && !opts.Force {
			res.Elapsed = time.Since(start)
			if err := e.record(ctx, p, res); err != nil {
				return nil, err
			}
			return res, fmt.Errorf("rollback %s: %w: %d blocking finding(s)", res.RollbackID, ErrDependencyViolation, blocking)
		}
	}

	if execute && (blocking == 0 || opts.Force) {
		commitHash, err := e.commitInverse(ctx, p, opts.Author)
		if err != nil {
			return nil, err
		}
		res.Status = StatusSuccess
		res.RollbackCommit = commitHash
	}

	res.Elapsed = time.Since(start)
	if err := e.record(ctx, p, res); err != nil {
		return nil, err
	}
	return res, nil
}

// commitInverse applies the plan to the head snapshot, writes the tree
// and commit, CAS-advances the branch, and refreshes the dependency
// graph for the touched paths.
func (e *Engine) commitInverse(ctx context.Context, p *plan, author string) (object.Hash, error) {
	headEntries, err := e.repo.TreeEntriesAt(p.head)
	if err != nil {
		return "", err
	}
	next := repo.EntriesByPath(headEntries)
	for _, c := range p.changes {
		if c.restore {
			next[c.path] = c.entry
		} else {
			delete(next, c.path)
		}
	}

	entries := make([]object.TreeEntry, 0, len(next))
	for _, entry := range next {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	treeHash, err := e.repo.Store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("rollback tree: %w", err)
	}
	if author == "" {
		author = e.repo.Config.DefaultAuthor
	}
	commitHash, err := e.repo.Store.WriteCommit(&object.CommitObj{
		TreeHash:  treeHash,
		Parents:   []object.Hash{p.head},
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   p.message,
	})
	if err != nil {
		return "", fmt.Errorf("rollback commit: %w", err)
	}
	if err := e.repo.UpdateRefCAS(p.branch, commitHash, p.head, "rollback: "+p.message); err != nil {
		return "", err
	}

	for _, c := range p.changes {
		if !c.restore {
			if err := e.graph.Remove(ctx, c.path); err != nil {
				return "", err
			}
			continue
		}
		blob, err := e.repo.Store.ReadBlob(c.entry.BlobHash)
		if err != nil {
			return "", err
		}
		if err := e.graph.Apply(ctx, c.path, blob.Data); err != nil {
			return "", err
		}
	}
	return commitHash, nil
}

// record persists the operation as an audit row.
func (e *Engine) record(ctx context.Context, p *plan, res *Result) error {
	sources := make([]string, len(p.sources))
	for i, h := range p.sources {
		sources[i] = string(h)
	}
	return e.repo.Ledger.CreateRollbackOperation(ctx, &ledger.RollbackOperation{
		ID:              res.RollbackID,
		Branch:          p.branch,
		Kind:            string(p.kind),
		Mode:            string(res.Mode),
		Status:          string(res.Status),
		SourceCommits:   sources,
		TargetCommit:    string(p.head),
		RollbackCommit:  string(res.RollbackCommit),
		ObjectsAffected: res.ObjectsAffected,
		BreakingChanges: res.BreakingChanges,
		Message:         res.Message,
		ElapsedMS:       res.Elapsed.Milliseconds(),
	})
}

func shortHash(h object.Hash) string {
	if len(h) > 12 {
		return string(h[:12])
	}
	return string(h)
}
