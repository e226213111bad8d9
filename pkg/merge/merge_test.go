package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/odvcencio/stratum/pkg/diff"
	"github.com/odvcencio/stratum/pkg/object"
	"github.com/odvcencio/stratum/pkg/repo"
)

func testRepo(t *testing.T) *repo.Repo {
	t.Helper()
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func stageAndCommit(t *testing.T, r *repo.Repo, branch, msg string, defs map[string]string) object.Hash {
	t.Helper()
	for path, def := range defs {
		schema, name := splitObjectPath(t, path)
		if def == "" {
			if _, err := r.RecordChange(schema, name, "", nil); err != nil {
				t.Fatalf("RecordChange(drop %s): %v", path, err)
			}
			continue
		}
		d := def
		if _, err := r.RecordChange(schema, name, object.KindTable, &d); err != nil {
			t.Fatalf("RecordChange(%s): %v", path, err)
		}
	}
	h, err := r.Commit(context.Background(), branch, msg, "test <test@example.com>")
	if err != nil {
		t.Fatalf("Commit(%s, %q): %v", branch, msg, err)
	}
	return h
}

func splitObjectPath(t *testing.T, path string) (string, string) {
	t.Helper()
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '.' {
			return path[:i], path[i+1:]
		}
	}
	t.Fatalf("bad object path %q", path)
	return "", ""
}

// forkedRepo builds the three-way setup the scenarios share: main holds
// A at v1, feature forks and moves A to v2, main independently moves A
// to v3.
func forkedRepo(t *testing.T) (*repo.Repo, object.Hash) {
	t.Helper()
	r := testRepo(t)

	base := stageAndCommit(t, r, "main", "base", map[string]string{
		"public.a": "CREATE TABLE public.a (v1 int);",
	})
	if err := r.CreateBranch("feature", base); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	stageAndCommit(t, r, "feature", "feature change", map[string]string{
		"public.a": "CREATE TABLE public.a (v2 int);",
	})
	stageAndCommit(t, r, "main", "main change", map[string]string{
		"public.a": "CREATE TABLE public.a (v3 int);",
	})
	return r, base
}

func entryFor(t *testing.T, r *repo.Repo, commit object.Hash, path string) (object.TreeEntry, bool) {
	t.Helper()
	entries, err := r.TreeEntriesAt(commit)
	if err != nil {
		t.Fatalf("TreeEntriesAt: %v", err)
	}
	e, ok := repo.EntriesByPath(entries)[path]
	return e, ok
}

func TestDetectConflicts_BothModified(t *testing.T) {
	r, base := forkedRepo(t)
	ex := New(r)

	source, _ := r.ResolveHead("feature")
	target, _ := r.ResolveHead("main")

	findings, mb, err := ex.DetectConflicts(context.Background(), source, target, "")
	if err != nil {
		t.Fatalf("DetectConflicts: %v", err)
	}
	if mb.Base != base {
		t.Fatalf("merge base = %s, want %s", mb.Base, base)
	}
	if len(findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(findings))
	}
	f := findings[0]
	if f.Path != "public.a" || f.Classification != diff.BothModified || f.AutoResolvable {
		t.Fatalf("finding = %+v, want BOTH_MODIFIED on public.a, not auto-resolvable", f)
	}
}

func TestMerge_SourceWins(t *testing.T) {
	r, _ := forkedRepo(t)
	ex := New(r)

	sourceHead, _ := r.ResolveHead("feature")
	targetHead, _ := r.ResolveHead("main")

	res, err := ex.Merge(context.Background(), Options{
		SourceBranch: "feature",
		TargetBranch: "main",
		Strategy:     SourceWins,
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", res.Status)
	}
	if res.ResultCommit == "" {
		t.Fatal("SUCCESS merge without result commit")
	}

	c, err := r.Store.ReadCommit(res.ResultCommit)
	if err != nil {
		t.Fatalf("ReadCommit(result): %v", err)
	}
	if len(c.Parents) != 2 || c.Parents[0] != targetHead || c.Parents[1] != sourceHead {
		t.Fatalf("parents = %v, want [%s %s]", c.Parents, targetHead, sourceHead)
	}

	// The source definition won.
	e, ok := entryFor(t, r, res.ResultCommit, "public.a")
	if !ok {
		t.Fatal("public.a missing from merged tree")
	}
	srcEntry, _ := entryFor(t, r, sourceHead, "public.a")
	if e.BlobHash != srcEntry.BlobHash {
		t.Fatalf("merged a = %s, want source's %s", e.BlobHash, srcEntry.BlobHash)
	}

	// The target ref advanced to the merge commit.
	newHead, err := r.ResolveHead("main")
	if err != nil {
		t.Fatalf("ResolveHead(main): %v", err)
	}
	if newHead != res.ResultCommit {
		t.Fatalf("main = %s, want %s", newHead, res.ResultCommit)
	}

	// The strategy's choice was recorded for audit.
	conflicts, err := r.Ledger.ConflictsByMerge(context.Background(), res.MergeID)
	if err != nil {
		t.Fatalf("ConflictsByMerge: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].Resolution != "SOURCE" {
		t.Fatalf("conflicts = %+v, want one resolved SOURCE", conflicts)
	}
}

func TestMerge_AbortOnConflictBlocks(t *testing.T) {
	r, _ := forkedRepo(t)
	ex := New(r)

	targetHead, _ := r.ResolveHead("main")

	res, err := ex.Merge(context.Background(), Options{
		SourceBranch: "feature",
		TargetBranch: "main",
		Strategy:     AbortOnConflict,
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != StatusConflict {
		t.Fatalf("status = %s, want CONFLICT", res.Status)
	}
	if res.ConflictsDetected != 1 {
		t.Fatalf("ConflictsDetected = %d, want 1", res.ConflictsDetected)
	}
	if res.ResultCommit != "" {
		t.Fatalf("blocked merge produced commit %s", res.ResultCommit)
	}

	// No ref movement.
	head, _ := r.ResolveHead("main")
	if head != targetHead {
		t.Fatalf("main moved to %s during blocked merge", head)
	}
}

func TestMerge_CleanDisjointPathsUnion(t *testing.T) {
	r := testRepo(t)

	base := stageAndCommit(t, r, "main", "base", map[string]string{
		"public.a": "CREATE TABLE public.a (id int);",
	})
	if err := r.CreateBranch("feature", base); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	stageAndCommit(t, r, "feature", "add b", map[string]string{
		"public.b": "CREATE TABLE public.b (id int);",
	})
	stageAndCommit(t, r, "main", "add c", map[string]string{
		"public.c": "CREATE TABLE public.c (id int);",
	})

	res, err := New(r).Merge(context.Background(), Options{
		SourceBranch: "feature",
		TargetBranch: "main",
		Strategy:     Union,
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS: %s", res.Status, res.Message)
	}

	entries, err := r.TreeEntriesAt(res.ResultCommit)
	if err != nil {
		t.Fatalf("TreeEntriesAt: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("merged tree has %d entries, want 3: %v", len(entries), entries)
	}
}

func TestMerge_UnionLeavesBothModifiedAsConflict(t *testing.T) {
	r, _ := forkedRepo(t)

	res, err := New(r).Merge(context.Background(), Options{
		SourceBranch: "feature",
		TargetBranch: "main",
		Strategy:     Union,
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != StatusConflict {
		t.Fatalf("status = %s, want CONFLICT", res.Status)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Resolved() {
		t.Fatalf("conflicts = %+v, want one unresolved", res.Conflicts)
	}
}

func TestMerge_ManualReviewAlwaysStops(t *testing.T) {
	r := testRepo(t)

	base := stageAndCommit(t, r, "main", "base", map[string]string{
		"public.a": "CREATE TABLE public.a (id int);",
	})
	if err := r.CreateBranch("feature", base); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	stageAndCommit(t, r, "feature", "identical twin", map[string]string{
		"public.b": "CREATE TABLE public.b (id int);",
	})
	stageAndCommit(t, r, "main", "mainline", map[string]string{
		"public.c": "CREATE TABLE public.c (id int);",
	})

	res, err := New(r).Merge(context.Background(), Options{
		SourceBranch: "feature",
		TargetBranch: "main",
		Strategy:     ManualReview,
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != StatusConflict {
		t.Fatalf("status = %s, want CONFLICT for MANUAL_REVIEW", res.Status)
	}
}

func TestMerge_AlreadyUpToDate(t *testing.T) {
	r := testRepo(t)

	base := stageAndCommit(t, r, "main", "base", map[string]string{
		"public.a": "CREATE TABLE public.a (id int);",
	})
	if err := r.CreateBranch("feature", base); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	res, err := New(r).Merge(context.Background(), Options{
		SourceBranch: "feature",
		TargetBranch: "main",
		Strategy:     Union,
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != StatusAborted {
		t.Fatalf("status = %s, want ABORTED for identical heads", res.Status)
	}
}

func TestMerge_DisjointNeedsFlag(t *testing.T) {
	r := testRepo(t)

	stageAndCommit(t, r, "main", "main root", map[string]string{
		"public.a": "CREATE TABLE public.a (id int);",
	})
	stageAndCommit(t, r, "island", "island root", map[string]string{
		"public.b": "CREATE TABLE public.b (id int);",
	})

	_, err := New(r).Merge(context.Background(), Options{
		SourceBranch: "island",
		TargetBranch: "main",
		Strategy:     Union,
	})
	if !errors.Is(err, object.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation without AllowDisjoint", err)
	}

	res, err := New(r).Merge(context.Background(), Options{
		SourceBranch:  "island",
		TargetBranch:  "main",
		Strategy:      Union,
		AllowDisjoint: true,
	})
	if err != nil {
		t.Fatalf("Merge(AllowDisjoint): %v", err)
	}
	if !res.NoCommonAncestor {
		t.Fatal("NoCommonAncestor not reported")
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS: %s", res.Status, res.Message)
	}
}

func TestMerge_UnknownStrategy(t *testing.T) {
	r, _ := forkedRepo(t)
	if _, err := New(r).Merge(context.Background(), Options{
		SourceBranch: "feature",
		TargetBranch: "main",
		Strategy:     "YOLO",
	}); !errors.Is(err, object.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestMerge_ReuseOpenOperation(t *testing.T) {
	r, _ := forkedRepo(t)
	ex := New(r)
	ctx := context.Background()

	opts := Options{SourceBranch: "feature", TargetBranch: "main", Strategy: AbortOnConflict}
	first, err := ex.Merge(ctx, opts)
	if err != nil {
		t.Fatalf("Merge 1: %v", err)
	}
	second, err := ex.Merge(ctx, opts)
	if err != nil {
		t.Fatalf("Merge 2: %v", err)
	}
	if first.MergeID != second.MergeID {
		t.Fatalf("re-merge created new operation %s, want reuse of %s", second.MergeID, first.MergeID)
	}
	conflicts, err := r.Ledger.ConflictsByMerge(ctx, first.MergeID)
	if err != nil {
		t.Fatalf("ConflictsByMerge: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1 (no duplicates on re-merge)", len(conflicts))
	}
}

// A blocked merge retried under a different strategy must execute under
// the retry's strategy, not the one stored with the reused operation.
func TestMerge_RetryWithNewStrategy(t *testing.T) {
	r, _ := forkedRepo(t)
	ex := New(r)
	ctx := context.Background()

	sourceHead, _ := r.ResolveHead("feature")

	first, err := ex.Merge(ctx, Options{
		SourceBranch: "feature",
		TargetBranch: "main",
		Strategy:     AbortOnConflict,
	})
	if err != nil {
		t.Fatalf("Merge(abort): %v", err)
	}
	if first.Status != StatusConflict {
		t.Fatalf("first status = %s, want CONFLICT", first.Status)
	}

	second, err := ex.Merge(ctx, Options{
		SourceBranch: "feature",
		TargetBranch: "main",
		Strategy:     SourceWins,
	})
	if err != nil {
		t.Fatalf("Merge(source wins): %v", err)
	}
	if second.MergeID != first.MergeID {
		t.Fatalf("retry opened operation %s, want reuse of %s", second.MergeID, first.MergeID)
	}
	if second.Status != StatusSuccess {
		t.Fatalf("retry status = %s, want SUCCESS: %s", second.Status, second.Message)
	}

	// The committed tree reflects SOURCE_WINS, not the blocked attempt.
	e, ok := entryFor(t, r, second.ResultCommit, "public.a")
	if !ok {
		t.Fatal("public.a missing from merged tree")
	}
	srcEntry, _ := entryFor(t, r, sourceHead, "public.a")
	if e.BlobHash != srcEntry.BlobHash {
		t.Fatalf("merged a = %s, want source's %s", e.BlobHash, srcEntry.BlobHash)
	}

	// The reused operation carries the executed strategy and its conflict
	// row is resolved in place rather than left dangling.
	op, err := r.Ledger.GetMergeOperation(ctx, second.MergeID)
	if err != nil {
		t.Fatalf("GetMergeOperation: %v", err)
	}
	if op.Strategy != string(SourceWins) {
		t.Fatalf("op strategy = %s, want SOURCE_WINS", op.Strategy)
	}
	conflicts, err := r.Ledger.ConflictsByMerge(ctx, second.MergeID)
	if err != nil {
		t.Fatalf("ConflictsByMerge: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].Resolution != "SOURCE" {
		t.Fatalf("conflicts = %+v, want one resolved SOURCE", conflicts)
	}
	if op.ConflictsResolved != 1 {
		t.Fatalf("ConflictsResolved = %d, want 1", op.ConflictsResolved)
	}
}
