package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/odvcencio/stratum/pkg/ledger"
	"github.com/odvcencio/stratum/pkg/object"
	"github.com/odvcencio/stratum/pkg/repo"
)

// blockedMerge runs an ABORT_ON_CONFLICT merge over the forked setup and
// returns the executor and the single blocking conflict.
func blockedMerge(t *testing.T) (*repo.Repo, *Executor, *Result, *ledger.Conflict) {
	t.Helper()
	r, _ := forkedRepo(t)
	ex := New(r)

	res, err := ex.Merge(context.Background(), Options{
		SourceBranch: "feature",
		TargetBranch: "main",
		Strategy:     AbortOnConflict,
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Status != StatusConflict || len(res.Conflicts) != 1 {
		t.Fatalf("setup merge = %+v, want one conflict", res)
	}
	return r, ex, res, res.Conflicts[0]
}

func TestResolveAndFinalize_SourceChoice(t *testing.T) {
	r, ex, res, conflict := blockedMerge(t)
	ctx := context.Background()

	resolved, err := ex.ResolveConflict(ctx, conflict.ID, ChooseSource, "")
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if resolved.Resolution != "SOURCE" || resolved.ResolvedHash != conflict.SourceHash {
		t.Fatalf("resolution = %+v, want SOURCE with source hash", resolved)
	}

	final, err := ex.FinalizeMerge(ctx, res.MergeID, "")
	if err != nil {
		t.Fatalf("FinalizeMerge: %v", err)
	}
	if final.Status != StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", final.Status)
	}

	e, ok := entryFor(t, r, final.ResultCommit, "public.a")
	if !ok {
		t.Fatal("public.a missing after finalize")
	}
	if string(e.BlobHash) != conflict.SourceHash {
		t.Fatalf("finalized a = %s, want source %s", e.BlobHash, conflict.SourceHash)
	}

	head, err := r.ResolveHead("main")
	if err != nil {
		t.Fatalf("ResolveHead: %v", err)
	}
	if head != final.ResultCommit {
		t.Fatalf("main = %s, want %s", head, final.ResultCommit)
	}
}

func TestResolveConflict_OnlyOnce(t *testing.T) {
	_, ex, _, conflict := blockedMerge(t)
	ctx := context.Background()

	if _, err := ex.ResolveConflict(ctx, conflict.ID, ChooseTarget, ""); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if _, err := ex.ResolveConflict(ctx, conflict.ID, ChooseSource, ""); !errors.Is(err, ledger.ErrAlreadyResolved) {
		t.Fatalf("second resolve err = %v, want ErrAlreadyResolved", err)
	}
}

func TestResolveConflict_CustomValidatesDDL(t *testing.T) {
	r, ex, res, conflict := blockedMerge(t)
	ctx := context.Background()

	// Unparseable custom definitions are rejected before anything is
	// recorded.
	if _, err := ex.ResolveConflict(ctx, conflict.ID, ChooseCustom, "this is not ddl"); !errors.Is(err, object.ErrValidation) {
		t.Fatalf("bad custom err = %v, want ErrValidation", err)
	}
	if _, err := ex.ResolveConflict(ctx, conflict.ID, ChooseCustom, ""); !errors.Is(err, object.ErrValidation) {
		t.Fatalf("empty custom err = %v, want ErrValidation", err)
	}

	custom := "CREATE TABLE public.a (v2 int, v3 int);"
	resolved, err := ex.ResolveConflict(ctx, conflict.ID, ChooseCustom, custom)
	if err != nil {
		t.Fatalf("ResolveConflict(custom): %v", err)
	}
	if resolved.Resolution != "CUSTOM" || resolved.ResolvedHash == "" {
		t.Fatalf("resolution = %+v, want CUSTOM with blob hash", resolved)
	}

	final, err := ex.FinalizeMerge(ctx, res.MergeID, "")
	if err != nil {
		t.Fatalf("FinalizeMerge: %v", err)
	}
	e, ok := entryFor(t, r, final.ResultCommit, "public.a")
	if !ok {
		t.Fatal("public.a missing after custom finalize")
	}
	blob, err := r.Store.ReadBlob(e.BlobHash)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(blob.Data) != custom+"\n" {
		t.Fatalf("finalized definition = %q, want normalized custom DDL", blob.Data)
	}
}

func TestFinalizeMerge_RequiresAllResolved(t *testing.T) {
	_, ex, res, _ := blockedMerge(t)

	if _, err := ex.FinalizeMerge(context.Background(), res.MergeID, ""); !errors.Is(err, object.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation with unresolved conflicts", err)
	}
}

func TestFinalizeMerge_TargetMovedFailsCAS(t *testing.T) {
	r, ex, res, conflict := blockedMerge(t)
	ctx := context.Background()

	if _, err := ex.ResolveConflict(ctx, conflict.ID, ChooseSource, ""); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}

	// Someone commits to main while the merge awaits finalize.
	stageAndCommit(t, r, "main", "concurrent", map[string]string{
		"public.z": "CREATE TABLE public.z (id int);",
	})

	if _, err := ex.FinalizeMerge(ctx, res.MergeID, ""); !errors.Is(err, repo.ErrConcurrentModification) {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
}

func TestAbortMerge(t *testing.T) {
	r, ex, res, _ := blockedMerge(t)
	ctx := context.Background()

	if err := ex.AbortMerge(ctx, res.MergeID); err != nil {
		t.Fatalf("AbortMerge: %v", err)
	}
	op, err := r.Ledger.GetMergeOperation(ctx, res.MergeID)
	if err != nil {
		t.Fatalf("GetMergeOperation: %v", err)
	}
	if op.Status != string(StatusAborted) {
		t.Fatalf("status = %s, want ABORTED", op.Status)
	}

	// Finalizing an aborted merge fails.
	if _, err := ex.FinalizeMerge(ctx, res.MergeID, ""); !errors.Is(err, object.ErrValidation) {
		t.Fatalf("finalize after abort err = %v, want ErrValidation", err)
	}
}
