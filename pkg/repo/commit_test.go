package repo

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/odvcencio/stratum/pkg/object"
)

func stage(t *testing.T, r *Repo, schema, name string, kind object.SchemaKind, def string) {
	t.Helper()
	if _, err := r.RecordChange(schema, name, kind, &def); err != nil {
		t.Fatalf("RecordChange(%s.%s): %v", schema, name, err)
	}
}

func stageDrop(t *testing.T, r *Repo, schema, name string) {
	t.Helper()
	if _, err := r.RecordChange(schema, name, "", nil); err != nil {
		t.Fatalf("RecordChange(drop %s.%s): %v", schema, name, err)
	}
}

func commit(t *testing.T, r *Repo, branch, message string) object.Hash {
	t.Helper()
	h, err := r.Commit(context.Background(), branch, message, "test <test@example.com>")
	if err != nil {
		t.Fatalf("Commit(%s, %q): %v", branch, message, err)
	}
	return h
}

func TestCommit_EmptyStagingFails(t *testing.T) {
	r := testRepo(t)
	if _, err := r.Commit(context.Background(), "main", "nothing", ""); !errors.Is(err, object.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestCommit_RootThenChild(t *testing.T) {
	r := testRepo(t)

	stage(t, r, "public", "orders", object.KindTable, "CREATE TABLE public.orders (id int);")
	first := commit(t, r, "main", "add orders")

	c1, err := r.Store.ReadCommit(first)
	if err != nil {
		t.Fatalf("ReadCommit(first): %v", err)
	}
	if len(c1.Parents) != 0 {
		t.Fatalf("root commit parents = %v, want none", c1.Parents)
	}

	stage(t, r, "public", "customers", object.KindTable, "CREATE TABLE public.customers (id int);")
	second := commit(t, r, "main", "add customers")

	c2, err := r.Store.ReadCommit(second)
	if err != nil {
		t.Fatalf("ReadCommit(second): %v", err)
	}
	if len(c2.Parents) != 1 || c2.Parents[0] != first {
		t.Fatalf("second commit parents = %v, want [%s]", c2.Parents, first)
	}

	entries, err := r.TreeEntriesAt(second)
	if err != nil {
		t.Fatalf("TreeEntriesAt: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Canonical order.
	if entries[0].Path != "public.customers" || entries[1].Path != "public.orders" {
		t.Fatalf("entries out of order: %v", entries)
	}

	// Staging is cleared after a commit.
	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	if len(stg.Entries) != 0 {
		t.Fatalf("staging entries after commit = %d, want 0", len(stg.Entries))
	}
}

func TestCommit_TombstoneRemovesObject(t *testing.T) {
	r := testRepo(t)

	stage(t, r, "public", "orders", object.KindTable, "CREATE TABLE public.orders (id int);")
	stage(t, r, "public", "scratch", object.KindTable, "CREATE TABLE public.scratch (id int);")
	commit(t, r, "main", "seed")

	stageDrop(t, r, "public", "scratch")
	h := commit(t, r, "main", "drop scratch")

	entries, err := r.TreeEntriesAt(h)
	if err != nil {
		t.Fatalf("TreeEntriesAt: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "public.orders" {
		t.Fatalf("entries = %v, want only public.orders", entries)
	}
}

func TestCommit_UpdatesDependencyGraph(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	stage(t, r, "public", "customers", object.KindTable, "CREATE TABLE public.customers (id bigint PRIMARY KEY);")
	stage(t, r, "public", "orders", object.KindTable,
		"CREATE TABLE public.orders (id bigint, customer_id bigint REFERENCES public.customers (id));")
	commit(t, r, "main", "seed")

	deps, err := r.Ledger.DependenciesOf(ctx, "public.orders")
	if err != nil {
		t.Fatalf("DependenciesOf: %v", err)
	}
	if len(deps) != 1 || deps[0].DependsOn != "public.customers" || deps[0].Kind != "FOREIGN_KEY" {
		t.Fatalf("deps = %v, want FOREIGN_KEY on public.customers", deps)
	}

	// Dropping the table clears its outgoing edges.
	stageDrop(t, r, "public", "orders")
	commit(t, r, "main", "drop orders")

	deps, err = r.Ledger.DependenciesOf(ctx, "public.orders")
	if err != nil {
		t.Fatalf("DependenciesOf after drop: %v", err)
	}
	if len(deps) != 0 {
		t.Fatalf("deps after drop = %v, want none", deps)
	}
}

func TestCommit_NormalizationDedupesDefinitions(t *testing.T) {
	r := testRepo(t)

	a, err := r.RecordChange("public", "t", object.KindTable, strPtr("CREATE TABLE public.t (id int);\r\n"))
	if err != nil {
		t.Fatalf("RecordChange: %v", err)
	}
	b, err := r.RecordChange("public", "t", object.KindTable, strPtr("CREATE TABLE public.t (id int);   \n\n"))
	if err != nil {
		t.Fatalf("RecordChange: %v", err)
	}
	if a != b {
		t.Fatalf("normalized definitions hashed differently: %s vs %s", a, b)
	}
}

func strPtr(s string) *string { return &s }

func TestCreateBranch_RequiresExistingCommit(t *testing.T) {
	r := testRepo(t)

	missing := object.HashBytes([]byte("no such commit"))
	if err := r.CreateBranch("feature", missing); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteBranch_Protected(t *testing.T) {
	r := testRepo(t)

	stage(t, r, "public", "t", object.KindTable, "CREATE TABLE public.t (id int);")
	commit(t, r, "main", "seed")

	if err := r.DeleteBranch("main", false); !errors.Is(err, ErrProtectedRef) {
		t.Fatalf("err = %v, want ErrProtectedRef", err)
	}
	if err := r.DeleteBranch("main", true); err != nil {
		t.Fatalf("forced delete: %v", err)
	}
}

func TestDeleteBranch_ReflogAndLockCleanup(t *testing.T) {
	r := testRepo(t)

	stage(t, r, "public", "t", object.KindTable, "CREATE TABLE public.t (id int);")
	head := commit(t, r, "main", "seed")
	if err := r.CreateBranch("feature", head); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	if err := r.DeleteBranch("feature", false); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if _, err := r.ResolveHead("feature"); !errors.Is(err, ErrRefNotFound) {
		t.Fatalf("ResolveHead after delete err = %v, want ErrRefNotFound", err)
	}
	if _, err := os.Stat(r.refPath("feature") + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("lock file left behind after delete: %v", err)
	}

	entries, err := r.ReadReflog("feature", 1)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("reflog entries = %d, want 1", len(entries))
	}
	if entries[0].OldHash != head {
		t.Fatalf("reflog old = %s, want %s", entries[0].OldHash, head)
	}
	if entries[0].NewHash != object.Hash(zeroHash) {
		t.Fatalf("reflog new = %s, want zero hash", entries[0].NewHash)
	}
	if entries[0].Reason != "branch: deleted" {
		t.Fatalf("reflog reason = %q", entries[0].Reason)
	}

	if err := r.DeleteBranch("feature", false); !errors.Is(err, ErrRefNotFound) {
		t.Fatalf("double delete err = %v, want ErrRefNotFound", err)
	}
}

func TestBranchFork(t *testing.T) {
	r := testRepo(t)

	stage(t, r, "public", "t", object.KindTable, "CREATE TABLE public.t (id int);")
	head := commit(t, r, "main", "seed")

	if err := r.CreateBranch("feature", head); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := r.CreateBranch("feature", head); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate create err = %v, want ErrAlreadyExists", err)
	}

	got, err := r.ResolveHead("feature")
	if err != nil {
		t.Fatalf("ResolveHead(feature): %v", err)
	}
	if got != head {
		t.Fatalf("feature head = %s, want %s", got, head)
	}
}
