package repo

import (
	"fmt"
	"testing"

	"github.com/odvcencio/stratum/pkg/object"
)

// chainCommit writes a commit with the given parents directly to the
// store, bypassing staging, for shaping exact DAG topologies.
func chainCommit(t *testing.T, r *Repo, msg string, parents ...object.Hash) object.Hash {
	t.Helper()

	blob, err := r.Store.WriteBlob(&object.Blob{Data: []byte("-- " + msg)})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	tree, err := r.Store.WriteTree(&object.TreeObj{Entries: []object.TreeEntry{
		{Path: "public." + msg, Kind: object.KindTable, BlobHash: blob},
	}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	h, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    "test <test@example.com>",
		Timestamp: 1700000000,
		Message:   msg,
	})
	if err != nil {
		t.Fatalf("WriteCommit(%s): %v", msg, err)
	}
	return h
}

func TestFindMergeBase_SameCommit(t *testing.T) {
	r := testRepo(t)
	c := chainCommit(t, r, "root")

	mb, err := r.FindMergeBase(c, c)
	if err != nil {
		t.Fatalf("FindMergeBase: %v", err)
	}
	if mb.Base != c || mb.DepthA != 0 || mb.DepthB != 0 {
		t.Fatalf("mb = %+v, want base %s at depth 0", mb, c)
	}
}

func TestFindMergeBase_LinearAncestor(t *testing.T) {
	r := testRepo(t)
	root := chainCommit(t, r, "root")
	mid := chainCommit(t, r, "mid", root)
	tip := chainCommit(t, r, "tip", mid)

	mb, err := r.FindMergeBase(root, tip)
	if err != nil {
		t.Fatalf("FindMergeBase: %v", err)
	}
	if mb.Base != root {
		t.Fatalf("base = %s, want ancestor %s", mb.Base, root)
	}
	if mb.DepthA != 0 || mb.DepthB != 2 {
		t.Fatalf("depths = (%d, %d), want (0, 2)", mb.DepthA, mb.DepthB)
	}
}

func TestFindMergeBase_Fork(t *testing.T) {
	r := testRepo(t)
	root := chainCommit(t, r, "root")
	fork := chainCommit(t, r, "fork", root)
	left := chainCommit(t, r, "left", fork)
	right1 := chainCommit(t, r, "right1", fork)
	right2 := chainCommit(t, r, "right2", right1)

	mb, err := r.FindMergeBase(left, right2)
	if err != nil {
		t.Fatalf("FindMergeBase: %v", err)
	}
	if mb.Base != fork {
		t.Fatalf("base = %s, want fork point %s", mb.Base, fork)
	}
	if mb.NoCommonAncestor {
		t.Fatal("NoCommonAncestor set for connected histories")
	}
}

func TestFindMergeBase_MergeCommitAncestry(t *testing.T) {
	r := testRepo(t)
	root := chainCommit(t, r, "root")
	a := chainCommit(t, r, "a", root)
	b := chainCommit(t, r, "b", root)
	merged := chainCommit(t, r, "merged", a, b)
	afterB := chainCommit(t, r, "afterB", b)

	// merged reaches b through its second parent: b itself is the base.
	mb, err := r.FindMergeBase(merged, afterB)
	if err != nil {
		t.Fatalf("FindMergeBase: %v", err)
	}
	if mb.Base != b {
		t.Fatalf("base = %s, want %s", mb.Base, b)
	}
}

func TestFindMergeBase_DisjointHistories(t *testing.T) {
	r := testRepo(t)

	islandA := chainCommit(t, r, "islandA")
	islandB := chainCommit(t, r, "islandB")

	mb, err := r.FindMergeBase(islandA, islandB)
	if err != nil {
		t.Fatalf("FindMergeBase: %v", err)
	}
	if !mb.NoCommonAncestor {
		t.Fatal("NoCommonAncestor not set for disjoint histories")
	}
	// No default root branch exists yet, so Base is empty.
	if mb.Base != "" {
		t.Fatalf("Base = %s, want empty without a default root", mb.Base)
	}

	// With a main branch present, the disjoint fallback points at it.
	if err := r.UpdateRefCAS("main", islandA, "", "seed"); err != nil {
		t.Fatalf("UpdateRefCAS: %v", err)
	}
	mb, err = r.FindMergeBase(islandA, islandB)
	if err != nil {
		t.Fatalf("FindMergeBase with root: %v", err)
	}
	if !mb.NoCommonAncestor || mb.Base != islandA {
		t.Fatalf("mb = %+v, want disjoint with base %s", mb, islandA)
	}
}

func TestFindMergeBase_DepthBound(t *testing.T) {
	r := testRepo(t)
	r.Config.MergeBaseMaxDepth = 3

	head := chainCommit(t, r, "c0")
	for i := 1; i <= 10; i++ {
		head = chainCommit(t, r, fmt.Sprintf("c%d", i), head)
	}
	island := chainCommit(t, r, "island")

	if _, err := r.FindMergeBase(head, island); err == nil {
		t.Fatal("deep disjoint search did not fail at the depth bound")
	}
}

// A shallow common ancestor reached through a merge commit's second
// parent must win even when a deeper candidate becomes common first.
// One side walks a long first-parent chain (its frontier runs deep), the
// other fans out wide and shallow; a frontier-sum cutoff would stop at
// the deep candidate before the wide side reaches the true base.
func TestFindMergeBase_SecondParentShortcut(t *testing.T) {
	r := testRepo(t)

	h := chainCommit(t, r, "h")
	g := chainCommit(t, r, "g")

	// Side A: deep chain, with h one step away via a merge commit and g
	// two steps away the same way.
	a6 := chainCommit(t, r, "a6")
	a5 := chainCommit(t, r, "a5", a6)
	a4 := chainCommit(t, r, "a4", a5)
	a3 := chainCommit(t, r, "a3", a4)
	a2 := chainCommit(t, r, "a2", a3)
	a1 := chainCommit(t, r, "a1", a2, g)
	a0 := chainCommit(t, r, "a0", a1, h)

	// Side B: two parallel three-step chains, one ending at g and one at
	// h, so both are four deep from b0.
	ppg := chainCommit(t, r, "ppg", g)
	pg := chainCommit(t, r, "pg", ppg)
	p := chainCommit(t, r, "p", pg)
	qqh := chainCommit(t, r, "qqh", h)
	qh := chainCommit(t, r, "qh", qqh)
	q := chainCommit(t, r, "q", qh)
	b0 := chainCommit(t, r, "b0", p, q)

	// Candidates: g at combined depth 2+4=6, h at 1+4=5.
	mb, err := r.FindMergeBase(a0, b0)
	if err != nil {
		t.Fatalf("FindMergeBase: %v", err)
	}
	if mb.Base != h {
		t.Fatalf("base = %s, want %s (combined depth 5 beats %s at 6)", mb.Base, h, g)
	}
	if mb.DepthA != 1 || mb.DepthB != 4 {
		t.Fatalf("depths = (%d, %d), want (1, 4)", mb.DepthA, mb.DepthB)
	}
}
