package repo

import (
	"errors"
	"testing"

	"github.com/odvcencio/stratum/pkg/object"
)

// timedCommit writes a commit with an explicit timestamp and advances the
// branch ref, for tests that need control over history timing.
func timedCommit(t *testing.T, r *Repo, branch, msg string, ts int64, parent object.Hash) object.Hash {
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
	var parents []object.Hash
	if parent != "" {
		parents = []object.Hash{parent}
	}
	h, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    "test <test@example.com>",
		Timestamp: ts,
		Message:   msg,
	})
	if err != nil {
		t.Fatalf("WriteCommit(%s): %v", msg, err)
	}
	expectedOld, err := r.ResolveRef(branch)
	if err != nil {
		if !errors.Is(err, ErrRefNotFound) {
			t.Fatalf("ResolveRef(%s): %v", branch, err)
		}
		expectedOld = ""
	}
	if err := r.UpdateRefCAS(branch, h, expectedOld, msg); err != nil {
		t.Fatalf("UpdateRefCAS(%s): %v", branch, err)
	}
	return h
}

func TestCommitsBetween_HalfOpenInterval(t *testing.T) {
	r := testRepo(t)

	v1 := timedCommit(t, r, "main", "v1", 1000, "")
	v2 := timedCommit(t, r, "main", "v2", 2000, v1)
	v3 := timedCommit(t, r, "main", "v3", 3000, v2)

	hashes, commits, err := r.CommitsBetween(v1, v3)
	if err != nil {
		t.Fatalf("CommitsBetween: %v", err)
	}
	if len(hashes) != 2 || len(commits) != 2 {
		t.Fatalf("count = %d, want 2", len(hashes))
	}
	// Newest first, excluding v1.
	if hashes[0] != v3 || hashes[1] != v2 {
		t.Fatalf("hashes = %v, want [%s %s]", hashes, v3, v2)
	}
}

func TestCommitsBetween_SameCommitEmpty(t *testing.T) {
	r := testRepo(t)
	v1 := timedCommit(t, r, "main", "v1", 1000, "")

	hashes, _, err := r.CommitsBetween(v1, v1)
	if err != nil {
		t.Fatalf("CommitsBetween: %v", err)
	}
	if len(hashes) != 0 {
		t.Fatalf("hashes = %v, want empty", hashes)
	}
}

func TestCommitsBetween_NotAncestorFails(t *testing.T) {
	r := testRepo(t)

	v1 := timedCommit(t, r, "main", "v1", 1000, "")
	v2 := timedCommit(t, r, "main", "v2", 2000, v1)

	// Reversed boundaries: v2 is not an ancestor of v1.
	if _, _, err := r.CommitsBetween(v2, v1); !errors.Is(err, object.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestCommitAtTime(t *testing.T) {
	r := testRepo(t)

	v1 := timedCommit(t, r, "main", "v1", 1000, "")
	v2 := timedCommit(t, r, "main", "v2", 2000, v1)
	v3 := timedCommit(t, r, "main", "v3", 3000, v2)

	tests := []struct {
		t    int64
		want object.Hash
	}{
		{t: 1000, want: v1},
		{t: 1999, want: v1},
		{t: 2000, want: v2},
		{t: 2500, want: v2},
		{t: 9999, want: v3},
	}
	for _, tt := range tests {
		got, err := r.CommitAtTime("main", tt.t)
		if err != nil {
			t.Fatalf("CommitAtTime(%d): %v", tt.t, err)
		}
		if got != tt.want {
			t.Fatalf("CommitAtTime(%d) = %s, want %s", tt.t, got, tt.want)
		}
	}

	// Before the first commit.
	if _, err := r.CommitAtTime("main", 999); !errors.Is(err, object.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestLog_FirstParentNewestFirst(t *testing.T) {
	r := testRepo(t)

	v1 := timedCommit(t, r, "main", "v1", 1000, "")
	v2 := timedCommit(t, r, "main", "v2", 2000, v1)
	v3 := timedCommit(t, r, "main", "v3", 3000, v2)

	hashes, commits, err := r.Log(v3, 0)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(hashes) != 3 {
		t.Fatalf("count = %d, want 3", len(hashes))
	}
	if hashes[0] != v3 || hashes[2] != v1 {
		t.Fatalf("order = %v", hashes)
	}
	if commits[0].Message != "v3" {
		t.Fatalf("commits[0].Message = %q, want v3", commits[0].Message)
	}

	limited, _, err := r.Log(v3, 2)
	if err != nil {
		t.Fatalf("Log(limit): %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited count = %d, want 2", len(limited))
	}
}

func TestIsFirstParentAncestor(t *testing.T) {
	r := testRepo(t)

	v1 := timedCommit(t, r, "main", "v1", 1000, "")
	v2 := timedCommit(t, r, "main", "v2", 2000, v1)
	side := timedCommit(t, r, "feature", "side", 2500, v1)

	ok, err := r.IsFirstParentAncestor(v1, v2)
	if err != nil || !ok {
		t.Fatalf("IsFirstParentAncestor(v1, v2) = %v, %v, want true", ok, err)
	}
	ok, err = r.IsFirstParentAncestor(v2, side)
	if err != nil || ok {
		t.Fatalf("IsFirstParentAncestor(v2, side) = %v, %v, want false", ok, err)
	}
}

func TestFirstCommit(t *testing.T) {
	r := testRepo(t)

	v1 := timedCommit(t, r, "main", "v1", 1000, "")
	timedCommit(t, r, "main", "v2", 2000, v1)

	h, c, err := r.FirstCommit("main")
	if err != nil {
		t.Fatalf("FirstCommit: %v", err)
	}
	if h != v1 || c.Message != "v1" {
		t.Fatalf("FirstCommit = %s (%q), want %s (v1)", h, c.Message, v1)
	}
}
