package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/stratum/pkg/object"
	"golang.org/x/crypto/ssh"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("MarshalPrivateKey: %v", err)
	}
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSSHSignature_RoundTrip(t *testing.T) {
	keyPath := writeTestKey(t)

	signer, used, err := newSSHCommitSigner(keyPath)
	if err != nil {
		t.Fatalf("newSSHCommitSigner: %v", err)
	}
	if used != keyPath {
		t.Fatalf("key path = %s, want %s", used, keyPath)
	}

	c := &object.CommitObj{
		TreeHash:  object.Hash("deadbeef"),
		Author:    "test <test@example.com>",
		Timestamp: 1700000000,
		Message:   "signed change",
	}
	sig, err := signer(object.CommitSigningPayload(c))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	c.Signature = sig

	pub, err := verifySSHCommitSignature(c)
	if err != nil {
		t.Fatalf("verifySSHCommitSignature: %v", err)
	}
	if pub.Type() != ssh.KeyAlgoED25519 {
		t.Fatalf("key type = %s, want %s", pub.Type(), ssh.KeyAlgoED25519)
	}
}

func TestSSHSignature_RejectsTamperedCommit(t *testing.T) {
	keyPath := writeTestKey(t)

	signer, _, err := newSSHCommitSigner(keyPath)
	if err != nil {
		t.Fatalf("newSSHCommitSigner: %v", err)
	}

	c := &object.CommitObj{
		TreeHash:  object.Hash("deadbeef"),
		Author:    "test <test@example.com>",
		Timestamp: 1700000000,
		Message:   "signed change",
	}
	sig, err := signer(object.CommitSigningPayload(c))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	c.Signature = sig
	c.Message = "rewritten after signing"

	if _, err := verifySSHCommitSignature(c); err == nil {
		t.Fatal("tampered commit verified")
	}
}

func TestSSHSignature_RejectsUnsignedAndMalformed(t *testing.T) {
	c := &object.CommitObj{TreeHash: object.Hash("deadbeef")}
	if _, err := verifySSHCommitSignature(c); err == nil {
		t.Fatal("unsigned commit verified")
	}
	c.Signature = "pgp:not:a:thing"
	if _, err := verifySSHCommitSignature(c); err == nil {
		t.Fatal("malformed signature verified")
	}
}
