package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/stratum/pkg/object"
)

// StagingEntry records one staged schema change. A deletion stages a
// tombstone: Deleted is set and BlobHash is empty.
type StagingEntry struct {
	Path     string            `json:"path"`
	Kind     object.SchemaKind `json:"kind"`
	BlobHash object.Hash       `json:"blob_hash,omitempty"`
	Deleted  bool              `json:"deleted,omitempty"`
}

// Staging holds every change recorded since the last commit, keyed by
// object path.
type Staging struct {
	Entries map[string]*StagingEntry `json:"entries"`
}

func (r *Repo) indexPath() string {
	return filepath.Join(r.Dir, "index")
}

// ReadStaging loads the staging area. A missing index file returns an
// empty Staging, not an error.
func (r *Repo) ReadStaging() (*Staging, error) {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Staging{Entries: make(map[string]*StagingEntry)}, nil
		}
		return nil, fmt.Errorf("read staging: %w", err)
	}

	var stg Staging
	if err := json.Unmarshal(data, &stg); err != nil {
		return nil, fmt.Errorf("read staging: unmarshal: %w", err)
	}
	if stg.Entries == nil {
		stg.Entries = make(map[string]*StagingEntry)
	}
	return &stg, nil
}

// WriteStaging atomically writes the staging area.
func (r *Repo) WriteStaging(s *Staging) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("write staging: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(r.Dir, ".index-tmp-*")
	if err != nil {
		return fmt.Errorf("write staging: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write staging: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write staging: close: %w", err)
	}
	if err := os.Rename(tmpName, r.indexPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write staging: rename: %w", err)
	}
	return nil
}

// ClearStaging empties the staging area.
func (r *Repo) ClearStaging() error {
	return r.WriteStaging(&Staging{Entries: make(map[string]*StagingEntry)})
}

// NormalizeDefinition canonicalizes definition bytes before hashing:
// CRLF becomes LF, trailing whitespace is stripped per line, and the
// result ends with exactly one newline. Two textually equivalent
// definitions therefore share one blob.
func NormalizeDefinition(def string) []byte {
	def = strings.ReplaceAll(def, "\r\n", "\n")
	lines := strings.Split(def, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	normalized := strings.TrimRight(strings.Join(lines, "\n"), "\n")
	return []byte(normalized + "\n")
}

// ObjectPath builds the canonical "schema.name" path for a schema object.
func ObjectPath(schema, name string) string {
	schema = strings.TrimSpace(schema)
	name = strings.TrimSpace(name)
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// RecordChange stages one observed schema change: definition == nil marks
// a deletion, anything else is normalized, written as a blob, and staged.
// It returns the blob hash ("" for deletions). Later records for the same
// path overwrite earlier ones.
func (r *Repo) RecordChange(schema, name string, kind object.SchemaKind, definition *string) (object.Hash, error) {
	path := ObjectPath(schema, name)
	if path == "" || path == "." {
		return "", fmt.Errorf("record change: %w: empty object name", object.ErrValidation)
	}
	if kind == "" {
		kind = object.KindUnclassified
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return "", fmt.Errorf("record change: %w", err)
	}

	entry := &StagingEntry{Path: path, Kind: kind}
	if definition == nil {
		entry.Deleted = true
	} else {
		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: NormalizeDefinition(*definition)})
		if err != nil {
			return "", fmt.Errorf("record change %q: %w", path, err)
		}
		entry.BlobHash = blobHash
	}

	stg.Entries[path] = entry
	if err := r.WriteStaging(stg); err != nil {
		return "", fmt.Errorf("record change %q: %w", path, err)
	}
	return entry.BlobHash, nil
}
