// Package diff classifies the three-way difference between schema
// snapshots. Classify is a pure function over (base, source, target)
// trees: no store access, no side effects, deterministic output.
package diff

import (
	"sort"

	"github.com/odvcencio/stratum/pkg/object"
)

// Classification tags the three-way relationship of one path.
type Classification string

const (
	NoConflict     Classification = "NO_CONFLICT"
	SourceModified Classification = "SOURCE_MODIFIED"
	TargetModified Classification = "TARGET_MODIFIED"
	DeletedSource  Classification = "DELETED_SOURCE"
	DeletedTarget  Classification = "DELETED_TARGET"
	BothModified   Classification = "BOTH_MODIFIED"
)

// Severity is advisory only; it never gates mergeability.
type Severity string

const (
	SeverityMinor Severity = "MINOR"
	SeverityMajor Severity = "MAJOR"
)

// Finding is the classification of one path across the three trees.
// Absent sides carry an empty hash.
type Finding struct {
	Path           string
	Kind           object.SchemaKind
	BaseHash       object.Hash
	SourceHash     object.Hash
	TargetHash     object.Hash
	Classification Classification
	Severity       Severity
	AutoResolvable bool
}

// Changed reports whether the path differs from base on either side.
func (f *Finding) Changed() bool {
	return f.SourceHash != f.BaseHash || f.TargetHash != f.BaseHash
}

// presence encodes which of the three trees hold the path. Every
// combination is matched explicitly below; there is no fallthrough guess.
type presence struct {
	base, source, target bool
}

// Classify evaluates every path in the union of the three trees and
// returns one Finding per path that differs from base on either side.
// Paths identical across all three trees produce no finding.
func Classify(base, source, target []object.TreeEntry) []Finding {
	baseMap := indexByPath(base)
	sourceMap := indexByPath(source)
	targetMap := indexByPath(target)

	var findings []Finding
	for _, path := range unionPaths(baseMap, sourceMap, targetMap) {
		b, inBase := baseMap[path]
		s, inSource := sourceMap[path]
		t, inTarget := targetMap[path]

		f := Finding{
			Path:       path,
			Kind:       pickKind(b, s, t, inBase, inSource, inTarget),
			BaseHash:   b.BlobHash,
			SourceHash: s.BlobHash,
			TargetHash: t.BlobHash,
		}

		switch (presence{inBase, inSource, inTarget}) {
		case presence{false, false, false}:
			// Unreachable: the path came from one of the maps.
			continue

		case presence{true, true, true}:
			switch {
			case b.BlobHash == s.BlobHash && b.BlobHash == t.BlobHash:
				// Unchanged everywhere.
				continue
			case s.BlobHash == t.BlobHash:
				// Identical change on both sides.
				f.Classification = NoConflict
				f.AutoResolvable = true
			case b.BlobHash == s.BlobHash:
				f.Classification = TargetModified
				f.AutoResolvable = true
			case b.BlobHash == t.BlobHash:
				f.Classification = SourceModified
				f.AutoResolvable = true
			default:
				f.Classification = BothModified
			}

		case presence{false, true, true}:
			if s.BlobHash == t.BlobHash {
				// Identical add.
				f.Classification = NoConflict
				f.AutoResolvable = true
			} else {
				f.Classification = BothModified
			}

		case presence{false, true, false}:
			// Added by source only.
			f.Classification = SourceModified
			f.AutoResolvable = true

		case presence{false, false, true}:
			// Added by target only.
			f.Classification = TargetModified
			f.AutoResolvable = true

		case presence{true, false, true}:
			if b.BlobHash == t.BlobHash {
				f.Classification = DeletedSource
				f.AutoResolvable = true
			} else {
				// Source deleted what target modified.
				f.Classification = BothModified
			}

		case presence{true, true, false}:
			if b.BlobHash == s.BlobHash {
				f.Classification = DeletedTarget
				f.AutoResolvable = true
			} else {
				// Target deleted what source modified.
				f.Classification = BothModified
			}

		case presence{true, false, false}:
			// Deleted on both sides: the outcome agrees.
			f.Classification = NoConflict
			f.AutoResolvable = true
		}

		f.Severity = severityOf(&f, inSource, inTarget)
		findings = append(findings, f)
	}
	return findings
}

// severityOf marks additions/removals of TABLE/FUNCTION/VIEW objects where
// one side lacks the object as MAJOR; everything else is MINOR.
func severityOf(f *Finding, inSource, inTarget bool) Severity {
	switch f.Kind {
	case object.KindTable, object.KindFunction, object.KindView:
	default:
		return SeverityMinor
	}
	if inSource != inTarget {
		return SeverityMajor
	}
	return SeverityMinor
}

func indexByPath(entries []object.TreeEntry) map[string]object.TreeEntry {
	m := make(map[string]object.TreeEntry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

func unionPaths(maps ...map[string]object.TreeEntry) []string {
	seen := make(map[string]struct{})
	for _, m := range maps {
		for p := range m {
			seen[p] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func pickKind(b, s, t object.TreeEntry, inBase, inSource, inTarget bool) object.SchemaKind {
	switch {
	case inSource:
		return s.Kind
	case inTarget:
		return t.Kind
	case inBase:
		return b.Kind
	}
	return object.KindUnclassified
}
