package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/odvcencio/stratum/pkg/ddl"
	"github.com/odvcencio/stratum/pkg/ledger"
	"github.com/odvcencio/stratum/pkg/object"
	"github.com/odvcencio/stratum/pkg/repo"
)

// ResolutionChoice picks a side (or replacement) for one conflict.
type ResolutionChoice string

const (
	ChooseSource ResolutionChoice = "SOURCE"
	ChooseTarget ResolutionChoice = "TARGET"
	// ChooseCustom supplies a new definition replacing both sides. The
	// definition must classify as recognizable DDL.
	ChooseCustom ResolutionChoice = "CUSTOM"
)

// ResolveConflict records a resolution for one conflict of an open merge.
// Resolutions are immutable: resolving twice returns
// ledger.ErrAlreadyResolved. For CUSTOM, customDef is normalized, parsed,
// and stored as a new blob; a definition the classifier cannot recognize
// is rejected.
func (e *Executor) ResolveConflict(ctx context.Context, conflictID string, choice ResolutionChoice, customDef string) (*ledger.Conflict, error) {
	c, err := e.repo.Ledger.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	op, err := e.repo.Ledger.GetMergeOperation(ctx, c.MergeID)
	if err != nil {
		return nil, err
	}
	if op.Status != string(StatusConflict) && op.Status != string(StatusPending) {
		return nil, fmt.Errorf("resolve: %w: merge %s is %s, not open for resolution",
			object.ErrValidation, op.ID, op.Status)
	}

	var resolvedHash string
	switch choice {
	case ChooseSource:
		resolvedHash = c.SourceHash
	case ChooseTarget:
		resolvedHash = c.TargetHash
	case ChooseCustom:
		stmt := ddl.Classify(customDef)
		if stmt.Op == ddl.OpUnclassified {
			return nil, fmt.Errorf("resolve: %w: custom definition for %q is not recognizable DDL",
				object.ErrValidation, c.Path)
		}
		h, err := e.repo.Store.WriteBlob(&object.Blob{Data: repo.NormalizeDefinition(customDef)})
		if err != nil {
			return nil, err
		}
		resolvedHash = string(h)
	default:
		return nil, fmt.Errorf("resolve: %w: unknown choice %q", object.ErrValidation, choice)
	}

	if err := e.repo.Ledger.ResolveConflict(ctx, conflictID, string(choice), resolvedHash); err != nil {
		return nil, err
	}

	op.ConflictsResolved++
	if err := e.repo.Ledger.UpdateMergeOperation(ctx, op); err != nil {
		return nil, err
	}
	return e.repo.Ledger.GetConflict(ctx, conflictID)
}

// FinalizeMerge completes a conflicted merge once every conflict holds a
// resolution: it builds the merged tree with the resolutions applied,
// writes the merge commit, and CAS-advances the target branch. The CAS
// expects the head recorded when the merge opened, so a target branch
// that moved in the meantime surfaces as ErrConcurrentModification.
func (e *Executor) FinalizeMerge(ctx context.Context, mergeID, author string) (*Result, error) {
	op, err := e.repo.Ledger.GetMergeOperation(ctx, mergeID)
	if err != nil {
		return nil, err
	}
	if op.Status != string(StatusConflict) {
		return nil, fmt.Errorf("finalize: %w: merge %s is %s, expected %s",
			object.ErrValidation, op.ID, op.Status, StatusConflict)
	}

	conflicts, err := e.repo.Ledger.ConflictsByMerge(ctx, mergeID)
	if err != nil {
		return nil, err
	}
	resolutions := make(map[string]resolvedPath, len(conflicts))
	unresolved := 0
	for _, c := range conflicts {
		if !c.Resolved() {
			unresolved++
			continue
		}
		resolutions[c.Path] = resolvedPath{
			hash: object.Hash(c.ResolvedHash),
			kind: object.SchemaKind(c.ObjectKind),
		}
	}
	if unresolved > 0 {
		return nil, fmt.Errorf("finalize: %w: merge %s has %d unresolved conflict(s)",
			object.ErrValidation, op.ID, unresolved)
	}

	findings, mb, err := e.DetectConflicts(ctx, object.Hash(op.SourceCommit), object.Hash(op.TargetCommit), object.Hash(op.MergeBase))
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Merge %s into %s (resolved %d conflict(s))",
		op.SourceBranch, op.TargetBranch, len(conflicts))
	resultCommit, err := e.commitMerge(ctx, op.TargetBranch, message, author, op, findings, resolutions)
	if err != nil {
		return nil, err
	}

	op.Status = string(StatusSuccess)
	op.ResultCommit = string(resultCommit)
	op.ConflictsResolved = len(conflicts)
	op.Message = "finalized at " + time.Now().UTC().Format(time.RFC3339)
	if err := e.repo.Ledger.UpdateMergeOperation(ctx, op); err != nil {
		return nil, err
	}
	return e.result(op, mb, conflicts), nil
}

// AbortMerge closes an open merge without committing. Resolutions already
// recorded stay in the ledger for audit.
func (e *Executor) AbortMerge(ctx context.Context, mergeID string) error {
	op, err := e.repo.Ledger.GetMergeOperation(ctx, mergeID)
	if err != nil {
		return err
	}
	if op.Status != string(StatusConflict) && op.Status != string(StatusPending) {
		return fmt.Errorf("abort: %w: merge %s is %s", object.ErrValidation, op.ID, op.Status)
	}
	op.Status = string(StatusAborted)
	op.Message = "aborted by user"
	return e.repo.Ledger.UpdateMergeOperation(ctx, op)
}
