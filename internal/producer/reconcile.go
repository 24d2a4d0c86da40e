package producer

import (
	"context"
	"fmt"

	"bm-go/internal/bm"
)

// ReconcileResult lists payloads the vault holds but no metadata accounts for.
type ReconcileResult struct {
	Stored  int
	Orphans []string
	Deleted int
}

// Reconciler compares the vault listing with the entity store. Deleting must
// not overlap a backup: payloads written by a running backup have no block
// rows until its next flush. Callers serialize the two.
type Reconciler struct {
	dedup  *bm.DedupIndex
	vault  bm.Vault
	logger bm.Logger
}

func NewReconciler(dedup *bm.DedupIndex, vault bm.Vault, logger bm.Logger) *Reconciler {
	return &Reconciler{dedup: dedup, vault: vault, logger: logger}
}

// Reconcile reports every stored payload under prefix that no block
// references and no delete candidate covers. With remove set those payloads
// are deleted from the vault.
func (r *Reconciler) Reconcile(ctx context.Context, prefix string, remove bool) (*ReconcileResult, error) {
	stored, err := r.vault.ListPayloads(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing vault: %w", err)
	}
	orphans, err := r.dedup.UnreferencedPayloads(ctx, stored)
	if err != nil {
		return nil, err
	}

	res := &ReconcileResult{Stored: len(stored), Orphans: orphans}
	if remove {
		for _, uid := range orphans {
			if err := r.vault.DeletePayload(ctx, uid); err != nil {
				return res, fmt.Errorf("deleting orphan %s: %w", uid, err)
			}
			res.Deleted++
		}
	}
	r.logger.Info("reconciled vault", "stored", res.Stored, "orphans", len(orphans), "deleted", res.Deleted)
	return res, nil
}
