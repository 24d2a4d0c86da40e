package bm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// DedupIndex answers checksum lookups for the chunk producer and enumerates
// content uids for reconciliation against the vault.
type DedupIndex struct {
	store Store
}

func NewDedupIndex(store Store) *DedupIndex {
	return &DedupIndex{store: store}
}

// FindValidBlockByChecksum returns the content uid of some valid block with
// this checksum. A miss is reported through found, not as an error. Invalid
// blocks are never proposed.
func (d *DedupIndex) FindValidBlockByChecksum(ctx context.Context, checksum string) (uid string, found bool, err error) {
	if checksum == "" {
		return "", false, nil
	}
	err = WithTx(ctx, d.store, func(tx Tx) error {
		b, err := tx.FindValidBlockByChecksum(ctx, checksum)
		if err != nil {
			return err
		}
		uid = b.ContentUID
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up checksum %s: %w", checksum, err)
	}
	return uid, true, nil
}

// ListAllContentUIDs returns every distinct content uid referenced by a
// block, optionally restricted to a prefix, sorted.
func (d *DedupIndex) ListAllContentUIDs(ctx context.Context, prefix string) ([]string, error) {
	var uids []string
	err := WithTx(ctx, d.store, func(tx Tx) error {
		var err error
		uids, err = tx.ListContentUIDs(ctx, prefix)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing content uids: %w", err)
	}
	return uids, nil
}

// BlockByContentUID returns one block referencing the content uid, valid or
// not. Returns ErrNotFound if no block does.
func (d *DedupIndex) BlockByContentUID(ctx context.Context, contentUID string) (*Block, error) {
	var b *Block
	err := WithTx(ctx, d.store, func(tx Tx) error {
		var err error
		b, err = tx.FindBlockByUID(ctx, contentUID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finding block with uid %s: %w", contentUID, err)
	}
	return b, nil
}

// UnreferencedPayloads returns the uids from stored that no block references
// and no delete candidate covers, in the order given. Both lookups run in one
// transaction.
func (d *DedupIndex) UnreferencedPayloads(ctx context.Context, stored []string) ([]string, error) {
	var orphans []string
	err := WithTx(ctx, d.store, func(tx Tx) error {
		known := make(map[string]struct{})
		uids, err := tx.ListContentUIDs(ctx, "")
		if err != nil {
			return err
		}
		for _, uid := range uids {
			known[uid] = struct{}{}
		}
		cands, err := tx.ListDeleteCandidates(ctx, candidateHorizon, math.MaxInt32)
		if err != nil {
			return err
		}
		for _, c := range cands {
			known[c.ContentUID] = struct{}{}
		}
		for _, uid := range stored {
			if _, ok := known[uid]; !ok {
				orphans = append(orphans, uid)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finding unreferenced payloads: %w", err)
	}
	return orphans, nil
}

// candidateHorizon is later than any enqueue time.
var candidateHorizon = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
