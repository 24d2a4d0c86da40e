package storetest

import (
	"errors"
	"testing"
	"time"

	"bm-go/internal/bm"
)

func insertStats(t *testing.T, store bm.Store, uid string, created time.Time) *bm.Stats {
	t.Helper()
	s := &bm.Stats{
		VersionUID:        uid,
		VersionName:       "disk",
		CreatedAt:         created,
		VersionSizeBytes:  8192,
		VersionSizeBlocks: 8,
		BytesRead:         8192,
		BlocksRead:        8,
		BytesWritten:      4096,
		BlocksWritten:     4,
		BytesDedup:        2048,
		BlocksDedup:       2,
		BytesSparse:       2048,
		BlocksSparse:      2,
		Duration:          42 * time.Second,
	}
	inTx(t, store, func(tx bm.Tx) error {
		return tx.InsertStats(t.Context(), s)
	})
	return s
}

func runStatsTests(t *testing.T, factory StoreFactory) {
	t.Run("InsertAndList", func(t *testing.T) {
		store := factory(t)
		want := insertStats(t, store, "v1", epoch)

		inTx(t, store, func(tx bm.Tx) error {
			got, err := tx.ListStats(t.Context(), "v1", -1)
			if err != nil {
				return err
			}
			if len(got) != 1 {
				t.Fatalf("ListStats() returned %d rows, want 1", len(got))
			}
			s := got[0]
			if s.VersionName != want.VersionName || s.BytesWritten != want.BytesWritten ||
				s.BlocksDedup != want.BlocksDedup || s.BlocksSparse != want.BlocksSparse ||
				s.Duration != want.Duration || !s.CreatedAt.Equal(epoch) {
				t.Errorf("ListStats()[0] = %+v, want %+v", s, want)
			}
			return nil
		})
	})

	t.Run("Duplicate", func(t *testing.T) {
		store := factory(t)
		insertStats(t, store, "v1", epoch)
		err := bm.WithTx(t.Context(), store, func(tx bm.Tx) error {
			return tx.InsertStats(t.Context(), &bm.Stats{VersionUID: "v1", CreatedAt: epoch})
		})
		if !errors.Is(err, bm.ErrAlreadyExists) {
			t.Errorf("InsertStats(duplicate) error = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("NewestOldestFirst", func(t *testing.T) {
		store := factory(t)
		insertStats(t, store, "v2", epoch.Add(2*time.Hour))
		insertStats(t, store, "v1", epoch.Add(time.Hour))
		insertStats(t, store, "v3", epoch.Add(3*time.Hour))
		insertStats(t, store, "v0", epoch)

		tests := []struct {
			name  string
			limit int
			want  []string
		}{
			{"all", -1, []string{"v0", "v1", "v2", "v3"}},
			{"newest two", 2, []string{"v2", "v3"}},
			{"more than stored", 10, []string{"v0", "v1", "v2", "v3"}},
			{"zero", 0, nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				inTx(t, store, func(tx bm.Tx) error {
					got, err := tx.ListStats(t.Context(), "", tt.limit)
					if err != nil {
						return err
					}
					if len(got) != len(tt.want) {
						t.Fatalf("ListStats(%d) returned %d rows, want %d", tt.limit, len(got), len(tt.want))
					}
					for i, s := range got {
						if s.VersionUID != tt.want[i] {
							t.Errorf("ListStats(%d)[%d] = %s, want %s", tt.limit, i, s.VersionUID, tt.want[i])
						}
					}
					return nil
				})
			})
		}
	})

	t.Run("FilterByVersion", func(t *testing.T) {
		store := factory(t)
		insertStats(t, store, "v1", epoch)
		insertStats(t, store, "v2", epoch.Add(time.Hour))

		inTx(t, store, func(tx bm.Tx) error {
			got, err := tx.ListStats(t.Context(), "v1", 5)
			if err != nil {
				return err
			}
			if len(got) != 1 || got[0].VersionUID != "v1" {
				t.Errorf("ListStats(v1) = %+v, want only v1", got)
			}
			got, err = tx.ListStats(t.Context(), "missing", 5)
			if err != nil {
				return err
			}
			if len(got) != 0 {
				t.Errorf("ListStats(missing) = %+v, want none", got)
			}
			return nil
		})
	})
}
