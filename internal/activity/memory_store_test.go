package activity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homesapp/rentals/internal/store"
)

var base = time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)

func testEntry(entityType, entityID, category, weight, summary string, daysAgo int) Entry {
	return Entry{
		EventID:    "evt-" + summary,
		EventType:  "test_event",
		OccurredAt: base.AddDate(0, 0, -daysAgo),
		EntityType: entityType,
		EntityID:   entityID,
		Role:       "subject",
		Summary:    summary,
		Category:   category,
		Weight:     weight,
	}
}

// stores runs fn against every Store implementation.
func stores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) {
		db, err := store.Open(context.Background(), ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		fn(t, NewSQLStore(db.DB()))
	})
}

func TestStore_WriteAndQuery(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.WriteEntries(ctx, []Entry{
			testEntry("contract", "c-1", "payment", "minor", "Rent verified", 10),
			testEntry("contract", "c-1", "contract", "major", "Contract provisioned", 40),
			testEntry("contract", "c-2", "payment", "minor", "Rent submitted", 10),
		}))

		results, next, total, err := s.QueryByEntity(ctx, "contract", "c-1", QueryOptions{})
		require.NoError(t, err)
		if total != 2 {
			t.Errorf("total = %d, want 2", total)
		}
		require.Len(t, results, 2)
		assert.Equal(t, "Rent verified", results[0].Summary, "newest first")
		assert.Empty(t, next)
	})
}

func TestStore_WriteIsIdempotent(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		e := testEntry("payment", "p-1", "payment", "minor", "Rent submitted", 1)
		require.NoError(t, s.WriteEntries(ctx, []Entry{e}))
		require.NoError(t, s.WriteEntries(ctx, []Entry{e}))

		_, _, total, err := s.QueryByEntity(ctx, "payment", "p-1", QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})
}

func TestStore_QueryFilters(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.WriteEntries(ctx, []Entry{
			testEntry("contract", "c-1", "payment", "info", "Payments created", 30),
			testEntry("contract", "c-1", "payment", "major", "Rent rejected", 5),
			testEntry("contract", "c-1", "receipt", "minor", "Receipt approved", 2),
		}))
		since := base.AddDate(0, 0, -10)

		tests := []struct {
			name string
			opts QueryOptions
			want []string
		}{
			{"category", QueryOptions{Categories: []string{"receipt"}}, []string{"Receipt approved"}},
			{"min weight", QueryOptions{MinWeight: "minor"}, []string{"Receipt approved", "Rent rejected"}},
			{"major only", QueryOptions{MinWeight: "major"}, []string{"Rent rejected"}},
			{"since", QueryOptions{Since: &since}, []string{"Receipt approved", "Rent rejected"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				results, _, total, err := s.QueryByEntity(ctx, "contract", "c-1", tt.opts)
				require.NoError(t, err)
				var got []string
				for _, e := range results {
					got = append(got, e.Summary)
				}
				assert.Equal(t, tt.want, got)
				assert.Equal(t, len(tt.want), total)
			})
		}
	})
}

func TestStore_Pagination(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var entries []Entry
		for i := 0; i < 5; i++ {
			e := testEntry("unit", "u-1", "contract", "info", fmt.Sprintf("event %d", i), 0)
			entries = append(entries, e) // same instant, ordered by event id
		}
		require.NoError(t, s.WriteEntries(ctx, entries))

		var seen []string
		cursor := ""
		for page := 0; page < 5; page++ {
			results, next, total, err := s.QueryByEntity(ctx, "unit", "u-1", QueryOptions{Limit: 2, Cursor: cursor})
			require.NoError(t, err)
			assert.Equal(t, 5, total)
			for _, e := range results {
				seen = append(seen, e.Summary)
			}
			if next == "" {
				break
			}
			cursor = next
		}
		assert.Equal(t, []string{"event 4", "event 3", "event 2", "event 1", "event 0"}, seen)
	})
}

func TestStore_BadCursor(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		_, _, _, err := s.QueryByEntity(context.Background(), "unit", "u-1", QueryOptions{Cursor: "yesterday"})
		assert.Error(t, err)
	})
}

func TestStore_Search(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.WriteEntries(ctx, []Entry{
			testEntry("contract", "c-1", "payment", "minor", "Rent payment verified", 3),
			testEntry("payment", "p-1", "payment", "minor", "Rent payment verified", 3),
			testEntry("contract", "c-1", "receipt", "minor", "Receipt approved", 1),
		}))

		results, total, err := s.Search(ctx, "RENT", SearchOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, results, 2)

		results, total, err = s.Search(ctx, "rent", SearchOptions{EntityType: "payment"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, "p-1", results[0].EntityID)

		_, total, err = s.Search(ctx, "approved", SearchOptions{Categories: []string{"payment"}})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})
}

func TestAtLeast(t *testing.T) {
	tests := []struct {
		weight, min string
		want        bool
	}{
		{"major", "minor", true},
		{"minor", "minor", true},
		{"info", "minor", false},
		{"unknown", "info", true},
		{"info", "", true},
	}
	for _, tt := range tests {
		if got := AtLeast(tt.weight, tt.min); got != tt.want {
			t.Errorf("AtLeast(%q, %q) = %v, want %v", tt.weight, tt.min, got, tt.want)
		}
	}
}
