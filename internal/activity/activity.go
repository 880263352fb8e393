// Package activity keeps a per-entity timeline of domain events. One event
// produces one entry for every contract, unit, owner, payment or receipt it
// touches, so each entity's history can be read without scanning the event
// stream.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/homesapp/rentals/internal/types"
)

// Entry is one event as seen from one entity.
type Entry struct {
	EventID    string            `json:"eventId"`
	EventType  string            `json:"eventType"`
	OccurredAt time.Time         `json:"occurredAt"`
	EntityType string            `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Role       string            `json:"role"`
	SourceRefs []types.SourceRef `json:"sourceRefs"`
	Summary    string            `json:"summary"`
	Category   string            `json:"category"`
	Weight     string            `json:"weight"`
	Actor      string            `json:"actor,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
}

// Store reads and writes activity entries.
type Store interface {
	// WriteEntries stores entries. Rewriting an entry for the same event and
	// entity is a no-op.
	WriteEntries(ctx context.Context, entries []Entry) error

	// QueryByEntity returns the newest entries of one entity first. total
	// counts every match regardless of the cursor.
	QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) (entries []Entry, nextCursor string, total int, err error)

	// Search matches summaries case-insensitively.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []Entry, total int, err error)
}

// QueryOptions controls filtering and pagination for entity queries.
type QueryOptions struct {
	Since      *time.Time
	Until      *time.Time
	Categories []string
	MinWeight  string // "info" (default), "minor" or "major"
	Limit      int    // default 100, max 500
	Cursor     string
}

// SearchOptions controls filtering for summary search.
type SearchOptions struct {
	EntityType string
	Since      *time.Time
	Categories []string
	Limit      int // default 20
}

const (
	defaultLimit       = 100
	maxLimit           = 500
	defaultSearchLimit = 20
)

func (o QueryOptions) limit() int {
	if o.Limit <= 0 || o.Limit > maxLimit {
		return defaultLimit
	}
	return o.Limit
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return defaultSearchLimit
	}
	return o.Limit
}

var weightRank = map[string]int{"info": 0, "minor": 1, "major": 2}

// Weights lists the accepted weights, lowest first.
var Weights = []string{"info", "minor", "major"}

// AtLeast reports whether weight meets min. Unknown weights rank as info.
func AtLeast(weight, min string) bool {
	return weightRank[weight] >= weightRank[min]
}

// weightsFrom returns every weight at or above min.
func weightsFrom(min string) []string {
	var out []string
	for _, w := range Weights {
		if AtLeast(w, min) {
			out = append(out, w)
		}
	}
	return out
}

// ErrBadCursor is returned for a cursor not produced by a previous query.
var ErrBadCursor = errors.New("malformed cursor")

// cursor marks the last entry of a page. Entries sort by time then event id,
// both descending.
type cursor struct {
	at      time.Time
	eventID string
}

func (c cursor) String() string {
	return c.at.UTC().Format(time.RFC3339Nano) + "|" + c.eventID
}

func parseCursor(s string) (cursor, error) {
	at, id, ok := strings.Cut(s, "|")
	if !ok {
		return cursor{}, fmt.Errorf("%w %q", ErrBadCursor, s)
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return cursor{}, fmt.Errorf("%w %q: %v", ErrBadCursor, s, err)
	}
	return cursor{at: t, eventID: id}, nil
}

// before reports whether e sorts after the cursor position.
func (c cursor) before(e Entry) bool {
	if e.OccurredAt.Equal(c.at) {
		return e.EventID < c.eventID
	}
	return e.OccurredAt.Before(c.at)
}

func newer(a, b Entry) bool {
	if a.OccurredAt.Equal(b.OccurredAt) {
		return a.EventID > b.EventID
	}
	return a.OccurredAt.After(b.OccurredAt)
}
