package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// SQLStore implements Store on the activity_entries table of the SQLite
// database. The table is part of the embedded schema.
type SQLStore struct {
	drv *entsql.Driver
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{drv: entsql.OpenDB(dialect.SQLite, db)}
}

const table = "activity_entries"

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string { return t.UTC().Format(tsLayout) }

var columns = []string{
	"event_id", "event_type", "occurred_at", "entity_type", "entity_id",
	"role", "source_refs", "summary", "category", "weight", "actor", "payload",
}

func builder() *entsql.DialectBuilder { return entsql.Dialect(dialect.SQLite) }

// WriteEntries inserts entries in one statement.
func (s *SQLStore) WriteEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := builder().Insert(table).Columns(columns...)
	for _, e := range entries {
		refs, err := json.Marshal(e.SourceRefs)
		if err != nil {
			return fmt.Errorf("encoding source refs: %w", err)
		}
		payload := []byte(e.Payload)
		if payload == nil {
			payload = []byte("null")
		}
		ins.Values(e.EventID, e.EventType, ts(e.OccurredAt), e.EntityType, e.EntityID,
			e.Role, string(refs), e.Summary, e.Category, e.Weight, e.Actor, string(payload))
	}
	ins.OnConflict(entsql.ConflictColumns("entity_type", "entity_id", "event_id"), entsql.DoNothing())

	query, args := ins.Query()
	var res sql.Result
	if err := s.drv.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

func (s *SQLStore) QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]Entry, string, int, error) {
	preds := []*entsql.Predicate{
		entsql.EQ("entity_type", entityType),
		entsql.EQ("entity_id", entityID),
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", ts(*opts.Since)))
	}
	if opts.Until != nil {
		preds = append(preds, entsql.LTE("occurred_at", ts(*opts.Until)))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", anys(opts.Categories)...))
	}
	if opts.MinWeight != "" && opts.MinWeight != "info" {
		preds = append(preds, entsql.In("weight", anys(weightsFrom(opts.MinWeight))...))
	}

	total, err := s.count(ctx, entsql.And(preds...))
	if err != nil {
		return nil, "", 0, err
	}

	if opts.Cursor != "" {
		c, err := parseCursor(opts.Cursor)
		if err != nil {
			return nil, "", 0, err
		}
		at := ts(c.at)
		preds = append(preds, entsql.Or(
			entsql.LT("occurred_at", at),
			entsql.And(entsql.EQ("occurred_at", at), entsql.LT("event_id", c.eventID)),
		))
	}

	limit := opts.limit()
	q := builder().Select(columns...).From(entsql.Table(table)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("occurred_at"), entsql.Desc("event_id")).
		Limit(limit + 1)
	entries, err := s.scan(ctx, q)
	if err != nil {
		return nil, "", 0, err
	}

	var next string
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		next = cursor{at: last.OccurredAt, eventID: last.EventID}.String()
	}
	return entries, next, total, nil
}

func (s *SQLStore) Search(ctx context.Context, query string, opts SearchOptions) ([]Entry, int, error) {
	preds := []*entsql.Predicate{entsql.ContainsFold("summary", query)}
	if opts.EntityType != "" {
		preds = append(preds, entsql.EQ("entity_type", opts.EntityType))
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", ts(*opts.Since)))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", anys(opts.Categories)...))
	}
	where := entsql.And(preds...)

	total, err := s.count(ctx, where)
	if err != nil {
		return nil, 0, err
	}
	q := builder().Select(columns...).From(entsql.Table(table)).Where(where).
		OrderBy(entsql.Desc("occurred_at"), entsql.Desc("event_id")).
		Limit(opts.limit())
	entries, err := s.scan(ctx, q)
	return entries, total, err
}

func (s *SQLStore) count(ctx context.Context, where *entsql.Predicate) (int, error) {
	query, args := builder().Select(entsql.Count("*")).From(entsql.Table(table)).Where(where).Query()
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return 0, fmt.Errorf("counting activity entries: %w", err)
	}
	defer rows.Close()
	n := 0
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func (s *SQLStore) scan(ctx context.Context, q *entsql.Selector) ([]Entry, error) {
	query, args := q.Query()
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e             Entry
			at, refs, raw string
		)
		if err := rows.Scan(&e.EventID, &e.EventType, &at, &e.EntityType, &e.EntityID,
			&e.Role, &refs, &e.Summary, &e.Category, &e.Weight, &e.Actor, &raw); err != nil {
			return nil, err
		}
		e.OccurredAt, _ = time.Parse(time.RFC3339Nano, at)
		if err := json.Unmarshal([]byte(refs), &e.SourceRefs); err != nil {
			return nil, fmt.Errorf("decoding source refs of %s: %w", e.EventID, err)
		}
		if raw != "" && raw != "null" {
			e.Payload = json.RawMessage(raw)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func anys(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
