// Package postgres is the production Store: documents live as JSONB rows
// and every mutation records a change event in the outbox table within the
// same transaction, so the Kafka relay never observes a write that did not
// commit.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/tripboard/internal/store"
)

// Store is a Postgres-backed document store.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time

	mu   sync.RWMutex
	sink store.EventSink
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to resolve server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New constructs a Store on top of pool. sink may be nil when no live
// queries are attached in this process.
func New(pool *pgxpool.Pool, sink store.EventSink, opts ...Option) *Store {
	s := &Store{
		pool: pool,
		sink: sink,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSink attaches the change-event sink. The store and the subscription
// manager reference each other, so the sink is bound after construction.
func (s *Store) SetSink(sink store.EventSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Create persists a new document under a generated id.
func (s *Store) Create(ctx context.Context, collection string, doc store.Document) (string, error) {
	id := uuid.NewString()
	body, err := json.Marshal(store.ResolveTimestamps(doc, s.now()))
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	evt := store.ChangeEvent{Collection: collection, DocID: id, Kind: store.ChangeCreated}
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		const stmt = `INSERT INTO documents (collection, doc_id, body) VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, stmt, collection, id, body); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, evt)
	})
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}

	s.publish(evt)
	return id, nil
}

// MergePatch merges patch into the stored document, creating it when absent.
// The stored body is read under a row lock and merged in Go so that nested
// maps merge field by field instead of being replaced wholesale.
func (s *Store) MergePatch(ctx context.Context, collection, id string, patch store.Document) error {
	resolved := store.ResolveTimestamps(patch, s.now())

	evt := store.ChangeEvent{Collection: collection, DocID: id, Kind: store.ChangePatched}
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, _, err := lockDocument(ctx, tx, collection, id)
		if err != nil {
			return err
		}

		body, err := json.Marshal(store.DeepMerge(current, resolved))
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}

		const stmt = `INSERT INTO documents (collection, doc_id, body) VALUES ($1, $2, $3)
            ON CONFLICT (collection, doc_id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`
		if _, err := tx.Exec(ctx, stmt, collection, id, body); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, evt)
	})
	if err != nil {
		return fmt.Errorf("merge document: %w", err)
	}

	s.publish(evt)
	return nil
}

// Delete removes the document. Absent ids are ignored.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	existed := false
	evt := store.ChangeEvent{Collection: collection, DocID: id, Kind: store.ChangeDeleted}
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		const stmt = `DELETE FROM documents WHERE collection = $1 AND doc_id = $2`
		tag, err := tx.Exec(ctx, stmt, collection, id)
		if err != nil {
			return err
		}
		existed = tag.RowsAffected() > 0
		if !existed {
			return nil
		}
		return insertOutbox(ctx, tx, evt)
	})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	if existed {
		s.publish(evt)
	}
	return nil
}

// AddToSet adds value to the named set field, without duplicates.
func (s *Store) AddToSet(ctx context.Context, collection, id, field, value string) error {
	return s.mutateSet(ctx, collection, id, field, func(members []string) []string {
		for _, member := range members {
			if member == value {
				return members
			}
		}
		return append(members, value)
	})
}

// RemoveFromSet removes value from the named set field. Removing an absent
// value leaves the set unchanged.
func (s *Store) RemoveFromSet(ctx context.Context, collection, id, field, value string) error {
	return s.mutateSet(ctx, collection, id, field, func(members []string) []string {
		out := members[:0]
		for _, member := range members {
			if member != value {
				out = append(out, member)
			}
		}
		return out
	})
}

func (s *Store) mutateSet(ctx context.Context, collection, id, field string, apply func([]string) []string) error {
	evt := store.ChangeEvent{Collection: collection, DocID: id, Kind: store.ChangePatched}
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		doc, found, err := lockDocument(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		if !found {
			return store.ErrNotFound
		}

		doc[field] = apply(stringSet(doc[field]))
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}

		const stmt = `UPDATE documents SET body = $3, updated_at = NOW() WHERE collection = $1 AND doc_id = $2`
		if _, err := tx.Exec(ctx, stmt, collection, id, body); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, evt)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("mutate set: %w", err)
	}

	s.publish(evt)
	return nil
}

// Query returns the matching documents in order. Filtering happens in SQL
// against the JSONB body; ordering happens in Go through the shared
// comparator so Postgres and memory stores sort identically.
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	query := `SELECT doc_id, body FROM documents WHERE collection = $1`
	args := []any{q.Collection}

	switch q.Filter.Op {
	case store.OpEqual:
		query += ` AND body->>$2 = $3`
		args = append(args, q.Filter.Field, fmt.Sprint(q.Filter.Value))
	case store.OpArrayContains:
		query += ` AND body->$2 ? $3`
		args = append(args, q.Filter.Field, fmt.Sprint(q.Filter.Value))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	results := make([]store.Document, 0)
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc := store.Document{}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		doc["id"] = id
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	if q.Order.Field != "" {
		sort.SliceStable(results, func(i, j int) bool {
			a, b := results[i][q.Order.Field], results[j][q.Order.Field]
			if q.Order.Descending {
				return store.Less(b, a)
			}
			return store.Less(a, b)
		})
	}
	return results, nil
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// lockDocument reads the body under FOR UPDATE. found is false when the row
// does not exist.
func lockDocument(ctx context.Context, tx pgx.Tx, collection, id string) (store.Document, bool, error) {
	const query = `SELECT body FROM documents WHERE collection = $1 AND doc_id = $2 FOR UPDATE`

	var body []byte
	err := tx.QueryRow(ctx, query, collection, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Document{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	doc := store.Document{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false, fmt.Errorf("decode document: %w", err)
	}
	return doc, true, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, evt store.ChangeEvent) error {
	payload, err := json.Marshal(map[string]string{
		"collection": evt.Collection,
		"docId":      evt.DocID,
		"kind":       string(evt.Kind),
	})
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (collection, doc_id, kind, partition_key, payload)
        VALUES ($1, $2, $3, $4, $5)`
	_, err = tx.Exec(ctx, stmt, evt.Collection, evt.DocID, string(evt.Kind), evt.Collection, payload)
	return err
}

func (s *Store) publish(evt store.ChangeEvent) {
	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()
	if sink != nil {
		sink.Publish(evt)
	}
}

func stringSet(v any) []string {
	switch vs := v.(type) {
	case []string:
		return append([]string(nil), vs...)
	case []any:
		out := make([]string, 0, len(vs))
		for _, item := range vs {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
