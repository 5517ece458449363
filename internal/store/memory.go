package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a mutex-guarded in-process Store. It backs unit tests and local
// development; the Postgres store is the production implementation.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	sink        EventSink
	now         func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the clock used to resolve server timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory constructs a Memory store. sink may be nil when no live queries
// are attached.
func NewMemory(sink EventSink, opts ...MemoryOption) *Memory {
	m := &Memory{
		collections: make(map[string]map[string]Document),
		sink:        sink,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetSink attaches the change-event sink. The store and the subscription
// manager reference each other, so the sink is bound after construction.
func (m *Memory) SetSink(sink EventSink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

// Create persists a new document under a generated id.
func (m *Memory) Create(ctx context.Context, collection string, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	resolved := ResolveTimestamps(doc, m.now())

	m.mu.Lock()
	col := m.collections[collection]
	if col == nil {
		col = make(map[string]Document)
		m.collections[collection] = col
	}
	col[id] = resolved
	m.mu.Unlock()

	m.publish(ChangeEvent{Collection: collection, DocID: id, Kind: ChangeCreated})
	return id, nil
}

// MergePatch merges patch into the stored document, creating it when absent.
func (m *Memory) MergePatch(ctx context.Context, collection, id string, patch Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved := ResolveTimestamps(patch, m.now())

	m.mu.Lock()
	col := m.collections[collection]
	if col == nil {
		col = make(map[string]Document)
		m.collections[collection] = col
	}
	col[id] = DeepMerge(cloneDocument(col[id]), resolved)
	m.mu.Unlock()

	m.publish(ChangeEvent{Collection: collection, DocID: id, Kind: ChangePatched})
	return nil
}

// Delete removes the document. Absent ids are ignored.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	col := m.collections[collection]
	_, existed := col[id]
	delete(col, id)
	m.mu.Unlock()

	if existed {
		m.publish(ChangeEvent{Collection: collection, DocID: id, Kind: ChangeDeleted})
	}
	return nil
}

// AddToSet adds value to the named set field, without duplicates.
func (m *Memory) AddToSet(ctx context.Context, collection, id, field, value string) error {
	return m.mutateSet(ctx, collection, id, field, func(members []string) []string {
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
func (m *Memory) RemoveFromSet(ctx context.Context, collection, id, field, value string) error {
	return m.mutateSet(ctx, collection, id, field, func(members []string) []string {
		out := members[:0]
		for _, member := range members {
			if member != value {
				out = append(out, member)
			}
		}
		return out
	})
}

func (m *Memory) mutateSet(ctx context.Context, collection, id, field string, apply func([]string) []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	doc = cloneDocument(doc)
	doc[field] = apply(stringSet(doc[field]))
	m.collections[collection][id] = doc
	m.mu.Unlock()

	m.publish(ChangeEvent{Collection: collection, DocID: id, Kind: ChangePatched})
	return nil
}

// Query returns the matching documents in order. Each document carries its
// id under the "id" key.
func (m *Memory) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	results := make([]Document, 0)
	for id, doc := range m.collections[q.Collection] {
		if !q.Filter.Matches(doc) {
			continue
		}
		out := cloneDocument(doc)
		out["id"] = id
		results = append(results, out)
	}
	m.mu.RUnlock()

	if q.Order.Field != "" {
		sort.SliceStable(results, func(i, j int) bool {
			a, b := results[i][q.Order.Field], results[j][q.Order.Field]
			if q.Order.Descending {
				return Less(b, a)
			}
			return Less(a, b)
		})
	}
	return results, nil
}

func (m *Memory) publish(evt ChangeEvent) {
	m.mu.RLock()
	sink := m.sink
	m.mu.RUnlock()
	if sink != nil {
		sink.Publish(evt)
	}
}

func cloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case Document:
			out[k] = cloneDocument(val)
		case map[string]any:
			out[k] = cloneDocument(Document(val))
		case []string:
			out[k] = append([]string(nil), val...)
		case []any:
			out[k] = append([]any(nil), val...)
		default:
			out[k] = v
		}
	}
	return out
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
