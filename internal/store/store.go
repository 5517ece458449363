// Package store defines the realtime document store contract shared by the
// repositories: schemaless documents addressed by (collection, id), merge
// patches, idempotent set mutations, and a change feed that tells live
// queries when to refresh.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Document is a schemaless field map. Nested objects are Documents (or
// map[string]any after a JSON round trip); set-valued fields are []string.
type Document map[string]any

// ErrNotFound is returned by operations that require an existing document.
var ErrNotFound = errors.New("document not found")

// FilterOp enumerates the supported query predicates.
type FilterOp int

const (
	// OpNone matches every document.
	OpNone FilterOp = iota
	// OpEqual matches documents whose field equals the filter value.
	OpEqual
	// OpArrayContains matches documents whose set-valued field contains the
	// filter value.
	OpArrayContains
)

// Filter restricts a query to documents matching a single predicate.
// The zero value matches everything.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Order sorts query results by one field.
type Order struct {
	Field      string
	Descending bool
}

// Query identifies a live or one-shot query. Two queries with the same
// collection and filter are the same logical query.
type Query struct {
	Collection string
	Filter     Filter
	Order      Order
}

// Identity returns a comparable key for the (collection, filter) pair that
// governs re-subscription.
func (q Query) Identity() string {
	return fmt.Sprintf("%s|%d|%s|%v", q.Collection, q.Filter.Op, q.Filter.Field, q.Filter.Value)
}

// ChangeKind classifies a change event.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangePatched ChangeKind = "patched"
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeEvent announces that a document in a collection changed. Events are
// advisory: consumers re-run their queries rather than patching state.
type ChangeEvent struct {
	Collection string
	DocID      string
	Kind       ChangeKind
}

// EventSink receives change events from a store. Publish must not block.
type EventSink interface {
	Publish(ChangeEvent)
}

// Querier is the read side of a Store.
type Querier interface {
	Query(ctx context.Context, q Query) ([]Document, error)
}

// Store is the persistence contract the repositories write through. All
// mutations are merges or idempotent set operations; nothing in this
// codebase issues a blind full-document overwrite.
type Store interface {
	Querier

	// Create persists a new document and returns its generated id.
	Create(ctx context.Context, collection string, doc Document) (string, error)

	// MergePatch merges the given fields into the stored document, creating
	// it when absent. Nested maps are merged recursively; fields not named
	// in the patch are left untouched.
	MergePatch(ctx context.Context, collection, id string, patch Document) error

	// Delete removes a document. Deleting an absent id is not an error.
	Delete(ctx context.Context, collection, id string) error

	// AddToSet adds value to a set-valued field without introducing
	// duplicates. Fails with ErrNotFound when the document is absent.
	AddToSet(ctx context.Context, collection, id, field, value string) error

	// RemoveFromSet removes value from a set-valued field. Removing an
	// absent value is a no-op. Fails with ErrNotFound when the document is
	// absent.
	RemoveFromSet(ctx context.Context, collection, id, field, value string) error
}

// serverTimestamp is the sentinel resolved to the store clock at commit time.
type serverTimestamp struct{}

// ServerTimestamp returns a sentinel value that the store replaces with its
// own clock when the write commits.
func ServerTimestamp() any {
	return serverTimestamp{}
}

// ResolveTimestamps returns a copy of doc with every ServerTimestamp
// sentinel (including sentinels inside nested maps) replaced by now.
func ResolveTimestamps(doc Document, now time.Time) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = resolveValue(v, now)
	}
	return out
}

func resolveValue(v any, now time.Time) any {
	switch val := v.(type) {
	case serverTimestamp:
		return now
	case Document:
		return ResolveTimestamps(val, now)
	case map[string]any:
		return ResolveTimestamps(Document(val), now)
	default:
		return v
	}
}

// DeepMerge merges patch into dst recursively: nested maps merge field by
// field, every other value type replaces the stored one. dst is modified in
// place and returned.
func DeepMerge(dst, patch Document) Document {
	if dst == nil {
		dst = make(Document, len(patch))
	}
	for k, v := range patch {
		pm, pok := asDocument(v)
		dm, dok := asDocument(dst[k])
		if pok && dok {
			dst[k] = DeepMerge(dm, pm)
			continue
		}
		dst[k] = v
	}
	return dst
}

func asDocument(v any) (Document, bool) {
	switch val := v.(type) {
	case Document:
		return val, true
	case map[string]any:
		return Document(val), true
	default:
		return nil, false
	}
}

// Matches reports whether doc satisfies the filter.
func (f Filter) Matches(doc Document) bool {
	switch f.Op {
	case OpNone:
		return true
	case OpEqual:
		return equalValues(doc[f.Field], f.Value)
	case OpArrayContains:
		return setContains(doc[f.Field], f.Value)
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Equal(tb)
		}
		return false
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
	}
	return a == b
}

func setContains(field, value any) bool {
	switch vs := field.(type) {
	case []string:
		for _, v := range vs {
			if v == value {
				return true
			}
		}
	case []any:
		for _, v := range vs {
			if equalValues(v, value) {
				return true
			}
		}
	}
	return false
}

// Less orders two field values for query sorting. Timestamps compare as
// times whether they are stored as time.Time or RFC3339 strings, so memory
// and JSON-backed stores sort identically.
func Less(a, b any) bool {
	ta, aok := asTime(a)
	tb, bok := asTime(b)
	if aok && bok {
		return ta.Before(tb)
	}
	fa, aok := asFloat(a)
	fb, bok := asFloat(b)
	if aok && bok {
		return fa < fb
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
