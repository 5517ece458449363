package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []ChangeEvent
}

func (s *recordingSink) Publish(evt ChangeEvent) {
	s.events = append(s.events, evt)
}

func TestMemoryCreateResolvesServerTimestamps(t *testing.T) {
	now := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	m := NewMemory(nil, WithClock(func() time.Time { return now }))

	id, err := m.Create(context.Background(), "groups/main/activities", Document{
		"name":      "Gyeongbokgung",
		"createdAt": ServerTimestamp(),
		"updatedAt": ServerTimestamp(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	docs, err := m.Query(context.Background(), Query{Collection: "groups/main/activities"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, id, docs[0]["id"])
	require.Equal(t, now, docs[0]["createdAt"])
}

func TestMemoryQueryOrdersByField(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	for _, name := range []string{"Namsan", "Bukchon", "Gwangjang"} {
		_, err := m.Create(ctx, "col", Document{"name": name})
		require.NoError(t, err)
	}

	docs, err := m.Query(ctx, Query{Collection: "col", Order: Order{Field: "name"}})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	require.Equal(t, "Bukchon", docs[0]["name"])
	require.Equal(t, "Gwangjang", docs[1]["name"])
	require.Equal(t, "Namsan", docs[2]["name"])
}

func TestMemoryQueryFilters(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	_, err := m.Create(ctx, "col", Document{"when": "2026-03-05", "title": "Palace"})
	require.NoError(t, err)
	_, err = m.Create(ctx, "col", Document{"when": "2026-03-06", "title": "Market"})
	require.NoError(t, err)

	docs, err := m.Query(ctx, Query{
		Collection: "col",
		Filter:     Filter{Field: "when", Op: OpEqual, Value: "2026-03-05"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "Palace", docs[0]["title"])
}

func TestMemoryQueryArrayContains(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	_, err := m.Create(ctx, "col", Document{"favoritesUser": []string{"uid-1", "uid-2"}})
	require.NoError(t, err)
	_, err = m.Create(ctx, "col", Document{"favoritesUser": []string{"uid-2"}})
	require.NoError(t, err)

	docs, err := m.Query(ctx, Query{
		Collection: "col",
		Filter:     Filter{Field: "favoritesUser", Op: OpArrayContains, Value: "uid-1"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestMemoryMergePatchIsDeepAndUpserts(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	err := m.MergePatch(ctx, "groups", "main", Document{
		"name": "Séoul – Groupe principal",
		"members": Document{
			"uid-1": Document{"role": "member", "displayName": "Alice"},
		},
	})
	require.NoError(t, err)

	err = m.MergePatch(ctx, "groups", "main", Document{
		"members": Document{
			"uid-2": Document{"role": "member", "displayName": "Bora"},
		},
	})
	require.NoError(t, err)

	docs, err := m.Query(ctx, Query{Collection: "groups"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	members, ok := docs[0]["members"].(Document)
	require.True(t, ok)
	require.Len(t, members, 2)
	require.Equal(t, "Séoul – Groupe principal", docs[0]["name"])
}

func TestMemoryMergePatchLeavesOtherFieldsUntouched(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	id, err := m.Create(ctx, "col", Document{"title": "Palace", "done": false})
	require.NoError(t, err)

	require.NoError(t, m.MergePatch(ctx, "col", id, Document{"done": true}))

	docs, err := m.Query(ctx, Query{Collection: "col"})
	require.NoError(t, err)
	require.Equal(t, "Palace", docs[0]["title"])
	require.Equal(t, true, docs[0]["done"])
}

func TestMemorySetOperationsAreIdempotent(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	id, err := m.Create(ctx, "col", Document{"favoritesUser": []string{}})
	require.NoError(t, err)

	require.NoError(t, m.AddToSet(ctx, "col", id, "favoritesUser", "uid-1"))
	require.NoError(t, m.AddToSet(ctx, "col", id, "favoritesUser", "uid-1"))

	docs, err := m.Query(ctx, Query{Collection: "col"})
	require.NoError(t, err)
	require.Equal(t, []string{"uid-1"}, docs[0]["favoritesUser"])

	require.NoError(t, m.RemoveFromSet(ctx, "col", id, "favoritesUser", "uid-1"))
	require.NoError(t, m.RemoveFromSet(ctx, "col", id, "favoritesUser", "uid-1"))

	docs, err = m.Query(ctx, Query{Collection: "col"})
	require.NoError(t, err)
	require.Empty(t, docs[0]["favoritesUser"])
}

func TestMemorySetOperationsRequireDocument(t *testing.T) {
	m := NewMemory(nil)
	err := m.AddToSet(context.Background(), "col", "missing", "favoritesUser", "uid-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDeleteIsIdempotent(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	id, err := m.Create(ctx, "col", Document{"title": "Palace"})
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "col", id))
	require.NoError(t, m.Delete(ctx, "col", id))
}

func TestMemoryPublishesChangeEvents(t *testing.T) {
	sink := &recordingSink{}
	m := NewMemory(sink)
	ctx := context.Background()

	id, err := m.Create(ctx, "col", Document{"title": "Palace"})
	require.NoError(t, err)
	require.NoError(t, m.MergePatch(ctx, "col", id, Document{"done": true}))
	require.NoError(t, m.Delete(ctx, "col", id))
	// Deleting again must not emit a second event.
	require.NoError(t, m.Delete(ctx, "col", id))

	require.Len(t, sink.events, 3)
	require.Equal(t, ChangeCreated, sink.events[0].Kind)
	require.Equal(t, ChangePatched, sink.events[1].Kind)
	require.Equal(t, ChangeDeleted, sink.events[2].Kind)
	for _, evt := range sink.events {
		require.Equal(t, "col", evt.Collection)
		require.Equal(t, id, evt.DocID)
	}
}

func TestQueryIdentityDistinguishesFilters(t *testing.T) {
	a := Query{Collection: "col", Filter: Filter{Field: "when", Op: OpEqual, Value: "2026-03-05"}}
	b := Query{Collection: "col", Filter: Filter{Field: "when", Op: OpEqual, Value: "2026-03-06"}}
	if a.Identity() == b.Identity() {
		t.Fatalf("expected distinct identities, both %q", a.Identity())
	}
	if a.Identity() != a.Identity() {
		t.Fatal("identity must be stable")
	}
}
