// Package live turns the store's change feed into standing query
// subscriptions: each subscription holds the latest full ordered result of
// one query and re-runs it whenever its collection changes.
package live

import (
	"context"
	"sync"

	"example.com/tripboard/internal/observability"
	"example.com/tripboard/internal/store"
)

// Manager fans change events out to the subscriptions interested in the
// touched collection. It implements store.EventSink so it can be wired
// directly as a store's sink, and anything else (the Kafka relay) can feed
// it remote events the same way.
type Manager struct {
	querier store.Querier

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
}

// NewManager constructs a Manager reading snapshots from querier.
func NewManager(querier store.Querier) *Manager {
	return &Manager{
		querier: querier,
		subs:    make(map[uint64]*Subscription),
	}
}

// Publish wakes every subscription whose collection matches the event.
// Events carry no payload; woken subscriptions re-run their query.
func (m *Manager) Publish(evt store.ChangeEvent) {
	m.mu.Lock()
	for _, sub := range m.subs {
		if sub.query.Collection == evt.Collection {
			sub.wake()
		}
	}
	m.mu.Unlock()
}

// Subscribe establishes a live query. The subscription starts in loading
// state and delivers the first full snapshot as soon as the initial query
// completes; it must be closed when the caller's interest ends.
func (m *Manager) Subscribe(ctx context.Context, q store.Query) *Subscription {
	sub := &Subscription{
		query:     q,
		manager:   m,
		dirty:     make(chan struct{}, 1),
		snapshots: make(chan []store.Document, 1),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
		loading:   true,
	}

	m.mu.Lock()
	m.nextID++
	sub.id = m.nextID
	m.subs[sub.id] = sub
	m.mu.Unlock()

	observability.SubscriptionOpened(q.Collection)
	go sub.run(ctx)
	return sub
}

func (m *Manager) unregister(id uint64) {
	m.mu.Lock()
	delete(m.subs, id)
	m.mu.Unlock()
}

// active reports the number of registered subscriptions. Test hook.
func (m *Manager) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
