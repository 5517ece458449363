package live

import (
	"context"
	"errors"
	"sync"

	"example.com/tripboard/internal/observability"
	"example.com/tripboard/internal/store"
)

// Subscription is one standing query. Readers either range over Snapshots()
// or poll Snapshot(); every delivery replaces the whole list, there is no
// incremental patching.
//
// A terminal query error freezes the last delivered list instead of
// clearing it: documents must not vanish from view just because the stream
// broke. Err reports the terminal error, Loading flips to false.
type Subscription struct {
	query   store.Query
	manager *Manager
	id      uint64

	dirty     chan struct{}
	snapshots chan []store.Document
	done      chan struct{}
	ready     chan struct{}

	closeOnce sync.Once
	stopOnce  sync.Once
	readyOnce sync.Once

	mu      sync.RWMutex
	last    []store.Document
	loading bool
	err     error
}

// Resolved returns an already-settled subscription holding docs. Used for
// short-circuit cases (no authenticated user means an empty list and no
// store traffic). Closing it is a no-op.
func Resolved(docs []store.Document) *Subscription {
	sub := &Subscription{
		snapshots: make(chan []store.Document, 1),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
		last:      docs,
	}
	sub.snapshots <- docs
	close(sub.snapshots)
	sub.markReady()
	sub.closeOnce.Do(func() { close(sub.done) })
	return sub
}

// Query returns the query this subscription serves.
func (s *Subscription) Query() store.Query {
	return s.query
}

// Snapshots streams full result lists, newest first when the reader lags:
// the channel holds one element and a newer snapshot replaces an unread one.
// The channel closes when the subscription ends.
func (s *Subscription) Snapshots() <-chan []store.Document {
	return s.snapshots
}

// Ready is closed once the first snapshot has been delivered, or when the
// subscription ends before delivering one. Until then Snapshot returns the
// empty loading placeholder, not a query result.
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

func (s *Subscription) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Snapshot returns the last delivered list. It stays available after a
// terminal error.
func (s *Subscription) Snapshot() []store.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Loading reports whether the first snapshot is still pending.
func (s *Subscription) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the terminal subscription error, if any.
func (s *Subscription) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Closed reports whether the subscription has been torn down or has failed.
func (s *Subscription) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close tears the subscription down. It is safe to call more than once and
// is synchronous from the caller's perspective: after Close returns no new
// query run starts on behalf of this subscription.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.stop()
		close(s.done)
		s.markReady()
	})
}

// stop unregisters from the manager exactly once, whether teardown came
// from Close or from a terminal error.
func (s *Subscription) stop() {
	s.stopOnce.Do(func() {
		if s.manager != nil {
			s.manager.unregister(s.id)
			observability.SubscriptionClosed(s.query.Collection)
		}
	})
}

func (s *Subscription) wake() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.snapshots)

	if !s.deliver(ctx) {
		return
	}

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.Close()
			return
		case <-s.dirty:
			if !s.deliver(ctx) {
				return
			}
		}
	}
}

// deliver runs the query and pushes the result. It returns false when the
// subscription must end, either because it was torn down mid-query or
// because the query failed terminally.
func (s *Subscription) deliver(ctx context.Context) bool {
	docs, err := s.manager.querier.Query(ctx, s.query)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.Close()
			return false
		}
		s.fail(err)
		return false
	}

	s.mu.Lock()
	s.last = docs
	s.loading = false
	s.mu.Unlock()
	s.markReady()

	s.push(docs)
	return true
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.loading = false
	s.err = err
	s.mu.Unlock()

	observability.SubscriptionFailed(s.query.Collection)
	s.Close()
}

func (s *Subscription) push(docs []store.Document) {
	select {
	case <-s.done:
		return
	default:
	}
	for {
		select {
		case s.snapshots <- docs:
			observability.SnapshotDelivered(s.query.Collection)
			return
		default:
			// Reader is lagging; drop the stale snapshot.
			select {
			case <-s.snapshots:
			default:
			}
		}
	}
}
