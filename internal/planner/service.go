// Package planner is the planning repository: live per-date views over the
// shared board plus validated, merge-only mutations.
package planner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"example.com/tripboard/internal/domain"
	"example.com/tripboard/internal/live"
	"example.com/tripboard/internal/observability"
	"example.com/tripboard/internal/paths"
	"example.com/tripboard/internal/store"
	"example.com/tripboard/internal/validate"
)

// Service exposes the planning board operations.
type Service struct {
	store   store.Store
	queries *live.Manager
	today   func() string

	mu       sync.Mutex
	dateSub  *live.Subscription
	date     string
	todaySub *live.Subscription
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithToday overrides the current-date source. Tests pin it.
func WithToday(today func() string) Option {
	return func(s *Service) {
		s.today = today
	}
}

// NewService constructs the planner service.
func NewService(st store.Store, queries *live.Manager, opts ...Option) *Service {
	s := &Service{store: st, queries: queries, today: domain.Today}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func dateQuery(date string) store.Query {
	return store.Query{
		Collection: paths.Planning,
		Filter:     store.Filter{Field: "when", Op: store.OpEqual, Value: date},
		Order:      store.Order{Field: "createdAt", Descending: true},
	}
}

// ListForDate returns the live view of the items planned on date, newest
// first. Changing the date tears the previous subscription down before the
// new one is established, so two date streams are never live at once.
func (s *Service) ListForDate(ctx context.Context, date string) *live.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dateSub != nil && !s.dateSub.Closed() && s.date == date {
		return s.dateSub
	}
	if s.dateSub != nil {
		s.dateSub.Close()
	}
	s.date = date
	s.dateSub = s.queries.Subscribe(ctx, dateQuery(date))
	return s.dateSub
}

// ListForToday returns the always-on view of today's items, used by the
// dashboard preview. It is deliberately independent of ListForDate so that
// browsing other days never disturbs the preview.
func (s *Service) ListForToday(ctx context.Context) *live.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.todaySub == nil || s.todaySub.Closed() {
		s.todaySub = s.queries.Subscribe(ctx, dateQuery(s.today()))
	}
	return s.todaySub
}

// WatchDate returns a fresh live view of the items planned on date. Unlike
// ListForDate, each caller owns its subscription, so concurrent watchers do
// not tear each other down.
func (s *Service) WatchDate(ctx context.Context, date string) *live.Subscription {
	return s.queries.Subscribe(ctx, dateQuery(date))
}

// Create validates the draft and persists a new planning item, defaulting
// the date to today, done to false and the period to unsorted.
func (s *Service) Create(ctx context.Context, draft domain.PlanningDraft) (string, error) {
	if msg := validate.PlanningItem(draft); msg != "" {
		return "", domain.NewValidationError(msg)
	}

	when := draft.When
	if when == "" {
		when = s.today()
	}
	period := domain.Period(draft.Period)
	if !period.Valid() {
		period = domain.PeriodUnsorted
	}

	doc := store.Document{
		"title":     strings.TrimSpace(draft.Title),
		"category":  draft.Category,
		"when":      when,
		"period":    string(period),
		"done":      draft.Done,
		"time":      strings.TrimSpace(draft.Time),
		"note":      strings.TrimSpace(draft.Note),
		"createdAt": store.ServerTimestamp(),
		"updatedAt": store.ServerTimestamp(),
	}

	id, err := s.store.Create(ctx, paths.Planning, doc)
	if err != nil {
		return "", fmt.Errorf("create planning item: %w", err)
	}
	observability.RecordMutation(paths.Planning, "create")
	return id, nil
}

// Update merges the patch plus a refreshed update timestamp.
func (s *Service) Update(ctx context.Context, id string, patch store.Document) error {
	clean := validate.SanitizePatch(patch)
	clean["updatedAt"] = store.ServerTimestamp()

	if err := s.store.MergePatch(ctx, paths.Planning, id, clean); err != nil {
		return fmt.Errorf("update planning item: %w", err)
	}
	observability.RecordMutation(paths.Planning, "update")
	return nil
}

// ToggleDone sets the done flag.
func (s *Service) ToggleDone(ctx context.Context, id string, next bool) error {
	if err := s.store.MergePatch(ctx, paths.Planning, id, store.Document{
		"done":      next,
		"updatedAt": store.ServerTimestamp(),
	}); err != nil {
		return fmt.Errorf("toggle done: %w", err)
	}
	observability.RecordMutation(paths.Planning, "toggleDone")
	return nil
}

// MoveTo reschedules the item. The new date must be a real YYYY-MM-DD date,
// otherwise ErrInvalidDate is returned and nothing is written.
func (s *Service) MoveTo(ctx context.Context, id, newDate string) error {
	if !validate.Date(newDate) {
		return domain.ErrInvalidDate
	}

	if err := s.store.MergePatch(ctx, paths.Planning, id, store.Document{
		"when":      newDate,
		"updatedAt": store.ServerTimestamp(),
	}); err != nil {
		return fmt.Errorf("move planning item: %w", err)
	}
	observability.RecordMutation(paths.Planning, "moveTo")
	return nil
}

// Remove deletes the item. Absent ids pass through silently.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, paths.Planning, id); err != nil {
		return fmt.Errorf("remove planning item: %w", err)
	}
	observability.RecordMutation(paths.Planning, "remove")
	return nil
}
