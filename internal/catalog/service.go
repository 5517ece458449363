// Package catalog is the activity repository: live views over the shared
// catalog plus validated, merge-only mutations.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"example.com/tripboard/internal/auth"
	"example.com/tripboard/internal/domain"
	"example.com/tripboard/internal/live"
	"example.com/tripboard/internal/observability"
	"example.com/tripboard/internal/paths"
	"example.com/tripboard/internal/store"
	"example.com/tripboard/internal/validate"
)

// Service exposes the activity catalog operations. All writes validate
// first, then delegate persistence to the store; reads come back through
// the live subscription manager, never through manual refetches.
type Service struct {
	store   store.Store
	queries *live.Manager

	mu   sync.Mutex
	list *live.Subscription
}

// NewService constructs the catalog service.
func NewService(st store.Store, queries *live.Manager) *Service {
	return &Service{store: st, queries: queries}
}

// List returns the always-on, name-ordered live view of the whole shared
// catalog. The first call establishes the subscription; later calls reuse
// it. The subscription lives as long as ctx.
func (s *Service) List(ctx context.Context) *live.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.list == nil || s.list.Closed() {
		s.list = s.queries.Subscribe(ctx, store.Query{
			Collection: paths.Activities,
			Order:      store.Order{Field: "name"},
		})
	}
	return s.list
}

// Watch returns a fresh, name-ordered live view of the whole catalog. Every
// caller gets its own subscription and owns its lifecycle; the snapshot
// channel has a single consumer.
func (s *Service) Watch(ctx context.Context) *live.Subscription {
	return s.queries.Subscribe(ctx, store.Query{
		Collection: paths.Activities,
		Order:      store.Order{Field: "name"},
	})
}

// ListCreatedBy returns a live, name-ordered view of the activities owned
// by userID. An absent user yields an immediately settled empty view with
// no store traffic.
func (s *Service) ListCreatedBy(ctx context.Context, userID string) *live.Subscription {
	if userID == "" {
		return live.Resolved(nil)
	}
	return s.queries.Subscribe(ctx, store.Query{
		Collection: paths.Activities,
		Filter:     store.Filter{Field: "createBy", Op: store.OpEqual, Value: userID},
		Order:      store.Order{Field: "name"},
	})
}

// ListFavoritedBy returns a live, name-ordered view of the activities whose
// favorites set contains userID. Same absent-user short-circuit as
// ListCreatedBy.
func (s *Service) ListFavoritedBy(ctx context.Context, userID string) *live.Subscription {
	if userID == "" {
		return live.Resolved(nil)
	}
	return s.queries.Subscribe(ctx, store.Query{
		Collection: paths.Activities,
		Filter:     store.Filter{Field: "favoritesUser", Op: store.OpArrayContains, Value: userID},
		Order:      store.Order{Field: "name"},
	})
}

// Create validates the draft, stamps ownership and timestamps, and persists
// a new catalog entry. It returns the generated id.
func (s *Service) Create(ctx context.Context, draft domain.ActivityDraft) (string, error) {
	if msg := validate.Activity(draft); msg != "" {
		return "", domain.NewValidationError(msg)
	}
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return "", domain.ErrAuthRequired
	}

	doc := store.Document{
		"name":         strings.TrimSpace(draft.Name),
		"category":     draft.Category,
		"neighborhood": strings.TrimSpace(draft.Neighborhood),
		"address":      strings.TrimSpace(draft.Address),
		"image":        strings.TrimSpace(draft.Image),
		// mapsLink accepts a full URL, falls back to a free-text place
		// query, and finally to the activity name.
		"mapsLink":            firstNonEmpty(draft.MapsLink, draft.GoogleQuery, draft.Name),
		"rating":              floatOrNil(draft.Rating),
		"averagePriceKrw":     floatOrNil(draft.AveragePriceKrw),
		"reservationRequired": draft.ReservationRequired,
		"suggestedTimeSlot":   draft.SuggestedTimeSlot,
		"notes":               strings.TrimSpace(draft.Notes),

		"createBy":      actor.UID,
		"createByName":  actor.DisplayName,
		"favoritesUser": []string{},

		"createdAt": store.ServerTimestamp(),
		"updatedAt": store.ServerTimestamp(),
	}

	id, err := s.store.Create(ctx, paths.Activities, doc)
	if err != nil {
		return "", fmt.Errorf("create activity: %w", err)
	}
	observability.RecordMutation(paths.Activities, "create")
	return id, nil
}

// Update merges the sanitized patch plus a refreshed update timestamp into
// the stored record. Fields absent from the patch are never touched.
func (s *Service) Update(ctx context.Context, id string, patch store.Document) error {
	clean := validate.SanitizePatch(patch)
	if msg := validate.ActivityPatch(clean); msg != "" {
		return domain.NewValidationError(msg)
	}
	clean["updatedAt"] = store.ServerTimestamp()

	if err := s.store.MergePatch(ctx, paths.Activities, id, clean); err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	observability.RecordMutation(paths.Activities, "update")
	return nil
}

// Remove deletes the record outright. Removing an already-absent id is not
// an error at this layer.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, paths.Activities, id); err != nil {
		return fmt.Errorf("remove activity: %w", err)
	}
	observability.RecordMutation(paths.Activities, "remove")
	return nil
}

// ToggleFavorite flips the actor's membership of the activity's favorites
// set. Membership is read from the locally cached catalog snapshot, which
// may lag the store: two rapid toggles can both observe "not a favorite"
// and both issue the add. The store's set primitives are idempotent, so the
// net state is still a single entry.
//
// A freshly (re)created catalog subscription has not delivered yet and its
// snapshot is an empty placeholder, not a cache. ToggleFavorite waits for
// the first delivery before reading membership, otherwise every toggle
// after a re-subscribe would observe "not a favorite" and un-favoriting
// would be unreachable.
func (s *Service) ToggleFavorite(ctx context.Context, id string) error {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return domain.ErrAuthRequired
	}

	sub := s.List(ctx)
	select {
	case <-sub.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	isFavorite := false
	for _, activity := range domain.ActivitiesFromDocuments(sub.Snapshot()) {
		if activity.ID == id {
			isFavorite = activity.IsFavoriteOf(actor.UID)
			break
		}
	}

	var err error
	if isFavorite {
		err = s.store.RemoveFromSet(ctx, paths.Activities, id, "favoritesUser", actor.UID)
	} else {
		err = s.store.AddToSet(ctx, paths.Activities, id, "favoritesUser", actor.UID)
	}
	if err != nil {
		return fmt.Errorf("toggle favorite: %w", err)
	}

	if err := s.store.MergePatch(ctx, paths.Activities, id, store.Document{
		"updatedAt": store.ServerTimestamp(),
	}); err != nil {
		return fmt.Errorf("toggle favorite: %w", err)
	}
	observability.RecordMutation(paths.Activities, "toggleFavorite")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
