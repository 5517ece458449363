// Package group maintains the shared trip group document and the
// membership entries of everyone who signs in.
package group

import (
	"context"
	"fmt"

	"example.com/tripboard/internal/auth"
	"example.com/tripboard/internal/domain"
	"example.com/tripboard/internal/observability"
	"example.com/tripboard/internal/paths"
	"example.com/tripboard/internal/store"
)

// DefaultGroupName seeds the shared group document on first contact.
const DefaultGroupName = "Séoul – Groupe principal"

// Service upserts group membership.
type Service struct {
	store store.Store
}

// NewService constructs the membership service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// EnsureMembership makes sure the shared group document exists and that the
// actor appears in its members map. A missing actor is a silent no-op; the
// caller may not be signed in yet. Both writes are merges, so repeated calls
// keep a single entry per uid and never disturb other members.
func (s *Service) EnsureMembership(ctx context.Context) error {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return nil
	}

	if err := s.store.MergePatch(ctx, paths.Group, paths.DefaultGroupID, store.Document{
		"name":      DefaultGroupName,
		"createdAt": store.ServerTimestamp(),
		"updatedAt": store.ServerTimestamp(),
	}); err != nil {
		return fmt.Errorf("ensure group: %w", err)
	}

	if err := s.store.MergePatch(ctx, paths.Group, paths.DefaultGroupID, store.Document{
		"members": store.Document{
			actor.UID: store.Document{
				"role":        domain.RoleMember,
				"joinedAt":    store.ServerTimestamp(),
				"displayName": actor.DisplayName,
			},
		},
		"updatedAt": store.ServerTimestamp(),
	}); err != nil {
		return fmt.Errorf("ensure membership: %w", err)
	}
	observability.RecordMutation(paths.Group, "ensureMembership")
	return nil
}

// Load reads the shared group document. ErrNotFound passes through when
// nobody has joined yet.
func (s *Service) Load(ctx context.Context) (domain.Group, error) {
	docs, err := s.store.Query(ctx, store.Query{Collection: paths.Group})
	if err != nil {
		return domain.Group{}, fmt.Errorf("load group: %w", err)
	}
	for _, doc := range docs {
		if doc["id"] == paths.DefaultGroupID {
			return domain.GroupFromDocument(doc), nil
		}
	}
	return domain.Group{}, store.ErrNotFound
}
