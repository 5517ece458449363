// Package paths centralises the storage locations of the logical
// collections. Everything shared lives under one group scope so that every
// caller resolves the same catalog and planning board.
package paths

// DefaultGroupID is the single shared group the whole app works in.
const DefaultGroupID = "main"

const (
	// Group is the shared group document collection path prefix.
	Group = "groups"
	// Activities is the shared activity catalog.
	Activities = "groups/" + DefaultGroupID + "/activities"
	// Planning is the shared daily planning board.
	Planning = "groups/" + DefaultGroupID + "/planning"
	// Users holds per-user profile documents.
	Users = "users"
)
