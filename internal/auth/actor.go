package auth

// Actor is the authenticated user performing a mutating operation: a stable
// identifier plus the label denormalized onto created documents.
type Actor struct {
	UID         string
	DisplayName string
}

// DefaultDisplayName labels users who set neither a display name nor an
// email.
const DefaultDisplayName = "Utilisateur"

// ActorFromClaims derives the actor identity from verified claims, falling
// back display name, then email, then the default label.
func ActorFromClaims(c *Claims) (Actor, bool) {
	if c == nil || c.Subject == "" {
		return Actor{}, false
	}
	name := c.DisplayName
	if name == "" {
		name = c.Email
	}
	if name == "" {
		name = DefaultDisplayName
	}
	return Actor{UID: c.Subject, DisplayName: name}, true
}
