package session

import "context"

// IdentityProvider is the external source of sessions.
type IdentityProvider interface {
	// GetSession returns the current session, or nil when none exists.
	GetSession(ctx context.Context) (*Session, error)
	// OnSessionChange registers a listener for provider pushes. A nil
	// session means signed out.
	OnSessionChange(listener func(*Session)) (unsubscribe func())
	// SignOut ends the session at the provider.
	SignOut(ctx context.Context) error
}
