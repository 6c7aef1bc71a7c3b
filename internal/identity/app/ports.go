package app

import "context"

// AnonymousIDStore persists the device's anonymous identity so it stays
// stable across sessions until explicitly replaced.
type AnonymousIDStore interface {
	AnonymousID(ctx context.Context) (string, error)
	SaveAnonymousID(ctx context.Context, id string) error
}

// AuthProvider is the external authentication collaborator. CurrentUserID
// returns "" when no verified session exists; an unreachable provider is not
// an error condition here, it just means the identity stays anonymous.
type AuthProvider interface {
	CurrentUserID(ctx context.Context) (string, error)
}
