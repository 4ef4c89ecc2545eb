// Package ingress declares the AuthProvider and RateLimiter external
// collaborators (spec §6). Both are out of scope for the core task/search
// subsystem (the HTTP/REST facade consuming them is explicitly out of
// scope too) and are therefore interface-only, as specified.
package ingress

import "context"

// Principal identifies the caller an AuthProvider resolved a credential to.
type Principal struct {
	ID     string
	Scopes []string
}

// AuthProvider authenticates inbound requests for the (out-of-scope) REST
// facade. No concrete adapter ships with this module.
type AuthProvider interface {
	Authenticate(ctx context.Context, credential string) (Principal, error)
}

// RateLimiter enforces a per-key admission rate for the (out-of-scope) REST
// facade. No concrete adapter ships with this module.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
