package server

import (
	"context"

	"credvault/internal/auth"
)

const (
	authTypeBasic  = "basic"
	authTypeBearer = "bearer"
)

type authContextKey struct{}

type authPrincipal struct {
	AuthType     string
	AuthRequired bool
	Principal    auth.Principal
}

func contextWithAuthPrincipal(ctx context.Context, principal authPrincipal) context.Context {
	noteRequestPrincipal(ctx, principal)
	return context.WithValue(ctx, authContextKey{}, principal)
}

func authPrincipalFromContext(ctx context.Context) (authPrincipal, bool) {
	if ctx == nil {
		return authPrincipal{}, false
	}
	principal, ok := ctx.Value(authContextKey{}).(authPrincipal)
	return principal, ok
}

// principalFromContext returns the acting principal, or the zero principal
// when the request was not authenticated.
func principalFromContext(ctx context.Context) auth.Principal {
	p, ok := authPrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}
	}
	return p.Principal
}
