package auth

import (
	"context"

	"github.com/terra-clan/course-engine/internal/models"
)

type contextKey string

const identityContextKey contextKey = "identity"

// IdentityFromContext returns the signed-in identity or nil for anonymous callers
func IdentityFromContext(ctx context.Context) *models.Identity {
	identity, ok := ctx.Value(identityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}

// ContextWithIdentity adds identity to context
func ContextWithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
