package middleware

import (
	"context"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
)

type actorKey struct{}

// ActorFromContext returns the caller Auth attached. ok is false on routes
// that never passed Auth.
func ActorFromContext(ctx context.Context) (authz.Actor, bool) {
	if ctx == nil {
		return authz.Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(authz.Actor)
	return actor, ok
}

// WithActor attaches the caller, as Auth does after token validation.
func WithActor(ctx context.Context, actor authz.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor)
}
