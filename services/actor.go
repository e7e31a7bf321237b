package services

import (
	"context"

	"github.com/trainhub/tms/models"
)

// ActorContext identifies the authenticated caller of an operation. It is
// derived once from the access token by the auth middleware and passed
// explicitly into every lifecycle and enrollment operation, so the
// authorization rules are plain functions of their inputs.
type ActorContext struct {
	AccountID string
	Role      models.Role
}

type actorContextKey struct{}

// WithActor returns a context carrying the authenticated actor.
func WithActor(ctx context.Context, actor ActorContext) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFrom extracts the authenticated actor from the request context.
func ActorFrom(ctx context.Context) (ActorContext, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(ActorContext)
	return actor, ok
}
