// Package actorcontext carries the authenticated actor through a request. The ledger
// treats the identifier as opaque and only copies it into created_by / posted_by style
// attribution columns.
package actorcontext

import (
	"context"
	"strings"
)

type actorKey struct{}

// SystemActor is recorded when no authenticated actor is present.
const SystemActor = "system"

func WithActorID(ctx context.Context, actorID string) context.Context {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actorID)
}

func ActorIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(actorKey{}).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// ActorOrSystem returns the actor in ctx, falling back to SystemActor.
func ActorOrSystem(ctx context.Context) string {
	if actorID, ok := ActorIDFromContext(ctx); ok {
		return actorID
	}
	return SystemActor
}
