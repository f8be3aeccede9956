package actorcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorOrSystem(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, SystemActor, ActorOrSystem(ctx))

	ctx = WithActorID(ctx, "  user_1 ")
	actorID, ok := ActorIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user_1", actorID)
	assert.Equal(t, "user_1", ActorOrSystem(ctx))

	assert.Equal(t, ctx, WithActorID(ctx, " "))
}
