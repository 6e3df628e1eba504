package ctxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole(t *testing.T) {
	_, ok := RoleFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithRole(context.Background(), "owner")
	role, ok := RoleFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "owner", role)

	ctx = WithRole(ctx, "")
	role, ok = RoleFromContext(ctx)
	assert.True(t, ok, "an empty role is still a role")
	assert.Equal(t, "", role)
}

func TestActor(t *testing.T) {
	assert.Equal(t, "", ActorFromContext(context.Background()))
	assert.Equal(t, "u-1", ActorFromContext(WithActorID(context.Background(), "u-1")))
}
