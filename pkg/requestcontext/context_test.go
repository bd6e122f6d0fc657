package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Actor(ctx))
	assert.Empty(t, RequestID(ctx))

	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx = WithActor(ctx, "operator-7")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTime(ctx, fixed)

	assert.Equal(t, "operator-7", Actor(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, fixed, Now(ctx))
}

func TestIsHuman(t *testing.T) {
	assert.True(t, IsHuman("operator-7"))
	assert.False(t, IsHuman(SystemActor))
	assert.False(t, IsHuman(""))
}
