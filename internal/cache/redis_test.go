package cache

import (
	"context"
	"testing"
	"time"

	"example.com/backstage/services/charity/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCache(t *testing.T) {
	c, err := NewRedisCache(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, c.Enabled())

	var v string
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrDisabled)
	assert.ErrorIs(t, c.Set(ctx, "k", "v", time.Minute), ErrDisabled)

	ok, err := c.SetNX(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.False(t, ok)

	_, err = c.Incr(ctx, SearchVersionKey)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, c.Delete(ctx, "k"), ErrDisabled)
	assert.NoError(t, c.Close())
}

func TestKeys(t *testing.T) {
	eventID := uuid.MustParse("9b2f6a3e-0c1d-4f5e-8a7b-6c5d4e3f2a1b")
	userID := uuid.MustParse("1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d")

	assert.Equal(t, "view:9b2f6a3e-0c1d-4f5e-8a7b-6c5d4e3f2a1b:1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d", ViewMarkerKey(eventID, userID))
	assert.Equal(t, "search:3:abc", SearchPageKey(3, "abc"))
}
