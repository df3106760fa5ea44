//go:build integration

package dedupe_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-catalog/pkg/dedupe"
	"github.com/illmade-knight/go-catalog/pkg/helpers/emulators"
)

func TestRedisRegistry_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	addr, cleanup := emulators.SetupRedisContainer(t, ctx)
	defer cleanup()

	registry, err := dedupe.NewRedisRegistry(ctx, &dedupe.RedisConfig{
		Addr:   addr,
		KeyTTL: time.Minute,
	}, zerolog.Nop())
	require.NoError(t, err)
	defer registry.Close()

	key := dedupe.RowKey("catalog-bucket", "uploaded/catalog.csv", []byte("Widget,a widget,9.99,5"))

	first, err := registry.FirstSeen(ctx, key)
	require.NoError(t, err)
	assert.True(t, first, "a never-seen key registers as first")

	again, err := registry.FirstSeen(ctx, key)
	require.NoError(t, err)
	assert.False(t, again, "a replayed key is recognized across calls")

	other, err := registry.FirstSeen(ctx, dedupe.RowKey("catalog-bucket", "uploaded/other.csv", []byte("Widget,a widget,9.99,5")))
	require.NoError(t, err)
	assert.True(t, other, "the same row in a different object is a distinct key")
}
