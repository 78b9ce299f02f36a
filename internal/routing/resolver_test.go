package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memorycache "github.com/fixrouter/gateway/pkg/cache/adapters/memory"
)

func TestCachedResolverHitsTableOnceThenCache(t *testing.T) {
	cfg := &Config{
		Routes: []Route{
			{RouteID: "R1", Direction: DirectionInput, SenderCompID: "GTWY", TargetCompID: "EXEC"},
		},
	}
	c := memorycache.New()
	resolver := NewCachedResolver(cfg, c, time.Minute)

	route, found := resolver.Resolve(context.Background(), "GTWY", "EXEC", DirectionInput)
	require.True(t, found)
	assert.Equal(t, "R1", route.RouteID)

	// Mutate the table in place; a cached lookup should still resolve R1 by
	// id rather than rescanning (demonstrating the cache is actually used).
	cfg.Routes[0].SenderCompID = "CHANGED"
	route, found = resolver.Resolve(context.Background(), "GTWY", "EXEC", DirectionInput)
	require.True(t, found)
	assert.Equal(t, "R1", route.RouteID)
}

func TestCachedResolverCachesNotFound(t *testing.T) {
	cfg := &Config{}
	c := memorycache.New()
	resolver := NewCachedResolver(cfg, c, time.Minute)

	_, found := resolver.Resolve(context.Background(), "GTWY", "EXEC", DirectionInput)
	assert.False(t, found)
}
