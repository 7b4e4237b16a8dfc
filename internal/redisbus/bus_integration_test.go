//go:build integration

package redisbus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) string {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Redis container")

	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)

	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

func TestBus_RealRedis(t *testing.T) {
	redisURL := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice, err := Open(redisURL, zerolog.Nop())
	require.NoError(t, err)
	defer alice.Close()

	bob, err := Open(redisURL, zerolog.Nop())
	require.NoError(t, err)
	defer bob.Close()

	require.NoError(t, alice.Connect(ctx))
	require.NoError(t, bob.Connect(ctx))

	h, got := collector()
	require.NoError(t, bob.Subscribe(ctx, "initial_offers", h))
	require.NoError(t, bob.Subscribe(ctx, "o1", h))

	require.NoError(t, alice.Publish(ctx, "initial_offers", "opening"))
	require.NoError(t, alice.Publish(ctx, "o1", "counter"))

	first := expectDelivery(t, got)
	second := expectDelivery(t, got)
	assert.ElementsMatch(t,
		[]string{"initial_offers:opening", "o1:counter"},
		[]string{first.channel + ":" + first.payload, second.channel + ":" + second.payload})

	require.NoError(t, bob.Unsubscribe(ctx, "o1"))
	require.NoError(t, alice.Publish(ctx, "o1", "late"))
	expectNoDelivery(t, got)
}
