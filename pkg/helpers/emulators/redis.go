package emulators

import (
	"context"
	"fmt"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"testing"
)

const (
	testRedisImage = "redis:7-alpine"
	testRedisPort  = "6379"
)

// SetupRedisContainer starts a Redis container and returns its address.
func SetupRedisContainer(t *testing.T, ctx context.Context) (addr string, cleanupFunc func()) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        testRedisImage,
		ExposedPorts: []string{fmt.Sprintf("%s/tcp", testRedisPort)},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port(testRedisPort))
	require.NoError(t, err)
	addr = fmt.Sprintf("%s:%s", host, port.Port())

	t.Logf("Redis container started, listening on: %s", addr)
	return addr, func() {
		err := container.Terminate(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to terminate Redis container")
		}
	}
}
