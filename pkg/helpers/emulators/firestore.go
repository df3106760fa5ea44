package emulators

import (
	"cloud.google.com/go/firestore"
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
	testFirestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
	testFirestoreEmulatorPort  = "8086"
)

type FirestoreConfig struct {
	GCImageContainer
}

func GetDefaultFirestoreConfig(projectID string) FirestoreConfig {
	return FirestoreConfig{
		GCImageContainer: GCImageContainer{
			ImageContainer: ImageContainer{
				EmulatorImage:    testFirestoreEmulatorImage,
				EmulatorHTTPPort: testFirestoreEmulatorPort,
			},
			ProjectID: projectID,
		},
	}
}

// SetupFirestoreEmulator starts a Firestore emulator container, sets
// FIRESTORE_EMULATOR_HOST and returns a client connected to it.
func SetupFirestoreEmulator(t *testing.T, ctx context.Context, cfg FirestoreConfig) (*firestore.Client, func()) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort)},
		Cmd:          []string{"gcloud", "beta", "emulators", "firestore", "start", fmt.Sprintf("--host-port=0.0.0.0:%s", cfg.EmulatorHTTPPort)},
		WaitingFor:   wait.ForListeningPort(nat.Port(cfg.EmulatorHTTPPort)),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port(cfg.EmulatorHTTPPort))
	require.NoError(t, err)
	emulatorHost := fmt.Sprintf("%s:%s", host, port.Port())

	t.Logf("Firestore emulator container started, listening on: %s", emulatorHost)
	t.Setenv("FIRESTORE_EMULATOR_HOST", emulatorHost)

	client, err := firestore.NewClient(ctx, cfg.ProjectID)
	require.NoError(t, err)

	return client, func() {
		client.Close()
		err := container.Terminate(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to terminate Firestore emulator container")
		}
	}
}
