// Package pgtest starts throwaway Postgres containers for integration tests
package pgtest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Image is the Postgres image used by Start; PGTEST_IMAGE overrides it
const Image = "postgres:16-alpine"

// Start runs a Postgres container for the life of t and returns its DSN.
// When PGTEST_DSN is set no container is started and that DSN is returned
func Start(t testing.TB) string {
	t.Helper()
	if dsn := os.Getenv("PGTEST_DSN"); dsn != "" {
		return dsn
	}
	image := Image
	if v := os.Getenv("PGTEST_IMAGE"); v != "" {
		image = v
	}

	// first runs may pull the image
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "enginefeed",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			).WithDeadline(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/enginefeed?sslmode=disable", host, port.Port())
}
