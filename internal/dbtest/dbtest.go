// Package dbtest starts a disposable Postgres container for integration
// tests against the Metadata Store and the components layered on top of it.
//
// Grounded on the teacher's db/postgres_integration_test.go
// (setupPostgresContainer helper), ported to the testcontainers-go/modules/postgres
// convenience wrapper since both it and the plain testcontainers-go client
// are already teacher/pack dependencies (see DESIGN.md). Not a _test.go file
// because package_test files cannot be imported by other packages' tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/apache/atr/internal/metadata"
)

// Store starts a Postgres container, opens a metadata.Store against it with
// migrations applied, and registers cleanup via t.Cleanup. Skips the test
// (rather than failing it) when Docker is unavailable in the sandbox, so
// unit-only runs of `go test ./...` are not blocked by the lack of a
// container runtime.
func Store(t *testing.T) *metadata.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("dbtest: skipping container-backed test in -short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("atr_test"),
		postgres.WithUsername("atr_test"),
		postgres.WithPassword("atr_test"),
		postgres.BasicWaitStrategies(),
		wait.ForListeningPort("5432/tcp"),
	)
	if err != nil {
		t.Skipf("dbtest: docker unavailable, skipping: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var store *metadata.Store
	require.Eventually(t, func() bool {
		store, err = metadata.Open(ctx, dsn)
		return err == nil
	}, 30*time.Second, 500*time.Millisecond, "metadata.Open never succeeded: %v", err)

	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
