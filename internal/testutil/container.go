package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/task-garden/internal/pkg/postgres"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a postgres testcontainer.
type PostgresContainer struct {
	*tcpostgres.PostgresContainer
	ConnectionString string
}

// NewPostgresContainer creates a new PostgreSQL container for testing.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("taskgarden"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		ConnectionString:  connStr,
	}, nil
}

// NewMigratedPostgresContainer starts postgres and applies migrations from
// migrationsDir, given relative to the calling test package.
func NewMigratedPostgresContainer(ctx context.Context, migrationsDir string) (*PostgresContainer, error) {
	container, err := NewPostgresContainer(ctx)
	if err != nil {
		return nil, err
	}

	if err := postgres.Migrate("file://"+migrationsDir, container.ConnectionString); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return container, nil
}
