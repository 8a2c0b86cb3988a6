//go:build integration

package healthcheck

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/postgres"
)

func TestCheckAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("ai_support"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, container)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := postgres.New(ctx, config.PostgresConfig{
		Enabled:         true,
		Host:            host,
		Port:            port.Int(),
		Database:        "ai_support",
		User:            "postgres",
		Password:        "postgres",
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)

	svc := NewService(db, "ekyc-worker", time.Second)
	assert.Equal(t, StatusHealthy, svc.Check(ctx).Status)

	require.NoError(t, db.Close())
	got := svc.Check(ctx)
	assert.Equal(t, StatusDegraded, got.Status)
	assert.False(t, got.Database)
}
