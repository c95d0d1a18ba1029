//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/sitepulse/core/model"
)

// TestPostgresStore runs the store against a real Postgres server.
func TestPostgresStore(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "sitepulse",
			"POSTGRES_PASSWORD": "sitepulse",
			"POSTGRES_DB":       "sitepulse",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://sitepulse:sitepulse@%s:%s/sitepulse?sslmode=disable", host, port.Port())

	s, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.UpsertSite(ctx, model.Site{ID: "a", Status: model.SiteOnline}))
	ids, err := s.ListEligibleSites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	cutoff := time.Now().UTC()
	_, err = s.WriteBatch(ctx, []model.TelemetrySample{
		{SiteID: "a", Timestamp: cutoff.Add(-time.Microsecond), Metric: model.MetricSoC, Value: 40, Unit: "%"},
		{SiteID: "a", Timestamp: cutoff, Metric: model.MetricSoC, Value: 41, Unit: "%"},
	})
	require.NoError(t, err)
	n, err := s.PruneOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.InsertSuggestion(ctx, model.Suggestion{ID: "s1", SiteID: "a", Status: model.SuggestionPending, CreatedAt: cutoff}))
	ok, err := s.TransitionSuggestion(ctx, "a", "s1", model.SuggestionRejected, cutoff)
	require.NoError(t, err)
	assert.True(t, ok)
}
