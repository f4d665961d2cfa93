package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"launchscope/internal/model"
)

func setupHistory(t *testing.T) *HistoryStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready for connections").WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("9000/tcp"),
			),
			Env: map[string]string{"CLICKHOUSE_DB": "test"},
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	store, err := Open(ctx, fmt.Sprintf("clickhouse://default@%s:%s/test", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendStatsKeepsEverySnapshot(t *testing.T) {
	store := setupHistory(t)
	ctx := context.Background()
	rec := model.LaunchRecord{ID: "launch-1", Chain: model.ChainSolana, Token: "Mint1", Creator: "Creator1"}

	first := model.TokenStats{TokensHeld: "100", HoldingPercentage: "100.00", UpdatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	second := model.TokenStats{
		TokensHeld:         "40",
		HoldingPercentage:  "40.00",
		MovementNarrative:  "Transferred 60 tokens (60.00% of initial) to 1 unrecognized wallet.",
		SentToBurnAddress:  true,
		MainSellingAddress: "Pool1",
		UpdatedAt:          time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.AppendStats(ctx, rec, second))
	require.NoError(t, store.AppendStats(ctx, rec, first))

	got, err := store.History(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, []model.TokenStats{first, second}, got)
}
