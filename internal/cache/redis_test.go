package cache

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"launchscope/internal/model"
)

func setupRedis(t *testing.T) *Redis {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready to accept connections").WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("6379/tcp"),
			),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	r := NewRedis(addr, "", 0, time.Hour, nil)
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.Ping(ctx))
	return r
}

func TestRedisRoundTrip(t *testing.T) {
	r := setupRedis(t)
	ctx := context.Background()
	supply, _ := new(big.Int).SetString("1000000000000000000000000000", 10)

	r.Set(ctx, model.ChainEVM, model.TokenInfo{
		Address:     "0xAbC0000000000000000000000000000000000001",
		Name:        "Agent",
		Symbol:      "AGT",
		Decimals:    18,
		TotalSupply: supply,
	})

	info, ok := r.Get(ctx, model.ChainEVM, "0xabc0000000000000000000000000000000000001")
	require.True(t, ok)
	require.Equal(t, "AGT", info.Symbol)
	require.Equal(t, uint8(18), info.Decimals)
	require.Equal(t, supply.String(), info.TotalSupply.String())

	_, ok = r.Get(ctx, model.ChainSolana, "0xabc0000000000000000000000000000000000001")
	require.False(t, ok, "entries must be scoped per chain")

	ttl, err := r.client.TTL(ctx, key(model.ChainEVM, info.Address)).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, 59*time.Minute)
}

func TestRedisInvalidEntryIsMiss(t *testing.T) {
	r := setupRedis(t)
	ctx := context.Background()
	require.NoError(t, r.client.Set(ctx, key(model.ChainSolana, "Mint1"), "not json", 0).Err())

	_, ok := r.Get(ctx, model.ChainSolana, "Mint1")
	require.False(t, ok)
}

func TestRedisUnreachableIsMiss(t *testing.T) {
	r := NewRedis("127.0.0.1:1", "", 0, time.Minute, nil)
	defer r.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.Error(t, r.Ping(ctx))
	r.Set(ctx, model.ChainEVM, model.TokenInfo{Address: "0x1", Decimals: 6})
	_, ok := r.Get(ctx, model.ChainEVM, "0x1")
	require.False(t, ok)
}
