package di

import (
	"context"
	"net"
	"strconv"
	"testing"

	"CoinCast/internal/domain/models"
	"CoinCast/pkg/config"
	"CoinCast/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("environment: test\ncache:\n  backend: memory\n"))
	require.NoError(t, err)
	return cfg
}

func TestProvideCache_Backends(t *testing.T) {
	s := miniredis.RunT(t)
	host, portStr, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Cache.Redis.Host = host
	cfg.Cache.Redis.Port = port

	for backend, want := range map[string]string{"memory": "memory", "redis": "redis", "layered": "layered"} {
		cfg.Cache.Backend = backend
		store, err := ProvideCache(cfg, logger.NewNop())
		require.NoError(t, err, backend)
		assert.Equal(t, want, store.Name(), backend)
		_ = store.Close()
	}
}

func TestProvideCache_RedisDownFallsBackToMemory(t *testing.T) {
	s := miniredis.RunT(t)
	host, portStr, _ := net.SplitHostPort(s.Addr())
	port, _ := strconv.Atoi(portStr)
	s.Close()

	cfg := testConfig(t)
	cfg.Cache.Backend = "redis"
	cfg.Cache.Redis.Host = host
	cfg.Cache.Redis.Port = port

	store, err := ProvideCache(cfg, logger.NewNop())
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, "memory", store.Name())
}

func TestProvideForecasters(t *testing.T) {
	cfg := testConfig(t)
	fs := ProvideForecasters(cfg)
	assert.Contains(t, fs, models.ModelARIMA)
	assert.Contains(t, fs, models.ModelLSTM)
}

func TestLSTMConfig_SharesAugmentThreshold(t *testing.T) {
	cfg := testConfig(t)
	cfg.Forecast.Augment.Threshold = 45
	assert.Equal(t, 45, lstmConfig(cfg, 45).LongTermThreshold)

	cfg.Forecast.LSTM.LongTermThreshold = 60
	assert.Equal(t, 60, lstmConfig(cfg, 45).LongTermThreshold)
}

func TestInitializeApp_LocalOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 0

	app, err := InitializeApp(cfg, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, app.RunContext(ctx))
}
