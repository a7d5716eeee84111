package sweeper

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ea-access/internal/config"
)

func testConfig(metricsAddress string) *config.Config {
	return &config.Config{
		Storage: config.Storage{StorageType: config.StorageMemory},
		Token:   config.TokenPolicy{Length: 8, MaxGenerateAttempts: 5, DefaultDurationDays: 30},
		Quota:   config.QuotaPolicy{FreeDailySignals: 5},
		Sweeper: config.SweeperConfig{Interval: time.Hour, MetricsAddress: metricsAddress},
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func run(t *testing.T, app *App) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	return cancel, done
}

func TestApp_ServesSweepMetrics(t *testing.T) {
	app, err := New(context.Background(), testConfig("127.0.0.1:0"), newLogger())
	require.NoError(t, err)
	addr := app.MetricsAddr()
	require.NotEmpty(t, addr)

	cancel, done := run(t, app)

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		body = string(raw)
		return true
	}, 5*time.Second, 50*time.Millisecond)

	assert.Contains(t, body, "ea_access_tokens_swept_total")
	assert.Contains(t, body, "ea_access_principals_downgrades_total")
	assert.Contains(t, body, "go_goroutines")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}

	_, err = http.Get("http://" + addr + "/metrics")
	assert.Error(t, err)
}

func TestApp_MetricsDisabled(t *testing.T) {
	app, err := New(context.Background(), testConfig(""), newLogger())
	require.NoError(t, err)
	assert.Empty(t, app.MetricsAddr())

	cancel, done := run(t, app)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNew_InvalidMetricsAddress(t *testing.T) {
	_, err := New(context.Background(), testConfig("127.0.0.1:not-a-port"), newLogger())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "metrics address"), err.Error())
}
