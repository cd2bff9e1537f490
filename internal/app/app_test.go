package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func memoryConfig() Config {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.OutboxPollInterval = 10 * time.Millisecond
	return cfg
}

func TestNew_MemoryHandlers(t *testing.T) {
	a, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders/settlement/", nil)
	req.Header.Set("X-Buyer-ID", "7")
	a.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"freight_minor": 1000, "skus": []}`, w.Body.String())

	w = httptest.NewRecorder()
	a.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "checkout_commits_in_flight"))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.StorageDriver = "sqlite"

	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, memoryConfig()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	cfg := memoryConfig()
	cfg.HTTPAddr = "256.0.0.1:bad"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "listen http")
}

func TestNew_FailsWhenKafkaIsUnreachable(t *testing.T) {
	cfg := memoryConfig()
	cfg.KafkaBrokers = []string{"127.0.0.1:1"}

	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "create kafka producer")
}
