package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func TestNewServer(t *testing.T) {
	server := NewServer(9999, testLogger())

	assert.NotNil(t, server)
	assert.Equal(t, 9999, server.port)
	assert.Nil(t, server.server)
	assert.Empty(t, server.Addr())
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(0, testLogger())
	server.SetStatus(func() any {
		return map[string]int{"evaluations": 42}
	})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Status    string         `json:"status"`
		Timestamp string         `json:"timestamp"`
		Search    map[string]int `json:"search"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.NotEmpty(t, body.Timestamp)
	assert.Equal(t, 42, body.Search["evaluations"])
}

func TestMetricsEndpoint(t *testing.T) {
	RecordEvaluation(ModeAnnealing, SourceSimulated)
	RecordCacheLookup(true)
	RecordCheckpointSave("best", CheckpointSaved)

	rec := httptest.NewRecorder()
	NewServer(0, testLogger()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "ezbot_optimizer_evaluations_total")
	assert.Contains(t, body, "ezbot_cache_lookups_total")
	assert.Contains(t, body, "ezbot_checkpoint_saves_total")
}

func TestServerStartAndShutdown(t *testing.T) {
	server := NewServer(0, testLogger())
	require.NoError(t, server.Start())
	require.NotEmpty(t, server.Addr())

	resp, err := http.Get("http://" + server.Addr() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	client := http.Client{Timeout: time.Second}
	resp2, err := client.Get("http://" + server.Addr() + "/health")
	if resp2 != nil {
		resp2.Body.Close()
	}
	assert.Error(t, err)
}

func TestShutdownWithoutStart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, NewServer(0, testLogger()).Shutdown(ctx))
}

func TestHelpersDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordSimulation(1.5, "")
		RecordSimulation(0.2, "max_drawdown")
		RecordCacheLookup(false)
		UpdateBestFitness("trend_rsi", 0.8)
		UpdateAnnealingState(12, 350.5, 0.2)
		RecordChainDropped("frozen")
		UpdateBreakerState("redis", "open")
		UpdateBreakerState("redis", "half-open")
		UpdateBreakerState("redis", "closed")
	})
}
