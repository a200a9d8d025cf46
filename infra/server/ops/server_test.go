package ops

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/activityhub/event-processor/config"
	"github.com/activityhub/event-processor/internal/adapter/mongodb"
	"github.com/activityhub/event-processor/internal/domain/registry"
	"github.com/activityhub/event-processor/internal/handler/kafka"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		Kafka: config.Kafka{
			BootstrapServers: []string{"localhost:9092"},
			Topic:            "t",
			GroupID:          "g",
			AutoOffsetReset:  "earliest",
			MaxPollRecords:   10,
		},
		Mongo: config.Mongo{URI: "mongodb://localhost:27017", Database: "activity_read"},
		Ops:   config.Ops{HTTPAddr: ":0"},
	}

	gateway := mongodb.NewGateway(cfg, logger)
	promReg := prometheus.NewRegistry()
	metrics := kafka.NewMetrics(promReg)
	consumer := kafka.NewConsumer(cfg, registry.New(logger), metrics, logger)

	return NewServer(cfg, gateway, consumer, metrics, promReg, logger)
}

func TestHealthz(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzNotReadyWithoutStore(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	// The gateway never connected, so readiness must fail.
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatsSnapshot(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Running        bool    `json:"running"`
		TotalProcessed int64   `json:"total_processed"`
		TotalErrors    int64   `json:"total_errors"`
		UptimeSeconds  float64 `json:"uptime_seconds"`
		State          string  `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Running)
	assert.Equal(t, int64(0), body.TotalProcessed)
	assert.Equal(t, "new", body.State)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event_processor_records_processed_total")
}
