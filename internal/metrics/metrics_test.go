package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/metrics"
)

func TestRecordCycle(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.RecordCycle("binance", metrics.OutcomeSuccess, 20*time.Millisecond)
	m.RecordCycle("binance", metrics.OutcomeSuccess, 20*time.Millisecond)
	m.SkippedTick("coingecko", metrics.SkipBusy)
	m.FieldErrors("binance", "binance.klines", 0)
	m.SnapshotPublished(7, 2)

	expected := `
# HELP marketpulse_scheduler_cycles_total Provider refresh cycles by outcome.
# TYPE marketpulse_scheduler_cycles_total counter
marketpulse_scheduler_cycles_total{outcome="success",provider="binance"} 2
# HELP marketpulse_scheduler_skipped_ticks_total Ticks skipped because a cycle was running or the provider was backing off.
# TYPE marketpulse_scheduler_skipped_ticks_total counter
marketpulse_scheduler_skipped_ticks_total{provider="coingecko",reason="busy"} 1
# HELP marketpulse_snapshot_version Version of the current snapshot.
# TYPE marketpulse_snapshot_version gauge
marketpulse_snapshot_version 7
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(expected),
		"marketpulse_scheduler_cycles_total",
		"marketpulse_scheduler_skipped_ticks_total",
		"marketpulse_snapshot_version",
	))
	n, err := testutil.GatherAndCount(m.Registry, "marketpulse_normalize_field_errors_total")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestInstrumentHandler_RouteTemplate(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	r := mux.NewRouter()
	r.Use(m.InstrumentHandler)
	r.HandleFunc("/api/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	expected := `
# HELP marketpulse_http_requests_total Total number of HTTP requests handled.
# TYPE marketpulse_http_requests_total counter
marketpulse_http_requests_total{method="GET",path="/api/items/{id}",status="418"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "marketpulse_http_requests_total"))
}
