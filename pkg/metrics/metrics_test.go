package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.SetQueueDepth(4, 1)
	rec.ObserveDrain(OutcomeSucceeded, 20*time.Millisecond)
	rec.ObserveDrain(OutcomeRequeued, 10*time.Millisecond)
	rec.ObserveDrain(OutcomeRequeued, 10*time.Millisecond)
	rec.IncDroppedResult()
	rec.IncRetrievalFallback(FallbackSummary)
	rec.ObserveGeneration("gemini", "gemini-2.5-flash", false, "rate_limit", time.Second)
	rec.IncThrottle("gemini", "budget")

	assert.Equal(t, 4.0, testutil.ToFloat64(rec.queueItems.WithLabelValues("total")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.queueItems.WithLabelValues("urgent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.drainTotal.WithLabelValues(OutcomeRequeued)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.resultsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.retrievalFallbacks.WithLabelValues(FallbackSummary)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.generationTotal.WithLabelValues("gemini", "gemini-2.5-flash", "error", "rate_limit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.throttleTotal.WithLabelValues("gemini", "budget")))
}

func TestNopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = Nop()
	r.SetQueueDepth(1, 1)
	r.ObserveDrain(OutcomeDropped, time.Millisecond)
	r.IncDroppedResult()
	r.IncRetrievalFallback(FallbackActions)
	r.ObserveGeneration("p", "m", true, "", time.Millisecond)
	r.IncThrottle("p", "r")
}

func TestQueryServiceGetQueueMetrics(t *testing.T) {
	values := map[string]string{
		`sum(mailtriage_queue_items{class="total"})`:                "3",
		`sum(mailtriage_queue_items{class="urgent"})`:               "2",
		`sum(mailtriage_drain_total{outcome="succeeded"})`:          "10",
		`sum(mailtriage_drain_total{outcome="requeued"})`:           "4",
		`sum(mailtriage_generation_requests_total{status="error"})`: "1",
		`sum(mailtriage_drain_duration_seconds_sum)`:                "7",
		`sum(mailtriage_drain_duration_seconds_count)`:              "14",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/v1/query") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		v, ok := values[r.FormValue("query")]
		if !ok {
			fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
			return
		}
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1700000000,%q]}]}}`, v)
	}))
	defer srv.Close()

	qs, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	m, err := qs.GetQueueMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.QueuedTotal)
	assert.Equal(t, int64(2), m.QueuedUrgent)
	assert.Equal(t, int64(10), m.Succeeded)
	assert.Equal(t, int64(4), m.Requeued)
	assert.Equal(t, int64(0), m.Dropped)
	assert.Equal(t, int64(1), m.GenerationErrors)
	assert.InDelta(t, 0.5, m.MeanDrainSeconds, 1e-9)
}

func TestQueryServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"error","errorType":"bad_data","error":"parse error"}`)
	}))
	defer srv.Close()

	qs, err := NewQueryService(srv.URL)
	require.NoError(t, err)
	_, err = qs.GetQueueMetrics(context.Background())
	assert.Error(t, err)
}
