package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/pkg/dispatch"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/proto"
)

type fixedStatus dispatch.Status

func (f fixedStatus) Status() dispatch.Status { return dispatch.Status(f) }

func newMonitorServer(t *testing.T) (*httptest.Server, dispatch.Status) {
	t.Helper()
	st := dispatch.Status{
		TotalItems:  3,
		UrgentItems: 1,
		State:       dispatch.StateIdle,
		NextItem: &proto.WorkItem{
			ID:         "email_1",
			Subject:    "Cannot log in",
			Urgency:    proto.UrgencyUrgent,
			Sentiment:  proto.SentimentNegative,
			ReceivedAt: testNow,
		},
	}
	reg := prometheus.NewRegistry()
	metrics.NewPrometheusRecorder(reg).SetQueueDepth(st.TotalItems, st.UrgentItems)

	srv := httptest.NewServer(newMonitorHandler(fixedStatus(st), reg))
	t.Cleanup(srv.Close)
	return srv, st
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test server
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestStatusEndpoint(t *testing.T) {
	srv, want := newMonitorServer(t)

	code, body := get(t, srv.URL+"/status")
	require.Equal(t, http.StatusOK, code)

	var got dispatch.Status
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, want.TotalItems, got.TotalItems)
	assert.Equal(t, want.UrgentItems, got.UrgentItems)
	assert.Equal(t, want.State, got.State)
	require.NotNil(t, got.NextItem)
	assert.Equal(t, "email_1", got.NextItem.ID)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newMonitorServer(t)

	code, body := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "mailtriage_queue_items")
}

func TestHealthzAndMethods(t *testing.T) {
	srv, _ := newMonitorServer(t)

	code, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	resp, err := http.Post(srv.URL+"/status", "application/json", strings.NewReader("{}")) //nolint:noctx // test server
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestFetchAndPrintStatus(t *testing.T) {
	srv, _ := newMonitorServer(t)

	st, err := fetchStatus(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)

	var out bytes.Buffer
	printStatus(&out, st)
	assert.Contains(t, out.String(), "queued: 3 (1 urgent)")
	assert.Contains(t, out.String(), `email_1 "Cannot log in"`)
}

func TestFetchStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := fetchStatus(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "404")
}

func TestServeMonitorStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh, err := serveMonitor(ctx, "127.0.0.1:0", http.NotFoundHandler())
	require.NoError(t, err)
	cancel()
	assert.NoError(t, <-errCh)
}
