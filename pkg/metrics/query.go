package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// QueueMetrics is an aggregate view of the scheduler as scraped by Prometheus.
type QueueMetrics struct {
	QueuedTotal        int64   `json:"queued_total"`
	QueuedUrgent       int64   `json:"queued_urgent"`
	Succeeded          int64   `json:"succeeded"`
	Requeued           int64   `json:"requeued"`
	Dropped            int64   `json:"dropped"`
	RetrievalFallbacks int64   `json:"retrieval_fallbacks"`
	GenerationErrors   int64   `json:"generation_errors"`
	MeanDrainSeconds   float64 `json:"mean_drain_seconds"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetQueueMetrics retrieves current queue depth and lifetime drain counters.
func (q *QueryService) GetQueueMetrics(ctx context.Context) (*QueueMetrics, error) {
	m := &QueueMetrics{}
	now := time.Now()

	counters := []struct {
		query string
		dst   *int64
	}{
		{`sum(mailtriage_queue_items{class="total"})`, &m.QueuedTotal},
		{`sum(mailtriage_queue_items{class="urgent"})`, &m.QueuedUrgent},
		{`sum(mailtriage_drain_total{outcome="succeeded"})`, &m.Succeeded},
		{`sum(mailtriage_drain_total{outcome="requeued"})`, &m.Requeued},
		{`sum(mailtriage_drain_total{outcome="dropped"})`, &m.Dropped},
		{`sum(mailtriage_retrieval_fallback_total)`, &m.RetrievalFallbacks},
		{`sum(mailtriage_generation_requests_total{status="error"})`, &m.GenerationErrors},
	}
	for _, c := range counters {
		v, err := q.scalar(ctx, c.query, now)
		if err != nil {
			return nil, err
		}
		*c.dst = int64(v)
	}

	sum, err := q.scalar(ctx, `sum(mailtriage_drain_duration_seconds_sum)`, now)
	if err != nil {
		return nil, err
	}
	count, err := q.scalar(ctx, `sum(mailtriage_drain_duration_seconds_count)`, now)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		m.MeanDrainSeconds = sum / count
	}

	return m, nil
}

// scalar runs an instant query and returns the first sample, or 0 for an empty vector.
func (q *QueryService) scalar(ctx context.Context, query string, at time.Time) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, at)
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}
