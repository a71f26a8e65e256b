// Package metrics records scheduler, retrieval and generation metrics and queries them back
// from Prometheus.
package metrics

import "time"

// Drain outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRequeued  = "requeued"
	OutcomeDropped   = "dropped"
)

// Retrieval fallback stages.
const (
	FallbackNoDocuments = "no_documents"
	FallbackSummary     = "summary"
	FallbackActions     = "actions"
)

// Recorder defines the metrics hooks used across the pipeline.
type Recorder interface {
	// SetQueueDepth publishes the current queue size.
	SetQueueDepth(total, urgent int)

	// ObserveDrain records one handler invocation.
	ObserveDrain(outcome string, duration time.Duration)

	// IncDroppedResult counts results that could not be delivered to a full results channel.
	IncDroppedResult()

	// IncRetrievalFallback counts fixed fallback content substituted during context building.
	IncRetrievalFallback(stage string)

	// ObserveGeneration records one generative-text call.
	ObserveGeneration(provider, model string, success bool, errorType string, duration time.Duration)

	// IncThrottle counts rate-limit events in front of a provider.
	IncThrottle(provider, reason string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a recorder that discards everything.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) SetQueueDepth(_, _ int)                                           {}
func (n *NoopRecorder) ObserveDrain(_ string, _ time.Duration)                           {}
func (n *NoopRecorder) IncDroppedResult()                                                {}
func (n *NoopRecorder) IncRetrievalFallback(_ string)                                    {}
func (n *NoopRecorder) ObserveGeneration(_, _ string, _ bool, _ string, _ time.Duration) {}
func (n *NoopRecorder) IncThrottle(_, _ string)                                          {}
