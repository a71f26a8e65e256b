package persistence

import (
	"time"

	"mailtriage/pkg/proto"
)

// MessageStatus is the handling state of a processed message.
type MessageStatus string

// Message status constants.
const (
	StatusPending  MessageStatus = "Pending"
	StatusResolved MessageStatus = "Resolved"
)

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	return status == string(StatusPending) || status == string(StatusResolved)
}

// ProcessedMessage is a work item together with what the pipeline produced for it.
//
//nolint:govet // field order follows the table layout
type ProcessedMessage struct {
	Item           proto.WorkItem `json:"item"`
	ContextSummary string         `json:"context_summary"`
	Actions        []string       `json:"actions"`
	DocumentIDs    []int64        `json:"document_ids"`
	Draft          string         `json:"draft,omitempty"`
	Status         MessageStatus  `json:"status"`
	Attempts       int            `json:"attempts"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ListFilter narrows List results. Zero values mean no filter.
type ListFilter struct {
	Status MessageStatus
	Limit  int
}

// Analytics summarizes the processed-message table.
type Analytics struct {
	TotalMessages   int            `json:"total_messages"`
	PendingMessages int            `json:"pending_messages"`
	Resolved        int            `json:"resolved_messages"`
	Last24h         int            `json:"messages_last_24h"`
	SentimentCounts map[string]int `json:"sentiment_counts"`
	UrgencyCounts   map[string]int `json:"urgency_counts"`
	ByHour          [24]int        `json:"messages_by_hour"`
}
