// Package proto defines the work items that flow through the triage queue.
package proto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Urgency is the classifier's urgency tag.
type Urgency string

const (
	UrgencyUrgent    Urgency = "Urgent"
	UrgencyNotUrgent Urgency = "Not Urgent"
)

// Sentiment is the classifier's sentiment tag.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
)

// ContactDetails holds contact info extracted from a message body.
type ContactDetails struct {
	Phone          string `json:"phone,omitempty" yaml:"phone,omitempty"`
	AlternateEmail string `json:"alternateEmail,omitempty" yaml:"alternate_email,omitempty"`
}

// WorkItem is one classified support message awaiting processing.
// ID must be unique among items resident in a queue; ReceivedAt never changes once set.
type WorkItem struct {
	ID              string          `json:"id" yaml:"id"`
	Sender          string          `json:"sender" yaml:"sender"`
	Subject         string          `json:"subject" yaml:"subject"`
	Body            string          `json:"body" yaml:"body"`
	ReceivedAt      time.Time       `json:"receivedAt" yaml:"received_at"`
	Urgency         Urgency         `json:"priority" yaml:"urgency"`
	Sentiment       Sentiment       `json:"sentiment" yaml:"sentiment"`
	Summary         string          `json:"summary,omitempty" yaml:"summary,omitempty"`
	CustomerRequest string          `json:"customerRequest,omitempty" yaml:"customer_request,omitempty"`
	Contact         *ContactDetails `json:"contactDetails,omitempty" yaml:"contact,omitempty"`
}

// NewItemID returns a fresh opaque item identity.
func NewItemID() string {
	return "item_" + uuid.NewString()
}

// IsUrgent reports whether the item carries the Urgent tag.
func (w *WorkItem) IsUrgent() bool {
	return w.Urgency == UrgencyUrgent
}

// Text returns subject and body joined by a space, the text scored for urgency keywords.
func (w *WorkItem) Text() string {
	return w.Subject + " " + w.Body
}

// Validate checks the fields the scheduler depends on.
func (w *WorkItem) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("work item id is required")
	}
	if _, err := ParseUrgency(string(w.Urgency)); err != nil {
		return err
	}
	if _, err := ParseSentiment(string(w.Sentiment)); err != nil {
		return err
	}
	if w.ReceivedAt.IsZero() {
		return fmt.Errorf("work item %s has no received time", w.ID)
	}
	return nil
}

// ToJSON encodes the item.
func (w *WorkItem) ToJSON() ([]byte, error) {
	return json.Marshal(w)
}

// ParseUrgency accepts the canonical tags plus common spellings ("not_urgent", "NotUrgent").
func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)) {
	case "urgent":
		return UrgencyUrgent, nil
	case "noturgent":
		return UrgencyNotUrgent, nil
	default:
		return "", fmt.Errorf("unknown urgency: %q", s)
	}
}

// ParseSentiment parses a sentiment tag case-insensitively.
func ParseSentiment(s string) (Sentiment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return SentimentPositive, nil
	case "negative":
		return SentimentNegative, nil
	case "neutral":
		return SentimentNeutral, nil
	default:
		return "", fmt.Errorf("unknown sentiment: %q", s)
	}
}

func (u Urgency) String() string   { return string(u) }
func (s Sentiment) String() string { return string(s) }
