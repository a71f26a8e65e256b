package proto

import (
	"strings"
	"testing"
	"time"
)

func TestParseUrgency(t *testing.T) {
	tests := []struct {
		in      string
		want    Urgency
		wantErr bool
	}{
		{"Urgent", UrgencyUrgent, false},
		{"urgent", UrgencyUrgent, false},
		{"Not Urgent", UrgencyNotUrgent, false},
		{"not_urgent", UrgencyNotUrgent, false},
		{"NotUrgent", UrgencyNotUrgent, false},
		{"soon", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUrgency(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseUrgency(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseUrgency(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSentiment(t *testing.T) {
	for _, s := range []string{"Positive", "NEGATIVE", " neutral "} {
		if _, err := ParseSentiment(s); err != nil {
			t.Errorf("ParseSentiment(%q) unexpected error: %v", s, err)
		}
	}
	if _, err := ParseSentiment("angry"); err == nil {
		t.Error("expected error for unknown sentiment")
	}
}

func TestWorkItemValidate(t *testing.T) {
	valid := WorkItem{
		ID:         "email_1",
		Urgency:    UrgencyUrgent,
		Sentiment:  SentimentNegative,
		ReceivedAt: time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid item rejected: %v", err)
	}

	missingID := valid
	missingID.ID = " "
	if err := missingID.Validate(); err == nil {
		t.Error("expected error for blank id")
	}

	noTime := valid
	noTime.ReceivedAt = time.Time{}
	if err := noTime.Validate(); err == nil {
		t.Error("expected error for zero received time")
	}

	badTag := valid
	badTag.Sentiment = "Mixed"
	if err := badTag.Validate(); err == nil {
		t.Error("expected error for unknown sentiment")
	}
}

func TestNewItemIDUnique(t *testing.T) {
	a, b := NewItemID(), NewItemID()
	if a == b {
		t.Fatal("expected distinct ids")
	}
	if !strings.HasPrefix(a, "item_") {
		t.Errorf("unexpected id format %q", a)
	}
}
