package queue

import (
	"math"
	"strings"
	"time"

	"mailtriage/pkg/proto"
)

// Scoring weights.
const (
	baseUrgent    = 1000
	baseNotUrgent = 100

	sentimentNegative = 200
	sentimentNeutral  = 100
	sentimentPositive = 50

	agePointsPerHour = 10
	maxAgeBonus      = 100

	keywordBonus = 50

	// FailurePenalty is subtracted from an entry's priority each time its handler fails.
	FailurePenalty = 50
)

// urgencyKeywords each add keywordBonus once when found anywhere in subject + " " + body.
var urgencyKeywords = []string{
	"urgent",
	"critical",
	"emergency",
	"asap",
	"immediately",
	"cannot access",
	"broken",
	"down",
	"not working",
	"error",
}

// ComputePriority scores an item at time now. It is a pure function of its arguments.
//
// The age bonus grows ten points per hour since the item was received, caps at 100 and is
// truncated to whole points. Items dated in the future get no age bonus.
func ComputePriority(item proto.WorkItem, now time.Time) int {
	priority := baseNotUrgent
	if item.IsUrgent() {
		priority = baseUrgent
	}

	switch item.Sentiment {
	case proto.SentimentNegative:
		priority += sentimentNegative
	case proto.SentimentNeutral:
		priority += sentimentNeutral
	case proto.SentimentPositive:
		priority += sentimentPositive
	}

	ageHours := now.Sub(item.ReceivedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	priority += int(math.Min(ageHours*agePointsPerHour, maxAgeBonus))

	priority += keywordBonus * countKeywords(item.Text())
	return priority
}

func countKeywords(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, kw := range urgencyKeywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

// UrgencyKeywordHit reports whether text contains any of the urgency keywords.
func UrgencyKeywordHit(text string) bool {
	return countKeywords(text) > 0
}

func penalize(priority int) int {
	return max(priority-FailurePenalty, 0)
}
