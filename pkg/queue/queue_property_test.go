package queue

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"mailtriage/pkg/proto"
)

var (
	propUrgencies  = []proto.Urgency{proto.UrgencyUrgent, proto.UrgencyNotUrgent}
	propSentiments = []proto.Sentiment{proto.SentimentPositive, proto.SentimentNegative, proto.SentimentNeutral}
	propBodies     = []string{"", "urgent", "it is broken", "server down asap", "thanks a lot", "error: not working"}
)

func drawItem(rt *rapid.T, id string, now time.Time) proto.WorkItem {
	ageMinutes := rapid.IntRange(-120, 24*60).Draw(rt, "age_minutes")
	return proto.WorkItem{
		ID:         id,
		Urgency:    rapid.SampledFrom(propUrgencies).Draw(rt, "urgency"),
		Sentiment:  rapid.SampledFrom(propSentiments).Draw(rt, "sentiment"),
		Body:       rapid.SampledFrom(propBodies).Draw(rt, "body"),
		ReceivedAt: now.Add(-time.Duration(ageMinutes) * time.Minute),
	}
}

// TestPropertyPopOrder verifies that pops come out in non-increasing priority order and
// that equal priorities come out in insertion order.
func TestPropertyPopOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		q := New(WithClock(func() time.Time { return now }))

		n := rapid.IntRange(0, 40).Draw(rt, "num_items")
		order := make(map[string]int, n)
		for i := range n {
			id := fmt.Sprintf("it-%d", i)
			if _, err := q.Insert(drawItem(rt, id, now)); err != nil {
				rt.Fatalf("Insert(%s) failed: %v", id, err)
			}
			order[id] = i
		}

		var prev *Entry
		for range n {
			e, ok := q.PopHighest()
			if !ok {
				rt.Fatalf("queue drained early")
			}
			if prev != nil {
				if e.Priority > prev.Priority {
					rt.Fatalf("priority increased: %d after %d", e.Priority, prev.Priority)
				}
				if e.Priority == prev.Priority && order[e.Item.ID] < order[prev.Item.ID] {
					rt.Fatalf("tie order broken: %s popped after %s", e.Item.ID, prev.Item.ID)
				}
			}
			prev = &e
		}
		if _, ok := q.PopHighest(); ok {
			rt.Fatalf("queue should be empty")
		}
	})
}

// TestPropertyScoreDeterministic verifies ComputePriority depends only on its inputs.
func TestPropertyScoreDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		now := time.Unix(rapid.Int64Range(1e9, 2e9).Draw(rt, "now"), 0)
		it := drawItem(rt, "x", now)
		if a, b := ComputePriority(it, now), ComputePriority(it, now); a != b {
			rt.Fatalf("ComputePriority not deterministic: %d vs %d", a, b)
		}
	})
}

// TestPropertyPenaltyDecay verifies each failed attempt lowers priority by exactly
// the penalty, floored at zero, and never raises it.
func TestPropertyPenaltyDecay(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := New()
		start := rapid.IntRange(0, 2000).Draw(rt, "priority")
		failures := rapid.IntRange(1, 50).Draw(rt, "failures")

		e := Entry{Item: proto.WorkItem{ID: "retry"}, Priority: start}
		for i := range failures {
			want := max(e.Priority-FailurePenalty, 0)
			re, err := q.ReinsertWithPenalty(e)
			if err != nil {
				rt.Fatalf("reinsert %d failed: %v", i, err)
			}
			if re.Priority != want {
				rt.Fatalf("attempt %d: priority %d, want %d", i, re.Priority, want)
			}
			if re.Priority > start {
				rt.Fatalf("priority %d exceeds original %d", re.Priority, start)
			}
			popped, ok := q.PopHighest()
			if !ok || popped.Item.ID != "retry" {
				rt.Fatalf("expected to pop the retried entry")
			}
			e = popped
		}
		if e.Attempts != failures {
			rt.Fatalf("attempts = %d, want %d", e.Attempts, failures)
		}
	})
}
