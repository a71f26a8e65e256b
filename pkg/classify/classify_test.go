package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/pkg/inbox"
	"mailtriage/pkg/llm"
	"mailtriage/pkg/proto"
)

const validJSON = `{
  "sentiment": "Negative",
  "priority": "Urgent",
  "summary": "User is locked out.",
  "customerRequest": "Restore account access",
  "contactDetails": {"phone": "555-123-4567"}
}`

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "plain", in: validJSON},
		{name: "fenced", in: "```json\n" + validJSON + "\n```"},
		{name: "surrounding prose", in: "Here you go:\n" + validJSON + "\nHope this helps."},
		{name: "not json", in: "The email is urgent.", wantErr: true},
		{name: "missing summary", in: `{"sentiment":"Neutral","priority":"Urgent","customerRequest":"x"}`, wantErr: true},
		{name: "unknown sentiment", in: `{"sentiment":"Furious","priority":"Urgent","summary":"s","customerRequest":"x"}`, wantErr: true},
		{name: "unknown priority", in: `{"sentiment":"Neutral","priority":"Soon","summary":"s","customerRequest":"x"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAnalysis(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, proto.SentimentNegative, a.Sentiment)
			assert.Equal(t, proto.UrgencyUrgent, a.Urgency)
			assert.Equal(t, "Restore account access", a.CustomerRequest)
			require.NotNil(t, a.Contact)
			assert.Equal(t, "555-123-4567", a.Contact.Phone)
		})
	}
}

func TestParseAnalysisEmptyContact(t *testing.T) {
	a, err := ParseAnalysis(`{"sentiment":"Positive","priority":"Not Urgent","summary":"s","customerRequest":"r","contactDetails":{}}`)
	require.NoError(t, err)
	assert.Nil(t, a.Contact)
	assert.Equal(t, proto.UrgencyNotUrgent, a.Urgency)
}

func TestAnalyzeSendsEmail(t *testing.T) {
	var gotPrompt, gotSystem string
	gen := llm.GeneratorFunc(func(_ context.Context, prompt, system string) (string, error) {
		gotPrompt, gotSystem = prompt, system
		return validJSON, nil
	})

	a, err := NewAnalyzer(gen).Analyze(context.Background(), "Locked out", "I cannot log in.")
	require.NoError(t, err)
	assert.Equal(t, proto.SentimentNegative, a.Sentiment)
	assert.Contains(t, gotPrompt, `Subject: "Locked out"`)
	assert.Contains(t, gotPrompt, "---\nI cannot log in.\n---")
	assert.Contains(t, gotSystem, "JSON")
}

func TestClassify(t *testing.T) {
	item := inbox.Mock(time.Now())[0]

	method := NewAnalyzer(llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		return validJSON, nil
	})).Classify(context.Background(), &item)
	assert.Equal(t, MethodModel, method)
	assert.Equal(t, "User is locked out.", item.Summary)
	assert.NoError(t, item.Validate())
}

func TestClassifyFallsBackToHeuristic(t *testing.T) {
	for name, gen := range map[string]llm.Generator{
		"disabled": llm.Disabled,
		"failing": llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
			return "", errors.New("boom")
		}),
		"garbage": llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
			return "not json", nil
		}),
	} {
		t.Run(name, func(t *testing.T) {
			item := inbox.Mock(time.Now())[5]
			method := NewAnalyzer(gen).Classify(context.Background(), &item)
			assert.Equal(t, MethodHeuristic, method)
			assert.NoError(t, item.Validate())
			assert.Equal(t, proto.UrgencyUrgent, item.Urgency)
		})
	}
}

func TestHeuristicOnDemoInbox(t *testing.T) {
	items := inbox.Mock(time.Now())
	want := []struct {
		urgency   proto.Urgency
		sentiment proto.Sentiment
	}{
		{proto.UrgencyUrgent, proto.SentimentNegative},
		{proto.UrgencyNotUrgent, proto.SentimentPositive},
		{proto.UrgencyNotUrgent, proto.SentimentPositive},
		{proto.UrgencyNotUrgent, proto.SentimentPositive},
		{proto.UrgencyNotUrgent, proto.SentimentNeutral},
		{proto.UrgencyUrgent, proto.SentimentNegative},
	}
	for i, item := range items {
		a := Heuristic(item)
		assert.Equal(t, want[i].urgency, a.Urgency, item.ID)
		assert.Equal(t, want[i].sentiment, a.Sentiment, item.ID)
		assert.Equal(t, item.Subject, a.CustomerRequest, item.ID)
	}

	first := Heuristic(items[0])
	require.NotNil(t, first.Contact)
	assert.Equal(t, "555-123-4567", first.Contact.Phone)

	newbie := Heuristic(items[4])
	require.NotNil(t, newbie.Contact)
	assert.Equal(t, "newbie_help@provider.com", newbie.Contact.AlternateEmail)

	billing := Heuristic(items[3])
	assert.Nil(t, billing.Contact, "sender address is not an alternate email")
}

func TestFirstSentence(t *testing.T) {
	assert.Equal(t, "Hi team, I am stuck.", firstSentence("Hi team,\n\n I am stuck. More text."))
	long := strings.Repeat("word ", 100)
	got := firstSentence(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), maxSummaryBytes+3)
}
