package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/pkg/knowledge"
	"mailtriage/pkg/llm"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/proto"
	"mailtriage/pkg/tokens"
)

// scriptedGenerator answers by prompt kind and records every call.
type scriptedGenerator struct {
	mu      sync.Mutex
	calls   []call
	summary func() (string, error)
	actions func() (string, error)
	reply   func() (string, error)
}

type call struct {
	prompt string
	system string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt, system string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, call{prompt: prompt, system: system})
	g.mu.Unlock()

	switch {
	case strings.HasPrefix(prompt, "Based on the customer email and relevant"):
		return answer(g.summary, "The customer needs a password reset.")
	case strings.HasPrefix(prompt, "Based on the customer email and available"):
		return answer(g.actions, "1. Send reset link\n2. Verify email\n- Check spam folder")
	default:
		return answer(g.reply, "  Hi Jane, here is how to reset your password.\n\nAlex from Support  ")
	}
}

func answer(f func() (string, error), def string) (string, error) {
	if f == nil {
		return def, nil
	}
	return f()
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fallbackRecorder struct {
	metrics.NoopRecorder
	mu        sync.Mutex
	fallbacks []string
}

func (r *fallbackRecorder) IncRetrievalFallback(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, kind)
}

func lockedOutItem() proto.WorkItem {
	return proto.WorkItem{
		ID:              "email_1",
		Sender:          "frustrated_user@example.com",
		Subject:         "URGENT Support Request: Cannot access my account!",
		Body:            "I've tried the password reset link three times and it is broken.",
		ReceivedAt:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Urgency:         proto.UrgencyUrgent,
		Sentiment:       proto.SentimentNegative,
		CustomerRequest: "Restore access to the account",
	}
}

func seededStore(t *testing.T) *knowledge.MemoryStore {
	t.Helper()
	store := knowledge.NewMemoryStore()
	_, err := knowledge.Seed(context.Background(), store, knowledge.DefaultDocuments())
	require.NoError(t, err)
	return store
}

func docs(n int) []knowledge.Document {
	out := make([]knowledge.Document, n)
	for i := range out {
		out[i] = knowledge.Document{
			ID:      int64(i + 1),
			Title:   fmt.Sprintf("Doc %d", i+1),
			Content: strings.Repeat("x", 300),
		}
	}
	return out
}

func TestBuildContextWithoutDocumentsSkipsGenerator(t *testing.T) {
	gen := &scriptedGenerator{}
	rec := &fallbackRecorder{}
	b := NewBuilder(gen, BuilderOptions{Metrics: rec})

	bundle := b.BuildContext(context.Background(), lockedOutItem(), nil)

	assert.Empty(t, bundle.Documents)
	assert.Equal(t, NoDocumentsSummary, bundle.Summary)
	assert.Equal(t, []string{"Escalate to human support", "Request more information from customer"}, bundle.Actions)
	assert.Zero(t, gen.callCount())
	assert.Equal(t, []string{metrics.FallbackNoDocuments}, rec.fallbacks)
}

func TestRetrieveFallsBackWhenNothingMatches(t *testing.T) {
	gen := &scriptedGenerator{}
	p, err := NewPipeline(seededStore(t), gen, PipelineOptions{})
	require.NoError(t, err)

	item := proto.WorkItem{ID: "quiet", Subject: "Hello", Body: "Just saying thanks", ReceivedAt: time.Now()}
	bundle := p.Retrieve(context.Background(), item)

	assert.Equal(t, NoDocumentsSummary, bundle.Summary)
	assert.Len(t, bundle.Actions, 2)
	assert.Zero(t, gen.callCount())
}

func TestRetrieveRanksSeededCorpus(t *testing.T) {
	gen := &scriptedGenerator{}
	p, err := NewPipeline(seededStore(t), gen, PipelineOptions{})
	require.NoError(t, err)

	bundle := p.Retrieve(context.Background(), lockedOutItem())

	require.NotEmpty(t, bundle.Documents)
	assert.LessOrEqual(t, len(bundle.Documents), DefaultMaxDocuments)
	assert.Equal(t, "Password Reset Process", bundle.Documents[0].Title)
	assert.Equal(t, "The customer needs a password reset.", bundle.Summary)
	assert.Equal(t, []string{"Send reset link", "Verify email", "Check spam folder"}, bundle.Actions)
	assert.Equal(t, 2, gen.callCount())

	ids := bundle.DocumentIDs()
	seen := map[int64]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate document %d in bundle", id)
		seen[id] = true
	}
}

func TestBuildContextKeepsTopFive(t *testing.T) {
	b := NewBuilder(&scriptedGenerator{}, BuilderOptions{})
	bundle := b.BuildContext(context.Background(), lockedOutItem(), docs(7))

	require.Len(t, bundle.Documents, 5)
	assert.Equal(t, int64(1), bundle.Documents[0].ID)
	assert.Equal(t, int64(5), bundle.Documents[4].ID)
}

func TestBuildContextSummaryPrompt(t *testing.T) {
	gen := &scriptedGenerator{}
	b := NewBuilder(gen, BuilderOptions{})
	item := lockedOutItem()
	b.BuildContext(context.Background(), item, docs(2))

	require.Equal(t, 2, gen.callCount())
	summary := gen.calls[0].prompt
	assert.Contains(t, summary, "Subject: "+item.Subject)
	assert.Contains(t, summary, "Request: "+item.CustomerRequest)
	assert.Contains(t, summary, "Doc 1: "+strings.Repeat("x", 200)+"...\n\nDoc 2: ")
	assert.NotContains(t, summary, strings.Repeat("x", 201))

	actions := gen.calls[1].prompt
	assert.Contains(t, actions, "Customer Request: "+item.CustomerRequest)
	assert.Contains(t, actions, "Available Knowledge: Doc 1, Doc 2")
}

func TestBuildContextGenerationFallbacks(t *testing.T) {
	boom := errors.New("upstream exploded")
	tests := []struct {
		name        string
		gen         *scriptedGenerator
		wantSummary string
		wantActions []string
		wantKinds   []string
	}{
		{
			name:        "summary fails",
			gen:         &scriptedGenerator{summary: func() (string, error) { return "", boom }},
			wantSummary: UnavailableSummary,
			wantActions: []string{"Send reset link", "Verify email", "Check spam folder"},
			wantKinds:   []string{metrics.FallbackSummary},
		},
		{
			name:        "actions fail",
			gen:         &scriptedGenerator{actions: func() (string, error) { return "", boom }},
			wantSummary: "The customer needs a password reset.",
			wantActions: FallbackActions(),
			wantKinds:   []string{metrics.FallbackActions},
		},
		{
			name:        "actions parse to nothing",
			gen:         &scriptedGenerator{actions: func() (string, error) { return "\n  \n- \n", nil }},
			wantSummary: "The customer needs a password reset.",
			wantActions: FallbackActions(),
			wantKinds:   []string{metrics.FallbackActions},
		},
		{
			name:        "too few actions",
			gen:         &scriptedGenerator{actions: func() (string, error) { return "1. Send reset link\n2. Verify email", nil }},
			wantSummary: "The customer needs a password reset.",
			wantActions: FallbackActions(),
			wantKinds:   []string{metrics.FallbackActions},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fallbackRecorder{}
			b := NewBuilder(tt.gen, BuilderOptions{Metrics: rec})
			bundle := b.BuildContext(context.Background(), lockedOutItem(), docs(1))

			assert.Equal(t, tt.wantSummary, bundle.Summary)
			assert.Equal(t, tt.wantActions, bundle.Actions)
			assert.Equal(t, tt.wantKinds, rec.fallbacks)
		})
	}
}

func TestBuildContextDisabledGenerator(t *testing.T) {
	b := NewBuilder(llm.Disabled, BuilderOptions{})
	bundle := b.BuildContext(context.Background(), lockedOutItem(), docs(3))

	assert.Len(t, bundle.Documents, 3)
	assert.Equal(t, UnavailableSummary, bundle.Summary)
	assert.Equal(t, FallbackActions(), bundle.Actions)
}

func TestParseActions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "numbered", in: "1. First\n2. Second", want: []string{"First", "Second"}},
		{name: "bullets", in: "- First\n* Second", want: []string{"First", "Second"}},
		{name: "numbered bullet", in: "1. - First", want: []string{"First"}},
		{name: "blank lines dropped", in: "\nFirst\n\n   \nSecond\n", want: []string{"First", "Second"}},
		{name: "capped at five", in: "a\nb\nc\nd\ne\nf\ng", want: []string{"a", "b", "c", "d", "e"}},
		{name: "empty", in: "", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseActions(tt.in))
		})
	}
}

func TestComposeReply(t *testing.T) {
	gen := &scriptedGenerator{}
	p, err := NewPipeline(seededStore(t), gen, PipelineOptions{})
	require.NoError(t, err)

	item := lockedOutItem()
	reply, err := p.ComposeReply(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, "Hi Jane, here is how to reset your password.\n\nAlex from Support", reply.Draft)
	require.Equal(t, 3, gen.callCount())

	last := gen.calls[2]
	assert.Contains(t, last.system, "You are Alex")
	assert.Contains(t, last.system, `Always sign off as "Alex from Support"`)
	assert.Contains(t, last.prompt, "- Sentiment: Negative")
	assert.Contains(t, last.prompt, "- Priority: Urgent")
	assert.Contains(t, last.prompt, "Subject: "+item.Subject)
	assert.Contains(t, last.prompt, "Relevant Information:\n- Password Reset Process: ")
	assert.Contains(t, last.prompt, "Suggested Actions:\n- Send reset link")
	assert.True(t, strings.HasSuffix(last.prompt, replyClosing))
}

func TestComposeReplyFailureKeepsBundle(t *testing.T) {
	gen := &scriptedGenerator{reply: func() (string, error) { return "", errors.New("quota exhausted") }}
	p, err := NewPipeline(seededStore(t), gen, PipelineOptions{})
	require.NoError(t, err)

	reply, err := p.ComposeReply(context.Background(), lockedOutItem())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email_1")
	assert.NotEmpty(t, reply.Bundle.Documents)
	assert.Empty(t, reply.Draft)
}

func TestComposeReplyTruncatesLongPrompts(t *testing.T) {
	gen := &scriptedGenerator{}
	counter := tokens.Default()
	p, err := NewPipeline(knowledge.NewMemoryStore(), gen, PipelineOptions{MaxPromptTokens: 60, Counter: counter})
	require.NoError(t, err)

	item := lockedOutItem()
	item.Body = strings.Repeat("The password reset link is broken again. ", 200)
	_, err = p.ComposeReply(context.Background(), item)
	require.NoError(t, err)

	prompt := gen.calls[len(gen.calls)-1].prompt
	assert.True(t, strings.HasSuffix(prompt, replyClosing))
	assert.Less(t, len(prompt), len(item.Body))
	assert.LessOrEqual(t, counter.Count(prompt), 60+2)
}

func TestNewPipelineRequiresStore(t *testing.T) {
	_, err := NewPipeline(nil, nil, PipelineOptions{})
	assert.Error(t, err)
}
