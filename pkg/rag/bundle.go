// Package rag turns ranked knowledge documents into a context bundle and composes
// context-aware replies from it.
package rag

import (
	"context"
	"regexp"
	"strings"
	"time"

	"mailtriage/pkg/knowledge"
	"mailtriage/pkg/llm"
	"mailtriage/pkg/logx"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/proto"
)

// Fixed fallback content.
const (
	NoDocumentsSummary = "No specific knowledge base entries found for this inquiry."
	UnavailableSummary = "Context analysis unavailable."
)

// Limits on bundle content.
const (
	DefaultMaxDocuments = 5
	DefaultExcerptChars = 200
	minActions          = 3
	maxActions          = 5
)

// NoDocumentsActions returns the actions used when retrieval found nothing. It is the only
// bundle with fewer than three actions.
func NoDocumentsActions() []string {
	return []string{"Escalate to human support", "Request more information from customer"}
}

// FallbackActions returns the actions used when action generation fails.
func FallbackActions() []string {
	return []string{"Review customer request", "Check knowledge base", "Escalate if needed"}
}

var (
	numberedPrefix = regexp.MustCompile(`^\d+\.\s*`)
	bulletPrefix   = regexp.MustCompile(`^[-*]\s*`)
)

// Bundle is the context prepared for one item before a reply is composed.
type Bundle struct {
	Documents []knowledge.Document `json:"documents"`
	Summary   string               `json:"summary"`
	Actions   []string             `json:"actions"`
}

// DocumentIDs returns the IDs of the bundled documents, best first.
func (b *Bundle) DocumentIDs() []int64 {
	ids := make([]int64, 0, len(b.Documents))
	for i := range b.Documents {
		ids = append(ids, b.Documents[i].ID)
	}
	return ids
}

// BuilderOptions tunes a Builder. Zero values select the defaults.
type BuilderOptions struct {
	MaxDocuments int
	ExcerptChars int
	Metrics      metrics.Recorder
}

// Builder synthesizes summaries and action lists with a generator.
type Builder struct {
	gen          llm.Generator
	maxDocuments int
	excerptChars int
	recorder     metrics.Recorder
	logger       *logx.Logger
}

// NewBuilder returns a Builder that uses gen for both generation steps.
func NewBuilder(gen llm.Generator, opts BuilderOptions) *Builder {
	if gen == nil {
		gen = llm.Disabled
	}
	if opts.MaxDocuments <= 0 || opts.MaxDocuments > DefaultMaxDocuments {
		opts.MaxDocuments = DefaultMaxDocuments
	}
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = DefaultExcerptChars
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	return &Builder{
		gen:          gen,
		maxDocuments: opts.MaxDocuments,
		excerptChars: opts.ExcerptChars,
		recorder:     opts.Metrics,
		logger:       logx.NewLogger("rag"),
	}
}

// BuildContext assembles the bundle for item from documents already ranked best first.
// It never fails: generation errors degrade to fixed fallback content, and an empty
// document list skips generation entirely.
func (b *Builder) BuildContext(ctx context.Context, item proto.WorkItem, ranked []knowledge.Document) Bundle {
	if len(ranked) == 0 {
		b.recorder.IncRetrievalFallback(metrics.FallbackNoDocuments)
		logx.Debug(ctx, "rag", "no documents for %s, using fallback bundle", item.ID)
		return Bundle{
			Documents: []knowledge.Document{},
			Summary:   NoDocumentsSummary,
			Actions:   NoDocumentsActions(),
		}
	}

	docs := ranked
	if len(docs) > b.maxDocuments {
		docs = docs[:b.maxDocuments]
	}
	docs = append([]knowledge.Document(nil), docs...)

	return Bundle{
		Documents: docs,
		Summary:   b.summarize(ctx, item, docs),
		Actions:   b.suggestActions(ctx, item, docs),
	}
}

func (b *Builder) summarize(ctx context.Context, item proto.WorkItem, docs []knowledge.Document) string {
	start := time.Now()
	out, err := b.gen.Generate(ctx, summaryPrompt(item, docs, b.excerptChars), "")
	if err == nil {
		out = strings.TrimSpace(out)
	}
	if err != nil || out == "" {
		if err != nil && !llm.IsDisabled(err) {
			b.logger.Warn("context summary for %s failed after %v: %v", item.ID, time.Since(start), err)
		}
		b.recorder.IncRetrievalFallback(metrics.FallbackSummary)
		return UnavailableSummary
	}
	return out
}

func (b *Builder) suggestActions(ctx context.Context, item proto.WorkItem, docs []knowledge.Document) []string {
	out, err := b.gen.Generate(ctx, actionsPrompt(item, docs), "")
	if err != nil {
		if !llm.IsDisabled(err) {
			b.logger.Warn("suggested actions for %s failed: %v", item.ID, err)
		}
		b.recorder.IncRetrievalFallback(metrics.FallbackActions)
		return FallbackActions()
	}
	actions := ParseActions(out)
	if len(actions) < minActions {
		b.logger.Warn("suggested actions for %s had %d usable lines, using fallback", item.ID, len(actions))
		b.recorder.IncRetrievalFallback(metrics.FallbackActions)
		return FallbackActions()
	}
	return actions
}

// ParseActions splits a generated list into at most five actions, dropping list
// markers ("1.", "-", "*") and blank lines.
func ParseActions(text string) []string {
	actions := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = numberedPrefix.ReplaceAllString(line, "")
		line = bulletPrefix.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		actions = append(actions, line)
		if len(actions) == maxActions {
			break
		}
	}
	return actions
}
