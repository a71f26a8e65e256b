package rag

import (
	"context"
	"fmt"
	"strings"

	"mailtriage/pkg/knowledge"
	"mailtriage/pkg/llm"
	"mailtriage/pkg/logx"
	"mailtriage/pkg/proto"
	"mailtriage/pkg/tokens"
)

// DefaultMaxPromptTokens bounds the reply prompt when no budget is configured.
const DefaultMaxPromptTokens = 6000

// Reply is a composed draft and the context it was built from.
type Reply struct {
	Bundle Bundle
	Draft  string
}

// PipelineOptions tunes a Pipeline. Zero values select the defaults.
type PipelineOptions struct {
	Builder         BuilderOptions
	MaxPromptTokens int
	Counter         *tokens.Counter
}

// Pipeline runs retrieval (extract, search, rank, bundle) and reply composition for one item.
type Pipeline struct {
	store           knowledge.Store
	gen             llm.Generator
	builder         *Builder
	counter         *tokens.Counter
	maxPromptTokens int
	logger          *logx.Logger
}

// NewPipeline wires a pipeline over store and gen.
func NewPipeline(store knowledge.Store, gen llm.Generator, opts PipelineOptions) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("knowledge store is required")
	}
	if gen == nil {
		gen = llm.Disabled
	}
	if opts.MaxPromptTokens <= 0 {
		opts.MaxPromptTokens = DefaultMaxPromptTokens
	}
	if opts.Counter == nil {
		opts.Counter = tokens.Default()
	}
	return &Pipeline{
		store:           store,
		gen:             gen,
		builder:         NewBuilder(gen, opts.Builder),
		counter:         opts.Counter,
		maxPromptTokens: opts.MaxPromptTokens,
		logger:          logx.NewLogger("rag"),
	}, nil
}

// Builder returns the bundle builder used by the pipeline.
func (p *Pipeline) Builder() *Builder {
	return p.builder
}

// Retrieve finds, ranks and bundles the documents relevant to item. Search failures for
// individual terms are logged and the remaining results are still used.
func (p *Pipeline) Retrieve(ctx context.Context, item proto.WorkItem) Bundle {
	terms := knowledge.ExtractTerms(item.Subject, item.Body, item.CustomerRequest)
	logx.Debug(ctx, "rag", "item %s: search terms %v", item.ID, terms)

	docs, err := knowledge.SearchTerms(ctx, p.store, terms)
	if err != nil {
		p.logger.Warn("knowledge search for %s was incomplete: %v", item.ID, err)
	}
	ranked := knowledge.RankAndDedupe(docs, item.Subject, item.Body, item.CustomerRequest)
	return p.builder.BuildContext(ctx, item, ranked)
}

// ComposeReply retrieves context for item and asks the generator for a reply. The bundle is
// returned even when generation fails so callers can still record it.
func (p *Pipeline) ComposeReply(ctx context.Context, item proto.WorkItem) (Reply, error) {
	bundle := p.Retrieve(ctx, item)
	reply := Reply{Bundle: bundle}

	prompt := p.fitPrompt(replyPrompt(item, &bundle))
	out, err := p.gen.Generate(ctx, prompt, systemInstruction)
	if err != nil {
		return reply, fmt.Errorf("failed to generate context-aware reply for %s: %w", item.ID, err)
	}
	reply.Draft = strings.TrimSpace(out)
	return reply, nil
}

// fitPrompt truncates body so body plus the closing instruction stays within the budget.
func (p *Pipeline) fitPrompt(body string) string {
	budget := p.maxPromptTokens - p.counter.Count(replyClosing)
	if budget < 0 {
		budget = 0
	}
	if n := p.counter.Count(body); n > budget {
		p.logger.Debug("reply prompt has %d tokens, truncating to %d", n, budget)
		body = p.counter.Truncate(body, budget)
	}
	return body + replyClosing
}
