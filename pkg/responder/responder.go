// Package responder is the drain handler: it composes a reply for each item and records it.
package responder

import (
	"context"
	"fmt"

	"mailtriage/pkg/dispatch"
	"mailtriage/pkg/llm"
	"mailtriage/pkg/logx"
	"mailtriage/pkg/persistence"
	"mailtriage/pkg/proto"
	"mailtriage/pkg/rag"
)

// Composer produces a reply and its context bundle.
type Composer interface {
	ComposeReply(ctx context.Context, item proto.WorkItem) (rag.Reply, error)
}

// Store persists processed messages.
type Store interface {
	Save(ctx context.Context, msg *persistence.ProcessedMessage) error
}

// Responder handles drained items.
type Responder struct {
	composer Composer
	store    Store
	logger   *logx.Logger
}

// New returns a Responder writing to store.
func New(composer Composer, store Store) (*Responder, error) {
	if composer == nil || store == nil {
		return nil, fmt.Errorf("responder needs a composer and a store")
	}
	return &Responder{composer: composer, store: store, logger: logx.NewLogger("responder")}, nil
}

// Handler adapts Handle to the dispatcher.
func (r *Responder) Handler() dispatch.Handler {
	return r.Handle
}

// Handle composes a reply for item and saves it as Pending. With generation disabled the
// context bundle is saved without a draft. Any other failure is returned so the scheduler
// requeues the item.
func (r *Responder) Handle(ctx context.Context, item proto.WorkItem) error {
	reply, err := r.composer.ComposeReply(ctx, item)
	switch {
	case err == nil:
	case llm.IsDisabled(err):
		logx.Debug(ctx, "responder", "generation disabled, saving %s without a draft", item.ID)
	default:
		return err
	}

	msg := &persistence.ProcessedMessage{
		Item:           item,
		ContextSummary: reply.Bundle.Summary,
		Actions:        reply.Bundle.Actions,
		DocumentIDs:    reply.Bundle.DocumentIDs(),
		Draft:          reply.Draft,
		Status:         persistence.StatusPending,
	}
	if err := r.store.Save(ctx, msg); err != nil {
		return fmt.Errorf("failed to record %s: %w", item.ID, err)
	}
	r.logger.Info("✉️  %s processed (%d documents, draft: %t)", item.ID, len(reply.Bundle.Documents), reply.Draft != "")
	return nil
}
