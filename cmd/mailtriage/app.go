package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mailtriage/pkg/classify"
	"mailtriage/pkg/config"
	"mailtriage/pkg/dispatch"
	"mailtriage/pkg/eventlog"
	"mailtriage/pkg/inbox"
	"mailtriage/pkg/knowledge"
	"mailtriage/pkg/llm"
	"mailtriage/pkg/llm/provider"
	"mailtriage/pkg/logx"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/persistence"
	"mailtriage/pkg/proto"
	"mailtriage/pkg/queue"
	"mailtriage/pkg/rag"
	"mailtriage/pkg/responder"
)

// app is the fully wired service behind "mailtriage run".
type app struct {
	cfg *config.Config

	db         *persistence.DB
	documents  *knowledge.SQLiteStore
	replies    *persistence.ReplyStore
	registry   *prometheus.Registry
	recorder   metrics.Recorder
	events     *eventlog.Writer
	gen        llm.Generator
	analyzer   *classify.Analyzer
	pipeline   *rag.Pipeline
	dispatcher *dispatch.Dispatcher

	logger *logx.Logger
}

type appOptions struct {
	// secrets are decrypted credentials consulted before the environment. May be nil.
	secrets map[string]string
	// now overrides the queue clock.
	now func() time.Time
}

// newApp opens storage, seeds the corpus and builds the pipeline and dispatcher.
// The dispatcher is not started.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logx.NewLogger("mailtriage")}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.db, a.documents, err = openStorage(cfg); err != nil {
		return nil, err
	}
	if _, err = seedCorpus(ctx, cfg, a.documents); err != nil {
		return nil, err
	}
	a.replies = persistence.NewReplyStore(a.db)

	a.registry = prometheus.NewRegistry()
	a.recorder = metrics.Nop()
	if cfg.Metrics.Enabled {
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.recorder = metrics.NewPrometheusRecorder(a.registry)
	}
	if cfg.EventLog.Enabled {
		if a.events, err = eventlog.NewWriter(cfg.EventLog.Dir); err != nil {
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
	}

	llmCfg := cfg.LLM
	if err = llmCfg.ResolveAPIKey(opts.secrets); err != nil {
		return nil, err
	}
	if a.gen, err = provider.New(llmCfg, a.recorder); err != nil {
		return nil, fmt.Errorf("failed to create %s generator: %w", llmCfg.Provider, err)
	}
	a.analyzer = classify.NewAnalyzer(a.gen)

	a.pipeline, err = rag.NewPipeline(a.documents, a.gen, rag.PipelineOptions{
		Builder: rag.BuilderOptions{
			MaxDocuments: cfg.Retrieval.MaxDocuments,
			ExcerptChars: cfg.Retrieval.ExcerptChars,
			Metrics:      a.recorder,
		},
		MaxPromptTokens: cfg.Retrieval.MaxPromptTokens,
	})
	if err != nil {
		return nil, err
	}
	resp, err := responder.New(a.pipeline, a.replies)
	if err != nil {
		return nil, err
	}

	var qopts []queue.Option
	if opts.now != nil {
		qopts = append(qopts, queue.WithClock(opts.now))
	}
	a.dispatcher, err = dispatch.NewDispatcher(queue.New(qopts...), resp.Handler(), dispatch.Options{
		DrainInterval: cfg.Queue.DrainInterval,
		ResultBuffer:  cfg.Queue.ResultBuffer,
		Metrics:       a.recorder,
		EventLog:      a.events,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// enqueue classifies untagged items and inserts them. Duplicates are skipped with a
// warning; any other insert error stops the batch.
func (a *app) enqueue(ctx context.Context, items []proto.WorkItem) ([]string, error) {
	ids := make([]string, 0, len(items))
	for i := range items {
		item := items[i]
		if !inbox.Classified(&item) {
			method := a.analyzer.Classify(ctx, &item)
			logx.Debug(ctx, "mailtriage", "classified %s with %s: %s/%s", item.ID, method, item.Urgency, item.Sentiment)
		}
		entry, err := a.dispatcher.Insert(item)
		if errors.Is(err, queue.ErrDuplicateItem) {
			a.logger.Warn("Skipping %s: already queued", item.ID)
			continue
		}
		if err != nil {
			return ids, fmt.Errorf("failed to queue %s: %w", item.ID, err)
		}
		a.logger.Info("Queued %s (%s, %s) at priority %d", item.ID, item.Urgency, item.Sentiment, entry.Priority)
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// Close releases storage and the event log. The dispatcher must be stopped first.
func (a *app) Close() error {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// openStorage opens the database and the document store on top of it.
func openStorage(cfg *config.Config) (*persistence.DB, *knowledge.SQLiteStore, error) {
	db, err := persistence.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	docs, err := knowledge.NewSQLiteStore(db.SQL())
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, docs, nil
}

// seedCorpus loads retrieval.corpus_file, or the built-in articles when seed_defaults is
// set, into an empty store.
func seedCorpus(ctx context.Context, cfg *config.Config, store knowledge.Store) (int, error) {
	var docs []knowledge.Document
	switch {
	case cfg.Retrieval.CorpusFile != "":
		var err error
		if docs, err = knowledge.LoadDocuments(cfg.Retrieval.CorpusFile); err != nil {
			return 0, err
		}
	case cfg.Retrieval.SeedDefaults:
		docs = knowledge.DefaultDocuments()
	default:
		return 0, nil
	}
	n, err := knowledge.Seed(ctx, store, docs)
	if err != nil {
		return n, err
	}
	if n > 0 {
		logx.NewLogger("knowledge").Info("Seeded %d knowledge documents", n)
	}
	return n, nil
}
