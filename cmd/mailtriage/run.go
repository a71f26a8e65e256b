package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"mailtriage/pkg/config"
	"mailtriage/pkg/dispatch"
	"mailtriage/pkg/inbox"
	"mailtriage/pkg/logx"
	"mailtriage/pkg/proto"
)

const defaultOnceMaxAttempts = 3

type runOptions struct {
	mock        bool
	inboxFile   string
	once        bool
	maxAttempts int
}

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify, queue and drain messages, drafting a reply for each",
		Long: `Run loads messages (the built-in mock inbox and/or a YAML inbox file), classifies the
ones without tags, queues them by priority and drains the queue one message at a time.
Metrics and queue status are served on metrics.listen_addr while running.

Without --once the service runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !o.mock && o.inboxFile == "" {
				return fmt.Errorf("nothing to process: pass --mock and/or --inbox FILE")
			}
			return runService(cmd.Context(), root.cfg, o, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&o.mock, "mock", false, "queue the built-in mock inbox")
	cmd.Flags().StringVar(&o.inboxFile, "inbox", "", "YAML inbox file to queue")
	cmd.Flags().BoolVar(&o.once, "once", false, "exit when every queued message has been handled")
	cmd.Flags().IntVar(&o.maxAttempts, "max-attempts", defaultOnceMaxAttempts, "with --once, give up on a message after this many failed attempts")
	return cmd
}

// runSummary counts handler outcomes over one run.
type runSummary struct {
	Succeeded int
	Requeued  int
	Dropped   int
	GaveUp    int
}

func runService(ctx context.Context, cfg *config.Config, o *runOptions, out io.Writer) error {
	logger := logx.NewLogger("mailtriage")

	secrets, err := loadSecrets(cfg)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{secrets: secrets})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("Close: %v", cerr)
		}
	}()

	items, err := collectItems(o, time.Now())
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var serveErr <-chan error
	if cfg.Metrics.Enabled {
		if serveErr, err = serveMonitor(runCtx, cfg.Metrics.ListenAddr, newMonitorHandler(a.dispatcher, a.registry)); err != nil {
			return err
		}
	}

	ids, err := a.enqueue(runCtx, items)
	if err != nil {
		return err
	}
	if err := a.dispatcher.Start(runCtx); err != nil {
		return err
	}

	var pending map[string]bool
	if o.once {
		pending = make(map[string]bool, len(ids))
		for _, id := range ids {
			pending[id] = true
		}
	}
	summary := trackResults(runCtx, a.dispatcher, pending, o.maxAttempts)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := a.dispatcher.Stop(stopCtx); err != nil {
		logger.Warn("Dispatcher stop: %v", err)
	}
	cancel()
	if serveErr != nil {
		if err := <-serveErr; err != nil {
			logger.Warn("Monitor server: %v", err)
		}
	}

	fmt.Fprintf(out, "processed %d messages: %d succeeded, %d requeued, %d dropped, %d gave up\n",
		len(ids), summary.Succeeded, summary.Requeued, summary.Dropped, summary.GaveUp)
	return nil
}

// collectItems gathers the mock inbox and the inbox file, mock first.
func collectItems(o *runOptions, now time.Time) ([]proto.WorkItem, error) {
	var items []proto.WorkItem
	if o.mock {
		items = append(items, inbox.Mock(now)...)
	}
	if o.inboxFile != "" {
		loaded, err := inbox.LoadFile(o.inboxFile, now)
		if err != nil {
			return nil, err
		}
		items = append(items, loaded...)
	}
	return items, nil
}

// trackResults consumes dispatcher results until ctx is done or the results channel closes.
// With a non-nil pending set it also returns once every pending item has left the queue for
// good; items that keep failing are removed after maxAttempts failures.
func trackResults(ctx context.Context, d *dispatch.Dispatcher, pending map[string]bool, maxAttempts int) runSummary {
	logger := logx.NewLogger("mailtriage")
	var s runSummary
	if pending != nil && len(pending) == 0 {
		return s
	}
	for {
		select {
		case <-ctx.Done():
			return s
		case res, ok := <-d.Results():
			if !ok {
				return s
			}
			id := res.Item.ID
			switch res.Outcome {
			case dispatch.Succeeded:
				s.Succeeded++
				logger.Info("Drafted reply for %s (priority %d) in %s", id, res.Priority, res.Duration.Round(time.Millisecond))
				delete(pending, id)
			case dispatch.Dropped:
				s.Dropped++
				delete(pending, id)
			case dispatch.Requeued:
				s.Requeued++
				if pending != nil && pending[id] && maxAttempts > 0 && res.Attempts+1 >= maxAttempts {
					d.Remove(id)
					delete(pending, id)
					s.GaveUp++
					logger.Warn("Giving up on %s after %d failed attempts: %v", id, res.Attempts+1, res.Err)
				}
			}
			if pending != nil && len(pending) == 0 {
				return s
			}
		}
	}
}
