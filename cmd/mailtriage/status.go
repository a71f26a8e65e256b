package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mailtriage/pkg/dispatch"
	"mailtriage/pkg/metrics"
)

const statusRequestTimeout = 5 * time.Second

func newStatusCmd(root *rootOptions) *cobra.Command {
	var (
		addr       string
		prometheus string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the queue of a running service",
		Long: `Status reads /status from a running "mailtriage run". With --prometheus it instead
queries Prometheus for the scraped queue and drain counters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), statusRequestTimeout)
			defer cancel()

			if prometheus != "" {
				return printPrometheusStatus(ctx, cmd.OutOrStdout(), prometheus)
			}
			if addr == "" {
				addr = root.cfg.Metrics.ListenAddr
			}
			st, err := fetchStatus(ctx, addr)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "address of the running service (default metrics.listen_addr)")
	cmd.Flags().StringVar(&prometheus, "prometheus", "", "Prometheus base URL to query instead")
	return cmd
}

func fetchStatus(ctx context.Context, addr string) (dispatch.Status, error) {
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	url = strings.TrimSuffix(url, "/") + "/status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return dispatch.Status{}, fmt.Errorf("failed to build status request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return dispatch.Status{}, fmt.Errorf("failed to reach %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully read below

	if resp.StatusCode != http.StatusOK {
		return dispatch.Status{}, fmt.Errorf("status request failed: %s", resp.Status)
	}
	var st dispatch.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return dispatch.Status{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return st, nil
}

func printStatus(out io.Writer, st dispatch.Status) {
	fmt.Fprintf(out, "state:  %s\n", st.State)
	fmt.Fprintf(out, "queued: %d (%d urgent)\n", st.TotalItems, st.UrgentItems)
	if st.NextItem != nil {
		fmt.Fprintf(out, "next:   %s %q (%s, %s)\n", st.NextItem.ID, st.NextItem.Subject, st.NextItem.Urgency, st.NextItem.Sentiment)
	}
}

func printPrometheusStatus(ctx context.Context, out io.Writer, url string) error {
	qs, err := metrics.NewQueryService(url)
	if err != nil {
		return err
	}
	m, err := qs.GetQueueMetrics(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "queued:              %d (%d urgent)\n", m.QueuedTotal, m.QueuedUrgent)
	fmt.Fprintf(out, "succeeded:           %d\n", m.Succeeded)
	fmt.Fprintf(out, "requeued:            %d\n", m.Requeued)
	fmt.Fprintf(out, "dropped:             %d\n", m.Dropped)
	fmt.Fprintf(out, "retrieval fallbacks: %d\n", m.RetrievalFallbacks)
	fmt.Fprintf(out, "generation errors:   %d\n", m.GenerationErrors)
	fmt.Fprintf(out, "mean drain:          %.3fs\n", m.MeanDrainSeconds)
	return nil
}
