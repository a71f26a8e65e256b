package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mailtriage/pkg/persistence"
	"mailtriage/pkg/proto"
)

func newAnalyticsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Summarize processed messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := openStorage(root.cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only use

			a, err := persistence.NewReplyStore(db).Analytics(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(a)
			}
			fmt.Fprintf(out, "total:     %d\n", a.TotalMessages)
			fmt.Fprintf(out, "pending:   %d\n", a.PendingMessages)
			fmt.Fprintf(out, "resolved:  %d\n", a.Resolved)
			fmt.Fprintf(out, "last 24h:  %d\n", a.Last24h)
			fmt.Fprintf(out, "sentiment: positive=%d neutral=%d negative=%d\n",
				a.SentimentCounts[string(proto.SentimentPositive)], a.SentimentCounts[string(proto.SentimentNeutral)],
				a.SentimentCounts[string(proto.SentimentNegative)])
			fmt.Fprintf(out, "urgency:   urgent=%d not-urgent=%d\n",
				a.UrgencyCounts[string(proto.UrgencyUrgent)], a.UrgencyCounts[string(proto.UrgencyNotUrgent)])
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
