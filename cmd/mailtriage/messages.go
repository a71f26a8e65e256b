package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mailtriage/pkg/persistence"
)

func newMessagesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List, inspect and resolve processed messages",
	}
	cmd.AddCommand(
		newMessagesListCmd(root),
		newMessagesShowCmd(root),
		newMessagesResolveCmd(root),
	)
	return cmd
}

// withReplies opens storage for the duration of fn.
func withReplies(root *rootOptions, fn func(*persistence.ReplyStore) error) error {
	db, _, err := openStorage(root.cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // nothing buffered
	return fn(persistence.NewReplyStore(db))
}

func newMessagesListCmd(root *rootOptions) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List processed messages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := persistence.ListFilter{Limit: limit}
			if status != "" {
				s, err := parseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = s
			}
			return withReplies(root, func(store *persistence.ReplyStore) error {
				msgs, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(msgs) == 0 {
					fmt.Fprintln(out, "no messages")
					return nil
				}
				for _, m := range msgs {
					fmt.Fprintf(out, "%-10s %-9s %-10s %-8s %s\n",
						m.Item.ID, m.Status, m.Item.Urgency, m.Item.Sentiment, m.Item.Subject)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only messages with this status (Pending or Resolved)")
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many messages (0 = all)")
	return cmd
}

func newMessagesShowCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one processed message with its context and draft reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReplies(root, func(store *persistence.ReplyStore) error {
				msg, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(msg)
				}
				printMessage(out, msg)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newMessagesResolveCmd(root *rootOptions) *cobra.Command {
	var reopen bool
	cmd := &cobra.Command{
		Use:   "resolve ID...",
		Short: "Mark processed messages as resolved",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := persistence.StatusResolved
			if reopen {
				status = persistence.StatusPending
			}
			return withReplies(root, func(store *persistence.ReplyStore) error {
				for _, id := range args {
					if err := store.UpdateStatus(cmd.Context(), id, status); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, status)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reopen, "reopen", false, "set the messages back to Pending")
	return cmd
}

func parseStatus(s string) (persistence.MessageStatus, error) {
	for _, st := range []persistence.MessageStatus{persistence.StatusPending, persistence.StatusResolved} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q (want Pending or Resolved)", s)
}

func printMessage(out io.Writer, m *persistence.ProcessedMessage) {
	fmt.Fprintf(out, "id:        %s\n", m.Item.ID)
	fmt.Fprintf(out, "from:      %s\n", m.Item.Sender)
	fmt.Fprintf(out, "subject:   %s\n", m.Item.Subject)
	fmt.Fprintf(out, "received:  %s\n", m.Item.ReceivedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "tags:      %s, %s\n", m.Item.Urgency, m.Item.Sentiment)
	fmt.Fprintf(out, "status:    %s (attempts %d)\n", m.Status, m.Attempts)
	fmt.Fprintf(out, "context:   %s\n", m.ContextSummary)
	for i, a := range m.Actions {
		fmt.Fprintf(out, "action %d:  %s\n", i+1, a)
	}
	if m.Draft != "" {
		fmt.Fprintf(out, "\n%s\n", m.Draft)
	}
}
