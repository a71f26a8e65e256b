package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mailtriage/pkg/knowledge"
	"mailtriage/pkg/logx"
)

func newKBCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Inspect and seed the knowledge base",
	}
	cmd.AddCommand(newKBSeedCmd(root), newKBSearchCmd(root))
	return cmd
}

func newKBSeedCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load retrieval.corpus_file (or the built-in articles) into an empty knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *root.cfg
			if cfg.Retrieval.CorpusFile == "" {
				cfg.Retrieval.SeedDefaults = true
			}
			db, store, err := openStorage(&cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // nothing to flush

			added, err := seedCorpus(cmd.Context(), &cfg, store)
			if err != nil {
				return err
			}
			total, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d documents (%d total)\n", added, total)
			return nil
		},
	}
}

func newKBSearchCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search TEXT...",
		Short: "Show the documents retrieval would pick for a piece of message text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := openStorage(root.cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only use

			text := strings.Join(args, " ")
			terms := knowledge.ExtractTerms(text, "", "")
			if len(terms) == 0 {
				for _, a := range args {
					terms = append(terms, strings.ToLower(a))
				}
			}
			logx.Debug(cmd.Context(), "knowledge", "search terms %v", terms)

			docs, err := knowledge.SearchTerms(cmd.Context(), store, terms)
			if err != nil {
				logx.NewLogger("knowledge").Warn("search incomplete: %v", err)
			}
			matches := dedupeMatches(knowledge.Rank(docs, text, "", ""))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "terms: %s\n", strings.Join(terms, ", "))
			if len(matches) == 0 {
				fmt.Fprintln(out, "no matching documents")
				return nil
			}
			for i, m := range matches {
				if limit > 0 && i == limit {
					break
				}
				fmt.Fprintf(out, "%2d. [%d] %s (%s) score=%d\n", i+1, m.Document.ID, m.Document.Title, m.Document.Category, m.Score)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many documents (0 = all)")
	return cmd
}

// dedupeMatches keeps the first occurrence of each document ID.
func dedupeMatches(in []knowledge.RankedMatch) []knowledge.RankedMatch {
	seen := make(map[int64]bool, len(in))
	out := in[:0]
	for _, m := range in {
		if seen[m.Document.ID] {
			continue
		}
		seen[m.Document.ID] = true
		out = append(out, m)
	}
	return out
}
