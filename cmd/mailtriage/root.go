package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mailtriage/pkg/config"
	"mailtriage/pkg/logx"
)

// rootOptions carries what the persistent flags resolve to. cfg is loaded once in
// PersistentPreRunE and shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "mailtriage",
		Short: "Prioritize support email and draft context-aware replies",
		Long: `mailtriage scores incoming support messages by urgency, sentiment, age and keywords,
drains them one at a time in priority order, and drafts a reply for each one from the
most relevant knowledge base articles.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is ./mailtriage.yaml or $HOME/.mailtriage/mailtriage.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newKBCmd(opts),
		newStatusCmd(opts),
		newAnalyticsCmd(opts),
		newMessagesCmd(opts),
		newSecretsCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := logx.Configure(logx.Options{
		Level:  logx.Level(cfg.Log.Level),
		Format: cfg.Log.ResolveFormat(os.Stderr),
	}); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	o.cfg = cfg
	return nil
}
