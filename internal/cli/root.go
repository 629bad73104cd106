package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"finetunedb/internal/config"
	"finetunedb/internal/utils"
)

// RootOptions holds global flags and the configuration shared by all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the finetunedb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "finetunedb",
		Short: "FinetuneDB logging tools",
		Long: `Tools around the FinetuneDB ingestion API: a local reference
ingestion server, a one-shot log command and dead-letter inspection.

Configuration is read from the environment (FINETUNEDB_*, SERVER_*,
DATABASE_*, REDIS_*, DEAD_LETTER_*, METRICS_*, LOG_LEVEL).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if opts.Verbose {
				cfg.LogLevel = "debug"
			}
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewDeadLettersCommand(opts))

	return cmd
}

func (o *RootOptions) logger(prefix string) *utils.Logger {
	return utils.NewLogger(prefix, utils.ParseLogLevel(o.Config.LogLevel))
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
