package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"finetunedb/internal/deadletter"
)

// DeadLettersOptions holds flags for the deadletters commands.
type DeadLettersOptions struct {
	*RootOptions
	Queue string
	Max   int
}

// NewDeadLettersCommand creates the deadletters command group.
func NewDeadLettersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeadLettersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deadletters",
		Short: "Inspect events the ingestion API rejected",
		Long: `Inspect the Redis dead-letter queue (DEAD_LETTER_BACKEND=redis).
Connection settings come from REDIS_*.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Queue, "queue", deadletter.QueueName, "dead-letter queue name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered events, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeadLettersList(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	list.Flags().IntVar(&opts.Max, "max", 50, "maximum number of events to show (0 for all)")

	remove := &cobra.Command{
		Use:   "remove ID...",
		Short: "Remove dead-lettered events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeadLettersRemove(cmd.Context(), opts, args, cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(list, remove)
	return cmd
}

func (o *DeadLettersOptions) open(ctx context.Context) (deadletter.Store, error) {
	q, err := deadletter.DialRedisQueue(ctx, o.Config.Redis, o.Queue)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to Redis", err)
	}
	return q, nil
}

func runDeadLettersList(ctx context.Context, opts *DeadLettersOptions, out io.Writer) error {
	store, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	items, err := store.List(ctx, opts.Max)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list dead letters", err)
	}

	if opts.Format == "json" {
		if items == nil {
			items = []deadletter.Item{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tLOG ID\tTIME\tERROR")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			item.ID, item.Kind, item.CorrelationID, item.Timestamp.Format(time.RFC3339), item.Error)
	}
	return tw.Flush()
}

func runDeadLettersRemove(ctx context.Context, opts *DeadLettersOptions, ids []string, out io.Writer) error {
	store, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var failed int
	for _, id := range ids {
		if err := store.Remove(ctx, id); err != nil {
			fmt.Fprintf(out, "%s: %v\n", id, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "removed %s\n", id)
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d events not removed", failed, len(ids)))
	}
	return nil
}
