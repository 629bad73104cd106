package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"finetunedb/internal/deadletter"
	"finetunedb/internal/ingest"
	"finetunedb/internal/models"
	"finetunedb/internal/transport"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	ProjectID string
	ParentID  string
	Name      string
	Type      string
	Input     string
	Output    string
	Tags      []string
	Direct    bool
	Timeout   time.Duration
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Send one log entry",
		Long: `Send a single log entry and print its id.

By default the entry goes through the batching queue, which is flushed
before the command exits. --direct posts it to /logs instead.
--input and --output are parsed as JSON when possible and sent as
plain strings otherwise.

Examples:
  finetunedb log --name smoke --input '{"q":"hi"}' --output hello
  finetunedb log --name smoke --tag ci --tag nightly --direct`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			return runLog(ctx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id (overrides FINETUNEDB_PROJECT_ID)")
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "parent log id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "log name")
	cmd.Flags().StringVar(&opts.Type, "type", string(models.LogTypeOther), "log type (CHATCOMPLETION|COMPLETION|TOOL|EMBEDDING|OTHER)")
	cmd.Flags().StringVar(&opts.Input, "input", "", "input value")
	cmd.Flags().StringVar(&opts.Output, "output", "", "output value")
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().BoolVar(&opts.Direct, "direct", false, "post to /logs instead of the batching queue")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "time allowed for delivery")

	return cmd
}

// LogResult is what the log command prints
type LogResult struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func runLog(ctx context.Context, opts *LogOptions, out io.Writer) error {
	clientCfg := opts.Config.Client
	if opts.ProjectID != "" {
		clientCfg.ProjectID = opts.ProjectID
	}
	if !clientCfg.Enabled() {
		return NewExitError(ExitCommandError, "FINETUNEDB_API_KEY is not set")
	}
	if clientCfg.ProjectID == "" {
		return NewExitError(ExitCommandError, "no project id: set FINETUNEDB_PROJECT_ID or --project")
	}

	payload, err := opts.payload(clientCfg.ProjectID)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	var result *LogResult
	if opts.Direct {
		result, err = sendDirect(ctx, opts, clientCfg.BaseURL, clientCfg.APIKey, payload)
	} else {
		result, err = sendQueued(ctx, opts, payload)
	}
	if err != nil {
		return err
	}
	return printResult(out, opts.Format, result)
}

func (o *LogOptions) payload(projectID string) (*models.LogCreatePayload, error) {
	typ, err := models.ParseLogType(o.Type)
	if err != nil {
		return nil, err
	}
	tags := o.Tags
	if tags == nil {
		tags = []string{}
	}
	return &models.LogCreatePayload{
		ProjectID: projectID,
		ParentID:  o.ParentID,
		Name:      o.Name,
		Type:      typ,
		Tags:      tags,
		Source:    "finetunedb-cli",
		Input:     parseValue(o.Input),
		Output:    parseValue(o.Output),
	}, nil
}

func sendDirect(ctx context.Context, opts *LogOptions, baseURL, apiKey string, payload *models.LogCreatePayload) (*LogResult, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	payload.ID = ingest.NewID()
	payload.CreatedAt = now
	payload.UpdatedAt = now

	client := transport.NewClient(baseURL, apiKey, transport.WithLogger(opts.logger("transport")))
	resp, err := client.CreateLog(ctx, payload)
	if err != nil {
		if transport.IsUnauthorized(err) {
			return nil, WrapExitError(ExitCommandError, "API key rejected", err)
		}
		return nil, WrapExitError(ExitFailure, "log rejected", err)
	}

	result := &LogResult{ID: payload.ID, CreatedAt: now, UpdatedAt: now}
	if resp.Data != nil {
		result.CreatedAt = resp.Data.CreatedAt
		result.UpdatedAt = resp.Data.UpdatedAt
	}
	return result, nil
}

func sendQueued(ctx context.Context, opts *LogOptions, payload *models.LogCreatePayload) (*LogResult, error) {
	cfg := opts.Config
	sink, err := deadletter.Open(ctx, cfg.DeadLetter, cfg.Redis)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open dead-letter sink", err)
	}
	if sink != nil {
		defer sink.Close()
	}

	clientOpts := []ingest.Option{ingest.WithLogger(opts.logger("ingest"))}
	if sink != nil {
		clientOpts = append(clientOpts, ingest.WithDeadLetters(sink))
	}
	client := ingest.NewClient(cfg.Client, clientOpts...)

	id := client.EnqueueCreate(payload)
	closeErr := client.Close(ctx)
	if id == "" {
		return nil, NewExitError(ExitCommandError, "log was not queued")
	}

	times, ok := client.Lookup(id)
	if !ok {
		if closeErr != nil {
			return nil, WrapExitError(ExitFailure, "log was not acknowledged", closeErr)
		}
		return nil, NewExitError(ExitFailure, fmt.Sprintf("log %s was not acknowledged", id))
	}
	return &LogResult{ID: id, CreatedAt: times.CreatedAt, UpdatedAt: times.UpdatedAt}, nil
}

// parseValue keeps JSON documents structured and everything else as text
func parseValue(s string) any {
	if s == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func printResult(out io.Writer, format string, result *LogResult) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	_, err := fmt.Fprintln(out, result.ID)
	return err
}
