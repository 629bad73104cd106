package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"finetunedb/internal/httpapi"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port string

	// ready, when set, receives the listening address
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference ingestion server",
		Long: `Run a local implementation of the ingestion API backed by SQLite
or PostgreSQL. SERVER_API_KEY is required.

Examples:
  SERVER_API_KEY=dev finetunedb serve
  SERVER_API_KEY=dev DATABASE_URL=:memory: finetunedb serve --port 9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Port, "port", "", "HTTP port (overrides HTTP_PORT)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg := opts.Config
	if opts.Port != "" {
		cfg.Server.HTTPPort = opts.Port
	}
	logger := opts.logger("ingest-server")

	handler, deps, err := httpapi.NewRouter(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build router", err)
	}
	defer deps.Close()

	listener, err := net.Listen("tcp", ":"+cfg.Server.HTTPPort)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Ingestion server listening", "addr", listener.Addr().String(), "driver", deps.DB.Driver())
		serveErr <- server.Serve(listener)
	}()
	if opts.ready != nil {
		opts.ready <- listener.Addr().String()
	}

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "server forced to shutdown", err)
	}
	logger.Info("Server exited")
	return nil
}

