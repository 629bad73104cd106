package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"finetunedb/internal/auth"
	"finetunedb/internal/config"
	"finetunedb/internal/metrics"
	"finetunedb/internal/middleware"
	"finetunedb/internal/storage"
	"finetunedb/internal/utils"
)

// maxBodyBytes bounds request bodies on the ingestion routes
const maxBodyBytes = 10 << 20

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	APIKeys auth.APIKeyStore
	DB      *storage.DB
	Logs    *storage.LogRepository

	// Metrics is nil when metrics are disabled
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	MetricsPath    string

	Logger *utils.Logger
	Now    func() time.Time
}

// NewDependencies opens the database and builds the key store and metrics
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	if cfg.Server.APIKey == "" {
		return nil, errors.New("SERVER_API_KEY is required to run the ingestion server")
	}

	keys, err := auth.NewKeyStore(auth.KeyStoreConfig{
		APIKey:    cfg.Server.APIKey,
		ProjectID: cfg.Server.ProjectID,
		CacheSize: cfg.Cache.APIKeyCacheSize,
		CacheTTL:  cfg.Cache.APIKeyCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize API key store: %w", err)
	}

	db, err := storage.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logger := utils.NewLogger("ingest-server", utils.ParseLogLevel(cfg.LogLevel))
	deps := &Dependencies{
		APIKeys:     keys,
		DB:          db,
		Logs:        db.NewLogRepository(),
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger,
		Now:         time.Now,
	}

	if cfg.Metrics.Enabled {
		m, handler, err := metrics.NewMetrics(ctx, prometheus.NewRegistry())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		deps.Metrics = m
		deps.MetricsHandler = handler
	}

	return deps, nil
}

// Close releases the database
func (d *Dependencies) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

// NewRouter creates an HTTP router with all dependencies wired up
func NewRouter(ctx context.Context, cfg *config.Config) (http.Handler, *Dependencies, error) {
	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return deps.Routes(), deps, nil
}

// Routes registers the ingestion API and wraps it in the common middleware
func (d *Dependencies) Routes() http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = utils.NewLogger("ingest-server")
	}

	mux := http.NewServeMux()
	protected := middleware.APIKeyMiddleware(d.APIKeys)

	mux.Handle("POST /ingestBulk", protected(http.HandlerFunc(d.handleIngestBulk)))
	mux.Handle("POST /logs", protected(http.HandlerFunc(d.handleCreateLog)))
	mux.Handle("POST /log/{id}", protected(http.HandlerFunc(d.handleUpdateLog)))
	mux.Handle("GET /log/{id}", protected(http.HandlerFunc(d.handleGetLog)))

	// public
	mux.HandleFunc("GET /healthz", d.handleHealth)
	if d.MetricsHandler != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, d.MetricsHandler)
	}

	var handler http.Handler = mux
	if d.Metrics != nil {
		handler = middleware.MetricsMiddleware(d.Metrics)(handler)
	}
	handler = middleware.LoggingMiddleware(d.Logger)(handler)
	return middleware.RecoveryMiddleware(d.Logger)(handler)
}

func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := d.DB.Health(r.Context()); err != nil {
		d.Logger.Warn("Health check failed", "error", err)
		utils.RespondWithError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
