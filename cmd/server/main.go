package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/alerts"
	"github.com/dennisdiepolder/monti/callreport/internal/api"
	"github.com/dennisdiepolder/monti/callreport/internal/auth"
	"github.com/dennisdiepolder/monti/callreport/internal/cache"
	"github.com/dennisdiepolder/monti/callreport/internal/config"
	"github.com/dennisdiepolder/monti/callreport/internal/ingestion"
	"github.com/dennisdiepolder/monti/callreport/internal/metrics"
	"github.com/dennisdiepolder/monti/callreport/internal/storage"
	"github.com/dennisdiepolder/monti/callreport/internal/websocket"
	"github.com/dennisdiepolder/monti/callreport/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// server bundles everything the router needs
type server struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	hub     *websocket.Hub
	uploads *api.UploadHandler
	reports *api.ReportHandler
	admin   *api.AdminHandler
}

func newServer(cfg *config.Config, store storage.Store, names *ingestion.QueueNames, m *metrics.Metrics, logger zerolog.Logger) *server {
	processor := ingestion.NewProcessor(names, cfg.MaxUploadBytes, logger)
	processor.SetRecorder(m)

	hub := websocket.NewHub(logger)
	hub.SetRecorder(m)

	results := cache.NewResultCache(cfg.ResultCacheSize)
	thresholds := alerts.Thresholds{
		WarnAbandonRate:     cfg.AlertAbandonWarn,
		CriticalAbandonRate: cfg.AlertAbandonCritical,
		MinCalls:            cfg.AlertMinCalls,
	}

	uploads := api.NewUploadHandler(processor, store, results, hub, thresholds, logger)
	uploads.SetRecorder(m)

	return &server{
		cfg:     cfg,
		metrics: m,
		hub:     hub,
		uploads: uploads,
		reports: api.NewReportHandler(store, thresholds, logger),
		admin:   api.NewAdminHandler(store, results, hub, api.NewPasswordPolicy(cfg.PasswordMinLength), logger),
	}
}

func (s *server) routes(logger zerolog.Logger) http.Handler {
	wsHandler := websocket.NewHandler(s.hub, s.cfg, logger)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics(s.metrics))
	r.Use(middleware.CORS(s.cfg.AllowedOrigins))

	// Public routes
	r.Get("/health", healthHandler)
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/ws", wsHandler.ServeHTTP)

		r.Route("/api", func(r chi.Router) {
			r.Get("/metrics", s.reports.GetMetrics)
			r.Get("/summary", s.reports.GetSummary)
			r.Get("/uploads", s.uploads.ListUploads)
			r.Get("/uploads/{uploadId}", s.uploads.GetUpload)
			r.With(auth.RequireManagerOrAdmin).Post("/uploads", s.uploads.Upload)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Delete("/metrics", s.admin.WipeMetrics)
				r.Get("/audit", s.admin.GetAuditLog)
				r.Get("/password-policy", s.admin.GetPasswordPolicy)
				r.Post("/password-policy/check", s.admin.CheckPassword)
			})
		})
	})

	return r
}

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	storeCfg := storage.LoadConfig()
	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Str("store_mode", string(storeCfg.Mode)).
		Int64("max_upload_bytes", cfg.MaxUploadBytes).
		Msg("starting callreport server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(ctx, storeCfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	names, err := ingestion.LoadQueueNames(cfg.QueueNamesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load queue names")
	}
	log.Info().Int("queue_names", names.Len()).Msg("queue name table loaded")

	srv := newServer(cfg, store, names, metrics.New(), log.Logger)
	go srv.hub.Run(ctx)

	// Uploads may take a while to stream and parse
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(log.Logger),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stops the hub and closes websocket clients
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"callreport"}`)
}
