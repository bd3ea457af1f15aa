package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/dietflow/importer/internal/config"
	"github.com/dietflow/importer/internal/db"
	"github.com/dietflow/importer/internal/domain"
	"github.com/dietflow/importer/internal/importer"
	"github.com/dietflow/importer/internal/logging"
	"github.com/dietflow/importer/internal/match"
	"github.com/dietflow/importer/internal/repository"
	"github.com/dietflow/importer/internal/session"
	"github.com/dietflow/importer/internal/validate"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	catalog, err := domain.LoadCatalogFile(cfg.SchemaPath)
	if err != nil {
		slog.Error("failed to load schema catalog", "path", cfg.SchemaPath, "error", err)
		os.Exit(1)
	}
	slog.Info("schema catalog loaded", "path", cfg.SchemaPath, "recordTypes", catalog.Len())

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	recordRepo := repository.NewRecordRepository(conn.Pool)
	logRepo := repository.NewImportLogRepository(conn.Pool)

	matchCfg := match.Config{
		Threshold:      cfg.Pipeline.MatchThreshold,
		RequiredWeight: cfg.Pipeline.RequiredWeight,
		FieldWeight:    cfg.Pipeline.FieldWeight,
	}
	matcher := match.NewEngine(catalog, matchCfg)
	engine := validate.NewEngine(catalog, matcher, matchCfg, cfg.Pipeline.ValidationWorkers)

	sessions := session.NewStore(cfg.Pipeline.SessionTTL, cfg.Pipeline.SessionCapacity)
	go sessions.Run(ctx, cfg.Pipeline.SweepInterval)

	mode := resolveCommitMode(ctx, cfg.Pipeline.CommitMode, conn)
	slog.Info("commit mode resolved", "mode", mode)

	committer := importer.NewCommitter(catalog, recordRepo, conn, mode)
	service := importer.NewService(catalog, engine, sessions, committer, logRepo)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      corsHandler.Handler(importer.NewHTTPHandler(service)),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("starting import server", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited")
}

// resolveCommitMode pins the commit strategy once at startup. "auto" probes
// the store rather than deciding per request.
func resolveCommitMode(ctx context.Context, configured string, conn *db.Connection) domain.CommitMode {
	switch configured {
	case string(domain.CommitModeTransactional):
		return domain.CommitModeTransactional
	case string(domain.CommitModeBestEffort):
		return domain.CommitModeBestEffort
	default:
		if conn.SupportsTransactions(ctx) {
			return domain.CommitModeTransactional
		}
		return domain.CommitModeBestEffort
	}
}
