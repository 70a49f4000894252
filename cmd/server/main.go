package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sannainmf/GmshApp-Hexera/internal/artifact"
	"github.com/Sannainmf/GmshApp-Hexera/internal/auth"
	"github.com/Sannainmf/GmshApp-Hexera/internal/config"
	"github.com/Sannainmf/GmshApp-Hexera/internal/engine"
	"github.com/Sannainmf/GmshApp-Hexera/internal/handler"
	"github.com/Sannainmf/GmshApp-Hexera/internal/lifecycle"
	"github.com/Sannainmf/GmshApp-Hexera/internal/logx"
	"github.com/Sannainmf/GmshApp-Hexera/internal/metrics"
	"github.com/Sannainmf/GmshApp-Hexera/internal/sandbox"
	"github.com/Sannainmf/GmshApp-Hexera/internal/service"
	"github.com/Sannainmf/GmshApp-Hexera/internal/store"
	"github.com/Sannainmf/GmshApp-Hexera/internal/synth"
	"github.com/gin-gonic/gin"
)

func main() {
	logger, closeLogger, err := logx.Init("gmshgen-server")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if err := closeLogger(); err != nil {
			slog.Error("failed to close logger", "error", err)
		}
	}()

	stdLog := slog.NewLogLogger(logger.Handler(), slog.LevelInfo)
	log.SetFlags(0)
	log.SetOutput(stdLog.Writer())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	dbPath := cfg.Storage.DBPath()
	slog.Info("initializing database", "component", "store", "db_path", dbPath)
	if err := store.InitDB(dbPath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.CloseDB()

	artifacts, err := artifact.NewStore(cfg.Storage.OutputDir)
	if err != nil {
		log.Fatalf("Failed to initialize artifact store: %v", err)
	}
	slog.Info("artifact store ready", "component", "artifact_store", "root", artifacts.Root())

	runner := engine.NewRunner(engine.RunnerOptions{
		TerminationGrace: cfg.Engine.TerminationGrace,
		TailBytes:        cfg.Engine.OutputTailBytes,
	})
	executor := sandbox.New(sandbox.Config{
		Binary:        cfg.Engine.Binary,
		Timeout:       cfg.Engine.Timeout,
		SurfaceExport: cfg.Engine.SurfaceExport,
		WorkspaceDir:  cfg.Engine.WorkspaceDir,
	}, runner, artifacts)

	synthOpts := synth.Options{
		MaxConcurrent: int64(cfg.Model.MaxConcurrent),
		Timeout:       cfg.Model.SynthesisTimeout,
	}
	if cfg.Model.BackendURL != "" {
		synthOpts.Loader = &synth.HTTPLoader{Config: synth.HTTPConfig{
			BaseURL: cfg.Model.BackendURL,
			Model:   cfg.Model.Name,
			APIKey:  cfg.Model.APIKey,
			Timeout: cfg.Model.RequestTimeout,
		}}
	} else {
		slog.Warn("no model backend configured, pipeline runs will use templates", "component", "synthesizer")
	}
	synthesizer := synth.New(synthOpts)

	collector := metrics.NewCollector("gmshgen")
	pipelineSvc := service.NewPipelineService(service.PipelineConfig{
		DefaultMaxTokens:      cfg.Model.DefaultMaxTokens,
		MaxTokensLimit:        cfg.Model.MaxTokensLimit,
		DefaultTemperature:    cfg.Model.DefaultTemperature,
		FallbackEnabled:       cfg.Model.FallbackEnabled,
		DefaultOutputFilename: config.DefaultOutputFilename,
		APIPrefix:             handler.APIPrefix,
	}, synthesizer, executor, artifacts, store.NewRunStore(), collector)

	if cfg.Model.LoadOnStartup && cfg.Model.BackendURL != "" {
		if _, err := pipelineSvc.LoadModel(ctx); err != nil {
			slog.Warn("model load on startup failed, continuing without model", "component", "synthesizer", "error", err)
		}
	}

	pipelineSvc.StartHistoryJanitor(ctx, cfg.Storage.HistoryRetention, time.Hour)

	apiKeys, err := auth.ParseKeys(cfg.Server.APIKeys)
	if err != nil {
		log.Fatalf("Failed to parse API keys: %v", err)
	}
	var authLimiter gin.HandlerFunc
	if apiKeys.Empty() {
		slog.Warn("no API keys configured, the API is unauthenticated", "component", "auth")
	} else {
		authLimiter = handler.RateLimiter(ctx, cfg.Server.AuthRateLimitRPS, cfg.Server.AuthRateLimitBurst)
	}

	drainState := lifecycle.NewDrainManager()
	r := handler.NewRouter(handler.RouterConfig{
		Service:     pipelineSvc,
		DrainState:  drainState,
		Metrics:     collector,
		Limiter:     handler.RateLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
		Auth:        auth.Middleware(apiKeys),
		AuthLimiter: authLimiter,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("api server starting", "component", "http_server", "port", cfg.Server.Port,
			"gmsh_binary", cfg.Engine.Binary, "gmsh_timeout", cfg.Engine.Timeout.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down API server...")

	drainState.StartDraining()
	time.Sleep(2 * time.Second)

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		slog.Error("server forced to shutdown", "component", "http_server", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer drainCancel()
	if err := drainState.WaitRuns(drainCtx); err != nil {
		log.Printf("API drained with timeout, remaining active runs: %d", drainState.ActiveRuns())
	}
	if err := drainState.WaitWebSockets(drainCtx); err != nil {
		log.Printf("API drained with timeout, remaining active websockets: %d", drainState.ActiveWebSockets())
	}

	stop()
	log.Println("API server stopped")
}
