package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"

	_ "github.com/johnquangdev/meeting-minutes/docs"
	"github.com/johnquangdev/meeting-minutes/internal/adapter/handler"
	"github.com/johnquangdev/meeting-minutes/internal/adapter/repository"
	"github.com/johnquangdev/meeting-minutes/internal/domain/repositories"
	"github.com/johnquangdev/meeting-minutes/internal/infrastructure/cache"
	"github.com/johnquangdev/meeting-minutes/internal/infrastructure/database"
	httpmw "github.com/johnquangdev/meeting-minutes/internal/infrastructure/http/middleware"
	"github.com/johnquangdev/meeting-minutes/internal/infrastructure/media"
	"github.com/johnquangdev/meeting-minutes/internal/infrastructure/storage"
	"github.com/johnquangdev/meeting-minutes/internal/usecase/pipeline"
	"github.com/johnquangdev/meeting-minutes/internal/usecase/render"
	pkgai "github.com/johnquangdev/meeting-minutes/pkg/ai"
	"github.com/johnquangdev/meeting-minutes/pkg/config"
	"github.com/johnquangdev/meeting-minutes/pkg/jwt"
	"github.com/johnquangdev/meeting-minutes/pkg/logger"
	pkgvalidator "github.com/johnquangdev/meeting-minutes/pkg/validator"
)

// @title           Meeting Minutes API
// @version         1.0
// @description     Turns meeting recordings into speaker-attributed transcripts, minutes and decision logs.

// @BasePath  /api/v1

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Server.LogLevel, !cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	// Initialize Echo instance
	e := echo.New()

	// Register validator for request validation
	e.Validator = pkgvalidator.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = false

	e.Use(middleware.RequestID())
	e.Use(httpmw.RequestLogger(zlog))

	// Recover from panics
	e.Use(middleware.Recover())

	// CORS middleware
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	zlog.Info("🔧 Initializing dependencies...")

	// Initialize object storage
	zlog.Info("🪣 Connecting to object storage...")
	minioClient, err := storage.NewMinIOClient(&cfg.Storage)
	if err != nil {
		zlog.Fatal("Failed to connect to object storage", zap.Error(err))
	}

	// Initialize the processing context store
	repo, closeStore, err := openStore(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to open processing context store", zap.Error(err))
	}
	defer closeStore()

	// Initialize AI clients
	zlog.Info("🤖 Initializing AI clients...")
	diarizer := newDiarizer(cfg, zlog)
	transcriptionJobs := pkgai.NewJobClient(
		pkgai.NewRunPodBackend("transcription", cfg.RunPod.TranscriptionURL, cfg.RunPod.APIKey, cfg.RunPod.RequestTimeout),
		cfg.RunPod.PollInterval, cfg.Pipeline.RetryMaxInterval, zlog,
	)
	transcriber := pkgai.NewTranscriptionClient(transcriptionJobs, pkgai.TranscriptionSettings{
		Model:       cfg.RunPod.TranscriptionModel,
		Prompt:      cfg.Pipeline.TranscriptionPrompt,
		Temperature: cfg.Pipeline.TranscriptionTemp,
		MaxWait:     cfg.RunPod.TranscriptionMaxWait,
	}, zlog)
	llm := pkgai.NewLLMClient(&cfg.LLM)

	// Initialize the pipeline
	zlog.Info("⚙️  Initializing pipeline controller...")
	controller := pipeline.NewController(repo, pipeline.Collaborators{
		Normalizer:  media.NewNormalizer(&cfg.Media, minioClient, zlog),
		Diarizer:    diarizer,
		Transcriber: transcriber,
		LLM:         llm,
		Renderer:    render.NewRenderer(minioClient, zlog),
		Signer:      minioClient,
	}, pipeline.OptionsFromConfig(cfg), zlog)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if err := controller.StartResumeWorker(workerCtx); err != nil {
		zlog.Fatal("Failed to start resume worker", zap.Error(err))
	}

	// Setup router with handlers
	zlog.Info("🛣️  Setting up routes...")
	tokens := jwt.NewManager(cfg.Download.Secret, cfg.Download.Expiry)
	jobHandler := handler.NewJobHandler(controller, minioClient, tokens, cfg.Server.MaxUploadBytes, zlog)
	router := handler.NewRouter(cfg, jobHandler, minioClient, zlog)
	router.Setup(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		zlog.Info("🚀 Starting server",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
			zap.String("store", cfg.Store.Driver),
			zap.String("diarization_backend", cfg.RunPod.DiarizationBackend),
		)

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	zlog.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		zlog.Error("❌ Server forced to shutdown", zap.Error(err))
	}
	if err := controller.StopResumeWorker(); err != nil {
		zlog.Warn("resume worker stop", zap.Error(err))
	}
	// Runs stop at their last committed stage; the resume worker picks them up after restart
	if err := controller.Shutdown(ctx); err != nil {
		zlog.Warn("pipeline runs did not stop in time", zap.Error(err))
	}

	zlog.Info("✅ Server stopped gracefully")
}

// openStore builds the processing context repository selected by STORE_DRIVER
func openStore(cfg *config.Config, zlog *zap.Logger) (repositories.ProcessingContextRepository, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		zlog.Warn("⚠️  Using in-memory store: jobs do not survive a restart")
		repo := cache.NewMemoryContextRepository()
		return repo, repo.Close, nil

	case "redis":
		zlog.Info("📦 Connecting to Redis...")
		client, err := cache.NewRedisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedisContextRepository(client), func() { client.Close() }, nil

	default:
		zlog.Info("📦 Connecting to database...")
		db, err := database.NewPostgresDB(cfg, zlog)
		if err != nil {
			return nil, nil, err
		}
		if _, err := database.Migrate(db, "migrations", migrate.Up, zlog); err != nil {
			database.CloseDB(db)
			return nil, nil, err
		}
		return repository.NewProcessingContextRepository(db), func() { database.CloseDB(db) }, nil
	}
}

// newDiarizer builds the diarization client for the configured backend
func newDiarizer(cfg *config.Config, zlog *zap.Logger) *pkgai.DiarizationClient {
	var backend pkgai.JobBackend
	switch cfg.RunPod.DiarizationBackend {
	case "assemblyai":
		backend = pkgai.NewAssemblyAIBackend(cfg.AssemblyAI.APIKey)
	default:
		backend = pkgai.NewRunPodBackend("diarization", cfg.RunPod.DiarizationURL, cfg.RunPod.APIKey, cfg.RunPod.RequestTimeout)
	}

	jobs := pkgai.NewJobClient(backend, cfg.RunPod.PollInterval, cfg.Pipeline.RetryMaxInterval, zlog)
	return pkgai.NewDiarizationClient(jobs, cfg.RunPod.DiarizationModel)
}
