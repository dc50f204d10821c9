package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"narrato-backend/internal/config"
	"narrato-backend/internal/database"
	"narrato-backend/internal/handlers"
	"narrato-backend/internal/media"
	"narrato-backend/internal/middleware"
	"narrato-backend/internal/pipeline"
	"narrato-backend/internal/repository"
	"narrato-backend/internal/router"
	"narrato-backend/internal/services"
	"narrato-backend/internal/websocket"
	"narrato-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Narrato Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	segmentRepo := repository.NewSegmentRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Initialize External Clients ────
	ffmpeg := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	poller := services.NewPoller(time.Duration(cfg.PollIntervalSeconds)*time.Second, cfg.PollMaxAttempts)
	downloader := services.NewDownloader(nil)

	speechClient := services.NewSpeechClient(cfg.TTSBaseURL, cfg.TTSAPIKey, nil, poller, downloader, ffmpeg)
	videoGenClient := services.NewVideoGenClient(cfg.VideoGenBaseURL, cfg.VideoGenAPIKey, nil)
	clipGenerator := services.NewClipGenerator(videoGenClient, poller)

	translator, err := services.NewGeminiTranslator(cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer translator.Close()
	log.Println("✓ Gemini translator initialized")

	artifactStore, err := services.NewArtifactStore(cfg.StoragePath, cfg.PublicBaseURL)
	if err != nil {
		log.Fatalf("✗ Artifact store initialization failed: %v", err)
	}
	log.Println("✓ Artifact store ready")

	// ──── Initialize Pipeline ────
	progress := worker.NewProgressPublisher(redisClients.Queue)
	pipe := pipeline.New(
		segmentRepo,
		speechClient,
		clipGenerator,
		translator,
		ffmpeg,
		artifactStore,
		downloader,
		progress,
		cfg.TTSVoice,
		cfg.TTSVoiceTranslated,
		"cinematic vertical video, soft natural lighting",
		filepath.Join(cfg.StoragePath, "work"),
	)

	// ──── Step 5: Start Job Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, pipe, jobRepo, cfg.WorkerCount)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.ServiceJWTSecret)
	log.Println("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	serviceAuth := middleware.NewServiceAuth(cfg.ServiceJWTSecret)
	segmentHandler := handlers.NewSegmentHandler(segmentRepo, jobRepo, redisClients.Queue)
	jobHandler := handlers.NewJobHandler(jobRepo)

	r := router.New(
		serviceAuth,
		segmentHandler,
		jobHandler,
		wsHub,
		artifactStore.FileServer(),
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
		// Enqueue responses are immediate; generation runs on the worker
		// pool, so no long write timeouts are needed here.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Narrato Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
