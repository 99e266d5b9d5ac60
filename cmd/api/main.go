package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sceneforge/internal/api"
	"sceneforge/internal/config"
	"sceneforge/internal/db"
	"sceneforge/internal/queue"
	"sceneforge/internal/services"
	"sceneforge/internal/storage"
	"sceneforge/internal/worker"
)

func main() {
	log.Println("Starting SceneForge API...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	stor := storage.New(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket)
	log.Println("Initialized object storage")

	catalog := services.NewModelCatalog(cfg.ProviderBaseURL, cfg.ProviderAPIKey)

	handler := api.NewHandler(database, q, catalog, cfg.MaxDurationSeconds)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		ffmpegSvc := services.NewFFmpegService(cfg.TempDir)

		// Veo is the one family executed through the Gen AI SDK; without
		// a Gemini key the generation client skips it.
		var veoSvc *services.VeoService
		if cfg.GeminiKey != "" {
			veoSvc = services.NewVeoService(cfg.GeminiKey, cfg.VeoModel, stor)
			log.Printf("Veo generation enabled (model: %s)", cfg.VeoModel)
		}

		generator := services.NewGenerationClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, catalog, cfg.FallbackModels, veoSvc)

		var enhancer worker.SceneEnhancer
		if cfg.PromptEnhancerEnabled && cfg.OpenAIKey != "" {
			enhancer = services.NewPromptEnhancer(cfg.OpenAIKey)
			log.Println("Prompt enhancement enabled")
		}

		w := worker.New(database, q, stor, generator, ffmpegSvc, enhancer, cfg.DefaultModel)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.WorkerConcurrency)
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if workerCancel != nil {
		workerCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
