package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cardio-backend/cmd"
	"cardio-backend/internal/api"
	"cardio-backend/internal/config"
	"cardio-backend/internal/core"
	"cardio-backend/internal/database"
	"cardio-backend/internal/export"
	"cardio-backend/internal/messaging"
	"cardio-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// The local build runs the API, the queue, and the scoring worker in a
// single process with sqlite and filesystem storage. It exists for
// development and on-device deployments.
type Config struct {
	Root             string `env:"ROOT" envDefault:"./cardio-local"`
	Port             int    `env:"PORT" envDefault:"3001"`
	ArtifactDir      string `env:"ARTIFACT_DIR" envDefault:"./artifacts"`
	RiskPolicyPath   string `env:"RISK_POLICY_PATH" envDefault:""`
	WebhookURL       string `env:"REPORT_WEBHOOK_URL" envDefault:""`
	OnnxRuntimeDylib string `env:"ONNX_RUNTIME_DYLIB"`
}

const uploadBucket = "uploads"

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	shutdownOnnx := cmd.InitOnnxRuntime(cfg.OnnxRuntimeDylib)
	defer shutdownOnnx()

	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating root directory: %v", err)
	}

	dbPath := filepath.Join(cfg.Root, "db", "cardio.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := database.NewDatabase(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store := storage.NewLocalProvider(filepath.Join(cfg.Root, "objects"))

	queue := messaging.NewInMemoryQueue()

	engineCfg := config.DefaultEngineConfig(cfg.ArtifactDir)
	if cfg.RiskPolicyPath != "" {
		engineCfg, err = config.LoadRiskPolicy(engineCfg, cfg.RiskPolicyPath)
		if err != nil {
			log.Fatalf("Failed to load risk policy: %v", err)
		}
	}

	registry := core.NewRegistry(engineCfg, core.NewModelLoaders())
	pipeline := core.NewPipeline(engineCfg, registry)

	// Artifacts are read directly from ARTIFACT_DIR, no bucket sync.
	processor := core.NewTaskProcessor(db, store, queue, pipeline, registry, nil, uploadBucket)
	go processor.Start()

	exporter := export.NewWebhookExporter(cfg.WebhookURL)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.NewBackendService(db, store, queue, engineCfg, exporter, uploadBucket)

	r.Route("/api/v1", func(r chi.Router) {
		apiHandler.AddRoutes(r)
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		processor.Stop()
		server.Close()
	}()

	log.Printf("local server listening on port %d", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v", cfg.Port, err)
	}
}
