package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardio-backend/cmd"
	"cardio-backend/internal/api"
	"cardio-backend/internal/config"
	"cardio-backend/internal/database"
	"cardio-backend/internal/export"
	"cardio-backend/internal/messaging"
	"cardio-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL,notEmpty,required"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID,notEmpty,required"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY,notEmpty,required"`
	S3Region          string `env:"AWS_REGION,notEmpty,required"`
	UploadBucketName  string `env:"UPLOAD_BUCKET_NAME" envDefault:"uploads"`
	RiskPolicyPath    string `env:"RISK_POLICY_PATH" envDefault:""`
	WebhookURL        string `env:"REPORT_WEBHOOK_URL" envDefault:""`
	APIPort           string `env:"API_PORT" envDefault:"8001"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := storage.NewS3Provider(storage.S3ClientConfig{
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	if err := store.CreateBucket(context.Background(), cfg.UploadBucketName); err != nil {
		log.Fatalf("Failed to create upload bucket: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	engineCfg := config.DefaultEngineConfig("")
	if cfg.RiskPolicyPath != "" {
		engineCfg, err = config.LoadRiskPolicy(engineCfg, cfg.RiskPolicyPath)
		if err != nil {
			log.Fatalf("Failed to load risk policy: %v", err)
		}
	}

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
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.NewBackendService(db, store, publisher, engineCfg, exporter, cfg.UploadBucketName)

	r.Route("/api/v1", func(r chi.Router) {
		apiHandler.AddRoutes(r)
	})

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
