package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"cardio-backend/cmd"
	"cardio-backend/internal/config"
	"cardio-backend/internal/core"
	"cardio-backend/internal/database"
	"cardio-backend/internal/messaging"
	"cardio-backend/internal/storage"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL,notEmpty,required"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID,notEmpty,required"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY,notEmpty,required"`
	S3Region          string `env:"AWS_REGION,notEmpty,required"`
	UploadBucketName  string `env:"UPLOAD_BUCKET_NAME" envDefault:"uploads"`
	ModelBucketName   string `env:"MODEL_BUCKET_NAME" envDefault:"models"`
	ArtifactDir       string `env:"ARTIFACT_DIR" envDefault:"./artifacts"`
	OnnxRuntimeDylib  string `env:"ONNX_RUNTIME_DYLIB"`
}

func main() {
	log.Println("Starting Worker...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	shutdownOnnx := cmd.InitOnnxRuntime(cfg.OnnxRuntimeDylib)
	defer shutdownOnnx()

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

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	engineCfg := config.DefaultEngineConfig(cfg.ArtifactDir)

	registry := core.NewRegistry(engineCfg, core.NewModelLoaders())
	pipeline := core.NewPipeline(engineCfg, registry)
	artifacts := core.NewArtifactSync(store, cfg.ModelBucketName, cfg.ArtifactDir)

	processor := core.NewTaskProcessor(db, store, receiver, pipeline, registry, artifacts, cfg.UploadBucketName)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down worker...")
		processor.Stop()
	}()

	processor.Start()

	log.Println("Worker stopped.")
}
