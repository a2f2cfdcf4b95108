package integrationtests

import (
	"context"
	"testing"
	"time"

	"cardio-backend/internal/messaging"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

func setupRabbitMQContainer(t *testing.T, ctx context.Context) (messaging.Publisher, messaging.Receiver) {
	rabbitmqContainer, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	require.NoError(t, err, "Failed to start RabbitMQ container")

	t.Cleanup(func() {
		err := rabbitmqContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate RabbitMQ container")
	})

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")

	publisher, err := messaging.NewRabbitMQPublisher(connStr)
	require.NoError(t, err, "Failed to create RabbitMQ publisher")
	t.Cleanup(publisher.Close)

	receiver, err := messaging.NewRabbitMQReceiver(connStr)
	require.NoError(t, err, "Failed to create RabbitMQ receiver")

	return publisher, receiver
}
