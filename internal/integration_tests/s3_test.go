package integrationtests

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cardio-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBucket = "test-bucket"

func setupTestProvider(t *testing.T, ctx context.Context) *storage.S3Provider {
	t.Helper()

	endpoint := setupMinioContainer(t, ctx)

	provider, err := storage.NewS3Provider(storage.S3ClientConfig{
		Endpoint:        endpoint,
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)

	require.NoError(t, provider.CreateBucket(ctx, testBucket))
	return provider
}

func TestS3Provider_PutGetObject(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupTestProvider(t, ctx)

	key := "ppg/signal.csv"
	content := []byte("0.1\n0.2\n0.3\n")

	require.NoError(t, provider.PutObject(ctx, testBucket, key, bytes.NewReader(content)))

	data, err := provider.GetObject(ctx, testBucket, key)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// Creating the bucket again is not an error.
	assert.NoError(t, provider.CreateBucket(ctx, testBucket))
}

func TestS3Provider_ListObjects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupTestProvider(t, ctx)

	files := []string{"ecg_image/model.onnx", "ecg_image/manifest.json", "heart_tabular/model.json"}
	for _, file := range files {
		require.NoError(t, provider.PutObject(ctx, testBucket, file, bytes.NewReader([]byte("content: "+file))))
	}

	objects, err := provider.ListObjects(ctx, testBucket, "ecg_image/")
	require.NoError(t, err)
	assert.Len(t, objects, 2)

	var seen []string
	provider.IterObjects(ctx, testBucket, "")(func(obj storage.Object, err error) bool {
		require.NoError(t, err)
		seen = append(seen, obj.Name)
		return true
	})
	assert.ElementsMatch(t, files, seen)
}

func TestS3Provider_DownloadDir(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupTestProvider(t, ctx)

	files := []string{"heart_tabular/model.json", "heart_tabular/scaler.json"}
	for _, file := range files {
		require.NoError(t, provider.PutObject(ctx, testBucket, file, bytes.NewReader([]byte("content: "+file))))
	}

	dest := filepath.Join(t.TempDir(), "heart_tabular")
	require.NoError(t, provider.DownloadDir(ctx, testBucket, "heart_tabular", dest, false))

	for _, name := range []string{"model.json", "scaler.json"} {
		data, err := os.ReadFile(filepath.Join(dest, name))
		require.NoError(t, err)
		assert.Equal(t, []byte("content: heart_tabular/"+name), data)
	}
}
