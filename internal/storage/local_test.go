package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestProvider(t *testing.T) (*LocalProvider, string) {
	t.Helper()
	dir := t.TempDir()
	return NewLocalProvider(dir), dir
}

func TestLocalProvider_PutObject(t *testing.T) {
	provider, baseDir := setupTestProvider(t)

	content := []byte("0.1\n0.2\n0.3\n")
	err := provider.PutObject(context.Background(), "uploads", "ppg/sample.csv", bytes.NewReader(content))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(baseDir, "uploads", "ppg", "sample.csv"))
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalProvider_GetObject(t *testing.T) {
	provider, _ := setupTestProvider(t)

	content := []byte("payload")
	require.NoError(t, provider.PutObject(context.Background(), "uploads", "ecg/trace.png", bytes.NewReader(content)))

	data, err := provider.GetObject(context.Background(), "uploads", "ecg/trace.png")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	_, err = provider.GetObject(context.Background(), "uploads", "missing")
	assert.Error(t, err)
}

func TestLocalProvider_CreateBucket(t *testing.T) {
	provider, baseDir := setupTestProvider(t)

	require.NoError(t, provider.CreateBucket(context.Background(), "uploads"))

	info, err := os.Stat(filepath.Join(baseDir, "uploads"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Creating an existing bucket is a no-op.
	assert.NoError(t, provider.CreateBucket(context.Background(), "uploads"))
}

func TestLocalProvider_DownloadObject(t *testing.T) {
	provider, _ := setupTestProvider(t)

	content := []byte("model bytes")
	require.NoError(t, provider.PutObject(context.Background(), "models", "ppg_signal/model.json", bytes.NewReader(content)))

	dest := filepath.Join(t.TempDir(), "nested", "model.json")
	require.NoError(t, provider.DownloadObject(context.Background(), "models", "ppg_signal/model.json", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalProvider_ListObjects(t *testing.T) {
	provider, _ := setupTestProvider(t)

	ctx := context.Background()
	require.NoError(t, provider.PutObject(ctx, "uploads", "ecg/a.png", bytes.NewReader([]byte("a"))))
	require.NoError(t, provider.PutObject(ctx, "uploads", "ecg/b.csv", bytes.NewReader([]byte("bb"))))
	require.NoError(t, provider.PutObject(ctx, "uploads", "heart/c.csv", bytes.NewReader([]byte("ccc"))))

	objects, err := provider.ListObjects(ctx, "uploads", "")
	require.NoError(t, err)
	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		names = append(names, obj.Name)
	}
	assert.ElementsMatch(t, []string{"ecg/a.png", "ecg/b.csv", "heart/c.csv"}, names)

	objects, err = provider.ListObjects(ctx, "uploads", "ecg/")
	require.NoError(t, err)
	assert.Len(t, objects, 2)
}

func TestLocalProvider_IterObjects(t *testing.T) {
	provider, _ := setupTestProvider(t)

	ctx := context.Background()
	require.NoError(t, provider.PutObject(ctx, "uploads", "ppg/a.csv", bytes.NewReader([]byte("a"))))
	require.NoError(t, provider.PutObject(ctx, "uploads", "ppg/b.csv", bytes.NewReader([]byte("b"))))

	var seen []string
	provider.IterObjects(ctx, "uploads", "ppg/")(func(obj Object, err error) bool {
		require.NoError(t, err)
		seen = append(seen, obj.Name)
		return true
	})
	assert.ElementsMatch(t, []string{"ppg/a.csv", "ppg/b.csv"}, seen)
}

func TestLocalProvider_DownloadDir(t *testing.T) {
	provider, _ := setupTestProvider(t)

	ctx := context.Background()
	require.NoError(t, provider.PutObject(ctx, "models", "heart_tabular/model.json", bytes.NewReader([]byte(`{}`))))
	require.NoError(t, provider.PutObject(ctx, "models", "heart_tabular/scaler.json", bytes.NewReader([]byte(`{}`))))

	dest := filepath.Join(t.TempDir(), "heart_tabular")
	require.NoError(t, provider.DownloadDir(ctx, "models", "heart_tabular", dest, false))

	for _, name := range []string{"model.json", "scaler.json"} {
		_, err := os.Stat(filepath.Join(dest, name))
		assert.NoError(t, err)
	}

	// An existing destination is left untouched unless overwrite is set.
	require.NoError(t, provider.PutObject(ctx, "models", "heart_tabular/extra.json", bytes.NewReader([]byte(`{}`))))
	require.NoError(t, provider.DownloadDir(ctx, "models", "heart_tabular", dest, false))
	_, err := os.Stat(filepath.Join(dest, "extra.json"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, provider.DownloadDir(ctx, "models", "heart_tabular", dest, true))
	_, err = os.Stat(filepath.Join(dest, "extra.json"))
	assert.NoError(t, err)
}
