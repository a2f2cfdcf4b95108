package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"cardio-backend/internal/storage"
)

// ArtifactSync mirrors model artifacts from a bucket into the local
// artifact directory so workers can start empty and pull what they
// score with on first use.
type ArtifactSync struct {
	storage     storage.Provider
	modelBucket string
	artifactDir string

	mu     sync.Mutex
	pulled map[Modality]bool
}

func NewArtifactSync(store storage.Provider, modelBucket, artifactDir string) *ArtifactSync {
	return &ArtifactSync{
		storage:     store,
		modelBucket: modelBucket,
		artifactDir: artifactDir,
		pulled:      make(map[Modality]bool),
	}
}

// EnsureLocal downloads the modality's artifact directory if it is not
// already present on disk. Concurrent callers for the same modality
// wait for the first download rather than racing it.
func (s *ArtifactSync) EnsureLocal(ctx context.Context, modality Modality) error {
	subdir, ok := artifactSubdirs[modality]
	if !ok {
		return fmt.Errorf("no artifact directory known for modality %s", modality)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pulled[modality] {
		return nil
	}

	localDir := filepath.Join(s.artifactDir, subdir)
	if _, err := os.Stat(localDir); err == nil {
		s.pulled[modality] = true
		return nil
	}

	slog.Info("model artifacts not found locally, downloading", "modality", modality, "bucket", s.modelBucket, "prefix", subdir)

	if err := s.storage.DownloadDir(ctx, s.modelBucket, subdir, localDir, false); err != nil {
		return fmt.Errorf("failed to download artifacts for %s: %w", modality, err)
	}

	s.pulled[modality] = true
	return nil
}
