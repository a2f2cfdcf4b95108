package core

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
)

// Fixed per-modality artifact subdirectories under the configured
// artifact directory.
var artifactSubdirs = map[Modality]string{
	ModalityECG:   "ecg_image",
	ModalityHeart: "heart_tabular",
	ModalityPPG:   "ppg_signal",
}

// ModelHandle is a loaded model plus its artifact metadata. Handles
// are owned by the registry cache; borrowers must treat them as
// read-only.
type ModelHandle struct {
	Modality Modality
	Model    Model
	Version  string
	Spec     InputSpec
}

// Registry resolves a modality to a loaded, cached model handle.
// Loading is lazy and happens at most once per modality for the
// process lifetime; a per-modality guard keeps concurrent first
// requests from triggering duplicate loads. Reload replaces a cached
// handle as one atomic swap.
type Registry struct {
	cfg     Config
	loaders map[Modality]ModelLoader

	mu      sync.RWMutex
	handles map[Modality]*ModelHandle

	loading map[Modality]*sync.Mutex
}

func NewRegistry(cfg Config, loaders map[Modality]ModelLoader) *Registry {
	loading := make(map[Modality]*sync.Mutex, len(loaders))
	for modality := range loaders {
		loading[modality] = &sync.Mutex{}
	}
	return &Registry{
		cfg:     cfg,
		loaders: loaders,
		handles: make(map[Modality]*ModelHandle),
		loading: loading,
	}
}

func (r *Registry) Get(modality Modality) (*ModelHandle, error) {
	r.mu.RLock()
	handle := r.handles[modality]
	r.mu.RUnlock()
	if handle != nil {
		return handle, nil
	}

	guard, ok := r.loading[modality]
	if !ok {
		return nil, fmt.Errorf("no model loader registered for modality %q", modality)
	}
	guard.Lock()
	defer guard.Unlock()

	// Another request may have finished the load while we waited.
	r.mu.RLock()
	handle = r.handles[modality]
	r.mu.RUnlock()
	if handle != nil {
		return handle, nil
	}

	handle, err := r.load(modality)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.handles[modality] = handle
	r.mu.Unlock()

	return handle, nil
}

// Reload loads the modality's artifacts afresh and swaps the cached
// handle atomically. In-flight borrowers keep the old handle; it is
// released only after the swap.
func (r *Registry) Reload(modality Modality) error {
	guard, ok := r.loading[modality]
	if !ok {
		return fmt.Errorf("no model loader registered for modality %q", modality)
	}
	guard.Lock()
	defer guard.Unlock()

	handle, err := r.load(modality)
	if err != nil {
		return err
	}

	r.mu.Lock()
	old := r.handles[modality]
	r.handles[modality] = handle
	r.mu.Unlock()

	if old != nil {
		old.Model.Release()
	}
	return nil
}

func (r *Registry) load(modality Modality) (*ModelHandle, error) {
	loader := r.loaders[modality]
	dir := filepath.Join(r.cfg.ArtifactDir, artifactSubdirs[modality])

	model, err := loader(dir)
	if err != nil {
		return nil, fmt.Errorf("loading %s model from %s: %w", modality, dir, err)
	}

	spec := model.InputSpec()
	if err := r.validateSpec(modality, spec); err != nil {
		model.Release()
		return nil, err
	}

	slog.Info("loaded model artifact", "modality", modality, "version", model.Version(), "dir", dir)
	return &ModelHandle{
		Modality: modality,
		Model:    model,
		Version:  model.Version(),
		Spec:     spec,
	}, nil
}

// validateSpec fails fast when an artifact's declared input shape
// disagrees with the configured preprocessing target shape.
func (r *Registry) validateSpec(modality Modality, spec InputSpec) error {
	shapes := r.cfg.Shapes
	switch modality {
	case ModalityECG:
		if spec.ImageSize != shapes.ECGImageSize {
			return &ArtifactMismatchError{Modality: modality, Reason: fmt.Sprintf(
				"artifact expects %dpx images, preprocessing targets %dpx", spec.ImageSize, shapes.ECGImageSize)}
		}
		if spec.SeriesLen != shapes.ECGSeriesLen {
			return &ArtifactMismatchError{Modality: modality, Reason: fmt.Sprintf(
				"artifact expects %d samples, preprocessing targets %d", spec.SeriesLen, shapes.ECGSeriesLen)}
		}
	case ModalityHeart:
		if spec.Features != len(r.cfg.HeartFeatures) {
			return &ArtifactMismatchError{Modality: modality, Reason: fmt.Sprintf(
				"artifact expects %d features, schema has %d", spec.Features, len(r.cfg.HeartFeatures))}
		}
	case ModalityPPG:
		if spec.SeriesLen != shapes.PPGSeriesLen {
			return &ArtifactMismatchError{Modality: modality, Reason: fmt.Sprintf(
				"artifact expects %d samples, preprocessing targets %d", spec.SeriesLen, shapes.PPGSeriesLen)}
		}
	}
	return nil
}

// Close releases every cached model.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for modality, handle := range r.handles {
		handle.Model.Release()
		delete(r.handles, modality)
	}
}
