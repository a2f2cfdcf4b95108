package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cardio-backend/internal/config"
	"cardio-backend/internal/core"

	"github.com/schollz/progressbar/v3"
	ort "github.com/yalue/onnxruntime_go"
)

// Batch scorer with two modes. The default runs every file in a
// directory through one modality's model and writes a CSV of
// predictions, useful for offline evaluation of model artifacts before
// they are promoted to the model bucket. With -subject it instead
// treats the input directory as one person's uploads (one file per
// modality, named ecg.*, heart.* or ppg.*), scores them together and
// prints the fused result.
func main() {
	var (
		modalityName string
		inputDir     string
		outputPath   string
		artifactDir  string
		onnxDylib    string
		subjectDir   string
	)

	flag.StringVar(&modalityName, "modality", "", "modality to score (ecg, heart, ppg)")
	flag.StringVar(&inputDir, "input", "", "directory of input files")
	flag.StringVar(&outputPath, "output", "predictions.csv", "output CSV path")
	flag.StringVar(&artifactDir, "artifacts", "./artifacts", "model artifact directory")
	flag.StringVar(&onnxDylib, "onnx-dylib", os.Getenv("ONNX_RUNTIME_DYLIB"), "path to onnxruntime shared library")
	flag.StringVar(&subjectDir, "subject", "", "directory with one file per modality; fuses them into a single result")
	flag.Parse()

	if subjectDir != "" {
		assessSubject(subjectDir, artifactDir, onnxDylib)
		return
	}

	modality, err := core.ParseModality(modalityName)
	if err != nil {
		log.Fatalf("invalid --modality: %v", err)
	}
	if inputDir == "" {
		log.Fatalf("--input is required")
	}

	if modality == core.ModalityECG {
		shutdown := initOnnx(onnxDylib)
		defer shutdown()
	}

	engineCfg := config.DefaultEngineConfig(artifactDir)
	registry := core.NewRegistry(engineCfg, core.NewModelLoaders())
	defer registry.Close()
	pipeline := core.NewPipeline(engineCfg, registry)

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		log.Fatalf("error reading input directory: %v", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	out, err := os.Create(outputPath)
	if err != nil {
		log.Fatalf("error creating output file: %v", err)
	}
	defer out.Close()

	writer := csv.NewWriter(out)
	defer writer.Flush()

	if err := writer.Write([]string{"file", "label", "score", "confidence", "model_version", "error"}); err != nil {
		log.Fatalf("error writing output header: %v", err)
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("scoring"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	ctx := context.Background()
	failures := 0
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(inputDir, name))
		if err != nil {
			log.Fatalf("error reading %s: %v", name, err)
		}

		record := []string{name, "", "", "", "", ""}
		input, err := core.InputFromUpload(modality, name, data)
		if err == nil {
			var pred core.ModalityPrediction
			pred, err = pipeline.Predict(ctx, input)
			if err == nil {
				record[1] = pred.Label
				record[2] = fmt.Sprintf("%.6f", pred.RawScore)
				record[3] = fmt.Sprintf("%.6f", pred.Confidence)
				record[4] = pred.ModelVersion
			}
		}
		if err != nil {
			record[5] = err.Error()
			failures++
		}

		if err := writer.Write(record); err != nil {
			log.Fatalf("error writing output row: %v", err)
		}
		_ = bar.Add(1)
	}

	log.Printf("scored %d files (%d failed), results written to %s", len(files), failures, outputPath)
}

// assessSubject scores every modality file in dir and prints the fused
// result as JSON. A modality whose prediction fails is dropped and the
// result marked degraded, the same policy the service applies.
func assessSubject(dir, artifactDir, onnxDylib string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("error reading subject directory: %v", err)
	}

	var inputs []core.ModalityInput
	var requested []core.Modality
	needOnnx := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		base, _, _ := strings.Cut(name, ".")
		modality, err := core.ParseModality(base)
		if err != nil {
			log.Fatalf("file %q does not name a modality: %v", name, err)
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Fatalf("error reading %s: %v", name, err)
		}
		input, err := core.InputFromUpload(modality, name, data)
		if err != nil {
			log.Fatalf("invalid %s payload: %v", modality, err)
		}
		inputs = append(inputs, input)
		requested = append(requested, modality)
		if modality == core.ModalityECG {
			needOnnx = true
		}
	}
	if len(inputs) == 0 {
		log.Fatalf("subject directory has no modality files")
	}

	if needOnnx {
		shutdown := initOnnx(onnxDylib)
		defer shutdown()
	}

	engineCfg := config.DefaultEngineConfig(artifactDir)
	registry := core.NewRegistry(engineCfg, core.NewModelLoaders())
	defer registry.Close()
	pipeline := core.NewPipeline(engineCfg, registry)

	preds, errs := pipeline.PredictEach(context.Background(), inputs)
	for _, err := range errs {
		log.Printf("modality dropped: %v", err)
	}

	fusion, err := core.NewFuser(engineCfg).Fuse(preds, requested)
	if err != nil {
		log.Fatalf("fusion failed: %v", err)
	}

	out, err := json.MarshalIndent(fusion, "", "  ")
	if err != nil {
		log.Fatalf("error encoding result: %v", err)
	}
	fmt.Println(string(out))
}

func initOnnx(dylibPath string) func() {
	if dylibPath == "" {
		log.Fatalf("--onnx-dylib or ONNX_RUNTIME_DYLIB must be set to score ECG inputs")
	}
	ort.SetSharedLibraryPath(dylibPath)
	if err := ort.InitializeEnvironment(); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}
	return func() {
		_ = ort.DestroyEnvironment()
	}
}
