package cmd

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
	ort "github.com/yalue/onnxruntime_go"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// InitOnnxRuntime points the onnxruntime bindings at the shared
// library and initializes the environment. The returned function tears
// the environment down and should be deferred by the caller.
func InitOnnxRuntime(dylibPath string) func() {
	if dylibPath == "" {
		log.Fatalf("ONNX_RUNTIME_DYLIB must be set")
	}
	ort.SetSharedLibraryPath(dylibPath)
	if err := ort.InitializeEnvironment(); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}

	return func() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Fatalf("error destroying onnx env: %v", err)
		}
	}
}
