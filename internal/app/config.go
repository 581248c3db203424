package app

import (
	"github.com/veridocai/veridoc-backend/internal/platform/envutil"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
)

type Config struct {
	Port            string
	UploadDir       string
	VectorNamespace string
	OllamaEnabled   bool
	OCREnabled      bool
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:            envutil.String("PORT", "8080"),
		UploadDir:       envutil.String("UPLOAD_DIR", "/tmp/veridoc-uploads"),
		VectorNamespace: envutil.String("VECTOR_NAMESPACE", "chunks"),
		OllamaEnabled:   envutil.Bool("OLLAMA_ENABLED", false),
		OCREnabled:      envutil.Bool("OCR_ENABLED", true),
	}
	log.Info("Loaded config",
		"port", cfg.Port,
		"upload_dir", cfg.UploadDir,
		"vector_namespace", cfg.VectorNamespace,
		"ollama_enabled", cfg.OllamaEnabled,
		"ocr_enabled", cfg.OCREnabled,
	)
	return cfg
}
