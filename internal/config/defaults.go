package config

import (
	"github.com/fpang/image-localizer/internal/archive"
	"github.com/fpang/image-localizer/internal/auth"
	"github.com/fpang/image-localizer/internal/batch"
	"github.com/fpang/image-localizer/internal/chat"
	"github.com/fpang/image-localizer/internal/openrouter"
)

const (
	defaultConfigPath            = "~/.config/image-localizer/config.toml"
	defaultEnvFile               = ".env"
	defaultRequestTimeoutSeconds = 300
	defaultBackoffUnitMillis     = 1000
	defaultReferer               = "http://localhost:8501"
	defaultTitle                 = "Image Localizer"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Provider: auth.ProviderOpenRouter,
		Run: Run{
			Language:              batch.DefaultLanguage,
			MaxWorkers:            batch.DefaultMaxWorkers,
			MaxRetries:            batch.DefaultMaxRetries,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			BackoffUnitMillis:     defaultBackoffUnitMillis,
		},
		OpenRouter: OpenRouter{
			BaseURL:         openrouter.DefaultBaseURL,
			AnalysisModel:   openrouter.DefaultAnalysisModel,
			GenerationModel: openrouter.DefaultGenerationModel,
			Referer:         defaultReferer,
			Title:           defaultTitle,
			ImageSize:       openrouter.DefaultImageSize,
			MaxConns:        openrouter.DefaultMaxConns,
		},
		Gemini: Gemini{
			AnalysisModel:   chat.DefaultAnalysisModel,
			GenerationModel: chat.DefaultGenerationModel,
			MaxConns:        chat.DefaultMaxConns,
		},
		Archive: Archive{
			Enabled:     true,
			Name:        archive.DefaultName,
			Prefix:      archive.DefaultPrefix,
			Compression: string(archive.CompressionDeflate),
			OutputDir:   ".",
		},
		S3: S3{
			Prefix: "generated",
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
	}
}
