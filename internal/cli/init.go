package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/auth"
	"github.com/fpang/image-localizer/internal/chat"
	"github.com/fpang/image-localizer/internal/config"
	"github.com/fpang/image-localizer/internal/localize"
	"github.com/fpang/image-localizer/internal/openrouter"
)

// Services is the transport pair selected by the config's provider.
type Services struct {
	Provider   string
	Analysis   localize.AnalysisService
	Generation localize.GenerationService
}

// NewServices builds the analysis and generation services for the configured
// provider. Both are backed by the same client.
func NewServices(ctx context.Context, cfg *config.Config) (Services, error) {
	switch cfg.Provider {
	case auth.ProviderGemini:
		client, err := chat.NewClient(ctx, chat.Config{
			APIKey:          cfg.Gemini.APIKey,
			AnalysisModel:   cfg.Gemini.AnalysisModel,
			GenerationModel: cfg.Gemini.GenerationModel,
			MaxConns:        cfg.Gemini.MaxConns,
		})
		if err != nil {
			return Services{}, fmt.Errorf("create Gemini client: %w", err)
		}
		return Services{Provider: cfg.Provider, Analysis: client, Generation: client}, nil
	case auth.ProviderOpenRouter:
		client := openrouter.NewClient(openrouter.Config{
			APIKey:          cfg.OpenRouter.APIKey,
			BaseURL:         cfg.OpenRouter.BaseURL,
			AnalysisModel:   cfg.OpenRouter.AnalysisModel,
			GenerationModel: cfg.OpenRouter.GenerationModel,
			Referer:         cfg.OpenRouter.Referer,
			Title:           cfg.OpenRouter.Title,
			ImageSize:       cfg.OpenRouter.ImageSize,
			MaxConns:        cfg.OpenRouter.MaxConns,
		})
		return Services{Provider: cfg.Provider, Analysis: client, Generation: client}, nil
	default:
		return Services{}, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// CheckServices sends the validation probe through the analysis service and
// exits fatally with a categorized message on failure.
func CheckServices(ctx context.Context, svc Services) {
	if err := auth.ValidateAPIKey(ctx, svc.Analysis, svc.Provider); err != nil {
		HandleValidationError(svc.Provider, err)
	}
	log.Info().Str("provider", svc.Provider).Msg("API key validation complete - ready for operations")
}
