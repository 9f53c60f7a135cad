package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/auth"
)

// ValidateAndResolveDirectory checks that the path exists and is a directory,
// then returns the absolute path. Exits fatally on failure.
func ValidateAndResolveDirectory(dirPath string) string {
	abs, err := ResolveDirectory(dirPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", dirPath).Msg("Invalid input directory")
	}
	return abs
}

// ResolveDirectory is ValidateAndResolveDirectory returning an error.
func ResolveDirectory(dirPath string) (string, error) {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New("directory not found")
		}
		return "", err
	}
	if !info.IsDir() {
		return "", errors.New("path is not a directory")
	}
	if abs, err := filepath.Abs(dirPath); err == nil {
		dirPath = abs
	}
	return dirPath, nil
}

// ValidationMessage maps an auth.ValidationError to the message shown to the
// user.
func ValidationMessage(provider string, err error) string {
	var validationErr *auth.ValidationError
	if !errors.As(err, &validationErr) {
		return "Unexpected error during API key validation"
	}
	switch validationErr.Type {
	case auth.ErrTypeNoKey:
		return "No API key configured. Set " + auth.EnvVar(provider) + " or store an encrypted key under ~/.image-localizer"
	case auth.ErrTypeInvalidKey:
		return "Invalid API key. Please check your API key and try again"
	case auth.ErrTypeNetworkError:
		return "Network error. Please check your internet connection"
	case auth.ErrTypeQuotaExceeded:
		return "API quota exceeded. Please try again later or check your usage limits"
	default:
		return "API key validation failed"
	}
}

// HandleValidationError logs the categorized validation failure and exits.
func HandleValidationError(provider string, err error) {
	log.Fatal().Err(err).Str("provider", provider).Msg(ValidationMessage(provider, err))
}
