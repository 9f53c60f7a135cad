package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// applyEnv overrides file values with environment variables. Integer
// variables that do not parse are reported together.
func (c *Config) applyEnv() error {
	var errs []error

	setString := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	setInt := func(dst *int, key string) {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}

	setString(&c.Provider, "LOCALIZER_PROVIDER")
	setString(&c.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setString(&c.OpenRouter.BaseURL, "OPENROUTER_BASE_URL")
	setString(&c.Gemini.APIKey, "GEMINI_API_KEY")

	setString(&c.Run.Language, "LOCALIZER_LANGUAGE")
	setString(&c.Run.ExtraInstructions, "LOCALIZER_EXTRA_INSTRUCTIONS")
	setString(&c.Run.AspectRatio, "LOCALIZER_ASPECT_RATIO")
	setInt(&c.Run.MaxWorkers, "LOCALIZER_MAX_WORKERS")
	setInt(&c.Run.MaxRetries, "LOCALIZER_MAX_RETRIES")
	setInt(&c.Run.RequestTimeoutSeconds, "LOCALIZER_REQUEST_TIMEOUT")
	setInt(&c.Run.MaxInputDimension, "LOCALIZER_MAX_INPUT_DIMENSION")

	setString(&c.Archive.Compression, "LOCALIZER_ARCHIVE_COMPRESSION")
	setString(&c.Archive.OutputDir, "LOCALIZER_OUTPUT_DIR")

	setString(&c.Drive.FolderURL, "LOCALIZER_DRIVE_FOLDER")
	setString(&c.Drive.CredentialsFile, "LOCALIZER_DRIVE_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS")

	setString(&c.S3.Bucket, "LOCALIZER_S3_BUCKET")
	setString(&c.S3.Prefix, "LOCALIZER_S3_PREFIX")

	setString(&c.Logging.Level, "LOCALIZER_LOG_LEVEL")

	return errors.Join(errs...)
}
