package config

import (
	"errors"
	"fmt"

	"github.com/fpang/image-localizer/internal/archive"
	"github.com/fpang/image-localizer/internal/auth"
	"github.com/fpang/image-localizer/internal/batch"
	"github.com/fpang/image-localizer/internal/delivery"
)

// Validate ensures the configuration is usable. Every problem found is
// reported in one joined error.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case auth.ProviderOpenRouter, auth.ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("provider must be %q or %q, got %q", auth.ProviderOpenRouter, auth.ProviderGemini, c.Provider))
	}
	if c.APIKey() == "" {
		errs = append(errs, fmt.Errorf("%s api key is required. Set %s or add api_key to the [%s] section", c.Provider, auth.EnvVar(c.Provider), c.Provider))
	}

	if c.Run.MaxWorkers <= 0 {
		errs = append(errs, errors.New("run.max_workers must be positive"))
	}
	if c.Run.MaxRetries <= 0 {
		errs = append(errs, errors.New("run.max_retries must be positive"))
	}
	if c.Run.RequestTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("run.request_timeout_seconds must be positive"))
	}
	if c.Run.BackoffUnitMillis < 0 {
		errs = append(errs, errors.New("run.backoff_unit_ms must not be negative"))
	}
	if c.Run.MaxInputDimension < 0 {
		errs = append(errs, errors.New("run.max_input_dimension must not be negative"))
	}
	if _, err := batch.ParseAspectRatio(c.Run.AspectRatio); err != nil {
		errs = append(errs, fmt.Errorf("run.aspect_ratio: %w", err))
	}
	if conns := c.MaxConns(); conns > 0 && conns < c.Run.MaxWorkers {
		errs = append(errs, fmt.Errorf("%s.max_conns (%d) must be at least run.max_workers (%d)", c.Provider, conns, c.Run.MaxWorkers))
	}

	if _, err := archive.ParseCompression(c.Archive.Compression); err != nil {
		errs = append(errs, fmt.Errorf("archive.compression: %w", err))
	}

	if c.DriveEnabled() {
		if delivery.ExtractFolderID(c.Drive.FolderURL) == "" {
			errs = append(errs, fmt.Errorf("drive.folder_url %q does not contain a folder id", c.Drive.FolderURL))
		}
		if c.Drive.CredentialsFile == "" {
			errs = append(errs, errors.New("drive.credentials_file is required when drive.folder_url is set"))
		}
	}

	return errors.Join(errs...)
}
