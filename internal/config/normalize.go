package config

import (
	"fmt"
	"strings"

	"github.com/fpang/image-localizer/internal/auth"
	"github.com/fpang/image-localizer/internal/batch"
)

func (c *Config) normalize() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = auth.ProviderOpenRouter
	}

	c.Run.Language = strings.TrimSpace(c.Run.Language)
	if c.Run.Language == "" {
		c.Run.Language = batch.DefaultLanguage
	}
	c.Run.ExtraInstructions = strings.TrimSpace(c.Run.ExtraInstructions)
	if ratio, err := batch.ParseAspectRatio(c.Run.AspectRatio); err == nil {
		c.Run.AspectRatio = ratio
	}

	c.Archive.Compression = strings.ToLower(strings.TrimSpace(c.Archive.Compression))
	if c.Archive.OutputDir != "" {
		dir, err := expandPath(c.Archive.OutputDir)
		if err != nil {
			return fmt.Errorf("archive.output_dir: %w", err)
		}
		c.Archive.OutputDir = dir
	}
	if c.Drive.CredentialsFile != "" {
		path, err := expandPath(c.Drive.CredentialsFile)
		if err != nil {
			return fmt.Errorf("drive.credentials_file: %w", err)
		}
		c.Drive.CredentialsFile = path
	}
	c.S3.Prefix = strings.Trim(strings.TrimSpace(c.S3.Prefix), "/")
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
