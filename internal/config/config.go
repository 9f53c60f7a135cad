package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/auth"
	"github.com/fpang/image-localizer/internal/batch"
)

//go:embed sample_config.toml
var sampleConfig string

// Run holds the per-batch parameters.
type Run struct {
	Language              string `toml:"language"`
	ExtraInstructions     string `toml:"extra_instructions"`
	AspectRatio           string `toml:"aspect_ratio"`
	MaxWorkers            int    `toml:"max_workers"`
	MaxRetries            int    `toml:"max_retries"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	BackoffUnitMillis     int    `toml:"backoff_unit_ms"`
	// MaxInputDimension downscales larger JPEG/PNG inputs; 0 disables.
	MaxInputDimension int `toml:"max_input_dimension"`
}

// OpenRouter contains the OpenRouter connection settings.
type OpenRouter struct {
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	AnalysisModel   string `toml:"analysis_model"`
	GenerationModel string `toml:"generation_model"`
	Referer         string `toml:"referer"`
	Title           string `toml:"title"`
	ImageSize       string `toml:"image_size"`
	MaxConns        int    `toml:"max_conns"`
}

// Gemini contains the Gemini API settings.
type Gemini struct {
	APIKey          string `toml:"api_key"`
	AnalysisModel   string `toml:"analysis_model"`
	GenerationModel string `toml:"generation_model"`
	MaxConns        int    `toml:"max_conns"`
}

// Archive controls the ZIP written after a batch.
type Archive struct {
	Enabled     bool   `toml:"enabled"`
	Name        string `toml:"name"`
	Prefix      string `toml:"prefix"`
	Compression string `toml:"compression"`
	OutputDir   string `toml:"output_dir"`
}

// Drive configures the optional Google Drive upload.
type Drive struct {
	FolderURL       string `toml:"folder_url"`
	CredentialsFile string `toml:"credentials_file"`
}

// S3 configures the optional S3 upload.
type S3 struct {
	Bucket string `toml:"bucket"`
	Prefix string `toml:"prefix"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level string `toml:"level"`
}

// Config encapsulates all configuration values.
type Config struct {
	Provider   string     `toml:"provider"`
	Run        Run        `toml:"run"`
	OpenRouter OpenRouter `toml:"openrouter"`
	Gemini     Gemini     `toml:"gemini"`
	Archive    Archive    `toml:"archive"`
	Drive      Drive      `toml:"drive"`
	S3         S3         `toml:"s3"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates configuration. path may be empty, in
// which case LOCALIZER_CONFIG and then the default location are tried; a
// missing file is not an error. It returns the config, the resolved path
// and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("LOCALIZER_CONFIG")
	}
	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := loadEnvFile(defaultEnvFile); err != nil {
		return nil, "", false, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}
	cfg.resolveAPIKey()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// loadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is ignored.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	log.Debug().Str("file", path).Msg("Loaded environment file")
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// resolveAPIKey fills a missing key for the selected provider from the auth
// package's sources.
func (c *Config) resolveAPIKey() {
	if c.APIKey() != "" {
		return
	}
	key, err := auth.GetAPIKey(c.Provider)
	if err != nil {
		return
	}
	c.setAPIKey(key)
}

// APIKey returns the key of the selected provider.
func (c *Config) APIKey() string {
	if c.Provider == auth.ProviderGemini {
		return strings.TrimSpace(c.Gemini.APIKey)
	}
	return strings.TrimSpace(c.OpenRouter.APIKey)
}

func (c *Config) setAPIKey(key string) {
	if c.Provider == auth.ProviderGemini {
		c.Gemini.APIKey = key
		return
	}
	c.OpenRouter.APIKey = key
}

// MaxConns returns the connection cap of the selected provider.
func (c *Config) MaxConns() int {
	if c.Provider == auth.ProviderGemini {
		return c.Gemini.MaxConns
	}
	return c.OpenRouter.MaxConns
}

// RequestTimeout is the per-attempt deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Run.RequestTimeoutSeconds) * time.Second
}

// BackoffUnit is the retry backoff base.
func (c *Config) BackoffUnit() time.Duration {
	return time.Duration(c.Run.BackoffUnitMillis) * time.Millisecond
}

// RunParameters derives the batch parameters from the config.
func (c *Config) RunParameters() batch.RunParameters {
	aspect, err := batch.ParseAspectRatio(c.Run.AspectRatio)
	if err != nil {
		// Validate rejects unknown ratios; keep the raw value so the batch
		// check reports it too.
		aspect = c.Run.AspectRatio
	}
	return batch.RunParameters{
		Language:          c.Run.Language,
		ExtraInstructions: c.Run.ExtraInstructions,
		AspectRatio:       aspect,
		APIKey:            c.APIKey(),
		MaxWorkers:        c.Run.MaxWorkers,
		CallTimeout:       c.RequestTimeout(),
		MaxRetries:        c.Run.MaxRetries,
		BackoffUnit:       c.BackoffUnit(),
	}
}

// DriveEnabled reports whether a Drive folder was configured.
func (c *Config) DriveEnabled() bool {
	return strings.TrimSpace(c.Drive.FolderURL) != ""
}

// S3Enabled reports whether an S3 bucket was configured.
func (c *Config) S3Enabled() bool {
	return strings.TrimSpace(c.S3.Bucket) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
