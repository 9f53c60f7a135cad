package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/fpang/image-localizer/internal/batch"
	"github.com/fpang/image-localizer/internal/config"
)

// isolate points HOME at a temp dir and clears the variables Load reads.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"LOCALIZER_CONFIG", "LOCALIZER_PROVIDER", "OPENROUTER_API_KEY", "OPENROUTER_BASE_URL", "GEMINI_API_KEY",
		"LOCALIZER_LANGUAGE", "LOCALIZER_EXTRA_INSTRUCTIONS", "LOCALIZER_ASPECT_RATIO",
		"LOCALIZER_MAX_WORKERS", "LOCALIZER_MAX_RETRIES", "LOCALIZER_REQUEST_TIMEOUT", "LOCALIZER_MAX_INPUT_DIMENSION",
		"LOCALIZER_ARCHIVE_COMPRESSION", "LOCALIZER_OUTPUT_DIR", "LOCALIZER_DRIVE_FOLDER",
		"LOCALIZER_DRIVE_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS", "LOCALIZER_S3_BUCKET",
		"LOCALIZER_S3_PREFIX", "LOCALIZER_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	return home
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithEnvKey(t *testing.T) {
	home := isolate(t)
	t.Setenv("OPENROUTER_API_KEY", "or-key")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(home, ".config", "image-localizer", "config.toml"); resolved != want {
		t.Errorf("resolved = %q, want %q", resolved, want)
	}
	if cfg.Provider != "openrouter" {
		t.Errorf("Provider = %q", cfg.Provider)
	}

	params := cfg.RunParameters()
	if params.APIKey != "or-key" || params.Language != "English" || params.MaxWorkers != 6 || params.MaxRetries != 3 {
		t.Errorf("RunParameters() = %+v", params)
	}
	if params.CallTimeout != 300*time.Second || params.BackoffUnit != time.Second {
		t.Errorf("timeouts = %s / %s", params.CallTimeout, params.BackoffUnit)
	}
	if params.AspectRatio != "" {
		t.Errorf("AspectRatio = %q, want unchanged", params.AspectRatio)
	}
	if err := params.Validate(); err != nil {
		t.Errorf("derived parameters invalid: %v", err)
	}
	if cfg.DriveEnabled() || cfg.S3Enabled() {
		t.Error("uploads should be disabled by default")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
provider = "gemini"

[run]
language = "Japanese"
aspect_ratio = "4:5 - Instagram Feed"
max_workers = 4

[gemini]
api_key = "file-key"
max_conns = 4

[archive]
compression = "zstd"
`)
	t.Setenv("LOCALIZER_MAX_WORKERS", "2")
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	params := cfg.RunParameters()
	if params.Language != "Japanese" || params.AspectRatio != "4:5" {
		t.Errorf("RunParameters() = %+v", params)
	}
	if params.MaxWorkers != 2 {
		t.Errorf("MaxWorkers = %d, env should win", params.MaxWorkers)
	}
	if params.APIKey != "env-key" {
		t.Errorf("APIKey = %q, env should win", params.APIKey)
	}
	if cfg.Archive.Compression != "zstd" || cfg.MaxConns() != 4 {
		t.Errorf("archive/conns = %q / %d", cfg.Archive.Compression, cfg.MaxConns())
	}
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "[openrouter]\napi_key = \"k\"\n")
	t.Setenv("LOCALIZER_CONFIG", path)

	_, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Errorf("resolved = %q exists=%v", resolved, exists)
	}
}

func TestLoadMissingKey(t *testing.T) {
	isolate(t)
	_, _, _, err := config.Load("")
	if err == nil || !strings.Contains(err.Error(), "OPENROUTER_API_KEY") {
		t.Fatalf("expected missing key error naming OPENROUTER_API_KEY, got %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "[run]\nmax_wrokers = 3\n")
	t.Setenv("OPENROUTER_API_KEY", "k")
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestLoadBadEnvInteger(t *testing.T) {
	isolate(t)
	t.Setenv("OPENROUTER_API_KEY", "k")
	t.Setenv("LOCALIZER_MAX_RETRIES", "three")
	_, _, _, err := config.Load("")
	if err == nil || !strings.Contains(err.Error(), "LOCALIZER_MAX_RETRIES") {
		t.Fatalf("expected integer parse error, got %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = "bedrock"
	cfg.Run.MaxWorkers = 0
	cfg.Run.MaxRetries = 0
	cfg.Run.AspectRatio = "5:7"
	cfg.Archive.Compression = "lzma"
	cfg.Drive.FolderURL = "https://example.com/share"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	for _, want := range []string{"provider", "api key", "max_workers", "max_retries", "aspect_ratio", "compression", "folder id", "credentials_file"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateConnLimit(t *testing.T) {
	cfg := config.Default()
	cfg.OpenRouter.APIKey = "k"
	cfg.Run.MaxWorkers = 8
	cfg.OpenRouter.MaxConns = 4
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "max_conns") {
		t.Errorf("Validate() = %v, want max_conns error", err)
	}
}

func TestDotEnvFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENROUTER_API_KEY=dotenv-key\nLOCALIZER_LANGUAGE=French\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Variables must be unset rather than empty for godotenv to apply them.
	os.Unsetenv("OPENROUTER_API_KEY")
	os.Unsetenv("LOCALIZER_LANGUAGE")
	t.Cleanup(func() {
		os.Unsetenv("OPENROUTER_API_KEY")
		os.Unsetenv("LOCALIZER_LANGUAGE")
	})
	t.Chdir(dir)

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIKey() != "dotenv-key" || cfg.Run.Language != "French" {
		t.Errorf("key=%q language=%q", cfg.APIKey(), cfg.Run.Language)
	}
}

func TestCreateSampleParses(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Run.MaxWorkers != batch.DefaultMaxWorkers || cfg.Archive.Prefix != "generated_" {
		t.Errorf("sample values = %+v", cfg)
	}

	t.Setenv("OPENROUTER_API_KEY", "k")
	if _, _, _, err := config.Load(path); err != nil {
		t.Errorf("Load(sample) error = %v", err)
	}
}

func TestRunParametersKeepsUnknownRatio(t *testing.T) {
	cfg := config.Default()
	cfg.OpenRouter.APIKey = "k"
	cfg.Run.AspectRatio = "7:3"
	if err := cfg.RunParameters().Validate(); err == nil || !strings.Contains(err.Error(), "7:3") {
		t.Errorf("RunParameters().Validate() = %v", err)
	}
}
