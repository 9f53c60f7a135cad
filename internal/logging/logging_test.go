package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStartupLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "info")
	t.Cleanup(func() { SetLevel("info") })

	NewStartupLogger("image-localizer").
		CommitHash("abc123").
		S3Bucket("media", "bucket-1").
		Destination("drive", "folder-1").
		Feature("aspect", true).
		Config("maxWorkers", "6").
		Log()

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("startup event is not JSON: %v\n%s", err, buf.String())
	}
	if event["message"] != "Startup complete" {
		t.Errorf("message = %v", event["message"])
	}
	process, _ := event["process"].(map[string]any)
	if process["name"] != "image-localizer" || process["commitHash"] != "abc123" {
		t.Errorf("process = %v", process)
	}
	resources, _ := event["resources"].(map[string]any)
	if _, ok := resources["destinations"]; !ok {
		t.Errorf("resources = %v", resources)
	}
	config, _ := event["config"].(map[string]any)
	if config["maxWorkers"] != "6" {
		t.Errorf("config = %v", config)
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("LOCALIZER_TEST_VALUE", "")
	if got := EnvOrDefault("LOCALIZER_TEST_VALUE", "fallback"); got != "fallback" {
		t.Errorf("EnvOrDefault() = %q", got)
	}
	t.Setenv("LOCALIZER_TEST_VALUE", "set")
	if got := EnvOrDefault("LOCALIZER_TEST_VALUE", "fallback"); got != "set" {
		t.Errorf("EnvOrDefault() = %q", got)
	}
}
