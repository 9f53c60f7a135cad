package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/image-localizer/internal/auth"
	"github.com/fpang/image-localizer/internal/batch"
	"github.com/fpang/image-localizer/internal/config"
	"github.com/fpang/image-localizer/internal/retry"
)

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{65 * time.Second, "1:05"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatDurationShort(tt.in); got != tt.want {
			t.Errorf("FormatDurationShort(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func sampleResult(t *testing.T) *batch.BatchResult {
	t.Helper()
	agg := batch.NewAggregator(2)
	outcomes := []batch.JobOutcome{
		{Index: 1, OriginalName: "b.jpg", Status: batch.StatusFailure, ErrorKind: retry.KindFatal, ErrorDetail: "GENERATION: response contains\nno image", Elapsed: 3 * time.Second},
		{Index: 0, OriginalName: "a.jpg", Status: batch.StatusSuccess, Image: []byte("x"), ImageMIMEType: "image/png", Elapsed: 2 * time.Second,
			Localization: `[{"what_text":"SALE","changed_to":"REBAJAS"},{"what_text":"NEW","changed_to":"NUEVO"},{"what_text":"NOW"}]`},
	}
	for _, o := range outcomes {
		if err := agg.Add(o); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	result, err := agg.Finalize("batch-1", 65*time.Second)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	return result
}

func TestRenderResults(t *testing.T) {
	out := RenderResults(sampleResult(t))
	first := strings.Index(out, "a.jpg")
	second := strings.Index(out, "b.jpg")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("rows missing or out of order:\n%s", out)
	}
	if !strings.Contains(out, " 3 │") {
		t.Errorf("overlay count not rendered:\n%s", out)
	}
	if !strings.Contains(out, "fatal") || !strings.Contains(out, "response contains no image") {
		t.Errorf("failure detail not rendered:\n%s", out)
	}
}

func TestSummary(t *testing.T) {
	if got := Summary(sampleResult(t)); got != "Successful: 1/2 in 1:05" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate(strings.Repeat("a", 20), 10); got != "aaaaaaa..." {
		t.Errorf("truncate(long) = %q", got)
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 2)
	p.Update(batch.JobOutcome{Status: batch.StatusSuccess}, 1, 2)
	p.Update(batch.JobOutcome{Status: batch.StatusFailure}, 2, 2)
	p.Finish()
	if p.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", p.Failed())
	}
}

func TestPromptForDirectory(t *testing.T) {
	var out bytes.Buffer
	if got := promptForDirectory(strings.NewReader("/tmp/images\n"), &out); got != "/tmp/images" {
		t.Errorf("prompt = %q", got)
	}
	cwd, _ := os.Getwd()
	if got := promptForDirectory(strings.NewReader("\n"), &out); got != cwd {
		t.Errorf("empty answer = %q, want %q", got, cwd)
	}
	if got := promptForDirectory(strings.NewReader(""), &out); got != cwd {
		t.Errorf("EOF = %q, want %q", got, cwd)
	}
}

func TestResolveDirectory(t *testing.T) {
	dir := t.TempDir()
	if got, err := ResolveDirectory(dir); err != nil || got != dir {
		t.Errorf("ResolveDirectory(dir) = %q, %v", got, err)
	}
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveDirectory(file); err == nil {
		t.Error("file should be rejected")
	}
	if _, err := ResolveDirectory(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing directory should be rejected")
	}
}

func TestValidationMessage(t *testing.T) {
	noKey := &auth.ValidationError{Type: auth.ErrTypeNoKey, Message: "none"}
	if got := ValidationMessage("gemini", noKey); !strings.Contains(got, "GEMINI_API_KEY") {
		t.Errorf("no key message = %q", got)
	}
	quota := &auth.ValidationError{Type: auth.ErrTypeQuotaExceeded, Message: "quota"}
	if got := ValidationMessage("openrouter", quota); !strings.Contains(got, "quota") {
		t.Errorf("quota message = %q", got)
	}
	if got := ValidationMessage("openrouter", errors.New("x")); !strings.HasPrefix(got, "Unexpected") {
		t.Errorf("plain error message = %q", got)
	}
}

func TestNewServices(t *testing.T) {
	cfg := config.Default()
	cfg.OpenRouter.APIKey = "k"
	svc, err := NewServices(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("NewServices(openrouter) error = %v", err)
	}
	if svc.Analysis == nil || svc.Generation == nil || svc.Provider != auth.ProviderOpenRouter {
		t.Errorf("services = %+v", svc)
	}

	cfg.Provider = "bedrock"
	if _, err := NewServices(context.Background(), &cfg); err == nil {
		t.Error("unknown provider should fail")
	}
}
