package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fpang/image-localizer/internal/batch"
	"github.com/fpang/image-localizer/internal/localize"
	"github.com/fpang/image-localizer/internal/retry"
)

// newTestClient creates a Client pointing at a test HTTP server.
func newTestClient(server *httptest.Server) *Client {
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Referer: "http://localhost:8501",
		Title:   "Image Localizer",
	}, WithHTTPClient(server.Client()))
}

func decodeRequest(t *testing.T, r *http.Request) chatCompletionRequest {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	var req chatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("decode request: %v\n%s", err, body)
	}
	return req
}

func TestAnalyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("HTTP-Referer"); got != "http://localhost:8501" {
			t.Errorf("HTTP-Referer = %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "Image Localizer" {
			t.Errorf("X-Title = %q", got)
		}

		req := decodeRequest(t, r)
		if req.Model != DefaultAnalysisModel {
			t.Errorf("model = %q", req.Model)
		}
		if req.Modalities != nil || req.ImageConfig != nil {
			t.Errorf("analysis request should not carry generation options: %+v", req)
		}
		parts := req.Messages[0].Content
		if len(parts) != 2 || parts[0].Text != "find overlays" {
			t.Fatalf("unexpected content parts: %+v", parts)
		}
		if !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,") {
			t.Errorf("image part is not a data URL: %.40s", parts[1].ImageURL.URL)
		}

		io.WriteString(w, `{"choices":[{"message":{"content":"[{\"what_text\":\"SALE\"}]"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	text, err := newTestClient(server).Analyze(context.Background(), localize.AnalysisRequest{
		Label:        localize.LabelLocalization,
		Image:        []byte{0xff, 0xd8},
		MIMEType:     "image/jpeg",
		Instructions: "find overlays",
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if text != `[{"what_text":"SALE"}]` {
		t.Errorf("Analyze() = %q", text)
	}
}

func TestAnalyze_ContentParts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[{"message":{"content":[{"type":"text","text":"line one"},{"type":"text","text":"line two"}]}}]}`)
	}))
	defer server.Close()

	text, err := newTestClient(server).Analyze(context.Background(), localize.AnalysisRequest{Image: []byte{1}, MIMEType: "image/png"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if text != "line one\nline two" {
		t.Errorf("Analyze() = %q", text)
	}
}

func TestAnalyze_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   retry.Kind
	}{
		{"server error", http.StatusBadGateway, `{"error":{"message":"upstream"}}`, retry.KindTransient},
		{"rate limited", http.StatusTooManyRequests, `{}`, retry.KindTransient},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, retry.KindFatal},
		{"malformed json", http.StatusOK, `{not json`, retry.KindFatal},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":""},"finish_reason":"length"}]}`, retry.KindFatal},
		{"no choices", http.StatusOK, `{"choices":[]}`, retry.KindFatal},
		{"error in body 503", http.StatusOK, `{"error":{"code":503,"message":"provider down"}}`, retry.KindTransient},
		{"error in body string code", http.StatusOK, `{"error":{"code":"bad_request","message":"nope"}}`, retry.KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := newTestClient(server).Analyze(context.Background(), localize.AnalysisRequest{Image: []byte{1}, MIMEType: "image/png"})
			if err == nil {
				t.Fatal("Analyze() succeeded, want error")
			}
			if got := retry.KindOf(err); got != tt.want {
				t.Errorf("KindOf(%v) = %q, want %q", err, got, tt.want)
			}
		})
	}
}

func TestAnalyze_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestClient(server).Analyze(ctx, localize.AnalysisRequest{Image: []byte{1}, MIMEType: "image/png"})
	if !retry.IsTransient(err) {
		t.Errorf("timeout error = %v, want transient", err)
	}
}

func TestGenerate(t *testing.T) {
	generated := []byte("\x89PNG\r\n\x1a\nfake")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if req.Model != DefaultGenerationModel {
			t.Errorf("model = %q", req.Model)
		}
		if strings.Join(req.Modalities, ",") != "image,text" {
			t.Errorf("modalities = %v", req.Modalities)
		}
		if req.ImageConfig == nil || req.ImageConfig.AspectRatio != "4:5" || req.ImageConfig.ImageSize != "2K" {
			t.Errorf("image_config = %+v", req.ImageConfig)
		}
		if req.Messages[0].Content[0].Text != "aspect\n\nloc" {
			t.Errorf("prompt = %q", req.Messages[0].Content[0].Text)
		}

		resp := map[string]any{
			"choices": []any{map[string]any{
				"message": map[string]any{
					"content": "",
					"images": []any{map[string]any{
						"type":      "image_url",
						"image_url": map[string]string{"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(generated)},
					}},
				},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	img, err := newTestClient(server).Generate(context.Background(), localize.GenerationRequest{
		Prompt:      "aspect\n\nloc",
		Image:       []byte{0xff, 0xd8},
		MIMEType:    "image/jpeg",
		AspectRatio: "4:5",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !bytes.Equal(img.Data, generated) || img.MIMEType != "image/png" {
		t.Errorf("Generate() = %q (%s)", img.Data, img.MIMEType)
	}
}

func TestGenerate_NoAspectOmitsImageConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "image_config") {
			t.Errorf("request carries image_config without a ratio: %s", body)
		}
		io.WriteString(w, `{"choices":[{"message":{"images":[{"image_url":{"url":"aGVsbG8="}}]}}]}`)
	}))
	defer server.Close()

	img, err := newTestClient(server).Generate(context.Background(), localize.GenerationRequest{Prompt: "p", Image: []byte{1}, MIMEType: "image/png"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(img.Data) != "hello" {
		t.Errorf("Generate() data = %q", img.Data)
	}
}

func TestGenerate_MissingImageIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[{"message":{"content":"I cannot edit this image."},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	_, err := newTestClient(server).Generate(context.Background(), localize.GenerationRequest{Prompt: "p", Image: []byte{1}, MIMEType: "image/png"})
	var fatal *retry.FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("Generate() error = %v, want *retry.FatalError", err)
	}
}

func TestClient_MissingKeyIsFatal(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.Analyze(context.Background(), localize.AnalysisRequest{Image: []byte{1}})
	if retry.KindOf(err) != retry.KindFatal {
		t.Errorf("missing key error = %v, want fatal", err)
	}
}

func TestClient_ConnLimit(t *testing.T) {
	if got := NewClient(Config{}).ConnLimit(); got != DefaultMaxConns {
		t.Errorf("default ConnLimit() = %d, want %d", got, DefaultMaxConns)
	}
	if got := NewClient(Config{MaxConns: 10}).ConnLimit(); got != 10 {
		t.Errorf("ConnLimit() = %d, want 10", got)
	}
}

// TestClient_RetriedThroughExecutor runs the transport under the real stage
// executor: a 503 on the first localization attempt is retried and the job
// still succeeds.
func TestClient_RetriedThroughExecutor(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		req := decodeRequest(t, r)
		switch {
		case n == 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case req.Model == DefaultGenerationModel:
			io.WriteString(w, `{"choices":[{"message":{"images":[{"image_url":{"url":"data:image/png;base64,aGVsbG8="}}]}}]}`)
		default:
			io.WriteString(w, `{"choices":[{"message":{"content":"localized"}}]}`)
		}
	}))
	defer server.Close()

	client := newTestClient(server)
	exec := localize.NewExecutor(client, client, retry.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }))

	params := batch.DefaultRunParameters()
	params.APIKey = "test-key"
	result, err := batch.Submit(context.Background(),
		[]batch.ImageInput{{Name: "a.jpg", MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}}},
		params, exec)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if c := result.Counts(); c.Succeeded != 1 {
		t.Fatalf("Counts() = %+v, outcomes %+v", c, result.All())
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("HTTP calls = %d, want 3 (failed localize, localize, generate)", got)
	}
}
