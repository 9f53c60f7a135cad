// Package openrouter implements the analysis and generation services over
// the OpenRouter chat completions API.
//
// A Client issues exactly one HTTP request per call and classifies the
// outcome as retry.TransientError or retry.FatalError; retrying is left to
// the caller.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/filehandler"
	"github.com/fpang/image-localizer/internal/localize"
	"github.com/fpang/image-localizer/internal/retry"
)

const (
	// DefaultBaseURL is the chat completions endpoint.
	DefaultBaseURL = "https://openrouter.ai/api/v1/chat/completions"
	// DefaultAnalysisModel answers the localization and aspect questions.
	DefaultAnalysisModel = "google/gemini-3-flash-preview"
	// DefaultGenerationModel produces the localized image.
	DefaultGenerationModel = "google/gemini-3-pro-image-preview"
	// DefaultImageSize is sent with an aspect ratio hint.
	DefaultImageSize = "2K"
	// DefaultMaxConns bounds concurrent connections to the API host.
	DefaultMaxConns = 6

	maxResponseBytes = 64 << 20
)

// Config captures the runtime settings required to talk to OpenRouter.
type Config struct {
	APIKey          string
	BaseURL         string
	AnalysisModel   string
	GenerationModel string
	Referer         string
	Title           string
	ImageSize       string
	// Timeout is an upper bound on a single HTTP exchange. Per-attempt
	// deadlines normally come from the request context.
	Timeout time.Duration
	// MaxConns caps connections per host; it must be at least the batch's
	// worker count.
	MaxConns int
}

// Client wraps the OpenRouter chat completion API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a Client. Empty fields fall back to the defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg = Config{
		APIKey:          strings.TrimSpace(cfg.APIKey),
		BaseURL:         firstNonEmpty(cfg.BaseURL, DefaultBaseURL),
		AnalysisModel:   firstNonEmpty(cfg.AnalysisModel, DefaultAnalysisModel),
		GenerationModel: firstNonEmpty(cfg.GenerationModel, DefaultGenerationModel),
		Referer:         strings.TrimSpace(cfg.Referer),
		Title:           strings.TrimSpace(cfg.Title),
		ImageSize:       firstNonEmpty(cfg.ImageSize, DefaultImageSize),
		Timeout:         cfg.Timeout,
		MaxConns:        cfg.MaxConns,
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = cfg.MaxConns
	transport.MaxIdleConnsPerHost = cfg.MaxConns

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConnLimit returns the per-host connection cap.
func (c *Client) ConnLimit() int {
	return c.cfg.MaxConns
}

// Analyze sends the image and instructions to the analysis model and returns
// the message text.
func (c *Client) Analyze(ctx context.Context, req localize.AnalysisRequest) (string, error) {
	op := "openrouter " + strings.ToLower(firstNonEmpty(req.Label, "analyze"))
	payload := chatCompletionRequest{
		Model:    c.cfg.AnalysisModel,
		Messages: []chatMessage{userMessage(req.Instructions, req.MIMEType, req.Image)},
	}

	completion, err := c.send(ctx, op, payload)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", retry.Fatalf(op, "response has no choices")
	}
	msg := completion.Choices[0].Message
	text := msg.text()
	if text == "" {
		return "", retry.Fatalf(op, "empty content (finish_reason=%q, refusal=%q)",
			completion.Choices[0].FinishReason, msg.Refusal)
	}
	return text, nil
}

// Generate sends the composed prompt and source image to the generation model
// and decodes the first returned image.
func (c *Client) Generate(ctx context.Context, req localize.GenerationRequest) (localize.GeneratedImage, error) {
	const op = "openrouter generation"
	payload := chatCompletionRequest{
		Model:      c.cfg.GenerationModel,
		Messages:   []chatMessage{userMessage(req.Prompt, req.MIMEType, req.Image)},
		Modalities: []string{"image", "text"},
	}
	if req.AspectRatio != "" {
		payload.ImageConfig = &imageConfig{AspectRatio: req.AspectRatio, ImageSize: c.cfg.ImageSize}
	}

	completion, err := c.send(ctx, op, payload)
	if err != nil {
		return localize.GeneratedImage{}, err
	}
	if len(completion.Choices) == 0 {
		return localize.GeneratedImage{}, retry.Fatalf(op, "response has no choices")
	}

	msg := completion.Choices[0].Message
	var payloadURL string
	if len(msg.Images) > 0 {
		payloadURL = msg.Images[0].ImageURL.URL
	} else if urls := msg.imageParts(); len(urls) > 0 {
		payloadURL = urls[0]
	}
	if payloadURL == "" {
		return localize.GeneratedImage{}, retry.Fatalf(op, "response contains no image (finish_reason=%q)", completion.Choices[0].FinishReason)
	}

	data, mimeType, err := filehandler.DecodeImagePayload(payloadURL)
	if err != nil {
		return localize.GeneratedImage{}, retry.Fatal(op, err)
	}
	return localize.GeneratedImage{Data: data, MIMEType: mimeType}, nil
}

func userMessage(text, mimeType string, image []byte) chatMessage {
	return chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: text},
			{Type: "image_url", ImageURL: &imageURL{URL: filehandler.EncodeDataURL(mimeType, image)}},
		},
	}
}

// send performs one HTTP exchange. The response body is always drained and
// closed before returning so the connection goes back to the pool.
func (c *Client) send(ctx context.Context, op string, payload chatCompletionRequest) (chatCompletionResponse, error) {
	var completion chatCompletionResponse

	if c.cfg.APIKey == "" {
		return completion, retry.Fatalf(op, "api key required")
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, retry.Fatalf(op, "encode body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return completion, retry.Fatalf(op, "new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		httpReq.Header.Set("X-Title", c.cfg.Title)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return completion, retry.Classify(op, fmt.Errorf("http error: %w", err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return completion, retry.Transient(op, fmt.Errorf("read body: %w", err))
	}

	log.Debug().
		Str("op", op).
		Str("model", payload.Model).
		Int("status", resp.StatusCode).
		Int("response_bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("OpenRouter response received")

	if resp.StatusCode >= http.StatusMultipleChoices {
		return completion, retry.StatusError(op, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, retry.Fatalf(op, "decode response: %w", err)
	}
	if completion.Error != nil {
		return completion, errorFromBody(op, completion.Error)
	}
	return completion, nil
}

// errorFromBody classifies an error object delivered with a 2xx status.
func errorFromBody(op string, e *apiError) error {
	code, _ := strconv.Atoi(strings.Trim(string(e.Code), `"`))
	msg := strings.TrimSpace(e.Message)
	if code > 0 {
		return retry.StatusError(op, code, msg)
	}
	return retry.Fatalf(op, "api error: %s", msg)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
