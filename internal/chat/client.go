// Package chat implements the analysis and generation services on the
// Gemini API through google.golang.org/genai.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/image-localizer/internal/localize"
	"github.com/fpang/image-localizer/internal/retry"
)

// DefaultMaxConns bounds concurrent connections to the Gemini host.
const DefaultMaxConns = 6

// contentGenerator is the subset of *genai.Models the client needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds the Gemini client settings.
type Config struct {
	APIKey          string
	AnalysisModel   string
	GenerationModel string
	MaxConns        int
}

// Client issues one GenerateContent call per request and classifies failures
// as retry.TransientError or retry.FatalError.
type Client struct {
	models          contentGenerator
	analysisModel   string
	generationModel string
	maxConns        int
}

// NewClient creates a Gemini client with a connection-capped transport.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key required")
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = maxConns
	transport.MaxIdleConnsPerHost = maxConns

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     strings.TrimSpace(cfg.APIKey),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c := newClient(gc.Models, cfg)
	c.maxConns = maxConns
	return c, nil
}

func newClient(models contentGenerator, cfg Config) *Client {
	c := &Client{
		models:          models,
		analysisModel:   cfg.AnalysisModel,
		generationModel: cfg.GenerationModel,
		maxConns:        cfg.MaxConns,
	}
	if c.analysisModel == "" {
		c.analysisModel = GetModelName()
	}
	if c.generationModel == "" {
		c.generationModel = GetImageModelName()
	}
	if c.maxConns <= 0 {
		c.maxConns = DefaultMaxConns
	}
	return c
}

// ConnLimit returns the per-host connection cap.
func (c *Client) ConnLimit() int {
	return c.maxConns
}

// Analyze sends the image and instructions to the analysis model and returns
// the response text.
func (c *Client) Analyze(ctx context.Context, req localize.AnalysisRequest) (string, error) {
	op := "gemini " + strings.ToLower(req.Label)
	config := &genai.GenerateContentConfig{ResponseModalities: []string{"TEXT"}}

	resp, err := c.generate(ctx, op, c.analysisModel, userContent(req.Instructions, req.MIMEType, req.Image), config)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", retry.Fatalf(op, "empty response text (%s)", finishReason(resp))
	}
	return text, nil
}

// Generate asks the image model for a localized rendition of the input.
func (c *Client) Generate(ctx context.Context, req localize.GenerationRequest) (localize.GeneratedImage, error) {
	const op = "gemini generation"
	config := &genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}}
	if req.AspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
	}

	resp, err := c.generate(ctx, op, c.generationModel, userContent(req.Prompt, req.MIMEType, req.Image), config)
	if err != nil {
		return localize.GeneratedImage{}, err
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return localize.GeneratedImage{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
			}
		}
	}
	return localize.GeneratedImage{}, retry.Fatalf(op, "no image returned in response (%s)", finishReason(resp))
}

func (c *Client) generate(ctx context.Context, op, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, model, contents, config)
	elapsed := time.Since(start)
	if err != nil {
		log.Debug().Err(err).Str("op", op).Str("model", model).Dur("duration", elapsed).Msg("Gemini API call failed")
		return nil, classifyError(op, err)
	}
	if resp == nil {
		return nil, retry.Fatalf(op, "received empty response from Gemini API")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, retry.Fatalf(op, "prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	log.Debug().
		Str("op", op).
		Str("model", model).
		Int("candidates", len(resp.Candidates)).
		Dur("duration", elapsed).
		Msg("Gemini API response received")
	return resp, nil
}

func userContent(text, mimeType string, image []byte) []*genai.Content {
	return []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
			{Text: text},
		},
	}}
}

// classifyError maps a genai error onto the retry taxonomy. API errors are
// classified by HTTP status; anything else goes through retry.Classify.
func classifyError(op string, err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch apiErr := any(e).(type) {
		case genai.APIError:
			return retry.StatusError(op, apiErr.Code, apiErr.Message)
		case *genai.APIError:
			if apiErr != nil {
				return retry.StatusError(op, apiErr.Code, apiErr.Message)
			}
		}
	}
	return retry.Classify(op, err)
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "no candidates"
	}
	return "finish_reason=" + string(resp.Candidates[0].FinishReason)
}
