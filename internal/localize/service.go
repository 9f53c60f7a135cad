// Package localize runs the per-image stage sequence: overlay localization
// analysis, optional aspect adaptation analysis, prompt composition and
// image generation. Every remote stage goes through a retry.Caller.
package localize

import (
	"context"
)

// Call labels, used in retry diagnostics and logs.
const (
	LabelLocalization = "LOCALIZATION"
	LabelAspect       = "ASPECT"
	LabelGeneration   = "GENERATION"
)

// AnalysisRequest asks the analysis model a question about one image.
type AnalysisRequest struct {
	Label        string
	Image        []byte
	MIMEType     string
	Instructions string
}

// GenerationRequest asks the generation model to produce one image.
type GenerationRequest struct {
	Prompt   string
	Image    []byte
	MIMEType string
	// AspectRatio is an optional hint such as "4:5".
	AspectRatio string
}

// GeneratedImage is the decoded output of a generation call.
type GeneratedImage struct {
	Data     []byte
	MIMEType string
}

// AnalysisService returns free-form text for an image and instructions.
// Implementations return *retry.TransientError or *retry.FatalError.
type AnalysisService interface {
	Analyze(ctx context.Context, req AnalysisRequest) (string, error)
}

// GenerationService produces exactly one image. A response without a usable
// image must be reported as *retry.FatalError.
type GenerationService interface {
	Generate(ctx context.Context, req GenerationRequest) (GeneratedImage, error)
}
