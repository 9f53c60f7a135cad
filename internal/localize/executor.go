package localize

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/assets"
	"github.com/fpang/image-localizer/internal/batch"
	"github.com/fpang/image-localizer/internal/retry"
)

// StageResult is the output of a fully successful stage sequence.
type StageResult = batch.JobResult

// Executor implements batch.Runner over an analysis and a generation service.
type Executor struct {
	analysis   AnalysisService
	generation GenerationService
	callerOpts []retry.Option
}

// NewExecutor creates an Executor. The retry policy is derived from each
// batch's RunParameters; opts are applied on top (e.g. retry.WithSleeper in
// tests).
func NewExecutor(analysis AnalysisService, generation GenerationService, opts ...retry.Option) *Executor {
	return &Executor{
		analysis:   analysis,
		generation: generation,
		callerOpts: opts,
	}
}

// ConnLimit reports the smallest connection limit among the underlying
// services, or 0 when neither declares one.
func (e *Executor) ConnLimit() int {
	limit := 0
	for _, svc := range []any{e.analysis, e.generation} {
		l, ok := svc.(batch.ConnLimiter)
		if !ok {
			continue
		}
		if n := l.ConnLimit(); n > 0 && (limit == 0 || n < limit) {
			limit = n
		}
	}
	return limit
}

// Run executes localize, then aspect (when a ratio is requested), then
// generate. Stages are strictly sequential and any stage failure aborts the
// job without producing an image.
func (e *Executor) Run(ctx context.Context, input batch.ImageInput, params batch.RunParameters) (StageResult, error) {
	if e.analysis == nil || e.generation == nil {
		return StageResult{}, retry.Fatal("job", errors.New("executor is missing a service"))
	}
	if len(input.Data) == 0 {
		return StageResult{}, retry.Fatalf("job", "input %q has no image data", input.Name)
	}
	mimeType := input.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(input.Data)
	}

	caller := e.callerFor(params)

	localization, err := e.analyze(ctx, caller, AnalysisRequest{
		Label:        LabelLocalization,
		Image:        input.Data,
		MIMEType:     mimeType,
		Instructions: assets.RenderLocalizationPrompt(params.Language, params.ExtraInstructions),
	})
	if err != nil {
		return StageResult{}, err
	}
	log.Debug().Str("file", input.Name).Int("chars", len(localization)).Msg("Localization analysis complete")

	var aspect string
	if params.AspectRatio != "" {
		aspect, err = e.analyze(ctx, caller, AnalysisRequest{
			Label:        LabelAspect,
			Image:        input.Data,
			MIMEType:     mimeType,
			Instructions: assets.RenderAspectPrompt(params.AspectRatio),
		})
		if err != nil {
			return StageResult{}, err
		}
		log.Debug().Str("file", input.Name).Str("ratio", params.AspectRatio).Msg("Aspect analysis complete")
	}

	prompt := ComposePrompt(aspect, localization)

	img, err := retry.Call(ctx, caller, LabelGeneration, func(ctx context.Context) (GeneratedImage, error) {
		img, err := e.generation.Generate(ctx, GenerationRequest{
			Prompt:      prompt,
			Image:       input.Data,
			MIMEType:    mimeType,
			AspectRatio: params.AspectRatio,
		})
		if err != nil {
			return GeneratedImage{}, err
		}
		if len(img.Data) == 0 {
			return GeneratedImage{}, retry.Fatalf(LabelGeneration, "generation succeeded at the transport layer but produced no usable image")
		}
		return img, nil
	})
	if err != nil {
		return StageResult{}, err
	}

	outMIME := img.MIMEType
	if outMIME == "" {
		outMIME = http.DetectContentType(img.Data)
	}
	return StageResult{
		Image:        img.Data,
		MIMEType:     outMIME,
		Localization: localization,
	}, nil
}

func (e *Executor) analyze(ctx context.Context, caller *retry.Caller, req AnalysisRequest) (string, error) {
	return retry.Call(ctx, caller, req.Label, func(ctx context.Context) (string, error) {
		text, err := e.analysis.Analyze(ctx, req)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", retry.Fatalf(req.Label, "analysis returned empty content")
		}
		return text, nil
	})
}

func (e *Executor) callerFor(params batch.RunParameters) *retry.Caller {
	unit := params.BackoffUnit
	if unit == 0 {
		unit = batch.DefaultBackoffUnit
	}
	opts := []retry.Option{
		retry.WithMaxAttempts(params.MaxRetries),
		retry.WithTimeout(params.CallTimeout),
		retry.WithBaseDelay(unit),
	}
	return retry.New(append(opts, e.callerOpts...)...)
}
