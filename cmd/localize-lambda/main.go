// Package main provides the Lambda entry point for batch image localization.
//
// The handler downloads the requested images from the media bucket, runs
// them through the localization batch, and writes the generated images and
// their ZIP archive under <sessionId>/generated/<batchId>/ in the same
// bucket. The response carries a presigned download URL for the archive.
//
// Invoked synchronously by the API layer.
package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/cli"
	"github.com/fpang/image-localizer/internal/config"
	"github.com/fpang/image-localizer/internal/lambdaboot"
	"github.com/fpang/image-localizer/internal/localize"
	"github.com/fpang/image-localizer/internal/logging"
)

var coldStart = true

var app *localizer

// setup performs cold-start initialization. It runs from main rather than
// init so the package's tests can build without AWS credentials or SSM.
func setup() *localizer {
	initStart := time.Now()
	logging.InitJSON()

	// config.Load expands ~ in its default path.
	if os.Getenv("HOME") == "" {
		os.Setenv("HOME", os.TempDir())
	}

	aws := lambdaboot.InitAWS()
	s3s := lambdaboot.InitS3(aws.Config, "MEDIA_BUCKET_NAME")

	provider := logging.EnvOrDefault("LOCALIZER_PROVIDER", "openrouter")
	keyParam := lambdaboot.MustLoadAPIKey(aws.SSM, provider)

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	services, err := cli.NewServices(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AI client")
	}

	l := &localizer{
		cfg:       cfg,
		provider:  cfg.Provider,
		bucket:    s3s.Bucket,
		objects:   s3s.Client,
		presigner: s3s.Presigner,
		runner:    localize.NewExecutor(services.Analysis, services.Generation),
		metrics:   os.Stdout,
	}

	sl := lambdaboot.StartupLog("localize-lambda", initStart).
		S3Bucket("mediaBucket", s3s.Bucket).
		Config("provider", cfg.Provider).
		Config("maxWorkers", strconv.Itoa(cfg.Run.MaxWorkers)).
		Feature("archive", cfg.Archive.Enabled)
	if keyParam != "" {
		sl.SSMParam("apiKey", keyParam)
	}
	sl.Log()
	return l
}

func main() {
	app = setup()
	lambda.Start(handler)
}

func handler(ctx context.Context, event LocalizeEvent) (LocalizeResult, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "localize-lambda").Msg("Cold start: first invocation")
	}
	log.Info().
		Str("sessionId", event.SessionID).
		Int("keys", len(event.Keys)).
		Str("language", event.Language).
		Msg("Localize Lambda invoked")
	return app.handle(ctx, event)
}
