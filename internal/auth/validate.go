package auth

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/localize"
	"github.com/fpang/image-localizer/internal/metrics"
	"github.com/fpang/image-localizer/internal/retry"
)

// ValidationError represents a specific type of API key validation failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes validation failures.
type ValidationErrorType int

const (
	// ErrTypeNoKey indicates no API key was found.
	ErrTypeNoKey ValidationErrorType = iota
	// ErrTypeInvalidKey indicates the API key is invalid or revoked.
	ErrTypeInvalidKey
	// ErrTypeNetworkError indicates a network connectivity issue.
	ErrTypeNetworkError
	// ErrTypeQuotaExceeded indicates the API quota has been exceeded.
	ErrTypeQuotaExceeded
	// ErrTypeUnknown indicates an unknown error occurred.
	ErrTypeUnknown
)

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// probeImage is a 1x1 PNG sent with the validation request.
var probeImage = func() []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1)))
	return buf.Bytes()
}()

// ValidateAPIKey verifies the configured key by making one minimal analysis
// call. It returns nil if the key works, or a ValidationError whose Type
// describes the failure. The result is emitted as an EMF metric.
func ValidateAPIKey(ctx context.Context, svc localize.AnalysisService, provider string) error {
	log.Debug().Str("provider", provider).Msg("Validating API key")

	start := time.Now()
	_, err := svc.Analyze(ctx, localize.AnalysisRequest{
		Label:        "VALIDATE",
		Image:        probeImage,
		MIMEType:     "image/png",
		Instructions: "Reply with the single word: ok",
	})
	elapsed := time.Since(start)

	result := "success"
	var valErr *ValidationError
	if err != nil {
		valErr = classifyError(err)
		switch valErr.Type {
		case ErrTypeInvalidKey:
			result = "invalid"
		case ErrTypeNetworkError:
			result = "network_error"
		case ErrTypeQuotaExceeded:
			result = "quota"
		default:
			result = "unknown"
		}
	}

	metrics.New(metrics.Namespace).
		Dimension("Provider", provider).
		Dimension("Result", result).
		Metric("ApiKeyValidationMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("ApiKeyValidationResult").
		Flush()

	log.Debug().
		Str("result", result).
		Dur("duration", elapsed).
		Msg("API key validation result")

	if valErr != nil {
		return valErr
	}
	log.Info().Str("provider", provider).Msg("API key validated successfully")
	return nil
}

// classifyError maps a transport error onto a ValidationError using the
// status code carried by the retry taxonomy.
func classifyError(err error) *ValidationError {
	var transient *retry.TransientError
	var fatal *retry.FatalError
	status := 0
	switch {
	case errors.As(err, &transient):
		status = transient.StatusCode
		if status == 0 {
			log.Error().Err(err).Msg("Network error during API validation")
			return &ValidationError{
				Type:    ErrTypeNetworkError,
				Message: "Network error - check your internet connection",
				Err:     err,
			}
		}
	case errors.As(err, &fatal):
		status = fatal.StatusCode
	}

	switch {
	case status == 400 || status == 401 || status == 403:
		log.Error().Int("code", status).Msg("Authentication failed - invalid API key")
		return &ValidationError{
			Type:    ErrTypeInvalidKey,
			Message: "API key is invalid, expired, or lacks permissions",
			Err:     err,
		}

	case status == 402 || status == 429:
		log.Error().Int("code", status).Msg("Rate limit or credit limit exceeded")
		return &ValidationError{
			Type:    ErrTypeQuotaExceeded,
			Message: "API quota exceeded or rate limited - try again later",
			Err:     err,
		}

	case status >= 500:
		log.Error().Int("code", status).Msg("Server error during validation")
		return &ValidationError{
			Type:    ErrTypeNetworkError,
			Message: "API server error - try again later",
			Err:     err,
		}

	default:
		log.Error().Err(err).Msg("Unknown error during API validation")
		return &ValidationError{
			Type:    ErrTypeUnknown,
			Message: "Failed to validate API key",
			Err:     err,
		}
	}
}
