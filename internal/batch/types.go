// Package batch runs a set of independent image localization jobs with a
// global concurrency ceiling and reassembles their outcomes in submission
// order.
//
// Jobs report through a channel to a single aggregating goroutine, which owns
// the only mutable collection of outcomes. A job's failure is converted into
// a Failure outcome and never affects its siblings; the only errors Submit
// itself returns are configuration problems found before any job starts.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fpang/image-localizer/internal/retry"
)

// Default run parameters.
const (
	DefaultMaxWorkers  = 6
	DefaultMaxRetries  = 3
	DefaultCallTimeout = 300 * time.Second
	DefaultBackoffUnit = time.Second
	DefaultLanguage    = "English"
)

// ErrInvalidConfig marks a batch-fatal configuration problem.
var ErrInvalidConfig = errors.New("invalid batch configuration")

// ImageInput is one job's immutable input.
type ImageInput struct {
	Name     string
	MIMEType string
	Data     []byte
}

// RunParameters is shared read-only by every job in a batch.
type RunParameters struct {
	Language          string
	ExtraInstructions string
	// AspectRatio is a ratio such as "4:5"; empty means keep the original.
	AspectRatio string
	APIKey      string
	MaxWorkers  int
	CallTimeout time.Duration
	MaxRetries  int
	// BackoffUnit is the base retry delay. Zero selects DefaultBackoffUnit.
	BackoffUnit time.Duration
}

// DefaultRunParameters returns parameters populated with the defaults.
func DefaultRunParameters() RunParameters {
	return RunParameters{
		Language:    DefaultLanguage,
		MaxWorkers:  DefaultMaxWorkers,
		CallTimeout: DefaultCallTimeout,
		MaxRetries:  DefaultMaxRetries,
		BackoffUnit: DefaultBackoffUnit,
	}
}

// Validate reports every configuration problem at once.
func (p RunParameters) Validate() error {
	var errs []error
	if p.APIKey == "" {
		errs = append(errs, errors.New("missing API credential"))
	}
	if p.Language == "" {
		errs = append(errs, errors.New("target language is required"))
	}
	if p.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("max workers must be at least 1, got %d", p.MaxWorkers))
	}
	if p.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max retries must be at least 1, got %d", p.MaxRetries))
	}
	if p.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("call timeout must be positive, got %s", p.CallTimeout))
	}
	if p.BackoffUnit < 0 {
		errs = append(errs, fmt.Errorf("backoff unit must not be negative, got %s", p.BackoffUnit))
	}
	if p.AspectRatio != "" && !IsSupportedAspectRatio(p.AspectRatio) {
		errs = append(errs, fmt.Errorf("unsupported aspect ratio %q", p.AspectRatio))
	}
	return errors.Join(errs...)
}

// JobResult is what a Runner produces for one successful job.
type JobResult struct {
	Image    []byte
	MIMEType string
	// Localization is the stage-one analysis text, kept for reporting.
	Localization string
}

// Runner executes the full stage sequence for a single input.
type Runner interface {
	Run(ctx context.Context, input ImageInput, params RunParameters) (JobResult, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, input ImageInput, params RunParameters) (JobResult, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, input ImageInput, params RunParameters) (JobResult, error) {
	return f(ctx, input, params)
}

// ConnLimiter is implemented by runners whose transport caps concurrent
// connections. A limit of zero means unlimited.
type ConnLimiter interface {
	ConnLimit() int
}

// Status tags a JobOutcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// JobOutcome is the terminal result of one job. Image and ImageMIMEType are
// set only on success; ErrorKind and ErrorDetail only on failure.
type JobOutcome struct {
	Index         int           `json:"index"`
	OriginalName  string        `json:"originalName"`
	Status        Status        `json:"status"`
	Image         []byte        `json:"-"`
	ImageMIMEType string        `json:"mimeType,omitempty"`
	ErrorKind     retry.Kind    `json:"errorKind,omitempty"`
	ErrorDetail   string        `json:"error,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
	Localization  string        `json:"-"`
}

// Succeeded reports whether the job produced an image.
func (o JobOutcome) Succeeded() bool {
	return o.Status == StatusSuccess
}
