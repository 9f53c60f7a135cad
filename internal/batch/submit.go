package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ProgressFunc is called once per finished job, from the aggregating
// goroutine, with the number of jobs completed so far.
type ProgressFunc func(outcome JobOutcome, completed, total int)

type submitOptions struct {
	onOutcome ProgressFunc
	batchID   string
}

// Option customizes Submit.
type Option func(*submitOptions)

// WithOnOutcome registers a progress callback.
func WithOnOutcome(fn ProgressFunc) Option {
	return func(o *submitOptions) {
		o.onOutcome = fn
	}
}

// WithBatchID overrides the generated batch ID.
func WithBatchID(id string) Option {
	return func(o *submitOptions) {
		o.batchID = id
	}
}

// Submit runs every input through runner and blocks until each has produced
// exactly one outcome. It returns an error only for configuration problems
// detected before scheduling; individual job failures are reported inside
// the BatchResult.
func Submit(ctx context.Context, inputs []ImageInput, params RunParameters, runner Runner, opts ...Option) (*BatchResult, error) {
	options := submitOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.batchID == "" {
		options.batchID = uuid.NewString()
	}

	if err := checkConfig(params, runner); err != nil {
		return nil, err
	}

	start := time.Now()
	total := len(inputs)
	agg := NewAggregator(total)

	log.Info().
		Str("batch", options.batchID).
		Int("jobs", total).
		Int("max_workers", params.MaxWorkers).
		Str("language", params.Language).
		Str("aspect_ratio", params.AspectRatio).
		Msg("Batch started")

	if total > 0 {
		scheduler := NewScheduler(params.MaxWorkers, runner)
		for outcome := range scheduler.Run(ctx, inputs, params) {
			if err := agg.Add(outcome); err != nil {
				// Unreachable with the scheduler's one-outcome-per-index contract.
				log.Error().Err(err).Str("batch", options.batchID).Msg("Dropping invalid outcome")
				continue
			}
			if options.onOutcome != nil {
				options.onOutcome(outcome, agg.Len(), total)
			}
		}
	}

	result, err := agg.Finalize(options.batchID, time.Since(start))
	if err != nil {
		return nil, err
	}

	counts := result.Counts()
	log.Info().
		Str("batch", options.batchID).
		Int("succeeded", counts.Succeeded).
		Int("failed", counts.Failed).
		Int("total", counts.Total).
		Dur("elapsed", result.Elapsed).
		Msg("Batch complete")
	return result, nil
}

func checkConfig(params RunParameters, runner Runner) error {
	var errs []error
	if runner == nil {
		errs = append(errs, errors.New("no job runner configured"))
	}
	if err := params.Validate(); err != nil {
		errs = append(errs, err)
	}
	if limiter, ok := runner.(ConnLimiter); ok {
		if limit := limiter.ConnLimit(); limit > 0 && limit < params.MaxWorkers {
			errs = append(errs, fmt.Errorf("transport connection limit %d is below max workers %d", limit, params.MaxWorkers))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
