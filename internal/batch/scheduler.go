package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/fpang/image-localizer/internal/retry"
)

// Scheduler fans jobs out across a fixed number of execution slots. A job
// holds its slot from before its first network call until its terminal
// outcome is produced, so the ceiling bounds in-flight remote work rather
// than goroutines.
type Scheduler struct {
	maxWorkers int
	runner     Runner
}

// NewScheduler creates a Scheduler with the given ceiling. A non-positive
// ceiling selects DefaultMaxWorkers.
func NewScheduler(maxWorkers int, runner Runner) *Scheduler {
	if maxWorkers < 1 {
		maxWorkers = DefaultMaxWorkers
	}
	return &Scheduler{maxWorkers: maxWorkers, runner: runner}
}

// MaxWorkers returns the concurrency ceiling.
func (s *Scheduler) MaxWorkers() int {
	return s.maxWorkers
}

// Run starts one job per input and returns a channel that yields exactly one
// outcome per input in completion order. The channel is closed after the last
// outcome. Cancelling ctx makes queued and in-flight jobs report Cancelled
// failures at their next suspension point; no job is dropped.
func (s *Scheduler) Run(ctx context.Context, inputs []ImageInput, params RunParameters) <-chan JobOutcome {
	out := make(chan JobOutcome, len(inputs))
	sem := semaphore.NewWeighted(int64(s.maxWorkers))

	var wg sync.WaitGroup
	for i, input := range inputs {
		wg.Add(1)
		go func(index int, input ImageInput) {
			defer wg.Done()
			out <- s.runJob(ctx, sem, index, input, params)
		}(i, input)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func (s *Scheduler) runJob(ctx context.Context, sem *semaphore.Weighted, index int, input ImageInput, params RunParameters) JobOutcome {
	if err := sem.Acquire(ctx, 1); err != nil {
		return cancelledOutcome(index, input, err, 0)
	}
	defer sem.Release(1)

	// Acquire can win the race against a cancellation that already happened.
	if err := ctx.Err(); err != nil {
		return cancelledOutcome(index, input, err, 0)
	}

	start := time.Now()
	log.Debug().Int("job", index).Str("file", input.Name).Msg("Job started")

	result, err := s.execute(ctx, input, params)
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && retry.KindOf(err) != retry.KindCancelled {
			err = &retry.CancelledError{Label: input.Name, Err: fmt.Errorf("%w (job error: %v)", ctxErr, err)}
		}
		outcome := failureOutcome(index, input, err, elapsed)
		log.Error().
			Int("job", index).
			Str("file", input.Name).
			Str("kind", string(outcome.ErrorKind)).
			Str("error", outcome.ErrorDetail).
			Dur("elapsed", elapsed).
			Msg("Job failed")
		return outcome
	}

	log.Info().
		Int("job", index).
		Str("file", input.Name).
		Int("bytes", len(result.Image)).
		Dur("elapsed", elapsed).
		Msg("Job succeeded")

	return JobOutcome{
		Index:         index,
		OriginalName:  input.Name,
		Status:        StatusSuccess,
		Image:         result.Image,
		ImageMIMEType: result.MIMEType,
		Elapsed:       elapsed,
		Localization:  result.Localization,
	}
}

// execute isolates a panicking runner into a fatal failure for this job only.
func (s *Scheduler) execute(ctx context.Context, input ImageInput, params RunParameters) (result JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = retry.Fatalf("job", "panic: %v", r)
		}
	}()
	return s.runner.Run(ctx, input, params)
}

func failureOutcome(index int, input ImageInput, err error, elapsed time.Duration) JobOutcome {
	return JobOutcome{
		Index:        index,
		OriginalName: input.Name,
		Status:       StatusFailure,
		ErrorKind:    retry.KindOf(err),
		ErrorDetail:  err.Error(),
		Elapsed:      elapsed,
	}
}

func cancelledOutcome(index int, input ImageInput, err error, elapsed time.Duration) JobOutcome {
	return failureOutcome(index, input, &retry.CancelledError{Label: input.Name, Err: err}, elapsed)
}
