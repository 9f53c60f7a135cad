package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/fpang/image-localizer/internal/batch"
)

// Progress renders a terminal progress bar fed by batch outcomes.
type Progress struct {
	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	failed int
}

// NewProgress creates a progress bar for total jobs writing to w.
func NewProgress(w io.Writer, total int) *Progress {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Localizing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	return &Progress{bar: bar}
}

// Update implements batch.ProgressFunc.
func (p *Progress) Update(outcome batch.JobOutcome, completed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !outcome.Succeeded() {
		p.failed++
		p.bar.Describe(fmt.Sprintf("Localizing (%d failed)", p.failed))
	}
	_ = p.bar.Set(completed)
}

// Finish completes the bar.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
}

// Failed returns how many failed outcomes were seen.
func (p *Progress) Failed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}
