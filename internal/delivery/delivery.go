// Package delivery uploads the successful outputs of a batch to remote
// storage after the batch has finished.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/archive"
	"github.com/fpang/image-localizer/internal/batch"
	"github.com/fpang/image-localizer/internal/filehandler"
)

// ErrDestinationUnavailable is returned by Verify when the destination cannot
// be written to. Callers treat it as a configuration error.
var ErrDestinationUnavailable = errors.New("upload destination unavailable")

// Uploader stores finished images in a remote location.
type Uploader interface {
	// Destination describes where files go, for logs and reports.
	Destination() string
	// Verify checks the destination is reachable and writable.
	Verify(ctx context.Context) error
	// Upload stores one file and returns its remote location.
	Upload(ctx context.Context, name, mimeType string, data []byte) (string, error)
}

// Uploaded records one stored file.
type Uploaded struct {
	Index    int
	Name     string
	Location string
}

// Report summarises an UploadAll run.
type Report struct {
	Destination string
	Uploaded    []Uploaded
	Errors      []archive.ItemError
	Elapsed     time.Duration
}

// UploadAll uploads every success one at a time, named the same way as the
// archive entries. A failed or undecodable item is recorded in the report
// and the remaining items are still uploaded. Cancelling ctx stops the loop.
func UploadAll(ctx context.Context, u Uploader, prefix string, successes []batch.JobOutcome) (Report, error) {
	start := time.Now()
	report := Report{Destination: u.Destination()}
	names := archive.EntryNames(prefix, successes)

	log.Info().
		Str("destination", report.Destination).
		Int("items", len(successes)).
		Msg("Starting upload")

	for i, outcome := range successes {
		if err := ctx.Err(); err != nil {
			report.Elapsed = time.Since(start)
			return report, fmt.Errorf("upload interrupted: %w", err)
		}
		if _, err := filehandler.ValidateImage(outcome.Image); err != nil {
			report.Errors = append(report.Errors, archive.ItemError{Index: outcome.Index, OriginalName: outcome.OriginalName, Err: err})
			continue
		}

		location, err := u.Upload(ctx, names[i], outcome.ImageMIMEType, outcome.Image)
		if err != nil {
			log.Warn().Err(err).Int("job", outcome.Index).Str("file", names[i]).Msg("Upload failed")
			report.Errors = append(report.Errors, archive.ItemError{Index: outcome.Index, OriginalName: outcome.OriginalName, Err: err})
			continue
		}
		log.Info().Int("job", outcome.Index).Str("file", names[i]).Str("location", location).Msg("Uploaded")
		report.Uploaded = append(report.Uploaded, Uploaded{Index: outcome.Index, Name: names[i], Location: location})
	}

	report.Elapsed = time.Since(start)
	log.Info().
		Str("destination", report.Destination).
		Int("uploaded", len(report.Uploaded)).
		Int("failed", len(report.Errors)).
		Dur("elapsed", report.Elapsed).
		Msg("Upload complete")
	return report, nil
}
