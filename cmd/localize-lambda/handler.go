package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/archive"
	"github.com/fpang/image-localizer/internal/batch"
	"github.com/fpang/image-localizer/internal/config"
	"github.com/fpang/image-localizer/internal/delivery"
	"github.com/fpang/image-localizer/internal/filehandler"
	"github.com/fpang/image-localizer/internal/metrics"
	"github.com/fpang/image-localizer/internal/s3util"
)

// archiveURLExpiry is the lifetime of the archive download link.
const archiveURLExpiry = time.Hour

// objectStore is the S3 surface the handler needs.
type objectStore interface {
	s3util.ObjectGetter
	delivery.BucketAPI
}

type localizer struct {
	cfg       *config.Config
	provider  string
	bucket    string
	objects   objectStore
	presigner s3util.Presigner
	runner    batch.Runner
	metrics   io.Writer
	// newBatchID is replaced in tests.
	newBatchID func() string
}

func (l *localizer) handle(ctx context.Context, event LocalizeEvent) (LocalizeResult, error) {
	start := time.Now()
	params, err := l.parameters(event)
	if err != nil {
		return LocalizeResult{}, err
	}

	inputs, err := l.download(ctx, event)
	if err != nil {
		return LocalizeResult{}, err
	}

	batchID := uuid.NewString()
	if l.newBatchID != nil {
		batchID = l.newBatchID()
	}
	logger := log.With().Str("sessionId", event.SessionID).Str("batchId", batchID).Logger()

	result, err := batch.Submit(ctx, inputs, params, l.runner, batch.WithBatchID(batchID))
	if err != nil {
		return LocalizeResult{}, err
	}
	if l.metrics != nil {
		metrics.RecordBatch(l.metrics, l.provider, result)
	}

	resp := LocalizeResult{
		BatchID: batchID,
		Summary: result.Summary(),
		Counts:  result.Counts(),
		Items:   make([]ItemResult, 0, result.Total()),
	}
	for _, o := range result.All() {
		resp.Items = append(resp.Items, ItemResult{
			Index:     o.Index,
			SourceKey: event.Keys[o.Index],
			Status:    o.Status,
			ErrorKind: o.ErrorKind,
			Error:     o.ErrorDetail,
			ElapsedMs: o.Elapsed.Milliseconds(),
		})
	}

	successes := result.Succeeded()
	if len(successes) == 0 {
		logger.Warn().Msg("No image was localized")
		resp.ElapsedMs = time.Since(start).Milliseconds()
		return resp, nil
	}

	uploader := delivery.NewS3Uploader(l.objects, l.bucket, s3util.ObjectKey(event.SessionID, "generated", batchID))
	report, err := delivery.UploadAll(ctx, uploader, l.cfg.Archive.Prefix, successes)
	if err != nil {
		return resp, err
	}
	for _, u := range report.Uploaded {
		resp.Items[u.Index].OutputKey = u.Location
	}
	for _, ie := range report.Errors {
		resp.Items[ie.Index].UploadError = ie.Err.Error()
	}

	if l.archiveEnabled(event) {
		if err := l.uploadArchive(ctx, uploader, successes, &resp); err != nil {
			logger.Error().Err(err).Msg("Archive failed")
			return resp, err
		}
	}

	resp.ElapsedMs = time.Since(start).Milliseconds()
	logger.Info().
		Int("succeeded", resp.Counts.Succeeded).
		Int("failed", resp.Counts.Failed).
		Str("archiveKey", resp.ArchiveKey).
		Int64("elapsedMs", resp.ElapsedMs).
		Msg("Localization batch complete")
	return resp, nil
}

func (l *localizer) parameters(event LocalizeEvent) (batch.RunParameters, error) {
	if event.SessionID == "" {
		return batch.RunParameters{}, errors.New("sessionId is required")
	}
	if strings.ContainsAny(event.SessionID, "/.") {
		return batch.RunParameters{}, fmt.Errorf("invalid sessionId %q", event.SessionID)
	}
	if len(event.Keys) == 0 {
		return batch.RunParameters{}, errors.New("at least one key is required")
	}
	for _, key := range event.Keys {
		if !strings.HasPrefix(key, event.SessionID+"/") || path.Clean(key) != key {
			return batch.RunParameters{}, fmt.Errorf("key %q is outside session %s", key, event.SessionID)
		}
	}

	params := l.cfg.RunParameters()
	if event.Language != "" {
		params.Language = event.Language
	}
	if event.ExtraInstructions != "" {
		params.ExtraInstructions = event.ExtraInstructions
	}
	if event.AspectRatio != "" {
		ratio, err := batch.ParseAspectRatio(event.AspectRatio)
		if err != nil {
			return batch.RunParameters{}, err
		}
		params.AspectRatio = ratio
	}
	if err := params.Validate(); err != nil {
		return batch.RunParameters{}, err
	}
	return params, nil
}

// download fetches every key in order. Any failure rejects the whole
// request before API budget is spent.
func (l *localizer) download(ctx context.Context, event LocalizeEvent) ([]batch.ImageInput, error) {
	inputs := make([]batch.ImageInput, 0, len(event.Keys))
	for _, key := range event.Keys {
		data, contentType, err := s3util.DownloadBytes(ctx, l.objects, l.bucket, key, filehandler.MaxInputBytes)
		if err != nil {
			return nil, err
		}
		mimeType, err := filehandler.GetMIMEType(path.Ext(key))
		if err != nil {
			if !strings.HasPrefix(contentType, "image/") {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			mimeType = contentType
		}
		inputs = append(inputs, batch.ImageInput{Name: path.Base(key), MIMEType: mimeType, Data: data})
	}
	return inputs, nil
}

func (l *localizer) archiveEnabled(event LocalizeEvent) bool {
	if event.Archive != nil {
		return *event.Archive
	}
	return l.cfg.Archive.Enabled
}

func (l *localizer) uploadArchive(ctx context.Context, uploader *delivery.S3Uploader, successes []batch.JobOutcome, resp *LocalizeResult) error {
	compression, err := archive.ParseCompression(l.cfg.Archive.Compression)
	if err != nil {
		return err
	}
	b := archive.NewBuilder()
	if l.cfg.Archive.Name != "" {
		b.Name = l.cfg.Archive.Name
	}
	b.Prefix = l.cfg.Archive.Prefix
	b.Compression = compression

	arc, _, err := b.Build(successes)
	if err != nil {
		return err
	}
	if arc.Len() == 0 {
		return nil
	}
	key, err := uploader.Upload(ctx, arc.Name, "application/zip", arc.Data)
	if err != nil {
		return err
	}
	resp.ArchiveKey = key
	if l.presigner != nil {
		url, err := s3util.GeneratePresignedURL(ctx, l.presigner, l.bucket, key, archiveURLExpiry)
		if err != nil {
			return err
		}
		resp.ArchiveURL = url
	}
	return nil
}
