package main

import (
	"github.com/fpang/image-localizer/internal/batch"
	"github.com/fpang/image-localizer/internal/retry"
)

// LocalizeEvent is the invocation payload. Keys must live under the
// session's prefix in the media bucket.
type LocalizeEvent struct {
	SessionID         string   `json:"sessionId"`
	Keys              []string `json:"keys"`
	Language          string   `json:"language,omitempty"`
	AspectRatio       string   `json:"aspectRatio,omitempty"`
	ExtraInstructions string   `json:"extraInstructions,omitempty"`
	// Archive overrides the configured archive setting when set.
	Archive *bool `json:"archive,omitempty"`
}

// ItemResult reports one job.
type ItemResult struct {
	Index       int          `json:"index"`
	SourceKey   string       `json:"sourceKey"`
	Status      batch.Status `json:"status"`
	OutputKey   string       `json:"outputKey,omitempty"`
	ErrorKind   retry.Kind   `json:"errorKind,omitempty"`
	Error       string       `json:"error,omitempty"`
	ElapsedMs   int64        `json:"elapsedMs"`
	UploadError string       `json:"uploadError,omitempty"`
}

// LocalizeResult is the invocation response.
type LocalizeResult struct {
	BatchID    string       `json:"batchId"`
	Summary    string       `json:"summary"`
	Counts     batch.Counts `json:"counts"`
	Items      []ItemResult `json:"items"`
	ArchiveKey string       `json:"archiveKey,omitempty"`
	ArchiveURL string       `json:"archiveUrl,omitempty"`
	ElapsedMs  int64        `json:"elapsedMs"`
}
