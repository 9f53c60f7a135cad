package metrics

import (
	"io"

	"github.com/fpang/image-localizer/internal/batch"
)

// RecordBatch emits one batch-level document and one document per job.
// Job documents carry the outcome status and error kind as dimensions.
func RecordBatch(w io.Writer, provider string, result *batch.BatchResult) {
	if result == nil {
		return
	}
	counts := result.Counts()
	New(Namespace).
		WithWriter(w).
		Dimension("Provider", provider).
		Metric("BatchSucceeded", float64(counts.Succeeded), UnitCount).
		Metric("BatchFailed", float64(counts.Failed), UnitCount).
		Metric("BatchDurationMs", float64(result.Elapsed.Milliseconds()), UnitMilliseconds).
		Property("batchId", result.ID).
		Property("total", counts.Total).
		Flush()

	for _, o := range result.All() {
		rec := New(Namespace).
			WithWriter(w).
			Dimension("Provider", provider).
			Dimension("Status", string(o.Status)).
			Metric("JobDurationMs", float64(o.Elapsed.Milliseconds()), UnitMilliseconds).
			Property("batchId", result.ID).
			Property("job", o.Index)
		if !o.Succeeded() {
			rec.Property("errorKind", string(o.ErrorKind))
		}
		rec.Flush()
	}
}
