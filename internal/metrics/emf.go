// Package metrics writes CloudWatch Embedded Metric Format lines. The Lambda
// runtime forwards stdout to CloudWatch Logs, which turns each line into
// metric data points.
package metrics

import (
	"encoding/json"
	"io"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Namespace groups every metric the localizer publishes.
const Namespace = "ImageLocalizer"

const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitBytes        = "Bytes"
	UnitNone         = "None"
)

type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

type metricSet struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

type awsBlock struct {
	Timestamp         int64       `json:"Timestamp"`
	CloudWatchMetrics []metricSet `json:"CloudWatchMetrics"`
}

// Recorder collects one document. Build it on a single goroutine and flush
// it once.
type Recorder struct {
	namespace  string
	dimensions map[string]string
	metrics    map[string]metricDef
	values     map[string]any
	properties map[string]any
	out        io.Writer
	now        func() time.Time
}

var (
	functionName string
	initOnce     sync.Once
)

func initFunctionName() {
	functionName = os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
}

// New returns a Recorder writing to stdout. Inside Lambda the function name
// is added as the FunctionName dimension.
func New(namespace string) *Recorder {
	initOnce.Do(initFunctionName)
	r := &Recorder{
		namespace:  namespace,
		dimensions: map[string]string{},
		metrics:    map[string]metricDef{},
		values:     map[string]any{},
		properties: map[string]any{},
		out:        os.Stdout,
		now:        time.Now,
	}
	if functionName != "" {
		r.dimensions["FunctionName"] = functionName
	}
	return r
}

// WithWriter sends the document to w instead of stdout. A nil w is ignored.
func (r *Recorder) WithWriter(w io.Writer) *Recorder {
	if w != nil {
		r.out = w
	}
	return r
}

func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric sets name to value. Recording the same name twice keeps the last value.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.metrics[name] = metricDef{Name: name, Unit: unit}
	r.values[name] = value
	return r
}

// Count records name with a value of one.
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Property attaches a searchable field that is not published as a metric.
func (r *Recorder) Property(key string, value any) *Recorder {
	r.properties[key] = value
	return r
}

// Flush writes the document as one line. A recorder with no metrics writes
// nothing.
func (r *Recorder) Flush() {
	if len(r.metrics) == 0 {
		return
	}
	data, err := json.Marshal(r.document())
	if err != nil {
		log.Warn().Err(err).Str("namespace", r.namespace).Msg("Dropping EMF document")
		return
	}
	data = append(data, '\n')
	if _, err := r.out.Write(data); err != nil {
		log.Warn().Err(err).Str("namespace", r.namespace).Msg("Failed to write EMF document")
	}
}

// document lays out the top-level fields. Metric values win over a property
// or dimension of the same name.
func (r *Recorder) document() map[string]any {
	defs := make([]metricDef, 0, len(r.metrics))
	for _, name := range slices.Sorted(maps.Keys(r.metrics)) {
		defs = append(defs, r.metrics[name])
	}

	dims := slices.AppendSeq(make([]string, 0, len(r.dimensions)), maps.Keys(r.dimensions))
	slices.Sort(dims)

	doc := make(map[string]any, len(r.dimensions)+len(r.properties)+len(r.values)+1)
	for k, v := range r.properties {
		doc[k] = v
	}
	for k, v := range r.dimensions {
		doc[k] = v
	}
	maps.Copy(doc, r.values)
	doc["_aws"] = awsBlock{
		Timestamp: r.now().UnixMilli(),
		CloudWatchMetrics: []metricSet{{
			Namespace:  r.namespace,
			Dimensions: [][]string{dims},
			Metrics:    defs,
		}},
	}
	return doc
}
