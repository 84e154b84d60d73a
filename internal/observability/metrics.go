package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

const (
	metricPagesProcessed  = "wikistream.pages.processed.total"
	metricPagesSkipped    = "wikistream.pages.skipped.total"
	metricOutputBytes     = "wikistream.output.bytes.total"
	metricSourceBytes     = "wikistream.source.bytes.total"
	metricCheckpoints     = "wikistream.checkpoints.total"
	metricSourceRetries   = "wikistream.source.retries.total"
	metricCheckpointWrite = "wikistream.checkpoint.write.seconds"
)

// checkpointWriteBoundaries covers sub-millisecond local writes up to slow
// network filesystems.
var checkpointWriteBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// IngestMetrics holds the OTel instruments for the ingest loop. A nil
// receiver is valid and records nothing, so metrics stay optional in tests
// and library use.
type IngestMetrics struct {
	pagesProcessed  metric.Int64Counter
	pagesSkipped    metric.Int64Counter
	outputBytes     metric.Int64Counter
	sourceBytes     metric.Int64Counter
	checkpoints     metric.Int64Counter
	sourceRetries   metric.Int64Counter
	checkpointWrite metric.Float64Histogram
}

// NewIngestMetrics creates the ingest instruments from the given meter.
func NewIngestMetrics(mt metric.Meter) (*IngestMetrics, error) {
	b := newMetricBuilder(mt)

	im := &IngestMetrics{
		pagesProcessed:  b.counter(metricPagesProcessed, "Total pages parsed and written", "{page}"),
		pagesSkipped:    b.counter(metricPagesSkipped, "Total pages dropped by filters or incompleteness", "{page}"),
		outputBytes:     b.counter(metricOutputBytes, "Total bytes appended to the output file", "By"),
		sourceBytes:     b.counter(metricSourceBytes, "Total compressed bytes consumed from the source", "By"),
		checkpoints:     b.counter(metricCheckpoints, "Total checkpoints committed", "{checkpoint}"),
		sourceRetries:   b.counter(metricSourceRetries, "Total source open retries", "{retry}"),
		checkpointWrite: b.histogram(metricCheckpointWrite, "Checkpoint commit duration in seconds", "s", checkpointWriteBoundaries...),
	}

	if b.err != nil {
		return nil, b.err
	}

	return im, nil
}

// RecordPage records one written page and its serialized size.
func (im *IngestMetrics) RecordPage(ctx context.Context, lineBytes int64) {
	if im == nil {
		return
	}

	im.pagesProcessed.Add(ctx, 1)
	im.outputBytes.Add(ctx, lineBytes)
}

// RecordSkipped records pages dropped since the previous call.
func (im *IngestMetrics) RecordSkipped(ctx context.Context, n int64) {
	if im == nil || n <= 0 {
		return
	}

	im.pagesSkipped.Add(ctx, n)
}

// RecordSourceBytes records compressed bytes consumed since the previous call.
func (im *IngestMetrics) RecordSourceBytes(ctx context.Context, n int64) {
	if im == nil || n <= 0 {
		return
	}

	im.sourceBytes.Add(ctx, n)
}

// RecordCheckpoint records one committed checkpoint and its write duration.
func (im *IngestMetrics) RecordCheckpoint(ctx context.Context, elapsed time.Duration) {
	if im == nil {
		return
	}

	im.checkpoints.Add(ctx, 1)
	im.checkpointWrite.Record(ctx, elapsed.Seconds())
}

// RecordRetry records one source open retry.
func (im *IngestMetrics) RecordRetry(ctx context.Context) {
	if im == nil {
		return
	}

	im.sourceRetries.Add(ctx, 1)
}
