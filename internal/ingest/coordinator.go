// Package ingest drives the resumable dump ingestion run: fresh-vs-resume
// decision, the read/parse/write loop, checkpoint triggering, and ownership
// of the output file.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wikistream/wikistream/internal/decompress"
	"github.com/wikistream/wikistream/internal/observability"
	"github.com/wikistream/wikistream/internal/source"
	"github.com/wikistream/wikistream/internal/wikixml"
	"github.com/wikistream/wikistream/pkg/checkpoint"
)

// outputBufSize is the buffered writer size for the output file.
const outputBufSize = 64 << 10

// outputPerm is the output file permission for fresh runs.
const outputPerm = 0o640

// ProgressFunc receives cumulative counters after each written record.
type ProgressFunc func(pages, outputBytes int64)

// Summary is the result of a completed run.
type Summary struct {
	PagesProcessed      int64
	OutputBytes         int64
	PagesSkipped        int64
	CompressedBytesRead int64
	Resumed             bool
}

// Coordinator owns one ingestion run. Exactly one coordinator may own a
// given output file and checkpoint path at a time; cross-process locking is
// out of scope.
type Coordinator struct {
	cfg      RunConfig
	src      source.Source
	store    *checkpoint.Store
	format   decompress.Format
	log      *slog.Logger
	metrics  *observability.IngestMetrics
	progress ProgressFunc
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observability.IngestMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithProgress sets the per-record progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Coordinator) {
		c.progress = fn
	}
}

// New creates a coordinator over the given source and checkpoint store.
func New(cfg RunConfig, src source.Source, store *checkpoint.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		src:    src,
		store:  store,
		format: decompress.Detect(cfg.SourceURL),
		log:    slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// startPlan is the INIT transition outcome.
type startPlan struct {
	state  State // StateFresh or StateResume.
	reason string
	cp     *checkpoint.Checkpoint // Non-nil when resuming.
}

// plan decides FRESH vs RESUME. Every disqualifier falls back to FRESH;
// only a fully valid checkpoint with a matching output file and a verified
// resume offset yields RESUME.
func (c *Coordinator) plan(ctx context.Context) startPlan {
	if c.cfg.ForceRestart {
		return startPlan{state: StateFresh, reason: "force restart requested"}
	}

	cp, ok := c.store.Load()
	if !ok {
		return startPlan{state: StateFresh, reason: "no checkpoint"}
	}

	validateErr := c.store.Validate(ctx, cp, c.probeFingerprint)
	if validateErr != nil {
		return startPlan{state: StateFresh, reason: validateErr.Error()}
	}

	info, statErr := os.Stat(c.cfg.OutputFile)
	if statErr != nil {
		return startPlan{state: StateFresh, reason: "output file missing"}
	}

	if info.Size() != cp.OutputBytesWritten {
		return startPlan{
			state:  StateFresh,
			reason: fmt.Sprintf("output size %d does not match checkpoint %d", info.Size(), cp.OutputBytesWritten),
		}
	}

	if !c.verifyResumeOffset(ctx, cp.CompressedBytesRead) {
		return startPlan{state: StateFresh, reason: "resume offset fails container magic check"}
	}

	return startPlan{state: StateResume, reason: "valid checkpoint", cp: cp}
}

// verifyResumeOffset re-checks stream alignment at the checkpointed offset:
// framed formats must present their container magic there. Plain streams
// have no framing to verify.
func (c *Coordinator) verifyResumeOffset(ctx context.Context, offset int64) bool {
	need := decompress.MagicLen(c.format)
	if need == 0 || offset == 0 {
		return true
	}

	body, err := c.src.Open(ctx, offset)
	if err != nil {
		return false
	}
	defer body.Close()

	prefix := make([]byte, need)

	_, readErr := io.ReadFull(body, prefix)
	if readErr != nil {
		return false
	}

	return decompress.CheckMagic(c.format, prefix)
}

// probeFingerprint adapts the source probe to the checkpoint store.
func (c *Coordinator) probeFingerprint(ctx context.Context) (string, error) {
	id, err := c.src.Probe(ctx)
	if err != nil {
		return "", err
	}

	return id.Fingerprint, nil
}

// Run executes the state machine to completion. Transport and checkpoint
// errors abort the run; parse errors terminate the record sequence cleanly
// and are reported through the summary and log only.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	plan := c.plan(ctx)

	c.log.InfoContext(ctx, "ingest: start decision",
		"state", plan.state.String(),
		"reason", plan.reason,
		"source", c.cfg.SourceURL,
		"format", c.format.String(),
	)

	var (
		out         *os.File
		pages       int64
		outputBytes int64
		startOffset int64
		etag        string
	)

	switch plan.state {
	case StateResume:
		file, err := os.OpenFile(c.cfg.OutputFile, os.O_WRONLY|os.O_APPEND, outputPerm)
		if err != nil {
			return nil, fmt.Errorf("open output for append: %w", err)
		}

		out = file
		pages = plan.cp.PagesProcessed
		outputBytes = plan.cp.OutputBytesWritten
		startOffset = plan.cp.CompressedBytesRead
		etag = plan.cp.SourceETag
		c.store.Seed(plan.cp)

		c.log.InfoContext(ctx, "ingest: resuming",
			"pages", pages,
			"offset", startOffset,
			"last_page_id", plan.cp.LastPageID,
			"last_page_title", plan.cp.LastPageTitle,
		)
	default:
		mkdirErr := os.MkdirAll(filepath.Dir(c.cfg.OutputFile), 0o750)
		if mkdirErr != nil {
			return nil, fmt.Errorf("create output dir: %w", mkdirErr)
		}

		file, err := os.OpenFile(c.cfg.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, outputPerm)
		if err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}

		out = file
		etag = c.recordFingerprint(ctx)
	}
	defer out.Close()

	body, openErr := c.src.Open(ctx, startOffset)
	if openErr != nil {
		return nil, fmt.Errorf("open source: %w", openErr)
	}
	defer body.Close()

	counting := source.NewCountingReader(body)

	stream, decErr := decompress.NewReader(counting, c.format)
	if decErr != nil {
		return nil, fmt.Errorf("open decompressor: %w", decErr)
	}

	parser := wikixml.NewParser(stream, wikixml.Options{
		AllowedNamespaces:  c.cfg.AllowedNamespaces,
		SkipRedirects:      c.cfg.SkipRedirects,
		SkipDisambiguation: c.cfg.SkipDisambiguation,
		Realign:            plan.state == StateResume && startOffset > 0,
	})

	c.log.DebugContext(ctx, "ingest: running", "state", StateRunning.String())

	st := runState{
		pages:       pages,
		outputBytes: outputBytes,
		startOffset: startOffset,
		etag:        etag,
		resumed:     plan.state == StateResume,
	}

	if plan.cp != nil {
		st.lastID = plan.cp.LastPageID
		st.lastTitle = plan.cp.LastPageTitle
	}

	summary, runErr := c.runLoop(ctx, parser, out, counting, st)
	if runErr != nil {
		return nil, runErr
	}

	c.log.InfoContext(ctx, "ingest: done",
		"state", StateDone.String(),
		"pages", summary.PagesProcessed,
		"output_bytes", summary.OutputBytes,
		"skipped", summary.PagesSkipped,
	)

	return summary, nil
}

// runState carries the RUNNING-loop counters seeded by the entry state.
type runState struct {
	pages       int64
	outputBytes int64
	startOffset int64
	etag        string
	lastID      string
	lastTitle   string
	resumed     bool
}

// runLoop is the shared FRESH/RESUME record loop. Clean termination ends
// with an unconditional final checkpoint; a reader failure aborts without
// committing.
func (c *Coordinator) runLoop(
	ctx context.Context,
	parser *wikixml.Parser,
	out *os.File,
	counting *source.CountingReader,
	st runState,
) (*Summary, error) {
	writer := bufio.NewWriterSize(out, outputBufSize)

	var (
		sourceMark  int64
		skippedMark int64
	)

	// Plain streams checkpoint at the exact parse position, so no consumed
	// record sits past the recorded offset. Framed formats cannot map the
	// parse position back to a container offset and fall back to bytes read
	// from the source, which includes decoder read-ahead.
	offset := func() int64 {
		if c.format == decompress.FormatPlain {
			return st.startOffset + parser.InputOffset()
		}

		return st.startOffset + counting.Count()
	}

	snapshot := func() *checkpoint.Checkpoint {
		return &checkpoint.Checkpoint{
			SourceURL:           c.cfg.SourceURL,
			SourceETag:          st.etag,
			CompressedBytesRead: offset(),
			PagesProcessed:      st.pages,
			LastPageID:          st.lastID,
			LastPageTitle:       st.lastTitle,
			OutputFile:          c.cfg.OutputFile,
			OutputBytesWritten:  st.outputBytes,
		}
	}

	commit := func() error {
		flushErr := writer.Flush()
		if flushErr != nil {
			return fmt.Errorf("flush output: %w", flushErr)
		}

		syncErr := out.Sync()
		if syncErr != nil {
			return fmt.Errorf("sync output: %w", syncErr)
		}

		started := time.Now()

		saveErr := c.store.Save(snapshot())
		if saveErr != nil {
			return saveErr
		}

		c.metrics.RecordCheckpoint(ctx, time.Since(started))
		c.metrics.RecordSourceBytes(ctx, counting.Count()-sourceMark)
		c.metrics.RecordSkipped(ctx, parser.Skipped()-skippedMark)
		sourceMark = counting.Count()
		skippedMark = parser.Skipped()

		c.log.DebugContext(ctx, "ingest: checkpoint",
			"pages", st.pages,
			"output_bytes", st.outputBytes,
			"compressed_offset", offset(),
		)

		return nil
	}

	for {
		record, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			// A reader failure mid-stream means the source was cut short.
			// Do not commit: the run must fail so the stage is retried and
			// the next run resumes from the last durable checkpoint.
			return nil, fmt.Errorf("source stream: %w", err)
		}

		line, marshalErr := json.Marshal(record)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshal record %s: %w", record.ID, marshalErr)
		}

		line = append(line, '\n')

		_, writeErr := writer.Write(line)
		if writeErr != nil {
			return nil, fmt.Errorf("write output: %w", writeErr)
		}

		st.pages++
		st.outputBytes += int64(len(line))
		st.lastID = record.ID
		st.lastTitle = record.Title

		c.metrics.RecordPage(ctx, int64(len(line)))

		if c.progress != nil {
			c.progress(st.pages, st.outputBytes)
		}

		if c.store.ShouldCheckpoint(st.pages, st.outputBytes) {
			commitErr := commit()
			if commitErr != nil {
				return nil, commitErr
			}
		}
	}

	if parseErr := parser.Err(); parseErr != nil {
		c.log.WarnContext(ctx, "ingest: stream terminated at structural error",
			"err", parseErr.Error(),
			"pages", st.pages,
		)
	}

	// Final checkpoint is unconditional.
	finalErr := commit()
	if finalErr != nil {
		return nil, finalErr
	}

	return &Summary{
		PagesProcessed:      st.pages,
		OutputBytes:         st.outputBytes,
		PagesSkipped:        parser.Skipped(),
		CompressedBytesRead: offset(),
		Resumed:             st.resumed,
	}, nil
}

// recordFingerprint probes the source identity for a fresh run. Probe
// failures are non-fatal here; the checkpoint simply carries no fingerprint
// and source-change validation is skipped on the next resume.
func (c *Coordinator) recordFingerprint(ctx context.Context) string {
	if !c.cfg.ValidateSource {
		return ""
	}

	id, err := c.src.Probe(ctx)
	if err != nil {
		c.log.DebugContext(ctx, "ingest: identity probe failed", "err", err.Error())

		return ""
	}

	return id.Fingerprint
}
