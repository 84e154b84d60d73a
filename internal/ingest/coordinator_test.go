package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikistream/wikistream/internal/source"
	"github.com/wikistream/wikistream/internal/stage"
	"github.com/wikistream/wikistream/internal/wikixml"
	"github.com/wikistream/wikistream/pkg/checkpoint"
	"github.com/wikistream/wikistream/pkg/persist"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func dumpPage(id int, title, text string) string {
	return fmt.Sprintf(
		"  <page>\n    <title>%s</title>\n    <ns>0</ns>\n    <id>%d</id>\n"+
			"    <revision><id>9%d</id><text>%s</text></revision>\n  </page>\n",
		title, id, id, text,
	)
}

func fullDump(pages ...string) string {
	return "<mediawiki>\n" + strings.Join(pages, "") + "</mediawiki>\n"
}

// harness wires a coordinator over a local plain-XML dump file.
type harness struct {
	dir        string
	sourcePath string
	rc         RunConfig
	store      *checkpoint.Store
}

func newHarness(t *testing.T, everyPages int64) *harness {
	t.Helper()

	dir := t.TempDir()
	h := &harness{
		dir:        dir,
		sourcePath: filepath.Join(dir, "dump.xml"),
	}

	h.rc = RunConfig{
		SourceURL:            h.sourcePath,
		OutputFile:           filepath.Join(dir, "parsed", "articles.jsonl"),
		CheckpointEveryPages: everyPages,
		ChunkSize:            1 << 16,
		MaxRetries:           1,
		RetryBackoffSeconds:  1,
	}

	h.store = checkpoint.NewStore(
		filepath.Join(dir, "checkpoints", "cp.json"),
		h.rc.Hash(),
		false,
		checkpoint.Thresholds{Pages: everyPages},
	)

	return h
}

func (h *harness) writeSource(t *testing.T, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(h.sourcePath, []byte(content), 0o600))
}

func (h *harness) coordinator(t *testing.T) *Coordinator {
	t.Helper()

	src, err := source.New(h.rc.SourceURL, source.Options{
		ChunkSize:    int(h.rc.ChunkSize),
		MaxRetries:   h.rc.MaxRetries,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	return New(h.rc, src, h.store, WithLogger(discardLogger))
}

func readRecords(t *testing.T, path string) []wikixml.Record {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []wikixml.Record

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record wikixml.Record

		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}

	require.NoError(t, scanner.Err())

	return records
}

func loadCheckpoint(t *testing.T, h *harness) *checkpoint.Checkpoint {
	t.Helper()

	var cp checkpoint.Checkpoint

	err := persist.Load(filepath.Join(h.dir, "checkpoints", "cp.json"), persist.NewJSONCodec(), &cp)
	require.NoError(t, err)

	return &cp
}

func TestCoordinator_FreshRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	content := fullDump(
		dumpPage(1, "Alpha", "alpha body"),
		dumpPage(2, "Beta", "beta body"),
		dumpPage(3, "Gamma", "gamma body"),
	)
	h.writeSource(t, content)

	summary, err := h.coordinator(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.PagesProcessed)
	assert.False(t, summary.Resumed)
	assert.Equal(t, int64(len(content)), summary.CompressedBytesRead)

	records := readRecords(t, h.rc.OutputFile)
	require.Len(t, records, 3)
	assert.Equal(t, "1", records[0].ID)
	assert.Equal(t, "Gamma", records[2].Title)

	info, statErr := os.Stat(h.rc.OutputFile)
	require.NoError(t, statErr)
	assert.Equal(t, info.Size(), summary.OutputBytes)

	cp := loadCheckpoint(t, h)
	assert.Equal(t, int64(3), cp.PagesProcessed)
	assert.Equal(t, int64(len(content)), cp.CompressedBytesRead)
	assert.Equal(t, info.Size(), cp.OutputBytesWritten)
	assert.Equal(t, "3", cp.LastPageID)
	assert.Equal(t, "Gamma", cp.LastPageTitle)
	assert.Equal(t, h.rc.Hash(), cp.ConfigHash)
	assert.Equal(t, checkpoint.Version, cp.Version)
}

func TestCoordinator_ResumeAfterTruncation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)

	// The first snapshot of the dump cuts off mid-page.
	partial := "<mediawiki>\n" +
		dumpPage(1, "Alpha", "alpha body") +
		dumpPage(2, "Beta", "beta body") +
		"  <page>\n    <title>Cut"
	h.writeSource(t, partial)

	first, err := h.coordinator(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.PagesProcessed)
	assert.Equal(t, int64(len(partial)), first.CompressedBytesRead)

	// The dump grows: the cut page completes and more pages follow.
	grown := partial +
		"off</title>\n    <ns>0</ns>\n    <id>3</id>\n" +
		"    <revision><text>finished later</text></revision>\n  </page>\n" +
		dumpPage(4, "Delta", "delta body") +
		dumpPage(5, "Epsilon", "epsilon body") +
		"</mediawiki>\n"
	h.writeSource(t, grown)

	second, err := h.coordinator(t).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Resumed)

	// The resumed stream realigns at the next whole page boundary; the page
	// straddling the checkpoint offset is not recoverable from a raw tail.
	records := readRecords(t, h.rc.OutputFile)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"1", "2", "4", "5"},
		[]string{records[0].ID, records[1].ID, records[2].ID, records[3].ID})

	assert.Equal(t, int64(4), second.PagesProcessed)
	assert.Equal(t, int64(len(grown)), second.CompressedBytesRead)

	cp := loadCheckpoint(t, h)
	assert.Equal(t, int64(4), cp.PagesProcessed)
	assert.Equal(t, "5", cp.LastPageID)
}

func TestCoordinator_CompletedRunResumesToNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	content := fullDump(dumpPage(1, "Alpha", "alpha body"), dumpPage(2, "Beta", "beta body"))
	h.writeSource(t, content)

	_, err := h.coordinator(t).Run(context.Background())
	require.NoError(t, err)

	// Running again resumes at EOF and adds nothing.
	second, err := h.coordinator(t).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Resumed)
	assert.Equal(t, int64(2), second.PagesProcessed)

	records := readRecords(t, h.rc.OutputFile)
	assert.Len(t, records, 2)
}

func TestCoordinator_Plan_ForceRestart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	h.writeSource(t, fullDump(dumpPage(1, "Alpha", "alpha body")))

	_, err := h.coordinator(t).Run(context.Background())
	require.NoError(t, err)

	h.rc.ForceRestart = true
	p := h.coordinator(t).plan(context.Background())
	assert.Equal(t, StateFresh, p.state)
	assert.Equal(t, "force restart requested", p.reason)
}

func TestCoordinator_Plan_NoCheckpoint(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	h.writeSource(t, fullDump(dumpPage(1, "Alpha", "alpha body")))

	p := h.coordinator(t).plan(context.Background())
	assert.Equal(t, StateFresh, p.state)
	assert.Equal(t, "no checkpoint", p.reason)
}

func TestCoordinator_Plan_ConfigChange(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	h.writeSource(t, fullDump(dumpPage(1, "Alpha", "alpha body")))

	_, err := h.coordinator(t).Run(context.Background())
	require.NoError(t, err)

	// A different filter policy invalidates the checkpoint.
	h.rc.SkipDisambiguation = true
	h.store = checkpoint.NewStore(
		filepath.Join(h.dir, "checkpoints", "cp.json"),
		h.rc.Hash(),
		false,
		checkpoint.Thresholds{Pages: 2},
	)

	p := h.coordinator(t).plan(context.Background())
	assert.Equal(t, StateFresh, p.state)
	assert.Contains(t, p.reason, "config")
}

func TestCoordinator_Plan_OutputSizeMismatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	h.writeSource(t, fullDump(dumpPage(1, "Alpha", "alpha body")))

	_, err := h.coordinator(t).Run(context.Background())
	require.NoError(t, err)

	// Tampered output no longer matches the checkpoint.
	out, openErr := os.OpenFile(h.rc.OutputFile, os.O_WRONLY|os.O_APPEND, 0o640)
	require.NoError(t, openErr)
	_, writeErr := out.WriteString("junk\n")
	require.NoError(t, writeErr)
	require.NoError(t, out.Close())

	p := h.coordinator(t).plan(context.Background())
	assert.Equal(t, StateFresh, p.state)
	assert.Contains(t, p.reason, "does not match")
}

func TestCoordinator_Plan_OutputMissing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	h.writeSource(t, fullDump(dumpPage(1, "Alpha", "alpha body")))

	_, err := h.coordinator(t).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(h.rc.OutputFile))

	p := h.coordinator(t).plan(context.Background())
	assert.Equal(t, StateFresh, p.state)
	assert.Equal(t, "output file missing", p.reason)
}

func TestCoordinator_VerifyResumeOffset_Bzip2(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "dump.xml.bz2")

	// A second bzip2 stream starts at offset 7; offset 4 is mid-stream.
	payload := []byte("BZh91AYBZh91AY")
	require.NoError(t, os.WriteFile(sourcePath, payload, 0o600))

	rc := RunConfig{SourceURL: sourcePath, OutputFile: filepath.Join(dir, "out.jsonl")}
	store := checkpoint.NewStore(filepath.Join(dir, "cp.json"), rc.Hash(), false, checkpoint.Thresholds{})

	src, err := source.New(sourcePath, source.Options{})
	require.NoError(t, err)

	c := New(rc, src, store, WithLogger(discardLogger))

	assert.True(t, c.verifyResumeOffset(context.Background(), 0))
	assert.True(t, c.verifyResumeOffset(context.Background(), 7))
	assert.False(t, c.verifyResumeOffset(context.Background(), 4))
	assert.False(t, c.verifyResumeOffset(context.Background(), int64(len(payload))))
}

func TestCoordinator_ProgressCallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10)
	h.writeSource(t, fullDump(dumpPage(1, "Alpha", "alpha body"), dumpPage(2, "Beta", "beta body")))

	var calls []int64

	src, err := source.New(h.rc.SourceURL, source.Options{RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	c := New(h.rc, src, h.store,
		WithLogger(discardLogger),
		WithProgress(func(pages, _ int64) { calls = append(calls, pages) }),
	)

	_, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, calls)
}

func TestCoordinator_TruncatedTransferFails(t *testing.T) {
	t.Parallel()

	full := fullDump(
		dumpPage(1, "Alpha", "alpha body"),
		dumpPage(2, "Beta", "beta body"),
		dumpPage(3, "Gamma", "gamma body"),
		dumpPage(4, "Delta", "delta body"),
	)
	cut := strings.Index(full, "Gamma")
	require.Positive(t, cut)

	// The response declares the full length but the connection drops after
	// two pages, so the client sees an unexpected EOF mid-body.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(full)))
		_, _ = io.WriteString(w, full[:cut])
	}))
	defer server.Close()

	dir := t.TempDir()
	rc := RunConfig{
		SourceURL:            server.URL + "/dump.xml",
		OutputFile:           filepath.Join(dir, "articles.jsonl"),
		CheckpointEveryPages: 1,
	}
	store := checkpoint.NewStore(filepath.Join(dir, "cp.json"), rc.Hash(), false, checkpoint.Thresholds{Pages: 1})

	src, err := source.New(rc.SourceURL, source.Options{MaxRetries: 1, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	summary, runErr := New(rc, src, store, WithLogger(discardLogger)).Run(context.Background())
	require.Error(t, runErr)
	assert.Nil(t, summary)
	assert.ErrorContains(t, runErr, "source stream")

	// Only durably committed progress survives; the failing run itself
	// commits nothing.
	cp, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, int64(2), cp.PagesProcessed)
	assert.LessOrEqual(t, cp.CompressedBytesRead, int64(cut))
}

func TestCoordinator_CancelMidRunLeavesNoStageState(t *testing.T) {
	t.Parallel()

	head := "<mediawiki>\n" + dumpPage(1, "Alpha", "alpha body")

	// One page goes out, then the transfer stalls until the client goes
	// away.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, head)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	dir := t.TempDir()
	rc := RunConfig{
		SourceURL:  server.URL + "/dump.xml",
		OutputFile: filepath.Join(dir, "articles.jsonl"),
	}
	store := checkpoint.NewStore(filepath.Join(dir, "cp.json"), rc.Hash(), false, checkpoint.Thresholds{})

	src, err := source.New(rc.SourceURL, source.Options{MaxRetries: 1, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(rc, src, store,
		WithLogger(discardLogger),
		WithProgress(func(pages, _ int64) {
			if pages == 1 {
				cancel()
			}
		}),
	)

	runner := stage.NewRunner(filepath.Join(dir, "state"), discardLogger, false)

	_, execErr := runner.Execute(ctx, &Stage{Coordinator: c, Config: rc})
	require.Error(t, execErr)
	assert.ErrorContains(t, execErr, "context canceled")

	// An interrupted ingest leaves no completion state and no checkpoint;
	// the next build runs the stage again.
	st, loadErr := runner.LoadState("ingest")
	require.NoError(t, loadErr)
	assert.Nil(t, st)

	_, ok := store.Load()
	assert.False(t, ok)
}

func TestCoordinator_SourceMissing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)

	_, err := h.coordinator(t).Run(context.Background())
	assert.Error(t, err)
}
