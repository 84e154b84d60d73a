package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/wikistream/wikistream/internal/bundle"
	"github.com/wikistream/wikistream/internal/chunk"
	"github.com/wikistream/wikistream/internal/config"
	"github.com/wikistream/wikistream/internal/ingest"
	"github.com/wikistream/wikistream/internal/observability"
	"github.com/wikistream/wikistream/internal/source"
	"github.com/wikistream/wikistream/internal/stage"
	"github.com/wikistream/wikistream/pkg/checkpoint"
)

// metricsReadHeaderTimeout bounds header reads on the metrics listener.
const metricsReadHeaderTimeout = 5 * time.Second

// BuildCommand holds configuration and dependencies for the build command.
type BuildCommand struct {
	configPath   string
	sourceURL    string
	workDir      string
	forceRestart bool
	metricsAddr  string
	verbose      bool
	silent       bool
	noColor      bool
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	bc := &BuildCommand{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the ingest, chunk, filter, and bundle stages",
		Long: `Build streams the configured dump, parses pages into JSONL, cuts them
into chunks, filters by length, and assembles the bundle. Interrupted
ingest runs resume from the last checkpoint on the next invocation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bc.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&bc.configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&bc.sourceURL, "source-url", "", "override the dump source URL")
	cmd.Flags().StringVarP(&bc.workDir, "out", "o", "", "override the work directory")
	cmd.Flags().BoolVar(&bc.forceRestart, "force-restart", false, "discard checkpoint and stage state, start fresh")
	cmd.Flags().StringVar(&bc.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVarP(&bc.verbose, "verbose", "v", false, "verbose output")
	cmd.Flags().BoolVar(&bc.silent, "silent", false, "suppress progress output")
	cmd.Flags().BoolVar(&bc.noColor, "no-color", false, "disable colored output")

	return cmd
}

// Run executes the full pipeline.
func (b *BuildCommand) Run(ctx context.Context) error {
	if b.noColor {
		color.NoColor = true
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, cfgErr := loadConfig(b.configPath, b.sourceURL, b.workDir)
	if cfgErr != nil {
		return cfgErr
	}

	logger := newLogger(b.verbose, b.silent)

	metrics, stopMetrics, metricsErr := b.startMetrics(logger)
	if metricsErr != nil {
		return metricsErr
	}
	defer stopMetrics()

	runCfg, rcErr := ingest.NewRunConfig(cfg, b.forceRestart)
	if rcErr != nil {
		return rcErr
	}

	coordinator, coordErr := b.newCoordinator(cfg, runCfg, logger, metrics)
	if coordErr != nil {
		return coordErr
	}

	runner := stage.NewRunner(cfg.StateDir(), logger, b.forceRestart)

	results, runErr := runner.Execute(ctx,
		&ingest.Stage{Coordinator: coordinator, Config: runCfg},
		&chunk.Stage{
			In:        cfg.ParsedFile(),
			Out:       cfg.ChunksFile(),
			MaxTokens: cfg.Chunk.MaxTokens,
			Overlap:   cfg.Chunk.OverlapTokens,
			Log:       logger,
		},
		&chunk.FilterStage{
			In:        cfg.ChunksFile(),
			Out:       cfg.FilteredFile(),
			MinLength: cfg.Filter.MinLength,
			MaxLength: cfg.Filter.MaxLength,
			Log:       logger,
		},
		&bundle.Stage{In: cfg.FilteredFile(), Dir: cfg.Output.BundleDir, Log: logger},
	)
	if runErr != nil {
		return runErr
	}

	if !b.silent {
		b.printSummary(results, cfg)
	}

	return nil
}

// newCoordinator wires the source, checkpoint store, and progress reporting
// behind the ingest coordinator.
func (b *BuildCommand) newCoordinator(
	cfg *config.Config,
	runCfg ingest.RunConfig,
	logger *slog.Logger,
	metrics *observability.IngestMetrics,
) (*ingest.Coordinator, error) {
	chunkSize, sizeErr := cfg.Source.ChunkSizeBytes()
	if sizeErr != nil {
		return nil, sizeErr
	}

	src, srcErr := source.New(cfg.Source.URL, source.Options{
		ChunkSize:    int(chunkSize),
		Timeout:      cfg.Source.Timeout,
		MaxRetries:   cfg.Source.MaxRetries,
		RetryBackoff: cfg.Source.RetryBackoff,
		OnRetry: func(err error, next time.Duration) {
			metrics.RecordRetry(context.Background())
			logger.Warn("source: retrying", "err", err.Error(), "next_attempt_in", next.Round(time.Millisecond).String())
		},
	})
	if srcErr != nil {
		return nil, srcErr
	}

	everyBytes, bytesErr := cfg.Checkpoint.EveryBytesValue()
	if bytesErr != nil {
		return nil, bytesErr
	}

	store := checkpoint.NewStore(cfg.CheckpointFile(), runCfg.Hash(), cfg.Source.ValidateUnchanged, checkpoint.Thresholds{
		Pages:    cfg.Checkpoint.EveryPages,
		Bytes:    everyBytes,
		Interval: cfg.Checkpoint.EveryInterval,
	})

	opts := []ingest.Option{ingest.WithLogger(logger), ingest.WithMetrics(metrics)}

	if !b.silent {
		opts = append(opts, ingest.WithProgress(b.newProgress()))
	}

	return ingest.New(runCfg, src, store, opts...), nil
}

// newProgress renders a live page counter while ingest runs.
func (b *BuildCommand) newProgress() ingest.ProgressFunc {
	pw := progress.NewWriter()
	pw.SetOutputWriter(os.Stderr)
	pw.SetUpdateFrequency(500 * time.Millisecond)

	tracker := &progress.Tracker{Message: "ingesting pages", Units: progress.UnitsDefault}
	pw.AppendTracker(tracker)

	go pw.Render()

	return func(pages, _ int64) {
		tracker.SetValue(pages)
	}
}

// startMetrics exposes Prometheus metrics when an address is configured.
// Without one, a nil metrics handle keeps all recording calls no-ops.
func (b *BuildCommand) startMetrics(logger *slog.Logger) (*observability.IngestMetrics, func(), error) {
	if b.metricsAddr == "" {
		return nil, func() {}, nil
	}

	meter, handler, promErr := observability.NewPrometheus()
	if promErr != nil {
		return nil, nil, fmt.Errorf("init metrics: %w", promErr)
	}

	metrics, metricsErr := observability.NewIngestMetrics(meter)
	if metricsErr != nil {
		return nil, nil, fmt.Errorf("init metrics: %w", metricsErr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              b.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		serveErr := srv.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("metrics: listener stopped", "err", serveErr.Error())
		}
	}()

	return metrics, func() { srv.Close() }, nil
}

// printSummary renders the per-stage outcome table.
func (b *BuildCommand) printSummary(results []stage.Result, cfg *config.Config) {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Stage", "Outcome", "Elapsed"})

	for _, result := range results {
		outcome := color.GreenString("completed")
		if result.Skipped {
			outcome = color.YellowString("skipped (up to date)")
		}

		tbl.AppendRow(table.Row{result.Name, outcome, result.Elapsed.Round(time.Millisecond).String()})
	}

	fmt.Fprintln(os.Stdout, tbl.Render())

	if info, statErr := os.Stat(cfg.ParsedFile()); statErr == nil {
		fmt.Fprintf(os.Stdout, "parsed output: %s (%s)\n", cfg.ParsedFile(), humanize.Bytes(uint64(info.Size())))
	}
}
