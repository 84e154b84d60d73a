package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/wikistream/wikistream/internal/stage"
	"github.com/wikistream/wikistream/pkg/checkpoint"
	"github.com/wikistream/wikistream/pkg/persist"
)

// stageNames is the pipeline order shown by status.
var stageNames = []string{"ingest", "chunk", "filter", "bundle"}

// StatusCommand holds configuration for the status command.
type StatusCommand struct {
	configPath string
	workDir    string
	noColor    bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	sc := &StatusCommand{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show checkpoint and pipeline progress",
		RunE: func(_ *cobra.Command, _ []string) error {
			return sc.Run()
		},
	}

	cmd.Flags().StringVarP(&sc.configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&sc.workDir, "out", "o", "", "override the work directory")
	cmd.Flags().BoolVar(&sc.noColor, "no-color", false, "disable colored output")

	return cmd
}

// Run renders the checkpoint and per-stage state.
func (s *StatusCommand) Run() error {
	if s.noColor {
		color.NoColor = true
	}

	cfg, cfgErr := loadConfig(s.configPath, "", s.workDir)
	if cfgErr != nil {
		return cfgErr
	}

	s.printCheckpoint(cfg.CheckpointFile())
	s.printStages(cfg.StateDir())

	return nil
}

func (s *StatusCommand) printCheckpoint(path string) {
	var cp checkpoint.Checkpoint

	loadErr := persist.Load(path, persist.NewJSONCodec(), &cp)
	if loadErr != nil {
		if errors.Is(loadErr, os.ErrNotExist) {
			fmt.Fprintln(os.Stdout, "No ingest checkpoint.")
		} else {
			color.New(color.FgYellow).Fprintf(os.Stdout, "Checkpoint unreadable: %v\n", loadErr)
		}

		return
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle("Ingest checkpoint")
	tbl.AppendRows([]table.Row{
		{"Source", cp.SourceURL},
		{"Pages processed", humanize.Comma(cp.PagesProcessed)},
		{"Compressed bytes read", humanize.Bytes(uint64(cp.CompressedBytesRead))},
		{"Output bytes written", humanize.Bytes(uint64(cp.OutputBytesWritten))},
		{"Last page", fmt.Sprintf("%s (%s)", cp.LastPageTitle, cp.LastPageID)},
		{"Saved", humanize.Time(cp.LastCheckpointTime)},
	})

	fmt.Fprintln(os.Stdout, tbl.Render())
}

func (s *StatusCommand) printStages(stateDir string) {
	runner := stage.NewRunner(stateDir, nil, false)

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle("Pipeline stages")
	tbl.AppendHeader(table.Row{"Stage", "State", "Completed"})

	for _, name := range stageNames {
		state, loadErr := runner.LoadState(name)

		switch {
		case loadErr != nil:
			tbl.AppendRow(table.Row{name, color.YellowString("state unreadable"), ""})
		case state == nil:
			tbl.AppendRow(table.Row{name, "pending", ""})
		default:
			tbl.AppendRow(table.Row{
				name,
				color.GreenString("completed"),
				state.CompletedAt.Local().Format(time.RFC3339),
			})
		}
	}

	fmt.Fprintln(os.Stdout, tbl.Render())
}
