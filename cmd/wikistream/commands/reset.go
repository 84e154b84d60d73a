package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wikistream/wikistream/internal/stage"
	"github.com/wikistream/wikistream/pkg/checkpoint"
)

// ResetCommand holds configuration for the reset command.
type ResetCommand struct {
	configPath string
	workDir    string
	hard       bool
}

// NewResetCommand creates the reset command.
func NewResetCommand() *cobra.Command {
	rc := &ResetCommand{}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear checkpoint and stage state",
		Long: `Reset removes the ingest checkpoint and the per-stage completion state
so the next build starts fresh. With --hard the whole work directory,
including generated outputs, is removed.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return rc.Run()
		},
	}

	cmd.Flags().StringVarP(&rc.configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&rc.workDir, "out", "o", "", "override the work directory")
	cmd.Flags().BoolVar(&rc.hard, "hard", false, "also remove generated outputs")

	return cmd
}

// Run clears the persisted state.
func (r *ResetCommand) Run() error {
	cfg, cfgErr := loadConfig(r.configPath, "", r.workDir)
	if cfgErr != nil {
		return cfgErr
	}

	if r.hard {
		removeErr := os.RemoveAll(cfg.Output.Dir)
		if removeErr != nil {
			return fmt.Errorf("remove work dir: %w", removeErr)
		}

		fmt.Fprintf(os.Stdout, "Removed %s\n", cfg.Output.Dir)

		return nil
	}

	store := checkpoint.NewStore(cfg.CheckpointFile(), "", false, checkpoint.Thresholds{})

	clearErr := store.Clear()
	if clearErr != nil {
		return fmt.Errorf("clear checkpoint: %w", clearErr)
	}

	resetErr := stage.NewRunner(cfg.StateDir(), nil, false).Reset()
	if resetErr != nil {
		return resetErr
	}

	fmt.Fprintln(os.Stdout, "Checkpoint and stage state cleared.")

	return nil
}
