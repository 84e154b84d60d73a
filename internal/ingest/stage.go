package ingest

import (
	"context"
)

// Stage adapts the coordinator to the pipeline runner. Unlike the later
// stages it is internally resumable, so its input hash is the run config
// hash: a completed run with the same config is skipped, a changed config
// re-runs and the coordinator itself decides fresh vs resume.
type Stage struct {
	Coordinator *Coordinator
	Config      RunConfig
}

// Name implements stage.Stage.
func (s *Stage) Name() string {
	return "ingest"
}

// InputHash implements stage.Stage.
func (s *Stage) InputHash() (string, error) {
	return s.Config.Hash(), nil
}

// OutputFiles implements stage.Stage.
func (s *Stage) OutputFiles() []string {
	return []string{s.Config.OutputFile}
}

// Run implements stage.Stage.
func (s *Stage) Run(ctx context.Context) error {
	_, err := s.Coordinator.Run(ctx)

	return err
}
