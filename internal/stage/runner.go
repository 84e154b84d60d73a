package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wikistream/wikistream/pkg/persist"
)

// Runner executes stages in order, persisting completion state under
// stateDir so unchanged stages are skipped on the next invocation.
type Runner struct {
	stateDir string
	log      *slog.Logger
	force    bool

	// OnStage, when set, is called after each stage finishes or is skipped.
	OnStage func(Result)
}

// NewRunner creates a runner keeping state files under stateDir.
func NewRunner(stateDir string, log *slog.Logger, force bool) *Runner {
	if log == nil {
		log = slog.Default()
	}

	return &Runner{stateDir: stateDir, log: log, force: force}
}

// Execute runs the stages in order. Execution stops at the first failing
// stage; already completed stages keep their state.
func (r *Runner) Execute(ctx context.Context, stages ...Stage) ([]Result, error) {
	results := make([]Result, 0, len(stages))

	for _, st := range stages {
		result, err := r.runOne(ctx, st)
		if err != nil {
			return results, fmt.Errorf("stage %s: %w", st.Name(), err)
		}

		results = append(results, result)

		if r.OnStage != nil {
			r.OnStage(result)
		}
	}

	return results, nil
}

func (r *Runner) runOne(ctx context.Context, st Stage) (Result, error) {
	hash, hashErr := st.InputHash()
	if hashErr != nil {
		return Result{}, fmt.Errorf("input hash: %w", hashErr)
	}

	if !r.force && r.upToDate(st, hash) {
		r.log.Info("stage: skipped", "stage", st.Name())

		return Result{Name: st.Name(), Skipped: true}, nil
	}

	r.log.Info("stage: running", "stage", st.Name())
	started := time.Now()

	runErr := st.Run(ctx)
	if runErr != nil {
		return Result{}, runErr
	}

	state := State{
		Name:        st.Name(),
		InputHash:   hash,
		CompletedAt: time.Now().UTC(),
		OutputFiles: st.OutputFiles(),
	}

	saveErr := persist.SaveAtomic(r.statePath(st.Name()), persist.NewJSONCodec(), &state)
	if saveErr != nil {
		return Result{}, fmt.Errorf("save state: %w", saveErr)
	}

	elapsed := time.Since(started)
	r.log.Info("stage: done", "stage", st.Name(), "elapsed", elapsed.Round(time.Millisecond).String())

	return Result{Name: st.Name(), Elapsed: elapsed}, nil
}

// upToDate reports whether the stage completed previously with the same
// input hash and all of its outputs still exist.
func (r *Runner) upToDate(st Stage, hash string) bool {
	var state State

	loadErr := persist.Load(r.statePath(st.Name()), persist.NewJSONCodec(), &state)
	if loadErr != nil {
		return false
	}

	if state.InputHash != hash {
		return false
	}

	for _, path := range st.OutputFiles() {
		_, statErr := os.Stat(path)
		if statErr != nil {
			return false
		}
	}

	return true
}

// LoadState reads the persisted state for a stage name. Missing state is
// reported as (nil, nil).
func (r *Runner) LoadState(name string) (*State, error) {
	var state State

	loadErr := persist.Load(r.statePath(name), persist.NewJSONCodec(), &state)
	if loadErr != nil {
		if errors.Is(loadErr, os.ErrNotExist) {
			return nil, nil
		}

		return nil, loadErr
	}

	return &state, nil
}

// Reset removes all persisted stage state.
func (r *Runner) Reset() error {
	removeErr := os.RemoveAll(r.stateDir)
	if removeErr != nil {
		return fmt.Errorf("remove state dir: %w", removeErr)
	}

	return nil
}

func (r *Runner) statePath(name string) string {
	return filepath.Join(r.stateDir, name+".state.json")
}
