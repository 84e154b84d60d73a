// Package stage runs the build pipeline as a sequence of named stages with
// per-stage completion state, skipping stages whose inputs are unchanged and
// whose outputs still exist.
package stage

import (
	"context"
	"time"
)

// Stage is one unit of the build pipeline.
type Stage interface {
	// Name identifies the stage; it also names the persisted state file.
	Name() string

	// InputHash fingerprints everything the stage's output depends on.
	// A changed hash forces a re-run.
	InputHash() (string, error)

	// OutputFiles lists the files the stage produces. A missing output
	// forces a re-run even when the hash matches.
	OutputFiles() []string

	// Run produces the outputs.
	Run(ctx context.Context) error
}

// State is the persisted completion record for one stage.
type State struct {
	Name        string    `json:"name"`
	InputHash   string    `json:"input_hash"`
	CompletedAt time.Time `json:"completed_at"`
	OutputFiles []string  `json:"output_files"`
}

// Result reports what the runner did with one stage.
type Result struct {
	Name    string
	Skipped bool
	Elapsed time.Duration
}
