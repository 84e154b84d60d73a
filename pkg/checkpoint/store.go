package checkpoint

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wikistream/wikistream/pkg/persist"
)

// ProbeFunc fetches the current source content fingerprint without
// downloading the body.
type ProbeFunc func(ctx context.Context) (string, error)

// Store persists, loads, and validates checkpoints for one run. It also
// owns the trigger policy: cumulative page/byte counters are never reset,
// the store tracks their values at the last successful save and fires on
// deltas; only the time clock is reset by a save.
type Store struct {
	// Path is the checkpoint file location.
	Path string

	// ConfigHash fingerprints the run configuration; a loaded checkpoint
	// must match it exactly to be resumable.
	ConfigHash string

	// ValidateSource enables the source identity check during Validate.
	ValidateSource bool

	// Thresholds is the trigger policy.
	Thresholds Thresholds

	// Clock is the time source, overridable in tests.
	Clock func() time.Time

	codec *persist.JSONCodec

	lastSavedPages int64
	lastSavedBytes int64
	lastSaveTime   time.Time
}

// NewStore creates a store for the given path and config hash.
func NewStore(path, configHash string, validateSource bool, thresholds Thresholds) *Store {
	s := &Store{
		Path:           path,
		ConfigHash:     configHash,
		ValidateSource: validateSource,
		Thresholds:     thresholds,
		Clock:          time.Now,
		codec:          persist.NewJSONCodec(),
	}
	s.lastSaveTime = s.Clock()

	return s
}

// Load reads the checkpoint file. A missing file and an undecodable file
// both yield absent: corruption never blocks progress, it only forces a
// fresh start.
func (s *Store) Load() (*Checkpoint, bool) {
	var cp Checkpoint

	err := persist.Load(s.Path, s.codec, &cp)
	if err != nil {
		return nil, false
	}

	return &cp, true
}

// Save commits cp atomically and advances the trigger baselines. The
// schema version, config hash, and commit time are stamped here. On
// failure the previously committed file remains valid and the error wraps
// ErrPersist.
func (s *Store) Save(cp *Checkpoint) error {
	cp.Version = Version
	cp.ConfigHash = s.ConfigHash
	cp.LastCheckpointTime = s.Clock()

	err := persist.SaveAtomic(s.Path, s.codec, cp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	s.lastSavedPages = cp.PagesProcessed
	s.lastSavedBytes = cp.OutputBytesWritten
	s.lastSaveTime = s.Clock()

	return nil
}

// Seed sets the trigger baselines from a loaded checkpoint on resume.
func (s *Store) Seed(cp *Checkpoint) {
	s.lastSavedPages = cp.PagesProcessed
	s.lastSavedBytes = cp.OutputBytesWritten
	s.lastSaveTime = s.Clock()
}

// Clear removes the checkpoint file. A missing file is not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.Path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}

	return nil
}

// Validate reports whether cp can be resumed under the current
// configuration and source identity. Probe failures are conservatively
// invalid.
func (s *Store) Validate(ctx context.Context, cp *Checkpoint, probe ProbeFunc) error {
	if cp.ConfigHash != s.ConfigHash {
		return fmt.Errorf("%w: checkpoint has %q, current is %q", ErrConfigMismatch, cp.ConfigHash, s.ConfigHash)
	}

	if !s.ValidateSource || cp.SourceETag == "" {
		return nil
	}

	fingerprint, err := probe(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}

	if fingerprint != "" && fingerprint != cp.SourceETag {
		return fmt.Errorf("%w: checkpoint has %q, source reports %q", ErrSourceChanged, cp.SourceETag, fingerprint)
	}

	return nil
}

// ShouldCheckpoint reports whether any trigger fired for the given
// cumulative counters.
func (s *Store) ShouldCheckpoint(pages, bytes int64) bool {
	if s.Thresholds.Pages > 0 && pages-s.lastSavedPages >= s.Thresholds.Pages {
		return true
	}

	if s.Thresholds.Bytes > 0 && bytes-s.lastSavedBytes >= s.Thresholds.Bytes {
		return true
	}

	if s.Thresholds.Interval > 0 && s.Clock().Sub(s.lastSaveTime) >= s.Thresholds.Interval {
		return true
	}

	return false
}
