// Package checkpoint provides durable progress markers for resumable stream
// ingestion.
package checkpoint

import (
	"errors"
	"time"
)

// Version is the current checkpoint schema version.
const Version = 1

// Sentinel errors for checkpoint persistence and validation.
var (
	// ErrPersist marks a failure to durably commit a checkpoint. Fatal to a
	// run: progress cannot be recorded.
	ErrPersist = errors.New("checkpoint persist failed")

	// ErrConfigMismatch marks a checkpoint written under a different run
	// configuration.
	ErrConfigMismatch = errors.New("config hash mismatch")

	// ErrSourceChanged marks a source whose content fingerprint no longer
	// matches the checkpoint.
	ErrSourceChanged = errors.New("source fingerprint mismatch")

	// ErrProbeFailed marks an identity probe failure; treated as invalid,
	// conservatively.
	ErrProbeFailed = errors.New("source probe failed")
)

// Checkpoint is a durable snapshot of ingestion progress. CompressedBytesRead
// is the offset into the compressed source to resume from;
// OutputBytesWritten always equals the on-disk output length at the moment
// the checkpoint is committed.
type Checkpoint struct {
	SourceURL           string    `json:"source_url"`
	SourceETag          string    `json:"source_etag,omitempty"`
	CompressedBytesRead int64     `json:"compressed_bytes_read"`
	PagesProcessed      int64     `json:"pages_processed"`
	LastPageID          string    `json:"last_page_id,omitempty"`
	LastPageTitle       string    `json:"last_page_title,omitempty"`
	OutputFile          string    `json:"output_file"`
	OutputBytesWritten  int64     `json:"output_bytes_written"`
	LastCheckpointTime  time.Time `json:"last_checkpoint_time"`
	Version             int       `json:"checkpoint_version"`
	ConfigHash          string    `json:"config_hash"`
}

// Thresholds defines the checkpoint trigger policy. A zero field disables
// that trigger.
type Thresholds struct {
	// Pages triggers after this many pages since the last save.
	Pages int64

	// Bytes triggers after this many output bytes since the last save.
	Bytes int64

	// Interval triggers after this much wall-clock time since the last save.
	Interval time.Duration
}
