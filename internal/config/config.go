// Package config loads and validates wikistream configuration from file,
// environment, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// Validation errors.
var (
	ErrMissingSourceURL = errors.New("source.url is required")
	ErrBadSize          = errors.New("invalid size string")
	ErrBadThreshold     = errors.New("threshold must be positive")
)

// Config is the top-level configuration struct for wikistream.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Source     SourceConfig     `mapstructure:"source"`
	Output     OutputConfig     `mapstructure:"output"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Parse      ParseConfig      `mapstructure:"parse"`
	Chunk      ChunkConfig      `mapstructure:"chunk"`
	Filter     FilterConfig     `mapstructure:"filter"`
}

// SourceConfig holds dump source and transfer knobs.
// All size strings use humanize format (e.g. "1MiB", "100MB").
type SourceConfig struct {
	URL               string        `mapstructure:"url"`
	ChunkSize         string        `mapstructure:"chunk_size"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	ValidateUnchanged bool          `mapstructure:"validate_unchanged"`
}

// OutputConfig holds the work and bundle directories.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	BundleDir string `mapstructure:"bundle_dir"`
}

// CheckpointConfig holds the checkpoint trigger thresholds.
type CheckpointConfig struct {
	EveryPages    int64         `mapstructure:"every_pages"`
	EveryBytes    string        `mapstructure:"every_bytes"`
	EveryInterval time.Duration `mapstructure:"every_interval"`
}

// ParseConfig holds page inclusion filter policy.
type ParseConfig struct {
	AllowedNamespaces  []int `mapstructure:"allowed_namespaces"`
	SkipRedirects      bool  `mapstructure:"skip_redirects"`
	SkipDisambiguation bool  `mapstructure:"skip_disambiguation"`
}

// ChunkConfig holds chunk stage settings.
type ChunkConfig struct {
	MaxTokens     int `mapstructure:"max_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens"`
}

// FilterConfig holds length filter stage settings.
type FilterConfig struct {
	MinLength int `mapstructure:"min_length"`
	MaxLength int `mapstructure:"max_length"`
}

// ChunkSizeBytes parses the transfer chunk size.
func (c SourceConfig) ChunkSizeBytes() (int64, error) {
	parsed, err := humanize.ParseBytes(c.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("%w: source.chunk_size %q", ErrBadSize, c.ChunkSize)
	}

	return int64(parsed), nil
}

// EveryBytesValue parses the byte checkpoint threshold.
func (c CheckpointConfig) EveryBytesValue() (int64, error) {
	parsed, err := humanize.ParseBytes(c.EveryBytes)
	if err != nil {
		return 0, fmt.Errorf("%w: checkpoint.every_bytes %q", ErrBadSize, c.EveryBytes)
	}

	return int64(parsed), nil
}

// Validate checks cross-field consistency and size-string syntax.
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return ErrMissingSourceURL
	}

	_, chunkErr := c.Source.ChunkSizeBytes()
	if chunkErr != nil {
		return chunkErr
	}

	_, bytesErr := c.Checkpoint.EveryBytesValue()
	if bytesErr != nil {
		return bytesErr
	}

	if c.Checkpoint.EveryPages <= 0 {
		return fmt.Errorf("%w: checkpoint.every_pages", ErrBadThreshold)
	}

	if c.Checkpoint.EveryInterval <= 0 {
		return fmt.Errorf("%w: checkpoint.every_interval", ErrBadThreshold)
	}

	if c.Chunk.MaxTokens <= 0 {
		return fmt.Errorf("%w: chunk.max_tokens", ErrBadThreshold)
	}

	if c.Chunk.OverlapTokens < 0 || c.Chunk.OverlapTokens >= c.Chunk.MaxTokens {
		return fmt.Errorf("%w: chunk.overlap_tokens must be in [0, max_tokens)", ErrBadThreshold)
	}

	return nil
}

// Derived artifact paths, all under the work directory.

// ParsedFile is the ingest output (one page record per line).
func (c *Config) ParsedFile() string {
	return filepath.Join(c.Output.Dir, "parsed", "articles.jsonl")
}

// ChunksFile is the chunk stage output.
func (c *Config) ChunksFile() string {
	return filepath.Join(c.Output.Dir, "chunks", "chunks.jsonl")
}

// FilteredFile is the filter stage output.
func (c *Config) FilteredFile() string {
	return filepath.Join(c.Output.Dir, "filtered", "filtered.jsonl")
}

// CheckpointFile is the ingest checkpoint location.
func (c *Config) CheckpointFile() string {
	return filepath.Join(c.Output.Dir, "checkpoints", "stream_parse.checkpoint.json")
}

// StateDir holds per-stage completion state.
func (c *Config) StateDir() string {
	return filepath.Join(c.Output.Dir, "state")
}
