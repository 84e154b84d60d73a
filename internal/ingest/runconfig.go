package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/wikistream/wikistream/internal/config"
)

// configHashLen is the number of hex characters kept from the config hash.
const configHashLen = 16

// RunConfig is the immutable per-run configuration owned by the
// coordinator. Its canonical JSON serialization is hashed into the
// checkpoint's config_hash: changing any field invalidates prior
// checkpoints for resume.
type RunConfig struct {
	SourceURL              string `json:"source_url"`
	OutputFile             string `json:"output_file"`
	CheckpointEveryPages   int64  `json:"checkpoint_every_pages"`
	CheckpointEveryBytes   int64  `json:"checkpoint_every_bytes"`
	CheckpointEverySeconds int64  `json:"checkpoint_every_seconds"`
	ChunkSize              int64  `json:"http_chunk_size"`
	TimeoutSeconds         int64  `json:"http_timeout_seconds"`
	MaxRetries             int    `json:"max_retries"`
	RetryBackoffSeconds    int64  `json:"retry_backoff_seconds"`
	AllowedNamespaces      []int  `json:"allowed_namespaces"`
	SkipRedirects          bool   `json:"skip_redirects"`
	SkipDisambiguation     bool   `json:"skip_disambiguation"`
	ForceRestart           bool   `json:"force_restart"`
	ValidateSource         bool   `json:"validate_source_unchanged"`
}

// NewRunConfig projects the application config into the ingest run
// configuration.
func NewRunConfig(cfg *config.Config, forceRestart bool) (RunConfig, error) {
	chunkSize, err := cfg.Source.ChunkSizeBytes()
	if err != nil {
		return RunConfig{}, err
	}

	everyBytes, err := cfg.Checkpoint.EveryBytesValue()
	if err != nil {
		return RunConfig{}, err
	}

	return RunConfig{
		SourceURL:              cfg.Source.URL,
		OutputFile:             cfg.ParsedFile(),
		CheckpointEveryPages:   cfg.Checkpoint.EveryPages,
		CheckpointEveryBytes:   everyBytes,
		CheckpointEverySeconds: int64(cfg.Checkpoint.EveryInterval.Seconds()),
		ChunkSize:              chunkSize,
		TimeoutSeconds:         int64(cfg.Source.Timeout.Seconds()),
		MaxRetries:             cfg.Source.MaxRetries,
		RetryBackoffSeconds:    int64(cfg.Source.RetryBackoff.Seconds()),
		AllowedNamespaces:      cfg.Parse.AllowedNamespaces,
		SkipRedirects:          cfg.Parse.SkipRedirects,
		SkipDisambiguation:     cfg.Parse.SkipDisambiguation,
		ForceRestart:           forceRestart,
		ValidateSource:         cfg.Source.ValidateUnchanged,
	}, nil
}

// Hash computes the canonical config fingerprint: sha256 over the JSON
// serialization, truncated to 16 hex characters.
func (rc RunConfig) Hash() string {
	data, err := json.Marshal(rc)
	if err != nil {
		// RunConfig contains only marshalable fields.
		return ""
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])[:configHashLen]
}
