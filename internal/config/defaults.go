package config

import "time"

// Default configuration values.
const (
	DefaultSourceURL = "https://dumps.wikimedia.org/enwiki/latest/enwiki-latest-pages-articles.xml.bz2"

	DefaultChunkSize    = "1MiB"
	DefaultTimeout      = 5 * time.Minute
	DefaultMaxRetries   = 5
	DefaultRetryBackoff = 10 * time.Second

	DefaultWorkDir   = "work"
	DefaultBundleDir = "bundle"

	DefaultCheckpointPages    = int64(1000)
	DefaultCheckpointBytes    = "100MB"
	DefaultCheckpointInterval = 60 * time.Second

	DefaultChunkMaxTokens = 512
	DefaultChunkOverlap   = 50

	DefaultFilterMinLength = 100
	DefaultFilterMaxLength = 10000
)
