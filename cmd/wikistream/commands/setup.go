// Package commands implements CLI command handlers for wikistream.
package commands

import (
	"log/slog"
	"os"

	"github.com/wikistream/wikistream/internal/config"
)

// loadConfig resolves the effective configuration: file and environment
// first, then explicit flag overrides.
func loadConfig(configPath, sourceURL, workDir string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if sourceURL != "" {
		cfg.Source.URL = sourceURL
	}

	if workDir != "" {
		cfg.Output.Dir = workDir
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, validateErr
	}

	return cfg, nil
}

// newLogger builds the stderr logger at the level the verbosity flags ask
// for. Silent mode keeps warnings and errors.
func newLogger(verbose, silent bool) *slog.Logger {
	level := slog.LevelInfo

	switch {
	case silent:
		level = slog.LevelWarn
	case verbose:
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
