package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".wikistream"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for wikistream settings.
const envPrefix = "WIKISTREAM"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Load loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("source.url", DefaultSourceURL)
	viperCfg.SetDefault("source.chunk_size", DefaultChunkSize)
	viperCfg.SetDefault("source.timeout", DefaultTimeout)
	viperCfg.SetDefault("source.max_retries", DefaultMaxRetries)
	viperCfg.SetDefault("source.retry_backoff", DefaultRetryBackoff)
	viperCfg.SetDefault("source.validate_unchanged", true)

	viperCfg.SetDefault("output.dir", DefaultWorkDir)
	viperCfg.SetDefault("output.bundle_dir", DefaultBundleDir)

	viperCfg.SetDefault("checkpoint.every_pages", DefaultCheckpointPages)
	viperCfg.SetDefault("checkpoint.every_bytes", DefaultCheckpointBytes)
	viperCfg.SetDefault("checkpoint.every_interval", DefaultCheckpointInterval)

	viperCfg.SetDefault("parse.allowed_namespaces", []int{0})
	viperCfg.SetDefault("parse.skip_redirects", true)
	viperCfg.SetDefault("parse.skip_disambiguation", false)

	viperCfg.SetDefault("chunk.max_tokens", DefaultChunkMaxTokens)
	viperCfg.SetDefault("chunk.overlap_tokens", DefaultChunkOverlap)

	viperCfg.SetDefault("filter.min_length", DefaultFilterMinLength)
	viperCfg.SetDefault("filter.max_length", DefaultFilterMaxLength)
}
