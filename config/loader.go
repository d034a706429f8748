package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DOCSEARCH_"

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load reads configuration from the YAML file at path, then overrides it
// with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DOCSEARCH_REMOTE_URL, DOCSEARCH_SEARCH_THRESHOLD, etc.)
//  2. YAML config file, when path is not empty
//  3. Default()
//
// Environment variables map onto YAML keys by dropping the prefix and
// splitting section from field at the first underscore:
//
//	DOCSEARCH_REMOTE_URL          -> remote.url
//	DOCSEARCH_EMBEDDING_CACHE_DIR -> embedding.cache_dir
func Load(path string) (*Config, error) {
	var content []byte
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
		}
		content, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return LoadBytes(content)
}

// LoadBytes is Load for YAML already in memory. Empty content means
// defaults plus environment.
func LoadBytes(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps DOCSEARCH_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}
