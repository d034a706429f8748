// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ProviderFastEmbed runs a local ONNX model through fastembed.
	ProviderFastEmbed = "fastembed"
	// ProviderOpenAI calls an OpenAI-compatible embeddings endpoint.
	ProviderOpenAI = "openai"
)

// Config holds configuration for the embedding backend.
type Config struct {
	// Provider selects the backend: "fastembed" (default) or "openai".
	Provider string

	// Model is the model identifier.
	// Example: "BAAI/bge-small-en-v1.5" for fastembed, "text-embedding-3-small" for openai
	Model string

	// Host is the base URL of an OpenAI-compatible server. Only used by the openai provider.
	// Example: "http://localhost:11434/v1"
	Host string

	// CacheDir is where fastembed stores downloaded model files.
	// Empty means the fastembed default.
	CacheDir string

	// MaxLength is the maximum token length fed to the local model.
	// Default: 512
	MaxLength int

	// Dimension is the expected vector size. Vectors of any other size are rejected.
	// Default: 384
	Dimension int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the embedding backend.
func WithProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithHost sets the OpenAI-compatible server URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithCacheDir sets the local model cache directory.
func WithCacheDir(dir string) ConfigOption {
	return func(c *Config) {
		c.CacheDir = dir
	}
}

// WithMaxLength sets the maximum token length for the local model.
func WithMaxLength(n int) ConfigOption {
	return func(c *Config) {
		c.MaxLength = n
	}
}

// WithDimension sets the expected embedding dimension.
func WithDimension(dim int) ConfigOption {
	return func(c *Config) {
		c.Dimension = dim
	}
}

// DefaultConfig returns a Config for the local 384-dimension bge-small model.
func DefaultConfig() *Config {
	return &Config{
		Provider:  ProviderFastEmbed,
		Model:     "BAAI/bge-small-en-v1.5",
		Host:      "http://localhost:11434/v1",
		MaxLength: 512,
		Dimension: 384,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithProvider(ProviderOpenAI),
//	    WithHost("http://localhost:11434"),
//	    WithModel("nomic-embed-text"),
//	    WithDimension(768),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// The provider name is lower-cased and the host gets the /v1 suffix required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Host != "" && !strings.HasSuffix(c.Host, "/v1") {
		c.Host = strings.TrimSuffix(c.Host, "/")
		c.Host = c.Host + "/v1"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Provider {
	case ProviderFastEmbed:
	case ProviderOpenAI:
		if c.Host == "" {
			return errors.New("ai config: Host is required for the openai provider")
		}
	default:
		return fmt.Errorf("ai config: %w: %q", ErrUnknownProvider, c.Provider)
	}
	if c.Model == "" {
		return errors.New("ai config: Model is required")
	}
	if c.Dimension <= 0 {
		return errors.New("ai config: Dimension must be positive")
	}
	if c.MaxLength < 0 {
		return errors.New("ai config: MaxLength cannot be negative")
	}
	return nil
}
