package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/remote"
	"github.com/poiesic/docsearch/replication"
	"github.com/poiesic/docsearch/search"
	"golang.org/x/time/rate"
)

// Config is the complete engine configuration.
type Config struct {
	Remote      RemoteConfig      `koanf:"remote"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Search      SearchConfig      `koanf:"search"`
	Replication ReplicationConfig `koanf:"replication"`
	NATS        NATSConfig        `koanf:"nats"`
	Log         LogConfig         `koanf:"log"`
}

// RemoteConfig locates the remote content store.
type RemoteConfig struct {
	URL             string  `koanf:"url"`
	Key             string  `koanf:"key"`
	EmbeddingColumn string  `koanf:"embedding_column"`
	FetchRate       float64 `koanf:"fetch_rate"` // Table fetches per second
	FetchBurst      int     `koanf:"fetch_burst"`
}

// EmbeddingConfig selects the query embedding model.
type EmbeddingConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	Host      string `koanf:"host"`
	Token     string `koanf:"token"`
	CacheDir  string `koanf:"cache_dir"`
	MaxLength int    `koanf:"max_length"`
	Dimension int    `koanf:"dimension"`
}

// SearchConfig tunes local search.
type SearchConfig struct {
	Threshold  float32 `koanf:"threshold"`
	Limit      int     `koanf:"limit"`
	SkipWorker bool    `koanf:"skip_worker"`
}

// ReplicationConfig tunes replication.
type ReplicationConfig struct {
	BatchSize   int           `koanf:"batch_size"`
	PoolSize    int           `koanf:"pool_size"`
	MaxAttempts int           `koanf:"max_attempts"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
}

// NATSConfig enables the NATS worker channel when URL is set.
type NATSConfig struct {
	URL    string `koanf:"url"`
	Prefix string `koanf:"prefix"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `koanf:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	aiDefaults := ai.DefaultConfig()
	return Config{
		Remote: RemoteConfig{
			EmbeddingColumn: "embedding",
			FetchRate:       10,
			FetchBurst:      2,
		},
		Embedding: EmbeddingConfig{
			Provider:  aiDefaults.Provider,
			Model:     aiDefaults.Model,
			Host:      aiDefaults.Host,
			MaxLength: aiDefaults.MaxLength,
			Dimension: aiDefaults.Dimension,
		},
		Search: SearchConfig{
			Threshold: search.DefaultThreshold,
			Limit:     search.DefaultLimit,
		},
		Replication: ReplicationConfig{
			BatchSize:   replication.DefaultBatchSize,
			MaxAttempts: 3,
			RetryDelay:  500 * time.Millisecond,
		},
		NATS: NATSConfig{
			Prefix: "docsearch",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// AI returns the embedding settings as an ai.Config.
func (c *Config) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(c.Embedding.Provider),
		ai.WithModel(c.Embedding.Model),
		ai.WithHost(c.Embedding.Host),
		ai.WithCacheDir(c.Embedding.CacheDir),
		ai.WithMaxLength(c.Embedding.MaxLength),
		ai.WithDimension(c.Embedding.Dimension),
	)
}

// Validate checks the configuration. The remote URL is not required here;
// commands that need it check it themselves.
func (c *Config) Validate() error {
	var errs []error
	if err := c.AI().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Search.Threshold < -1 || c.Search.Threshold > 1 {
		errs = append(errs, fmt.Errorf("search.threshold: %w", search.ErrInvalidThreshold))
	}
	if c.Search.Limit <= 0 {
		errs = append(errs, fmt.Errorf("search.limit: %w", search.ErrInvalidLimit))
	}
	if c.Replication.BatchSize <= 0 {
		errs = append(errs, errors.New("replication.batch_size must be positive"))
	}
	if c.Replication.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("replication.max_attempts: %w", replication.ErrInvalidMaxAttempts))
	}
	if c.Remote.FetchRate <= 0 {
		errs = append(errs, errors.New("remote.fetch_rate must be positive"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RequireRemote reports an error when no remote is configured.
func (c *Config) RequireRemote() error {
	if strings.TrimSpace(c.Remote.URL) == "" {
		return errors.New("remote.url is required (set DOCSEARCH_REMOTE_URL or --remote-url)")
	}
	return nil
}

// RemoteOptions returns the remote.Client options for this configuration.
func (c *Config) RemoteOptions(logger *slog.Logger) []remote.Option {
	return []remote.Option{
		remote.WithEmbeddingColumn(c.Remote.EmbeddingColumn),
		remote.WithFetchRate(rate.Limit(c.Remote.FetchRate), c.Remote.FetchBurst),
		remote.WithLogger(logger),
	}
}

// ReplicationOptions returns the replicator options for this configuration.
func (c *Config) ReplicationOptions(logger *slog.Logger) []replication.Option {
	opts := []replication.Option{
		replication.WithBatchSize(c.Replication.BatchSize),
		replication.WithRetry(c.Replication.MaxAttempts, c.Replication.RetryDelay),
		replication.WithLogger(logger),
	}
	if c.Replication.PoolSize > 0 {
		opts = append(opts, replication.WithPoolSize(c.Replication.PoolSize))
	}
	return opts
}

// SearchOptions returns the local searcher options for this configuration.
func (c *Config) SearchOptions() []search.Option {
	return []search.Option{
		search.WithThreshold(c.Search.Threshold),
		search.WithLimit(c.Search.Limit),
	}
}
