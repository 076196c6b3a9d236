package offcache

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// RetryPolicy schedules retries of failed operations: the n-th failure waits
// InitialDelay * BackoffMultiplier^(n-1), capped at MaxDelay.
type RetryPolicy struct {
	MaxRetries        int           `json:"maxRetries" env:"MAX_RETRIES" envDefault:"3"`
	BackoffMultiplier float64       `json:"backoffMultiplier" env:"BACKOFF_MULTIPLIER" envDefault:"2"`
	InitialDelay      time.Duration `json:"initialDelay" env:"INITIAL_DELAY" envDefault:"1s"`
	MaxDelay          time.Duration `json:"maxDelay" env:"MAX_DELAY" envDefault:"30s"`
}

// Config tunes the cache. Start from DefaultConfig; invalid values are
// replaced by defaults rather than rejected.
type Config struct {
	Namespace string `json:"namespace" env:"NAMESPACE" envDefault:"datacache"`

	MaxSize         int64         `json:"maxSize" env:"MAX_SIZE" envDefault:"104857600"` // bytes; 0 = unbounded
	MaxEntries      int           `json:"maxEntries" env:"MAX_ENTRIES" envDefault:"10000"`
	DefaultTTL      time.Duration `json:"defaultTTL" env:"DEFAULT_TTL" envDefault:"1h"`
	CleanupInterval time.Duration `json:"cleanupInterval" env:"CLEANUP_INTERVAL" envDefault:"5m"`

	SyncEnabled         bool          `json:"syncEnabled" env:"SYNC_ENABLED" envDefault:"true"`
	SyncInterval        time.Duration `json:"syncInterval" env:"SYNC_INTERVAL" envDefault:"1m"`
	BatchSize           int           `json:"batchSize" env:"BATCH_SIZE" envDefault:"50"`
	SyncTimeout         time.Duration `json:"syncTimeout" env:"SYNC_TIMEOUT" envDefault:"30s"`
	SyncConcurrency     int           `json:"syncConcurrency" env:"SYNC_CONCURRENCY" envDefault:"4"`
	MaxFailedOperations int           `json:"maxFailedOperations" env:"MAX_FAILED_OPERATIONS" envDefault:"100"`
	RetryPolicy         RetryPolicy   `json:"retryPolicy" envPrefix:"RETRY_"`

	CompressionEnabled   bool `json:"compressionEnabled" env:"COMPRESSION_ENABLED" envDefault:"true"`
	CompressionThreshold int  `json:"compressionThreshold" env:"COMPRESSION_THRESHOLD" envDefault:"1024"` // bytes
	EncryptionEnabled    bool `json:"encryptionEnabled" env:"ENCRYPTION_ENABLED" envDefault:"false"`

	ConflictResolutionStrategy Resolution `json:"conflictResolutionStrategy" env:"CONFLICT_STRATEGY" envDefault:"merge"`

	// OfflineMode pauses draining regardless of the network monitor.
	OfflineMode bool `json:"offlineMode" env:"OFFLINE_MODE"`
}

const (
	defaultNamespace       = "datacache"
	defaultMaxSize         = 100 << 20
	defaultMaxEntries      = 10000
	defaultTTL             = time.Hour
	defaultCleanup         = 5 * time.Minute
	defaultSyncInterval    = time.Minute
	defaultBatchSize       = 50
	defaultSyncTimeout     = 30 * time.Second
	defaultSyncConcurrency = 4
	defaultMaxFailed       = 100
	defaultMaxRetries      = 3
	defaultMultiplier      = 2.0
	defaultInitialDelay    = time.Second
	defaultMaxDelay        = 30 * time.Second
	defaultCompressAt      = 1024
	defaultStrategy        = ResolveMerge
)

func DefaultConfig() Config {
	return Config{
		Namespace:           defaultNamespace,
		MaxSize:             defaultMaxSize,
		MaxEntries:          defaultMaxEntries,
		DefaultTTL:          defaultTTL,
		CleanupInterval:     defaultCleanup,
		SyncEnabled:         true,
		SyncInterval:        defaultSyncInterval,
		BatchSize:           defaultBatchSize,
		SyncTimeout:         defaultSyncTimeout,
		SyncConcurrency:     defaultSyncConcurrency,
		MaxFailedOperations: defaultMaxFailed,
		RetryPolicy: RetryPolicy{
			MaxRetries:        defaultMaxRetries,
			BackoffMultiplier: defaultMultiplier,
			InitialDelay:      defaultInitialDelay,
			MaxDelay:          defaultMaxDelay,
		},
		CompressionEnabled:         true,
		CompressionThreshold:       defaultCompressAt,
		ConflictResolutionStrategy: defaultStrategy,
	}
}

// sanitize replaces out-of-range values with defaults. Booleans are kept.
func (c Config) sanitize() Config {
	c.Namespace = coalesce(c.Namespace, defaultNamespace)
	if c.MaxSize < 0 {
		c.MaxSize = defaultMaxSize
	}
	c.MaxEntries = positive(c.MaxEntries, defaultMaxEntries)
	c.DefaultTTL = positive(c.DefaultTTL, defaultTTL)
	c.CleanupInterval = positive(c.CleanupInterval, defaultCleanup)
	c.SyncInterval = positive(c.SyncInterval, defaultSyncInterval)
	c.BatchSize = positive(c.BatchSize, defaultBatchSize)
	c.SyncTimeout = positive(c.SyncTimeout, defaultSyncTimeout)
	c.SyncConcurrency = positive(c.SyncConcurrency, defaultSyncConcurrency)
	c.MaxFailedOperations = positive(c.MaxFailedOperations, defaultMaxFailed)
	c.CompressionThreshold = positive(c.CompressionThreshold, defaultCompressAt)
	if !c.ConflictResolutionStrategy.Valid() {
		c.ConflictResolutionStrategy = defaultStrategy
	}

	rp := &c.RetryPolicy
	if rp.MaxRetries < 0 {
		rp.MaxRetries = defaultMaxRetries
	}
	if rp.BackoffMultiplier < 1 {
		rp.BackoffMultiplier = defaultMultiplier
	}
	rp.InitialDelay = positive(rp.InitialDelay, defaultInitialDelay)
	rp.MaxDelay = positive(rp.MaxDelay, defaultMaxDelay)
	if rp.MaxDelay < rp.InitialDelay {
		rp.MaxDelay = rp.InitialDelay
	}
	return c
}

// LoadConfigFromEnv reads a Config from environment variables, e.g. with
// prefix "OFFCACHE_": OFFCACHE_MAX_ENTRIES, OFFCACHE_RETRY_MAX_RETRIES.
// Unparseable values are an error; out-of-range values fall back to defaults.
func LoadConfigFromEnv(prefix string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return DefaultConfig(), fmt.Errorf("parse env: %w", err)
	}
	return cfg.sanitize(), nil
}
