package offcache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigSanitizeIsStable(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.sanitize() != cfg {
		t.Fatal("defaults changed by sanitize")
	}
}

func TestSanitizeReplacesInvalidValues(t *testing.T) {
	cfg := Config{
		MaxSize:                    -1,
		MaxEntries:                 -3,
		BatchSize:                  0,
		SyncTimeout:                -time.Second,
		ConflictResolutionStrategy: "coin-flip",
		RetryPolicy: RetryPolicy{
			MaxRetries:        -1,
			BackoffMultiplier: 0.5,
			InitialDelay:      10 * time.Second,
			MaxDelay:          time.Second,
		},
	}.sanitize()

	def := DefaultConfig()
	if cfg.Namespace != def.Namespace || cfg.MaxSize != def.MaxSize || cfg.MaxEntries != def.MaxEntries ||
		cfg.BatchSize != def.BatchSize || cfg.SyncTimeout != def.SyncTimeout {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.ConflictResolutionStrategy != ResolveMerge {
		t.Fatalf("strategy=%q", cfg.ConflictResolutionStrategy)
	}
	rp := cfg.RetryPolicy
	if rp.MaxRetries != 3 || rp.BackoffMultiplier != 2 || rp.MaxDelay != rp.InitialDelay {
		t.Fatalf("retry=%+v", rp)
	}
	if (Config{MaxSize: 0}).sanitize().MaxSize != 0 {
		t.Fatal("MaxSize 0 means unbounded and must be kept")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("OFFC_NAMESPACE", "field-app")
	t.Setenv("OFFC_MAX_ENTRIES", "42")
	t.Setenv("OFFC_DEFAULT_TTL", "90s")
	t.Setenv("OFFC_SYNC_ENABLED", "false")
	t.Setenv("OFFC_BATCH_SIZE", "-1")
	t.Setenv("OFFC_RETRY_MAX_RETRIES", "7")
	t.Setenv("OFFC_CONFLICT_STRATEGY", "remote")

	cfg, err := LoadConfigFromEnv("OFFC_")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Namespace != "field-app" || cfg.MaxEntries != 42 || cfg.DefaultTTL != 90*time.Second {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.SyncEnabled || cfg.BatchSize != defaultBatchSize || cfg.RetryPolicy.MaxRetries != 7 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.ConflictResolutionStrategy != ResolveRemote || cfg.SyncInterval != time.Minute {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadConfigFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("OFFC2_MAX_ENTRIES", "lots")
	if _, err := LoadConfigFromEnv("OFFC2_"); err == nil {
		t.Fatal("expected parse error")
	}
}

// ==============================
// UpdateConfig
// ==============================

func TestUpdateConfigRestartsOnlyChangedTimers(t *testing.T) {
	h := newHarness(t, func(o *Options[workOrder]) {
		o.DisableTimers = false
		o.Config.CleanupInterval = time.Hour
		o.Config.SyncInterval = time.Hour
	})
	ctx := context.Background()
	cleanup, syncer := h.c.cleanupLoop, h.c.syncLoop

	if err := h.c.UpdateConfig(ctx, func(c *Config) { c.CleanupInterval = 2 * time.Hour }); err != nil {
		t.Fatal(err)
	}
	if h.c.cleanupLoop == cleanup || h.c.syncLoop != syncer {
		t.Fatal("expected only the cleanup timer to restart")
	}
	if h.c.cleanupLoop.interval != 2*time.Hour {
		t.Fatalf("interval=%v", h.c.cleanupLoop.interval)
	}

	cleanup = h.c.cleanupLoop
	if err := h.c.UpdateConfig(ctx, func(c *Config) { c.SyncEnabled = false }); err != nil {
		t.Fatal(err)
	}
	if h.c.syncLoop != nil || h.c.cleanupLoop != cleanup {
		t.Fatal("disabling sync should stop only the sync timer")
	}

	if err := h.c.UpdateConfig(ctx, func(c *Config) { c.MaxFailedOperations = 5 }); err != nil {
		t.Fatal(err)
	}
	if h.c.cleanupLoop != cleanup || h.c.syncLoop != nil {
		t.Fatal("unrelated change restarted a timer")
	}
}

func TestUpdateConfigPersistsAndSanitizes(t *testing.T) {
	ad := newFlaky()
	ctx := context.Background()
	c1 := openOn(t, ad, nil)
	err := c1.UpdateConfig(ctx, func(c *Config) {
		c.MaxEntries = 7
		c.BatchSize = -4
		c.Namespace = "elsewhere"
	})
	if err != nil {
		t.Fatal(err)
	}
	got := c1.Config()
	if got.MaxEntries != 7 || got.BatchSize != defaultBatchSize || got.Namespace != "test" {
		t.Fatalf("cfg=%+v", got)
	}
	_ = c1.Close(ctx)

	c2 := openOn(t, ad, nil)
	if c2.Config().MaxEntries != 7 {
		t.Fatalf("stored config not applied: %+v", c2.Config())
	}
	_ = c2.Close(ctx)

	c3 := openOn(t, ad, func(o *Options[workOrder]) { o.ResetConfig = true })
	defer c3.Close(ctx)
	if c3.Config().MaxEntries == 7 {
		t.Fatal("ResetConfig should ignore the stored config")
	}
}

func TestUpdateConfigShrinkEvicts(t *testing.T) {
	h := newHarness(t, nil)
	mustSet(t, h.c, "a", workOrder{}, WithPriority(PriorityLow))
	mustSet(t, h.c, "b", workOrder{}, WithPriority(PriorityHigh))
	mustSet(t, h.c, "c", workOrder{}, WithPriority(PriorityCritical))

	if err := h.c.UpdateConfig(context.Background(), func(c *Config) { c.MaxEntries = 2 }); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.c.Entry("a"); ok {
		t.Fatal("low priority entry should be evicted on shrink")
	}
	if h.c.Stats().TotalEntries != 2 {
		t.Fatal("shrink did not enforce the limit")
	}
}

func TestUpdateConfigStorageFailureKeepsOldConfig(t *testing.T) {
	h := newHarness(t, nil)
	h.adapter.failOn("config", errors.New("read-only"))
	err := h.c.UpdateConfig(context.Background(), func(c *Config) { c.MaxEntries = 1 })
	var se *StorageError
	if !errors.As(err, &se) || se.Doc != "config" {
		t.Fatalf("err=%v", err)
	}
	if h.c.Config().MaxEntries == 1 {
		t.Fatal("config applied despite failed persist")
	}
}

func TestUpdateConfigTogglesQueueEncryption(t *testing.T) {
	h := newHarness(t, func(o *Options[workOrder]) { o.Cipher = testCipher(t, 3) })
	mustSet(t, h.c, "k", workOrder{})
	if err := h.c.UpdateConfig(context.Background(), func(c *Config) { c.EncryptionEnabled = true }); err != nil {
		t.Fatal(err)
	}
	if h.c.queueDoc.Cipher == nil {
		t.Fatal("queue document cipher not installed")
	}
	mustSet(t, h.c, "k2", workOrder{ID: "after"})
	if e, _ := h.c.Entry("k2"); !e.Encrypted {
		t.Fatal("new writes should be encrypted")
	}
	if e, _ := h.c.Entry("k"); e.Encrypted {
		t.Fatal("existing entries are not rewritten")
	}
	mustGet(t, h.c, "k")
	mustGet(t, h.c, "k2")
}
