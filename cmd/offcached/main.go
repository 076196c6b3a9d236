// Command offcached runs an offline-first cache as a local daemon: values are
// kept in SQLite (or Redis, bigcache, ristretto), mutations are queued and replayed against a remote once the
// probe address answers. The bundled remote is a dry run that logs each
// operation and acknowledges it.
//
// Configuration comes from the environment (a .env file is loaded first):
// OFFCACHED_* for the daemon itself, OFFCACHE_* for the cache (see
// offcache.LoadConfigFromEnv).
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/offcache"
	"github.com/unkn0wn-root/offcache/cipher"
	"github.com/unkn0wn-root/offcache/codec"
	asynchook "github.com/unkn0wn-root/offcache/hooks/async"
	offlogrus "github.com/unkn0wn-root/offcache/log/logrus"
	offprom "github.com/unkn0wn-root/offcache/metrics/prometheus"
	"github.com/unkn0wn-root/offcache/netmon"
	"github.com/unkn0wn-root/offcache/sloghooks"
	"github.com/unkn0wn-root/offcache/version"
)

type daemonConfig struct {
	Addr      string `env:"ADDR" envDefault:":8088"`
	Store     string `env:"STORE" envDefault:"sqlite"` // sqlite, redis, bigcache, ristretto
	DBPath    string `env:"DB_PATH" envDefault:"offcache.db"`
	MemoryMB  int    `env:"MEMORY_MB" envDefault:"64"` // bigcache/ristretto budget
	ProbeAddr string `env:"PROBE_ADDR"` // empty => always online
	RedisAddr string `env:"REDIS_ADDR"` // set to share versions across replicas
	CipherKey string `env:"CIPHER_KEY"` // 64 hex chars enables encryption
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	_ = godotenv.Load()

	var dc daemonConfig
	if err := env.ParseWithOptions(&dc, env.Options{Prefix: "OFFCACHED_"}); err != nil {
		log.Fatal("Failed to load daemon configuration:", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(dc.LogLevel)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}

	cfg, err := offcache.LoadConfigFromEnv("OFFCACHE_")
	if err != nil {
		logger.Fatal("Failed to load cache configuration:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(dc)
	if err != nil {
		logger.Fatal("Failed to open store:", err)
	}

	hooks := asynchook.New(sloghooks.New(slog.New(slog.NewJSONHandler(os.Stderr, nil)), sloghooks.Options{
		ExpiredEvery: 100,
		EvictedEvery: 10,
	}), 1, 1000)
	defer hooks.Close()

	opts := offcache.Options[json.RawMessage]{
		Codec:       codec.JSON[json.RawMessage]{},
		Persistence: store,
		Remote:      dryRun(logger),
		Config:      &cfg,
		Logger:      offlogrus.New(logger),
		Hooks:       hooks,
	}

	if dc.ProbeAddr != "" {
		probe := netmon.NewProbe(netmon.ProbeConfig{Addr: dc.ProbeAddr})
		probe.Start(ctx)
		defer probe.Stop()
		opts.Network = probe
	}
	if dc.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: dc.RedisAddr})
		vs, err := version.NewRedis(version.RedisConfig{
			Client:      rdb,
			Namespace:   cfg.Namespace,
			TTL:         version.DefaultRetention,
			CloseClient: true,
		})
		if err != nil {
			logger.Fatal("Failed to set up Redis versions:", err)
		}
		opts.Versions = vs
	}
	if dc.CipherKey != "" {
		key, err := hex.DecodeString(dc.CipherKey)
		if err != nil {
			logger.Fatal("OFFCACHED_CIPHER_KEY must be hex:", err)
		}
		ciph, err := cipher.NewXChaCha20(key)
		if err != nil {
			logger.Fatal("Failed to build cipher:", err)
		}
		opts.Cipher = ciph
		cfg.EncryptionEnabled = true
	}

	c, err := offcache.Open(ctx, opts)
	if err != nil {
		logger.Fatal("Failed to open cache:", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		offprom.NewCollector(c, cfg.Namespace),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	srv := newServer(c, reg, logger)

	go func() {
		if err := srv.e.Start(dc.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server:", err)
		}
	}()
	logger.WithField("addr", dc.Addr).Info("offcached started")

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server forced to shutdown")
	}
	if err := c.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("Cache close failed")
	}
	logger.Info("offcached exited")
}

// dryRun acknowledges every operation after logging it.
func dryRun(logger *logrus.Logger) offcache.SyncFunc {
	return func(_ context.Context, op offcache.Operation) (offcache.SyncResult, error) {
		logger.WithFields(logrus.Fields{
			"id":          op.ID,
			"type":        op.Type,
			"entity_type": op.EntityType,
			"entity_id":   op.EntityID,
			"bytes":       len(op.Payload),
		}).Info("dry-run sync")
		return offcache.Succeeded(), nil
	}
}
