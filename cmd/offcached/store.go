package main

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/offcache"
	"github.com/unkn0wn-root/offcache/persist/bigcache"
	"github.com/unkn0wn-root/offcache/persist/redis"
	"github.com/unkn0wn-root/offcache/persist/ristretto"
	"github.com/unkn0wn-root/offcache/persist/sqlite"
)

// openStore builds the persistence adapter named by dc.Store.
// bigcache and ristretto keep documents for the process lifetime only.
func openStore(dc daemonConfig) (offcache.PersistenceAdapter, error) {
	switch dc.Store {
	case "", "sqlite":
		return sqlite.Open(dc.DBPath)
	case "redis":
		if dc.RedisAddr == "" {
			return nil, fmt.Errorf("store redis needs OFFCACHED_REDIS_ADDR")
		}
		return redis.New(redis.Config{
			Client:      goredis.NewClient(&goredis.Options{Addr: dc.RedisAddr}),
			Prefix:      "offcached",
			CloseClient: true,
		})
	case "bigcache":
		return bigcache.New(bigcache.Config{HardMaxCacheSizeMB: dc.MemoryMB})
	case "ristretto":
		mb := int64(dc.MemoryMB)
		if mb <= 0 {
			mb = 64
		}
		return ristretto.New(ristretto.Config{NumCounters: 1e4, MaxCost: mb << 20, BufferItems: 64})
	default:
		return nil, fmt.Errorf("unknown store %q (sqlite, redis, bigcache, ristretto)", dc.Store)
	}
}
