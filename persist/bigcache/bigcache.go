// Package bigcache keeps cache documents in an allegro/bigcache instance.
// Documents survive only for the process lifetime; use it when the host
// already persists elsewhere or in tests that need a sharded store.
package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/offcache/persist"
)

type Adapter struct {
	c *bc.BigCache
}

var _ persist.Adapter = (*Adapter)(nil)

type Config struct {
	// LifeWindow bounds how long bigcache keeps a document without rewrite.
	// 0 => 30 days. The cache rewrites its documents on every mutation.
	LifeWindow         time.Duration
	Shards             int // power of two; 0 => bigcache default
	MaxEntrySize       int
	HardMaxCacheSizeMB int // 0 = unlimited
}

func New(cfg Config) (*Adapter, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 30 * 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	// documents must not vanish behind the cache's back
	conf.CleanWindow = 0
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	conf.Verbose = false
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Adapter{c: c}, nil
}

func (a *Adapter) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := a.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (a *Adapter) Set(_ context.Context, key string, value []byte) error {
	if err := a.c.Set(key, value); err != nil {
		return errors.Join(persist.ErrRejected, err)
	}
	return nil
}

func (a *Adapter) Remove(_ context.Context, key string) error {
	err := a.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (a *Adapter) Close(context.Context) error {
	return a.c.Close()
}
