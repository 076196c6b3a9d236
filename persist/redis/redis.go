// Package redis stores cache documents in Redis, for hosts that keep the
// offline cache on a sidecar or share it between worker processes.
package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/offcache/persist"
)

var ErrNilClient = errors.New("redis persist: nil client")

type Adapter struct {
	rdb         goredis.UniversalClient
	prefix      string
	closeClient bool
}

var _ persist.Adapter = (*Adapter)(nil)

type Config struct {
	Client      goredis.UniversalClient
	Prefix      string // optional key prefix, e.g. "fieldapp"
	CloseClient bool   // set true only if this adapter exclusively owns the client
}

func New(cfg Config) (*Adapter, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Adapter{rdb: cfg.Client, prefix: cfg.Prefix, closeClient: cfg.CloseClient}, nil
}

func (a *Adapter) key(k string) string {
	if a.prefix == "" {
		return k
	}
	return a.prefix + ":" + k
}

func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := a.rdb.Get(ctx, a.key(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set writes without expiry; documents live until removed.
func (a *Adapter) Set(ctx context.Context, key string, value []byte) error {
	return a.rdb.Set(ctx, a.key(key), value, 0).Err()
}

func (a *Adapter) Remove(ctx context.Context, key string) error {
	return a.rdb.Del(ctx, a.key(key)).Err()
}

// Close releases the client only when this adapter owns it.
// Safe to call multiple times.
func (a *Adapter) Close(context.Context) error {
	if a.closeClient {
		if err := a.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
