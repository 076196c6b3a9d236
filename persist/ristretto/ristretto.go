// Package ristretto keeps cache documents in a cost-bounded ristretto cache.
// Writes the admission policy refuses surface as persist.ErrRejected so the
// cache rolls the mutation back instead of believing it is durable.
package ristretto

import (
	"context"
	"errors"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/offcache/persist"
)

type Adapter struct {
	c *rc.Cache
}

var _ persist.Adapter = (*Adapter)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes; each document costs len(value)
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Adapter, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto persist: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{c: c}, nil
}

func (a *Adapter) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := a.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		a.c.Del(key)
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

// Set waits for the write buffer to drain so a following Get observes it.
func (a *Adapter) Set(_ context.Context, key string, value []byte) error {
	cp := append([]byte(nil), value...)
	if !a.c.Set(key, cp, int64(len(cp))+1) {
		return persist.ErrRejected
	}
	a.c.Wait()
	return nil
}

func (a *Adapter) Remove(_ context.Context, key string) error {
	a.c.Del(key)
	return nil
}

func (a *Adapter) Close(context.Context) error {
	a.c.Wait()
	a.c.Close()
	return nil
}

// Metrics exposes ristretto's counters when Config.Metrics is set.
func (a *Adapter) Metrics() *rc.Metrics { return a.c.Metrics }
