// Package evict decides which entries leave the cache: expired ones on a
// sweep, and the lowest-priority oldest ones when capacity is exceeded.
package evict

import (
	"sort"
	"time"

	"github.com/unkn0wn-root/offcache/internal/model"
)

// Source is the read side of the entry map.
type Source interface {
	Each(fn func(*model.Entry))
	Len() int
	Size() int64
}

// Limits bounds the cache. Zero disables a bound.
type Limits struct {
	MaxEntries int
	MaxSize    int64
}

// Expired returns the keys whose deadline has passed at now, ordered by key.
func Expired(src Source, now time.Time) []string {
	var keys []string
	src.Each(func(e *model.Entry) {
		if e.Expired(now) {
			keys = append(keys, e.Key)
		}
	})
	sort.Strings(keys)
	return keys
}

type candidate struct {
	key    string
	weight int
	ts     time.Time
	size   int64
}

// Victims returns the keys to evict, in eviction order, so that the entry
// count and the size estimate fall within lim. Order is priority weight
// ascending, then timestamp ascending, then key.
func Victims(src Source, lim Limits) []string {
	overCount := lim.MaxEntries > 0 && src.Len() > lim.MaxEntries
	overSize := lim.MaxSize > 0 && src.Size() > lim.MaxSize
	if !overCount && !overSize {
		return nil
	}

	cands := make([]candidate, 0, src.Len())
	src.Each(func(e *model.Entry) {
		cands = append(cands, candidate{key: e.Key, weight: e.Priority.Weight(), ts: e.Timestamp, size: e.Size()})
	})
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.weight != b.weight {
			return a.weight < b.weight
		}
		if !a.ts.Equal(b.ts) {
			return a.ts.Before(b.ts)
		}
		return a.key < b.key
	})

	count, size := src.Len(), src.Size()
	var out []string
	for _, c := range cands {
		countOK := lim.MaxEntries <= 0 || count <= lim.MaxEntries
		sizeOK := lim.MaxSize <= 0 || size <= lim.MaxSize
		if countOK && sizeOK {
			break
		}
		out = append(out, c.key)
		count--
		size -= c.size
	}
	return out
}
