package filters

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kestreldns/kestrel-dns/internal/dns/common/clock"
	"github.com/kestreldns/kestrel-dns/internal/dns/common/log"
	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
	"github.com/kestreldns/kestrel-dns/internal/dns/sources"
)

// cacheEntry is the cached record set for one question fingerprint, plus
// the earliest absolute expiry across those records -- the entry is valid
// only while now is before that instant.
type cacheEntry struct {
	records []domain.ResourceRecord
	expiry  time.Time
}

// cacheFilter never caches an empty result and stamps every cached record
// with an absolute expiry derived from the clock at insertion time, so TTL
// correctness survives however long the record actually sat in the cache.
// The lookup-or-fetch-and-insert sequence is not one atomic critical
// section (a miss releases the lock before calling next), which means two
// concurrent misses for the same key may both call through -- acceptable
// per the at-least-one correctness floor; the earliest-expiry computation
// and the map insertion that publishes it happen under the same lock.
type cacheFilter struct {
	mu    sync.Mutex
	cache *lru.Cache[string, cacheEntry]
	next  sources.Source
	clock clock.Clock
	log   log.Logger
}

// NewCacheFilter returns a Filter that wraps its next stage with an
// LRU-bounded, TTL-aware cache keyed by the question's name/type/class
// fingerprint.
func NewCacheFilter(size int, clk clock.Clock, logger log.Logger) (Filter, error) {
	backing, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return func(next sources.Source) sources.Source {
		return &cacheFilter{cache: backing, next: next, clock: clk, log: logger}
	}, nil
}

func (f *cacheFilter) Get(ctx context.Context, q domain.Question) ([]domain.ResourceRecord, error) {
	key := q.CacheKey()
	now := f.clock.Now()

	f.mu.Lock()
	if entry, ok := f.cache.Get(key); ok && now.Before(entry.expiry) {
		f.mu.Unlock()
		return entry.records, nil
	}
	f.mu.Unlock()

	records, err := f.next.Get(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	f.mu.Lock()
	stamped, expiry, err := stampRecords(now, records)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.cache.Add(key, cacheEntry{records: stamped, expiry: expiry})
	f.mu.Unlock()

	f.log.Debug(map[string]any{"key": key, "count": len(stamped)}, "cached resolved records")
	return stamped, nil
}

// stampRecords rebuilds each record as a cached record with an absolute
// expiry of now+ttl, and returns the earliest of those expiries -- the
// single instant the cache entry as a whole is valid until.
func stampRecords(now time.Time, records []domain.ResourceRecord) ([]domain.ResourceRecord, time.Time, error) {
	stamped := make([]domain.ResourceRecord, len(records))
	var earliest time.Time
	for i, rr := range records {
		cached, err := domain.NewCachedResourceRecord(rr.Name, rr.Type, rr.Class, rr.TTL(), rr.Data, now)
		if err != nil {
			return nil, time.Time{}, err
		}
		stamped[i] = cached.WithText(rr.Text)

		exp := *cached.ExpiresAt()
		if earliest.IsZero() || exp.Before(earliest) {
			earliest = exp
		}
	}
	return stamped, earliest, nil
}

var _ sources.Source = (*cacheFilter)(nil)
