package filters

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	bloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/kestreldns/kestrel-dns/internal/dns/common/clock"
	"github.com/kestreldns/kestrel-dns/internal/dns/common/log"
	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
	"github.com/kestreldns/kestrel-dns/internal/dns/sources"
)

// negativeCacheFilter maintains two rotating Bloom-filter generations of
// fingerprints that most recently resolved to an empty result set. It never
// answers on its own -- Bloom membership is advisory, not authoritative --
// it always calls through to the next stage; a hit only suppresses a
// debug-log announcement and increments an operational counter. Generations
// rotate on a fixed interval tied to the injected clock, so a name that
// starts answering eventually stops being flagged. This keeps the
// correctness floor identical to not having the filter at all.
type negativeCacheFilter struct {
	next sources.Source
	clk  clock.Clock
	log  log.Logger

	rotateEvery time.Duration

	mu              sync.Mutex
	current         *bloom.BloomFilter
	previous        *bloom.BloomFilter
	generationStart time.Time

	advisoryHits atomic.Uint64

	newFilter func() *bloom.BloomFilter
}

// NewNegativeCacheFilter returns a Filter implementing the rotating
// advisory negative-result cache. size bounds the expected number of
// distinct negative fingerprints per generation; falsePositiveRate sizes
// the underlying bitset accordingly.
func NewNegativeCacheFilter(size uint, falsePositiveRate float64, rotateEvery time.Duration, clk clock.Clock, logger log.Logger) Filter {
	newFilter := func() *bloom.BloomFilter {
		return bloom.NewWithEstimates(size, falsePositiveRate)
	}
	return func(next sources.Source) sources.Source {
		return &negativeCacheFilter{
			next:            next,
			clk:             clk,
			log:             logger,
			rotateEvery:     rotateEvery,
			current:         newFilter(),
			previous:        newFilter(),
			generationStart: clk.Now(),
			newFilter:       newFilter,
		}
	}
}

func (f *negativeCacheFilter) Get(ctx context.Context, q domain.Question) ([]domain.ResourceRecord, error) {
	key := []byte(q.CacheKey())
	now := f.clk.Now()

	f.mu.Lock()
	f.rotateIfDue(now)
	seen := f.current.Test(key) || f.previous.Test(key)
	f.mu.Unlock()

	if seen {
		f.advisoryHits.Add(1)
	} else {
		f.log.Debug(map[string]any{"key": q.CacheKey()}, "negative cache miss, querying next stage")
	}

	records, err := f.next.Get(ctx, q)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		f.mu.Lock()
		f.current.Add(key)
		f.mu.Unlock()
	}

	return records, nil
}

// rotateIfDue must be called with f.mu held.
func (f *negativeCacheFilter) rotateIfDue(now time.Time) {
	if now.Sub(f.generationStart) < f.rotateEvery {
		return
	}
	f.previous = f.current
	f.current = f.newFilter()
	f.generationStart = now
}

// AdvisoryHits returns the cumulative count of lookups that found their
// fingerprint already flagged as a recent empty result, for operational
// visibility.
func (f *negativeCacheFilter) AdvisoryHits() uint64 {
	return f.advisoryHits.Load()
}

var _ sources.Source = (*negativeCacheFilter)(nil)
