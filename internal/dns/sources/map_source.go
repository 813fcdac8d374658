package sources

import (
	"context"
	"sync"

	"github.com/kestreldns/kestrel-dns/internal/dns/common/utils"
	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
)

// MapSource answers from an in-memory map of domain name to the full set of
// records known for that name, filtering by the requested type and class at
// lookup time. It is safe for concurrent Get; Set and Clear are provided for
// tests and operational reloads even though the steady-state contract is
// read-only after construction.
type MapSource struct {
	mu   sync.RWMutex
	data map[string][]domain.ResourceRecord
}

// NewMapSource builds a MapSource from a domain-name-keyed record map. Keys
// are canonicalized so lookups are case- and dot-insensitive.
func NewMapSource(data map[string][]domain.ResourceRecord) *MapSource {
	m := &MapSource{data: make(map[string][]domain.ResourceRecord, len(data))}
	for name, records := range data {
		m.data[utils.CanonicalDNSName(name)] = records
	}
	return m
}

// Get returns the records under q.Name whose type and class match the
// question. A present-but-wrong-type name returns an empty result and a nil
// error, not NXDOMAIN on its own -- NXDOMAIN is a chain-level outcome.
func (m *MapSource) Get(_ context.Context, q domain.Question) ([]domain.ResourceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, ok := m.data[utils.CanonicalDNSName(q.Name)]
	if !ok {
		return nil, nil
	}

	var matched []domain.ResourceRecord
	for _, rr := range records {
		if rr.Type == q.Type && rr.Class == q.Class {
			matched = append(matched, rr)
		}
	}
	return matched, nil
}

// Set replaces the record set for a single domain name.
func (m *MapSource) Set(name string, records []domain.ResourceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[utils.CanonicalDNSName(name)] = records
}

// Clear empties the source entirely.
func (m *MapSource) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]domain.ResourceRecord)
}

var _ Source = (*MapSource)(nil)
