package sources

import (
	"context"

	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
)

// DummyDnsSource returns a fixed, pre-built set of records (or a fixed
// error) for every query, regardless of the question asked. It exists to
// support deterministic fault and canned-response injection in tests, e.g.
// reaching SERVFAIL via a source fault without standing up a real
// upstream.
type DummyDnsSource struct {
	Records []domain.ResourceRecord
	Err     error
}

func (s *DummyDnsSource) Get(_ context.Context, _ domain.Question) ([]domain.ResourceRecord, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Records, nil
}

var _ Source = (*DummyDnsSource)(nil)
