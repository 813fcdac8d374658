// Package sources provides the record-producing leaves of a resolution
// chain: in-memory maps, JSON-file-backed maps, and a recursive upstream
// resolver. Sources never cache and never filter by policy; that is the
// job of the filters package.
package sources

import (
	"context"

	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
)

// Source produces the records (if any) that answer a single question. A
// Source returning (nil, nil) means "no records here", not an error.
// MapSource never errors; DummyDnsSource returns its configured Err, if any;
// RecursiveSource returns a plain
// error on timeout or a non-success upstream rcode, left for the caller's
// guard to convert into a DnsError.
type Source interface {
	Get(ctx context.Context, q domain.Question) ([]domain.ResourceRecord, error)
}
