// Package wire provides encoding and decoding of DNS messages for UDP transport.
// It handles the DNS wire format as specified in RFC 1035.
package wire

import (
	"time"

	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
)

// DNSCodec encodes and decodes DNS messages on the wire. Decode failures are
// returned as plain errors; callers convert them to a DnsError with whatever
// default kind fits their call site (parse scopes default to FORMERR).
type DNSCodec interface {
	// Upstream-facing: used by RecursiveSource to talk to resolvers.
	EncodeQuery(query domain.Question) ([]byte, error)
	DecodeResponse(data []byte, expectedID uint16, now time.Time) (domain.DNSResponse, error)

	// Client-facing: used by the server to talk to callers.
	DecodeQuery(data []byte) (domain.Question, error)
	EncodeResponse(resp domain.DNSResponse) ([]byte, error)
}
