package sources

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/kestreldns/kestrel-dns/internal/dns/common/clock"
	"github.com/kestreldns/kestrel-dns/internal/dns/common/log"
	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
	"github.com/kestreldns/kestrel-dns/internal/dns/gateways/wire"
)

// maxDatagramSize bounds a single UDP read, matching the core's 512-byte
// wire cap.
const maxDatagramSize = 512

// RecursiveSource resolves a query against one of a fixed set of upstream
// resolvers over UDP. It owns no long-lived socket: each call dials, uses,
// and closes its own net.Conn, which sidesteps having to mutex-protect a
// shared upstream socket across consumer goroutines. Retries round-robin
// across the configured addresses so a single bad resolver doesn't consume
// the whole retry budget.
type RecursiveSource struct {
	addrs   []string
	timeout time.Duration
	retries int
	codec   wire.DNSCodec
	clock   clock.Clock
	log     log.Logger

	appID atomic.Uint32
}

// NewRecursiveSource constructs a RecursiveSource. retries is the number of
// attempts on top of the first (default 5 per the resolver's configured
// budget); each attempt is bounded by timeout.
func NewRecursiveSource(addrs []string, timeout time.Duration, retries int, codec wire.DNSCodec, clk clock.Clock, logger log.Logger) *RecursiveSource {
	return &RecursiveSource{
		addrs:   addrs,
		timeout: timeout,
		retries: retries,
		codec:   codec,
		clock:   clk,
		log:     logger,
	}
}

// nextAppID returns a monotonically increasing query-correlation id,
// wrapping at 2^16. The counter is a wrapping uint32 atomic so concurrent
// consumers never race on it; truncation to uint16 has no correlation
// impact since the upstream simply echoes whatever id it was sent.
func (s *RecursiveSource) nextAppID() uint16 {
	return uint16(s.appID.Add(1))
}

// Get sends a freshly assembled recursive query upstream, retrying any
// failed exchange (timeout, dial, read or decode error) up to s.retries times. It returns a plain error (for the
// consumer's resolve-scope guard to convert to SERVFAIL) on total timeout
// or a non-NOERROR upstream rcode.
func (s *RecursiveSource) Get(ctx context.Context, q domain.Question) ([]domain.ResourceRecord, error) {
	id := s.nextAppID()
	query, err := domain.NewQuestion(id, q.Name, q.Type, q.Class)
	if err != nil {
		return nil, fmt.Errorf("assemble upstream query: %w", err)
	}
	query = query.SetRD(true)

	encoded, err := s.codec.EncodeQuery(query)
	if err != nil {
		return nil, fmt.Errorf("encode upstream query: %w", err)
	}

	var lastErr error
	attempts := 1 + s.retries
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		addr := s.addrs[attempt%len(s.addrs)]
		resp, err := s.exchange(addr, id, encoded)
		if err != nil {
			lastErr = err
			s.log.Debug(map[string]any{"upstream": addr, "attempt": attempt, "cause": err.Error()}, "recursive attempt failed")
			continue
		}
		if resp.RCode != domain.RCode(domain.NoError) {
			return nil, fmt.Errorf("upstream %s returned rcode %s", addr, resp.RCode)
		}
		return append(resp.Answers, resp.Authority...), nil
	}
	return nil, fmt.Errorf("upstream resolution timed out after %d attempts: %w", attempts, lastErr)
}

// exchange dials addr, sends query, and decodes the single reply datagram.
// The socket deadline always uses the real wall clock -- the injected Clock
// is for deterministic record-expiry stamping, not for bounding real I/O.
func (s *RecursiveSource) exchange(addr string, id uint16, query []byte) (domain.DNSResponse, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return domain.DNSResponse{}, fmt.Errorf("set deadline: %w", err)
	}

	if _, err := conn.Write(query); err != nil {
		return domain.DNSResponse{}, fmt.Errorf("write to %s: %w", addr, err)
	}

	buf := make([]byte, maxDatagramSize)
	n, err := conn.Read(buf)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf("read from %s: %w", addr, err)
	}

	return s.codec.DecodeResponse(buf[:n], id, s.clock.Now())
}

var _ Source = (*RecursiveSource)(nil)
