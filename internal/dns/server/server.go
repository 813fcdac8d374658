// Package server implements the UDP-facing DNS server: a producer loop that
// reads datagrams off the wire and enqueues them onto a bounded queue, and
// one or more consumer goroutines that decode, resolve, and reply.
package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/kestreldns/kestrel-dns/internal/dns/common/clock"
	"github.com/kestreldns/kestrel-dns/internal/dns/common/log"
	"github.com/kestreldns/kestrel-dns/internal/dns/gateways/wire"
	"github.com/kestreldns/kestrel-dns/internal/dns/queue"
	"github.com/kestreldns/kestrel-dns/internal/dns/sources"
)

const maxDatagramSize = 512

// recvTimeout bounds each blocking read so the producer loop periodically
// rechecks serving state instead of blocking forever on a closed socket.
const recvTimeout = time.Second

// defaultDequeueTimeout bounds each consumer's wait for a queued datagram.
const defaultDequeueTimeout = 100 * time.Millisecond

// Config configures a DnsServer.
type Config struct {
	ListenHost string
	ListenPort int

	// Debug, when true, logs the pre-conversion cause of any error a
	// Converter scope normalizes into an rcode. It never changes an rcode.
	Debug bool

	// QueueCapacity bounds the number of datagrams that may be in flight
	// between the producer loop and the consumer(s).
	QueueCapacity int

	// Consumers is the number of background consumer goroutines to run.
	// Zero selects own_consumer mode: the producer loop itself consumes
	// the datagram it just enqueued before reading the next one.
	Consumers int

	// DequeueTimeout bounds how long a consumer waits for a queued
	// datagram before looping to recheck its context. Defaults to 100ms.
	DequeueTimeout time.Duration
}

// datagram is one inbound packet paired with the address to reply to.
type datagram struct {
	data []byte
	addr net.Addr
}

// DnsServer binds a UDP socket, reads datagrams, and resolves them against
// an ordered list of Chains, replying NOERROR/NXDOMAIN/SERVFAIL/FORMERR per
// the resolution outcome.
type DnsServer struct {
	cfg    Config
	codec  wire.DNSCodec
	chains []sources.Source
	clk    clock.Clock
	log    log.Logger

	queue *queue.Bounded[datagram]

	mu      sync.Mutex
	conn    *net.UDPConn
	serving bool
	cancel  context.CancelFunc

	consumers  []*consumer
	consumerWG sync.WaitGroup
}

// New constructs a DnsServer. chains is the ordered list consulted by
// make_response: the first chain to yield a non-empty record set wins.
func New(cfg Config, codec wire.DNSCodec, chains []sources.Source, clk clock.Clock, logger log.Logger) *DnsServer {
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = defaultDequeueTimeout
	}
	return &DnsServer{
		cfg:    cfg,
		codec:  codec,
		chains: chains,
		clk:    clk,
		log:    logger,
		queue:  queue.NewBounded[datagram](cfg.QueueCapacity),
	}
}

// Serve binds the listening socket and runs the producer loop until ctx is
// cancelled or Stop is called. It returns once the producer loop exits, which
// happens as soon as Stop begins; Stop itself waits for queued datagrams.
func (s *DnsServer) Serve(ctx context.Context) error {
	if err := s.bind(); err != nil {
		return err
	}

	lifecycle, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.serving = true
	s.cancel = cancel
	s.mu.Unlock()

	if s.cfg.Consumers > 0 {
		for i := 0; i < s.cfg.Consumers; i++ {
			c := newConsumer(i, s)
			s.consumers = append(s.consumers, c)
			s.consumerWG.Add(1)
			go func(c *consumer) {
				defer s.consumerWG.Done()
				c.Loop(lifecycle)
			}(c)
		}
	} else {
		s.consumers = []*consumer{newConsumer(0, s)}
	}

	s.log.Info(map[string]any{
		"host":      s.cfg.ListenHost,
		"port":      s.cfg.ListenPort,
		"consumers": s.cfg.Consumers,
	}, "dns server listening")

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop(context.Background())
		case <-lifecycle.Done():
		}
	}()

	s.recvLoop(ctx)
	return nil
}

// recvLoop is the producer: it reads datagrams and enqueues them until the
// server stops being marked as serving.
func (s *DnsServer) recvLoop(ctx context.Context) {
	buf := make([]byte, maxDatagramSize)
	conn := s.conn

	for s.isServing() {
		_ = conn.SetReadDeadline(time.Now().Add(recvTimeout))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !s.isServing() {
				return
			}
			s.log.Warn(map[string]any{"cause": err.Error()}, "udp read failed")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		if err := s.queue.Put(datagram{data: data, addr: addr}); err != nil {
			s.log.Warn(map[string]any{"cause": err.Error(), "client": addr.String()}, "failed to enqueue datagram")
			continue
		}

		if s.cfg.Consumers == 0 {
			s.consumers[0].consumeOnce(ctx, s.cfg.DequeueTimeout)
		}
	}
}

// Stop idempotently shuts the server down: it closes the socket so no new
// datagrams arrive, then waits for every already-enqueued datagram to be
// processed before returning.
func (s *DnsServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.serving {
		s.mu.Unlock()
		return nil
	}
	s.serving = false
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.queue.Close()

	if s.cfg.Consumers == 0 {
		s.drainInline()
	} else {
		// Let the still-running consumers drain everything already
		// enqueued before their loops are cancelled, so no in-flight
		// datagram is left unanswered when a consumer exits mid-wait.
		if err := s.queue.Join(ctx); err != nil {
			return err
		}

		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.consumerWG.Wait()
	}

	s.log.Info(nil, "dns server stopped")
	return nil
}

// drainInline processes any datagrams left in the queue after Stop is
// called in own_consumer mode, where no background goroutine would
// otherwise do it.
func (s *DnsServer) drainInline() {
	for {
		dg, ok := s.queue.Get(10 * time.Millisecond)
		if !ok {
			return
		}
		s.consumers[0].process(context.Background(), dg)
		s.queue.Done()
	}
}

func (s *DnsServer) isServing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serving
}

func (s *DnsServer) bind() error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.cfg.ListenHost, strconv.Itoa(s.cfg.ListenPort)))
	if err != nil {
		return fmt.Errorf("resolve listen address %s:%d: %w", s.cfg.ListenHost, s.cfg.ListenPort, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("bind %s:%d: %w", s.cfg.ListenHost, s.cfg.ListenPort, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// Addr returns the address the server is bound to, or nil if not yet bound.
func (s *DnsServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}
