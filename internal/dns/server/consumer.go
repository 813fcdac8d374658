package server

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/kestreldns/kestrel-dns/internal/dns/common/errconv"
	"github.com/kestreldns/kestrel-dns/internal/dns/common/log"
	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
)

// consumer dequeues datagrams and turns them into replies. Each consumer
// owns its own ErrorConverter scopes and child logger so that concurrent
// consumers never race each other's state.
type consumer struct {
	idx    int
	server *DnsServer

	parseGuard   *errconv.Converter
	resolveGuard *errconv.Converter
	log          log.Logger
}

func newConsumer(idx int, s *DnsServer) *consumer {
	logger := s.log.With(map[string]any{"consumer": idx})
	quiet := !s.cfg.Debug
	return &consumer{
		idx:          idx,
		server:       s,
		parseGuard:   &errconv.Converter{DefaultKind: domain.FormErr, Quiet: quiet, Log: logger},
		resolveGuard: &errconv.Converter{DefaultKind: domain.ServFail, Quiet: quiet, Log: logger},
		log:          logger,
	}
}

// Loop dequeues and processes datagrams until ctx is cancelled.
func (c *consumer) Loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.consumeOnce(ctx, c.server.cfg.DequeueTimeout)
	}
}

// consumeOnce dequeues a single datagram, processes it, and marks it Done.
// It is a no-op if nothing arrives within timeout.
func (c *consumer) consumeOnce(ctx context.Context, timeout time.Duration) {
	dg, ok := c.server.queue.Get(timeout)
	if !ok {
		return
	}
	c.process(ctx, dg)
	c.server.queue.Done()
}

// process decodes, resolves, and replies to one datagram.
func (c *consumer) process(ctx context.Context, dg datagram) {
	resp, shouldReply := c.handle(ctx, dg)
	if !shouldReply {
		return
	}

	out, err := c.server.codec.EncodeResponse(resp)
	if err != nil {
		c.log.Error(map[string]any{
			"cause":    err.Error(),
			"query_id": resp.ID,
		}, "failed to encode dns response")
		return
	}

	if _, err := c.server.conn.WriteTo(out, dg.addr); err != nil {
		c.log.Error(map[string]any{
			"cause":  err.Error(),
			"client": dg.addr.String(),
		}, "failed to send dns response")
	}
}

// handle runs the decode -> validate -> resolve state machine. shouldReply
// is false only when the incoming datagram was too short to recover even a
// query id, in which case it is silently dropped.
func (c *consumer) handle(ctx context.Context, dg datagram) (resp domain.DNSResponse, shouldReply bool) {
	var query domain.Question
	parseErr := c.parseGuard.WithGuard(func() error {
		q, err := c.server.codec.DecodeQuery(dg.data)
		if err != nil {
			return err
		}
		if err := q.ValidateRequest(); err != nil {
			return err
		}
		query = q
		return nil
	})

	if parseErr != nil {
		qid, ok := recoverQID(dg.data)
		if !ok {
			c.log.Debug(map[string]any{"client": dg.addr.String(), "size": len(dg.data)}, "dropping undecodable datagram")
			return domain.DNSResponse{}, false
		}
		de, _ := domain.AsDnsError(parseErr)
		return domain.NewDNSErrorResponse(qid, de.Kind.RCode()), true
	}

	var records []domain.ResourceRecord
	resolveErr := c.resolveGuard.WithGuard(func() error {
		for _, chain := range c.server.chains {
			rs, err := chain.Get(ctx, query)
			if err != nil {
				return err
			}
			if len(rs) > 0 {
				records = rs
				return nil
			}
		}
		return domain.NewDnsError(domain.NXDomain, fmt.Errorf("no chain produced a record for %s %s", query.Name, query.Type))
	})

	if resolveErr != nil {
		de, _ := domain.AsDnsError(resolveErr)
		return domain.NewErrorResponseForQuestion(query, de.Kind.RCode()), true
	}

	return domain.NewResponse(query, domain.RCode(domain.NoError), records), true
}

// recoverQID reads the 16-bit query id straight off the raw datagram when
// the message failed to decode, so a FORMERR can still be addressed to the
// right in-flight query rather than dropped.
func recoverQID(data []byte) (uint16, bool) {
	if len(data) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(data[0:2]), true
}
