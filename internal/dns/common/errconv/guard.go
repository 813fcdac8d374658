// Package errconv converts arbitrary failures into domain.DnsError values
// carrying a configured default rcode, through a small scoped guard callers
// wrap around a parse or resolve step.
package errconv

import (
	"github.com/kestreldns/kestrel-dns/internal/dns/common/log"
	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
)

// Converter holds the configuration for one guard scope: the rcode to
// attach to non-DnsError failures, and whether to log the original cause.
// Spec requires one Converter per consumer goroutine so that Quiet can be
// flipped per-query without racing another consumer.
type Converter struct {
	DefaultKind domain.DnsErrorKind
	Quiet       bool
	Log         log.Logger
}

// New returns a Converter bound to the given logger. Quiet defaults to false.
func New(logger log.Logger, defaultKind domain.DnsErrorKind) *Converter {
	return &Converter{DefaultKind: defaultKind, Log: logger}
}

// WithGuard runs fn and converts any non-nil, non-DnsError return value
// into a *domain.DnsError carrying c.DefaultKind. DnsErrors pass through
// unchanged. Successful returns are no-ops.
func (c *Converter) WithGuard(fn func() error) error {
	err := fn()
	return c.convert(err)
}

// Scope returns a release function for call sites that mutate a named
// error return via defer, e.g.:
//
//	func resolve() (resp domain.DNSResponse, err error) {
//	    defer guard.Scope(&err)()
//	    ...
//	}
func (c *Converter) Scope(errp *error) func() {
	return func() {
		*errp = c.convert(*errp)
	}
}

func (c *Converter) convert(err error) error {
	if err == nil {
		return nil
	}
	if de, ok := domain.AsDnsError(err); ok {
		return de
	}
	if !c.Quiet && c.Log != nil {
		c.Log.Debug(map[string]any{"cause": err.Error()}, "converted non-dns error")
	}
	return domain.NewDnsError(c.DefaultKind, err)
}
