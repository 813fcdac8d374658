// Package chain composes a union of sources with an ordered stack of
// filters into a single Source, matching the bottom-up, no-post-
// construction-mutation composition style called for by the design notes.
package chain

import (
	"context"

	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
	"github.com/kestreldns/kestrel-dns/internal/dns/filters"
	"github.com/kestreldns/kestrel-dns/internal/dns/sources"
)

// Chain is the materialized, fully-wired Source produced by composing a
// source union with filters applied outer-to-inner.
type Chain struct {
	entry sources.Source
}

// New builds a Chain. The union over srcs concatenates each source's
// results in declaration order, preserving duplicates (dedup is not the
// chain's job). filts are applied outer-to-inner: filts[len-1] wraps the
// raw union first (innermost), filts[0] is applied last and is therefore
// the outermost call a Get sees.
func New(srcs []sources.Source, filts []filters.Filter) *Chain {
	var entry sources.Source = union(srcs)
	for i := len(filts) - 1; i >= 0; i-- {
		entry = filts[i](entry)
	}
	return &Chain{entry: entry}
}

// Get invokes the outermost filter (or the raw union, if there are no
// filters) and returns its materialized result.
func (c *Chain) Get(ctx context.Context, q domain.Question) ([]domain.ResourceRecord, error) {
	return c.entry.Get(ctx, q)
}

// union is a Source that concatenates every constituent source's result in
// declaration order. The first source to error aborts the union -- a
// fault in one source is never silently masked by the others.
type union []sources.Source

func (u union) Get(ctx context.Context, q domain.Question) ([]domain.ResourceRecord, error) {
	var all []domain.ResourceRecord
	for _, src := range u {
		records, err := src.Get(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

var _ sources.Source = (*Chain)(nil)
