// Package filters implements the decorator stages that sit between the
// chain entry point and the union of sources: a TTL-aware cache and an
// advisory negative-result short-circuit. Filters are built bottom-up --
// each Filter closes over its next stage at construction time, so there is
// no post-construction mutation of a downstream pointer.
package filters

import "github.com/kestreldns/kestrel-dns/internal/dns/sources"

// Filter wraps a Source with an additional stage, returning a new Source
// that is the composed unit. A Chain applies filters outer-to-inner:
// filters[len-1] wraps the raw source union first (innermost), and
// filters[0] is applied last, making it the outermost call.
type Filter func(next sources.Source) sources.Source
