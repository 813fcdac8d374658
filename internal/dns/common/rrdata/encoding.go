package rrdata

import (
	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
)

// Encode turns a record's textual representation into its wire rdata, dispatched
// by type. Types outside the supported set are carried through verbatim as
// opaque bytes, matching domain.RecordType's Opaque variant.
func Encode(rrType domain.RRType, data string) ([]byte, error) {
	switch rrType {
	case domain.RRTypeA:
		return EncodeAData(data)
	case domain.RRTypeAAAA:
		return EncodeAAAAData(data)
	case domain.RRTypeNS:
		return EncodeNSData(data)
	case domain.RRTypeCNAME:
		return EncodeCNAMEData(data)
	case domain.RRTypeSOA:
		return EncodeSOAData(data)
	case domain.RRTypeTXT:
		return EncodeTXTData(data)
	default:
		return []byte(data), nil
	}
}
