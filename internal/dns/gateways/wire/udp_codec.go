// Package wire provides encoding and decoding of DNS messages for UDP transport.
// It handles the DNS wire format as specified in RFC 1035.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kestreldns/kestrel-dns/internal/dns/common/rrdata"
	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
)

// Wire-format bit positions for the 16-bit header flags field, RFC 1035 ยง4.1.1.
const (
	bitQR     = 15
	bitAA     = 10
	bitRD     = 8
	bitRCode  = 0
	widthRCode = 4
)

// maxCompressionJumps bounds the number of compression-pointer hops decodeName
// will follow; paired with a visited-offset set so a forged pointer chain can
// neither loop nor exhaust this budget by fanning out across many offsets.
const maxCompressionJumps = 128

// udpCodec implements DNSCodec for standard DNS-over-UDP messages.
type udpCodec struct{}

// NewUDPCodec returns a DNSCodec for DNS-over-UDP wire encoding.
func NewUDPCodec() *udpCodec {
	return &udpCodec{}
}

// EncodeQuery serializes a Question into a query message suitable for sending upstream.
func (c *udpCodec) EncodeQuery(query domain.Question) ([]byte, error) {
	var buf bytes.Buffer

	_ = binary.Write(&buf, binary.BigEndian, query.ID)
	_ = binary.Write(&buf, binary.BigEndian, query.Flags)
	_ = binary.Write(&buf, binary.BigEndian, uint16(1)) // QDCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // ANCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // NSCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // ARCOUNT

	qname, err := rrdata.EncodeDomainName(query.Name)
	if err != nil {
		return nil, fmt.Errorf("encode question name: %w", err)
	}
	buf.Write(qname)
	_ = binary.Write(&buf, binary.BigEndian, uint16(query.Type))
	_ = binary.Write(&buf, binary.BigEndian, uint16(query.Class))

	return buf.Bytes(), nil
}

// DecodeQuery parses an incoming query message into a Question. Request-specific
// constraints (qr=0, opcode=0, class=IN) are left to Question.ValidateRequest.
func (c *udpCodec) DecodeQuery(data []byte) (domain.Question, error) {
	if len(data) < 12 {
		return domain.Question{}, errors.New("query too short")
	}
	id := binary.BigEndian.Uint16(data[0:2])
	flags := binary.BigEndian.Uint16(data[2:4])
	qdCount := binary.BigEndian.Uint16(data[4:6])
	if qdCount < 1 {
		return domain.Question{}, errors.New("qdcount must be greater than zero")
	}

	name, offset, err := decodeName(data, 12)
	if err != nil {
		return domain.Question{}, fmt.Errorf("decode question name: %w", err)
	}
	if offset+4 > len(data) {
		return domain.Question{}, errors.New("truncated question")
	}
	qtype := binary.BigEndian.Uint16(data[offset : offset+2])
	qclass := binary.BigEndian.Uint16(data[offset+2 : offset+4])

	return domain.Question{
		ID:    id,
		Flags: flags,
		Name:  name,
		Type:  domain.RRType(qtype),
		Class: domain.RRClass(qclass),
	}, nil
}

// EncodeResponse serializes a DNSResponse into a reply message. Compression on
// emit is not required: every name is written out in full.
func (c *udpCodec) EncodeResponse(resp domain.DNSResponse) ([]byte, error) {
	var buf bytes.Buffer

	_ = binary.Write(&buf, binary.BigEndian, resp.ID)

	var flags uint16
	flags = domain.SetFlag(flags, bitQR, 1, 1)
	flags = domain.SetFlag(flags, bitAA, 1, 1)
	if resp.Question.RD() {
		flags = domain.SetFlag(flags, bitRD, 1, 1)
	}
	flags = domain.SetFlag(flags, bitRCode, widthRCode, uint16(resp.RCode))
	_ = binary.Write(&buf, binary.BigEndian, flags)

	// qdcount is always 1 on emit, even for an error reply whose question
	// could not be parsed: the question name then encodes as the root name
	// ("."), keeping the section present rather than omitted.
	const qdCount = uint16(1)
	_ = binary.Write(&buf, binary.BigEndian, qdCount)

	ancount, err := countAsUint16(len(resp.Answers), "answer")
	if err != nil {
		return nil, err
	}
	nscount, err := countAsUint16(len(resp.Authority), "authority")
	if err != nil {
		return nil, err
	}
	arcount, err := countAsUint16(len(resp.Additional), "additional")
	if err != nil {
		return nil, err
	}
	_ = binary.Write(&buf, binary.BigEndian, ancount)
	_ = binary.Write(&buf, binary.BigEndian, nscount)
	_ = binary.Write(&buf, binary.BigEndian, arcount)

	qname, err := rrdata.EncodeDomainName(resp.Question.Name)
	if err != nil {
		return nil, fmt.Errorf("encode question name: %w", err)
	}
	buf.Write(qname)
	_ = binary.Write(&buf, binary.BigEndian, uint16(resp.Question.Type))
	_ = binary.Write(&buf, binary.BigEndian, uint16(resp.Question.Class))

	for _, section := range [][]domain.ResourceRecord{resp.Answers, resp.Authority, resp.Additional} {
		for _, rr := range section {
			if err := encodeRecord(&buf, rr); err != nil {
				return nil, err
			}
		}
	}

	return buf.Bytes(), nil
}

func countAsUint16(n int, section string) (uint16, error) {
	if n > 65535 {
		return 0, fmt.Errorf("too many %s records: %d (max 65535)", section, n)
	}
	return uint16(n), nil
}

func encodeRecord(buf *bytes.Buffer, rr domain.ResourceRecord) error {
	name, err := rrdata.EncodeDomainName(rr.Name)
	if err != nil {
		return fmt.Errorf("encode record name: %w", err)
	}
	buf.Write(name)
	_ = binary.Write(buf, binary.BigEndian, uint16(rr.Type))
	_ = binary.Write(buf, binary.BigEndian, uint16(rr.Class))
	_ = binary.Write(buf, binary.BigEndian, rr.TTL())

	dataLen, err := countAsUint16(len(rr.Data), "rdata")
	if err != nil {
		return err
	}
	_ = binary.Write(buf, binary.BigEndian, dataLen)
	buf.Write(rr.Data)
	return nil
}

// DecodeResponse parses a raw upstream reply, validating the echoed query ID.
// Per the wire decode rule, every answer/authority/additional record is
// collapsed into one pass and re-split by type: NS records land in Authority,
// everything else in Answers.
func (c *udpCodec) DecodeResponse(data []byte, expectedID uint16, now time.Time) (domain.DNSResponse, error) {
	if len(data) < 12 {
		return domain.DNSResponse{}, errors.New("response too short")
	}
	id := binary.BigEndian.Uint16(data[0:2])
	if id != expectedID {
		return domain.DNSResponse{}, fmt.Errorf("response id mismatch: expected %d, got %d", expectedID, id)
	}

	flags := binary.BigEndian.Uint16(data[2:4])
	rcode := domain.RCode(domain.GetFlag(flags, bitRCode, widthRCode))

	qdCount := binary.BigEndian.Uint16(data[4:6])
	anCount := binary.BigEndian.Uint16(data[6:8])
	nsCount := binary.BigEndian.Uint16(data[8:10])
	arCount := binary.BigEndian.Uint16(data[10:12])

	offset := 12
	for i := 0; i < int(qdCount); i++ {
		_, newOffset, err := decodeName(data, offset)
		if err != nil {
			return domain.DNSResponse{}, fmt.Errorf("decode question %d: %w", i, err)
		}
		offset = newOffset + 4 // QTYPE + QCLASS
		if offset > len(data) {
			return domain.DNSResponse{}, errors.New("truncated question section")
		}
	}

	total := int(anCount) + int(nsCount) + int(arCount)
	var answers, authority []domain.ResourceRecord
	for i := 0; i < total; i++ {
		rr, newOffset, err := decodeRecord(data, offset, now)
		if err != nil {
			return domain.DNSResponse{}, fmt.Errorf("decode record %d: %w", i, err)
		}
		offset = newOffset
		if rr.Type == domain.RRTypeNS {
			authority = append(authority, rr)
		} else {
			answers = append(answers, rr)
		}
	}

	return domain.DNSResponse{
		ID:        id,
		RCode:     rcode,
		Answers:   answers,
		Authority: authority,
	}, nil
}

func decodeRecord(data []byte, offset int, now time.Time) (domain.ResourceRecord, int, error) {
	name, offset, err := decodeName(data, offset)
	if err != nil {
		return domain.ResourceRecord{}, 0, fmt.Errorf("decode record name: %w", err)
	}
	if offset+10 > len(data) {
		return domain.ResourceRecord{}, 0, errors.New("truncated record header")
	}

	rrtype := domain.RRType(binary.BigEndian.Uint16(data[offset : offset+2]))
	rrclass := domain.RRClass(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
	ttl := binary.BigEndian.Uint32(data[offset+4 : offset+8])
	rdlen := int(binary.BigEndian.Uint16(data[offset+8 : offset+10]))
	offset += 10

	if offset+rdlen > len(data) {
		return domain.ResourceRecord{}, 0, errors.New("truncated rdata")
	}
	rdata := make([]byte, rdlen)
	copy(rdata, data[offset:offset+rdlen])
	offset += rdlen

	rr, err := domain.NewCachedResourceRecord(name, rrtype, rrclass, ttl, rdata, now)
	if err != nil {
		return domain.ResourceRecord{}, 0, fmt.Errorf("invalid resource record: %w", err)
	}
	return rr, offset, nil
}

// decodeName decodes a (possibly compressed) domain name starting at offset,
// returning the canonical dotted name and the offset immediately following the
// name as it appears in the enclosing record -- i.e. it stops advancing at the
// first compression pointer's second byte rather than following the jump.
func decodeName(data []byte, offset int) (string, int, error) {
	var labels []string
	visited := make(map[int]bool)
	jumps := 0
	pos := offset
	consumed := -1

	for {
		if pos >= len(data) {
			return "", 0, errors.New("name offset out of bounds")
		}
		length := int(data[pos])

		if length == 0 {
			pos++
			if consumed == -1 {
				consumed = pos
			}
			break
		}

		if length&0xC0 == 0xC0 {
			if pos+1 >= len(data) {
				return "", 0, errors.New("compression pointer out of bounds")
			}
			ptr := int(binary.BigEndian.Uint16(data[pos:pos+2]) & 0x3FFF)
			if ptr >= len(data) || ptr >= pos {
				return "", 0, errors.New("compression pointer does not point backward in bounds")
			}
			if visited[ptr] {
				return "", 0, errors.New("compression pointer cycle detected")
			}
			visited[ptr] = true
			jumps++
			if jumps > maxCompressionJumps {
				return "", 0, errors.New("too many compression pointer jumps")
			}
			if consumed == -1 {
				consumed = pos + 2
			}
			pos = ptr
			continue
		}

		if length&0xC0 != 0x00 {
			return "", 0, fmt.Errorf("reserved label length bit pattern: %#x", length)
		}

		pos++
		if pos+length > len(data) {
			return "", 0, errors.New("label length exceeds buffer")
		}
		labels = append(labels, string(data[pos:pos+length]))
		pos += length
	}

	if consumed == -1 {
		consumed = pos
	}

	var name string
	if len(labels) > 0 {
		name = strings.ToLower(strings.Join(labels, ".")) + "."
	}
	return name, consumed, nil
}

var _ DNSCodec = &udpCodec{}
