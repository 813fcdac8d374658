package domain

import "fmt"

// Flag bit positions and widths within a DNS header's 16-bit flags field.
const (
	flagPosQR     = 15
	flagPosOpcode = 11
	flagWidthOp   = 4
	flagPosAA     = 10
	flagPosTC     = 9
	flagPosRD     = 8
	flagPosRA     = 7
	flagPosRCode  = 0
	flagWidthRC   = 4
)

// GetFlag reads a width-bit field at pos out of a packed flags value.
func GetFlag(flags uint16, pos, width uint) uint16 {
	mask := uint16(1<<width) - 1
	return (flags >> pos) & mask
}

// SetFlag writes v (masked to width bits) into a packed flags value at pos,
// leaving all other bits untouched.
func SetFlag(flags uint16, pos, width uint, v uint16) uint16 {
	mask := uint16(1<<width) - 1
	return (flags &^ (mask << pos)) | ((v & mask) << pos)
}

// Question represents a DNS query section: the header fields relevant to a
// request (id, flags) plus the single question RFC 1035 permits per message.
type Question struct {
	ID    uint16
	Flags uint16
	Name  string
	Type  RRType
	Class RRClass
}

// NewQuestion constructs a Question and validates its fields.
func NewQuestion(id uint16, name string, rrtype RRType, class RRClass) (Question, error) {
	q := Question{
		ID:    id,
		Name:  name,
		Type:  rrtype,
		Class: class,
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// QR, Opcode, AA, TC, RD, RA, RCode read their respective flag bits.
func (q Question) QR() bool      { return GetFlag(q.Flags, flagPosQR, 1) == 1 }
func (q Question) Opcode() uint8 { return uint8(GetFlag(q.Flags, flagPosOpcode, flagWidthOp)) }
func (q Question) AA() bool      { return GetFlag(q.Flags, flagPosAA, 1) == 1 }
func (q Question) TC() bool      { return GetFlag(q.Flags, flagPosTC, 1) == 1 }
func (q Question) RD() bool      { return GetFlag(q.Flags, flagPosRD, 1) == 1 }
func (q Question) RA() bool      { return GetFlag(q.Flags, flagPosRA, 1) == 1 }
func (q Question) RCode() RCode  { return RCode(GetFlag(q.Flags, flagPosRCode, flagWidthRC)) }

// SetRD sets the recursion-desired bit, used by RecursiveSource when it
// assembles an upstream query.
func (q Question) SetRD(v bool) Question {
	q.Flags = SetFlag(q.Flags, flagPosRD, 1, boolBit(v))
	return q
}

func boolBit(v bool) uint16 {
	if v {
		return 1
	}
	return 0
}

// Validate checks whether the Question fields are structurally and semantically valid.
func (q Question) Validate() error {
	if q.Name == "" {
		return fmt.Errorf("query name must not be empty")
	}
	if !q.Type.IsValid() {
		return fmt.Errorf("unsupported RRType: %d", q.Type)
	}
	if !q.Class.IsValid() {
		return fmt.Errorf("unsupported RRClass: %d", q.Class)
	}
	return nil
}

// ValidateRequest applies the additional constraints spec'd for an incoming
// request: qr=0, opcode=0, qdcount>0 (a non-empty Name stands in for qdcount
// since this codec only ever carries a single question), and class IN only.
func (q Question) ValidateRequest() error {
	if err := q.Validate(); err != nil {
		return NewDnsError(FormErr, err)
	}
	if q.QR() {
		return NewDnsError(FormErr, fmt.Errorf("qr bit set on request"))
	}
	if q.Opcode() != 0 {
		return NewDnsError(FormErr, fmt.Errorf("unsupported opcode: %d", q.Opcode()))
	}
	if q.Class != RRClassIN {
		return NewDnsError(FormErr, fmt.Errorf("unsupported query class: %s", q.Class))
	}
	return nil
}

// CacheKey returns a cache key string derived from the query's name, type, and class.
func (q Question) CacheKey() string {
	return GenerateCacheKey(q.Name, q.Type, q.Class)
}
