package domain

import "fmt"

// DnsErrorKind enumerates the response codes a DnsError can carry.
type DnsErrorKind uint8

const (
	NoError  DnsErrorKind = 0
	FormErr  DnsErrorKind = 1
	ServFail DnsErrorKind = 2
	NXDomain DnsErrorKind = 3
	NotImpl  DnsErrorKind = 4
	Refused  DnsErrorKind = 5
	YXDomain DnsErrorKind = 6
	YXRRSet  DnsErrorKind = 7
	NXRRSet  DnsErrorKind = 8
	NotAuth  DnsErrorKind = 9
	NotZone  DnsErrorKind = 10
	BadVers  DnsErrorKind = 11
	BadSig   DnsErrorKind = 12
	BadKey   DnsErrorKind = 13
	BadTime  DnsErrorKind = 14
)

func (k DnsErrorKind) String() string {
	switch k {
	case NoError:
		return "NOERROR"
	case FormErr:
		return "FORMERR"
	case ServFail:
		return "SERVFAIL"
	case NXDomain:
		return "NXDOMAIN"
	case NotImpl:
		return "NOTIMPL"
	case Refused:
		return "REFUSED"
	case YXDomain:
		return "YXDOMAIN"
	case YXRRSet:
		return "YXRRSET"
	case NXRRSet:
		return "NXRRSET"
	case NotAuth:
		return "NOTAUTH"
	case NotZone:
		return "NOTZONE"
	case BadVers:
		return "BADVERS"
	case BadSig:
		return "BADSIG"
	case BadKey:
		return "BADKEY"
	case BadTime:
		return "BADTIME"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", k)
	}
}

// RCode converts the error kind to its wire RCode. The two enums share a
// numbering scheme for the codes this core ever emits (0-10); BADVERS and
// above are carried only so the taxonomy stays complete.
func (k DnsErrorKind) RCode() RCode {
	return RCode(k)
}

// DnsError is a DNS-specific failure carrying the rcode that should be
// returned to the client, plus the underlying cause for logging.
type DnsError struct {
	Kind  DnsErrorKind
	cause error
}

func NewDnsError(kind DnsErrorKind, cause error) *DnsError {
	return &DnsError{Kind: kind, cause: cause}
}

func (e *DnsError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return e.Kind.String()
}

func (e *DnsError) Unwrap() error {
	return e.cause
}

// AsDnsError reports whether err is (or wraps) a *DnsError, returning it if so.
func AsDnsError(err error) (*DnsError, bool) {
	if err == nil {
		return nil, false
	}
	if e, ok := err.(*DnsError); ok {
		return e, true
	}
	if u, ok := err.(interface{ Unwrap() error }); ok {
		return AsDnsError(u.Unwrap())
	}
	return nil, false
}
