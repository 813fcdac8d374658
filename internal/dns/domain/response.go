package domain

import "fmt"

// DNSResponse represents a complete DNS response with answers, authority, and additional sections.
// This follows RFC 1035 ยง4.1.1 structure for DNS response messages.
type DNSResponse struct {
	ID         uint16
	Question   Question
	RCode      RCode
	Answers    []ResourceRecord
	Authority  []ResourceRecord
	Additional []ResourceRecord
}

// NewResponse derives a Response from a Request and a result set, splitting
// NS records into the authority section and everything else into answers.
// rcode != NOERROR drops every record section: answers, authority and additional.
func NewResponse(req Question, rcode RCode, records []ResourceRecord) DNSResponse {
	resp := DNSResponse{
		ID:       req.ID,
		Question: req,
		RCode:    rcode,
	}
	if rcode != RCode(NoError) {
		return resp
	}
	for _, rr := range records {
		if rr.Type == RRTypeNS {
			resp.Authority = append(resp.Authority, rr)
		} else {
			resp.Answers = append(resp.Answers, rr)
		}
	}
	return resp
}

// NewDNSResponse constructs a DNSResponse and validates its fields.
func NewDNSResponse(id uint16, rcode RCode, answers, authority, additional []ResourceRecord) (DNSResponse, error) {
	resp := DNSResponse{
		ID:         id,
		RCode:      rcode,
		Answers:    answers,
		Authority:  authority,
		Additional: additional,
	}
	if err := resp.Validate(); err != nil {
		return DNSResponse{}, err
	}
	return resp, nil
}

// NewDNSErrorResponse creates a DNSResponse with the specified ID and response code (RCode),
// representing an error response. The Answers, Authority, and Additional sections are set to nil.
func NewDNSErrorResponse(id uint16, rcode RCode) DNSResponse {
	return DNSResponse{
		ID:         id,
		RCode:      rcode,
		Answers:    nil,
		Authority:  nil,
		Additional: nil,
	}
}

// NewErrorResponseForQuestion is like NewDNSErrorResponse but also echoes the
// originating question, used whenever a full Question was recovered before
// the failure occurred (as opposed to only a qid salvaged from raw bytes).
func NewErrorResponseForQuestion(req Question, rcode RCode) DNSResponse {
	return DNSResponse{
		ID:       req.ID,
		Question: req,
		RCode:    rcode,
	}
}

// Validate checks whether the DNSResponse fields are structurally valid.
func (resp DNSResponse) Validate() error {
	if !resp.RCode.IsValid() {
		return fmt.Errorf("invalid RCode: %d", resp.RCode)
	}

	// Validate all records in each section
	for i, rr := range resp.Answers {
		if err := rr.Validate(); err != nil {
			return fmt.Errorf("invalid answer record at index %d: %w", i, err)
		}
	}

	for i, rr := range resp.Authority {
		if err := rr.Validate(); err != nil {
			return fmt.Errorf("invalid authority record at index %d: %w", i, err)
		}
	}

	for i, rr := range resp.Additional {
		if err := rr.Validate(); err != nil {
			return fmt.Errorf("invalid additional record at index %d: %w", i, err)
		}
	}

	return nil
}

// IsError returns true if the response indicates an error condition.
func (resp DNSResponse) IsError() bool {
	return resp.RCode != 0 // NOERROR = 0
}

// HasAnswers returns true if the response contains answer records.
func (resp DNSResponse) HasAnswers() bool {
	return len(resp.Answers) > 0
}

// AnswerCount returns the number of answer records in the response.
func (resp DNSResponse) AnswerCount() int {
	return len(resp.Answers)
}

// AuthorityCount returns the number of authority records in the response.
func (resp DNSResponse) AuthorityCount() int {
	return len(resp.Authority)
}

// AdditionalCount returns the number of additional records in the response.
func (resp DNSResponse) AdditionalCount() int {
	return len(resp.Additional)
}
