package sources

import (
	"fmt"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kestreldns/kestrel-dns/internal/dns/common/rrdata"
	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
)

// jsonRecord mirrors one entry of the external record-loading format
// documented in the external interfaces section: { "rdata", "rtype",
// "rttl", "rclass" }, all optional except rdata.
type jsonRecord struct {
	RData  string `koanf:"rdata"`
	RType  string `koanf:"rtype"`
	RTTL   uint32 `koanf:"rttl"`
	RClass string `koanf:"rclass"`
}

const (
	defaultJSONRType  = "A"
	defaultJSONRClass = "IN"
	defaultJSONRTTL   = uint32(1800)
)

// NewJSONSource loads the `{"<domain>": [{"rdata":...}]}` record file
// through koanf's file provider and JSON parser (koanf is also the library
// behind the environment config loader), rather than a bespoke encoding/json
// walk, and returns a populated
// MapSource. A record missing its own type/class/ttl inherits the package
// defaults (A, IN, 1800s) rather than the containing key, since each record
// entry carries no domain_name field of its own to default from.
func NewJSONSource(path string) (*MapSource, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return nil, fmt.Errorf("load json records from %s: %w", path, err)
	}

	var raw map[string][]jsonRecord
	if err := k.Unmarshal("", &raw); err != nil {
		return nil, fmt.Errorf("unmarshal json records from %s: %w", path, err)
	}

	data := make(map[string][]domain.ResourceRecord, len(raw))
	for name, entries := range raw {
		records := make([]domain.ResourceRecord, 0, len(entries))
		for _, e := range entries {
			rr, err := buildRecord(name, e)
			if err != nil {
				return nil, err
			}
			records = append(records, rr)
		}
		data[name] = records
	}

	return NewMapSource(data), nil
}

func buildRecord(name string, e jsonRecord) (domain.ResourceRecord, error) {
	rtypeName := e.RType
	if rtypeName == "" {
		rtypeName = defaultJSONRType
	}
	rtype := domain.RRTypeFromString(rtypeName)
	if !rtype.IsValid() {
		return domain.ResourceRecord{}, fmt.Errorf("record %s: unknown rtype %q", name, rtypeName)
	}

	rclassName := e.RClass
	if rclassName == "" {
		rclassName = defaultJSONRClass
	}
	rclass := domain.ParseRRClass(rclassName)
	if !rclass.IsValid() {
		return domain.ResourceRecord{}, fmt.Errorf("record %s: unknown rclass %q", name, rclassName)
	}

	ttl := e.RTTL
	if ttl == 0 {
		ttl = defaultJSONRTTL
	}

	rdata, err := rrdata.Encode(rtype, e.RData)
	if err != nil {
		return domain.ResourceRecord{}, fmt.Errorf("record %s: %w", name, err)
	}

	rr, err := domain.NewAuthoritativeResourceRecord(name, rtype, rclass, ttl, rdata)
	if err != nil {
		return domain.ResourceRecord{}, fmt.Errorf("record %s: %w", name, err)
	}
	return rr.WithText(e.RData), nil
}
