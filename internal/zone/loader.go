package zone

import (
	"io"

	"github.com/heimdall-dns/heimdall/internal/core/domain"
	"github.com/heimdall-dns/heimdall/internal/dns/master"
)

// LoadMasterFile parses a RFC 1035 master zone file from r and returns a
// ready-to-register Zone. It delegates to master.MasterParser rather
// than reimplementing zone-file parsing.
func LoadMasterFile(r io.Reader) (*Zone, error) {
	p := master.NewMasterParser()
	data, err := p.Parse(r)
	if err != nil {
		return nil, err
	}
	z := NewZone(data.Zone)
	return z.WithRecords(data.Records), nil
}

// LoadRecords builds a Zone directly from an in-memory record set, used
// when loading from the optional ZoneRepository at startup instead of a
// master file.
func LoadRecords(meta domain.Zone, records []domain.Record) *Zone {
	return NewZone(meta).WithRecords(records)
}
