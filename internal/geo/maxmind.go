package geo

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// MaxMindLookup resolves against a local GeoLite2 City database. Preferred
// over the remote endpoint when a database path is configured, since it
// answers without network traffic.
type MaxMindLookup struct {
	reader *geoip2.Reader
}

func NewMaxMindLookup(path string) (*MaxMindLookup, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open maxmind database: %w", err)
	}
	return &MaxMindLookup{reader: reader}, nil
}

func (m *MaxMindLookup) Lookup(_ context.Context, ip string) (Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, fmt.Errorf("invalid address: %s", ip)
	}

	record, err := m.reader.City(parsed)
	if err != nil {
		return Location{}, err
	}

	return Location{
		Country: record.Country.Names["en"],
		City:    record.City.Names["en"],
	}, nil
}

func (m *MaxMindLookup) Close() error {
	return m.reader.Close()
}
