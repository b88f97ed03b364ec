package geo

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/oschwald/geoip2-golang"
)

const resolveTimeout = 10 * time.Second

// countryReader is the part of *geoip2.Reader used for lookups.
type countryReader interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// hostResolver is the part of *net.Resolver used for lookups.
type hostResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// GeoIP implements CountryLookup over a MaxMind Country or City database.
type GeoIP struct {
	reader   countryReader
	resolver hostResolver
	logger   *slog.Logger
}

// OpenGeoIP opens the MaxMind database at path.
func OpenGeoIP(path string, logger *slog.Logger) (*GeoIP, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &GeoIP{
		reader:   reader,
		resolver: net.DefaultResolver,
		logger:   logger,
	}, nil
}

// Close releases the database.
func (g *GeoIP) Close() error {
	return g.reader.Close()
}

// CountryCodeByName returns the ISO country code for host. Names are resolved
// and the first address is looked up. Any failure yields "".
func (g *GeoIP) CountryCodeByName(ctx context.Context, host string) string {
	ip := net.ParseIP(host)
	if ip == nil {
		ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
		defer cancel()

		addrs, err := g.resolver.LookupIPAddr(ctx, host)
		if err != nil || len(addrs) == 0 {
			g.logger.Debug("host did not resolve", "host", host, "error", err)
			return ""
		}
		ip = addrs[0].IP
	}

	record, err := g.reader.Country(ip)
	if err != nil {
		g.logger.Debug("GeoIP lookup failed", "host", host, "ip", ip.String(), "error", err)
		return ""
	}
	return record.Country.IsoCode
}
