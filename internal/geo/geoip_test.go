package geo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"
)

type fakeReader struct {
	countries map[string]string
	lookups   []string
}

func (f *fakeReader) Country(ip net.IP) (*geoip2.Country, error) {
	f.lookups = append(f.lookups, ip.String())
	code, ok := f.countries[ip.String()]
	if !ok {
		return nil, errors.New("address not found")
	}
	record := &geoip2.Country{}
	record.Country.IsoCode = code
	return record, nil
}

func (f *fakeReader) Close() error { return nil }

type fakeResolver map[string][]net.IPAddr

func (f fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	addrs, ok := f[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

func newTestGeoIP(reader *fakeReader, resolver fakeResolver) *GeoIP {
	return &GeoIP{
		reader:   reader,
		resolver: resolver,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestGeoIPCountryCodeByName(t *testing.T) {
	reader := &fakeReader{countries: map[string]string{
		"198.51.100.7": "DE",
		"2001:db8::1":  "JP",
	}}
	resolver := fakeResolver{
		"mirror.example.org": {{IP: net.ParseIP("198.51.100.7")}, {IP: net.ParseIP("203.0.113.1")}},
		"v6.example.org":     {{IP: net.ParseIP("2001:db8::1")}},
		"dark.example.org":   {{IP: net.ParseIP("203.0.113.99")}},
	}
	g := newTestGeoIP(reader, resolver)
	ctx := context.Background()

	tests := map[string]string{
		"mirror.example.org":  "DE",
		"v6.example.org":      "JP",
		"198.51.100.7":        "DE",
		"dark.example.org":    "",
		"missing.example.org": "",
	}
	for host, want := range tests {
		if got := g.CountryCodeByName(ctx, host); got != want {
			t.Errorf("CountryCodeByName(%q) = %q, want %q", host, got, want)
		}
	}
}

func TestClassifierWithGeoIP(t *testing.T) {
	reader := &fakeReader{countries: map[string]string{"198.51.100.7": "GB"}}
	g := newTestGeoIP(reader, fakeResolver{
		"mirror.example.org": {{IP: net.ParseIP("198.51.100.7")}},
	})

	c := NewClassifier(g)
	if got := c.Classify(context.Background(), "mirror.example.org"); got != "UK" {
		t.Errorf("Classify = %q, want UK", got)
	}
	if got := c.Classify(context.Background(), "unresolved.example.se"); got != "SE" {
		t.Errorf("Classify = %q, want SE from ccTLD fallback", got)
	}
}

func TestOpenGeoIPMissingFile(t *testing.T) {
	if _, err := OpenGeoIP("/nonexistent/GeoLite2-Country.mmdb", nil); err == nil {
		t.Fatal("expected error for missing database")
	}
}
