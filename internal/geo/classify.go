// Package geo maps mirror hostnames to two-letter geographic codes.
package geo

import (
	"context"
	"regexp"
	"strings"
)

// DefaultCode is used when no other layer produces a code.
const DefaultCode = "US"

var (
	// Country-coded FTP hosts of federations whose hosting does not follow
	// the country in the name, e.g. ftp.de.debian.org.
	federatedFTPPattern = regexp.MustCompile(`^ftp\.([a-z]{2})\.(?:uu\.net|debian\.org)\.?$`)
	ccTLDPattern        = regexp.MustCompile(`\.([a-z]{2})\.?$`)
)

// codeOverrides remaps codes to the conventions used by the region table.
var codeOverrides = map[string]string{
	"GB": "UK",
	"PR": "RQ",
}

// CountryLookup resolves a hostname or IP literal to a country code, or ""
// when the location is unknown.
type CountryLookup interface {
	CountryCodeByName(ctx context.Context, host string) string
}

// Classifier applies the layered classification strategy. A nil lookup skips
// the database layer.
type Classifier struct {
	lookup CountryLookup
}

// NewClassifier creates a Classifier backed by lookup.
func NewClassifier(lookup CountryLookup) *Classifier {
	return &Classifier{lookup: lookup}
}

// Classify returns the geographic code for host. First match wins:
// federated FTP host pattern, database lookup, trailing two-letter label,
// then DefaultCode. Overrides are applied to the result.
func (c *Classifier) Classify(ctx context.Context, host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return override(c.classify(ctx, host))
}

func (c *Classifier) classify(ctx context.Context, host string) string {
	if m := federatedFTPPattern.FindStringSubmatch(host); m != nil {
		return strings.ToUpper(m[1])
	}
	if c.lookup != nil {
		if code := strings.TrimSpace(c.lookup.CountryCodeByName(ctx, host)); code != "" {
			return strings.ToUpper(code)
		}
	}
	if m := ccTLDPattern.FindStringSubmatch(host); m != nil {
		return strings.ToUpper(m[1])
	}
	return DefaultCode
}

func override(code string) string {
	if mapped, ok := codeOverrides[code]; ok {
		return mapped
	}
	return code
}
