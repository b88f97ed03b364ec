// Package sites extracts candidate mirrors from each distribution network's
// mirror-list page and validates them against network-specific markers.
//
// The set of networks is closed: every Kind has exactly one Site variant and
// New is the only dispatch point.
package sites

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/BadgerOps/mirrorlist/internal/probe"
	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
)

// ErrorCode identifies site parser failures.
type ErrorCode string

const (
	ErrUnknownNetwork ErrorCode = "UnknownNetwork"
	ErrRetiredNetwork ErrorCode = "RetiredNetwork"
	ErrMalformedPage  ErrorCode = "MalformedPage"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

// Kind selects the extraction strategy for a network.
type Kind string

const (
	KindApache      Kind = "apache"
	KindCPAN        Kind = "cpan"
	KindCTAN        Kind = "ctan"
	KindDebian      Kind = "debian"
	KindFreeBSD     Kind = "freebsd"
	KindGimp        Kind = "gimp"
	KindGNOME       Kind = "gnome"
	KindGNU         Kind = "gnu"
	KindKDE         Kind = "kde"
	KindSourceForge Kind = "sourceforge"
	KindPostgreSQL  Kind = "postgresql"
)

// Site is one network's extraction and validation strategy.
type Site interface {
	Kind() Kind

	// Extract returns candidate URLs found in the mirror-list page. It does
	// no I/O and silently skips anything it does not recognise.
	Extract(page []byte) ([]string, error)

	// Validate probes a candidate and returns the mirror root to publish.
	Validate(ctx context.Context, f probe.Fetcher, candidate string) (string, bool)
}

// New returns the Site variant for kind.
func New(kind Kind) (Site, error) {
	switch kind {
	case KindApache:
		return apache{}, nil
	case KindCPAN:
		return cpan{}, nil
	case KindCTAN:
		return ctan{}, nil
	case KindDebian:
		return debian{}, nil
	case KindFreeBSD:
		return freebsd{}, nil
	case KindGimp:
		return gimp{}, nil
	case KindGNOME:
		return gnome{}, nil
	case KindGNU:
		return gnu{}, nil
	case KindKDE:
		return kde{}, nil
	case KindSourceForge:
		return sourceforge{}, nil
	case KindPostgreSQL:
		return postgresql{}, nil
	}
	return nil, failure.New(ErrUnknownNetwork,
		failure.Message("no site parser for network kind"),
		failure.Context{"kind": string(kind)})
}

// Parser runs a Site over a fetched page, validating candidates concurrently.
type Parser struct {
	fetcher probe.Fetcher
	workers int
	logger  *slog.Logger
}

// NewParser creates a Parser that probes through f with up to workers
// concurrent validations.
func NewParser(f probe.Fetcher, workers int, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		fetcher: f,
		workers: workers,
		logger:  logger,
	}
}

// Parse extracts candidates from page and returns the validated mirrors,
// each at most once.
func (p *Parser) Parse(ctx context.Context, n Network, page []byte) ([]string, error) {
	site, err := New(n.Kind)
	if err != nil {
		return nil, err
	}

	candidates, err := site.Extract(page)
	if err != nil {
		return nil, failure.Wrap(err, failure.Context{"network": n.Name})
	}
	candidates = lo.Uniq(candidates)

	logger := p.logger.With("network", n.Name)
	logger.Info("extracted candidates", "count", len(candidates))

	pool := probe.NewPool(p.workers, logger)
	results := pool.Execute(ctx, candidates, func(ctx context.Context, candidate string) (string, bool) {
		return site.Validate(ctx, p.fetcher, candidate)
	})

	// Path-depth probing can map distinct candidates onto the same root.
	return lo.Uniq(probe.Accepted(results)), nil
}

// supportedURL reports whether raw is an absolute URL the fetcher can probe.
// Relative links, mail links and synchronisation-only schemes are rejected.
func supportedURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
		return true
	}
	return false
}
