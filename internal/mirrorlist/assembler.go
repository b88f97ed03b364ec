// Package mirrorlist turns a network's mirror-list page into a classified
// mirror set and publishes it as a text file.
package mirrorlist

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BadgerOps/mirrorlist/internal/sites"
	"github.com/morikuni/failure/v2"
	"golang.org/x/sync/errgroup"
)

// ErrorCode identifies assembly and publishing failures.
type ErrorCode string

const (
	ErrUnresolvableHost       ErrorCode = "UnresolvableHost"
	ErrMirrorListFetchFailure ErrorCode = "MirrorListFetchFailure"
	ErrOutputWriteFailure     ErrorCode = "OutputWriteFailure"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

// Fetcher retrieves a page, returning false when it is unavailable.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, bool)
}

// Parser extracts validated mirror URLs from a network's page.
type Parser interface {
	Parse(ctx context.Context, n sites.Network, page []byte) ([]string, error)
}

// Classifier maps a hostname to a geographic code.
type Classifier interface {
	Classify(ctx context.Context, host string) string
}

// Resolver maps a geographic code to a region key.
type Resolver interface {
	Resolve(code string) (string, error)
}

// Assembler builds a MirrorSet for one network.
type Assembler struct {
	fetcher    Fetcher
	parser     Parser
	classifier Classifier
	resolver   Resolver
	workers    int
	logger     *slog.Logger
}

// NewAssembler wires the collaborators. Classification runs on up to
// workers goroutines.
func NewAssembler(f Fetcher, p Parser, c Classifier, r Resolver, workers int, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Assembler{
		fetcher:    f,
		parser:     p,
		classifier: c,
		resolver:   r,
		workers:    workers,
		logger:     logger,
	}
}

// Process fetches the network's mirror list and classifies every candidate.
// The primary mirror is always considered. A candidate that cannot be
// classified is logged and dropped without failing the network.
func (a *Assembler) Process(ctx context.Context, n sites.Network) (*MirrorSet, error) {
	logger := a.logger.With("network", n.Name)

	page, ok := a.fetcher.Fetch(ctx, n.ListURL)
	if !ok {
		return nil, failure.New(ErrMirrorListFetchFailure,
			failure.Message("mirror list unavailable"),
			failure.Context{"network": n.Name, "url": n.ListURL})
	}

	parsed, err := a.parser.Parse(ctx, n, page)
	if err != nil {
		return nil, err
	}
	candidates := append([]string{n.PrimaryURL}, parsed...)

	set := NewMirrorSet(n)
	set.Candidates = len(candidates)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for _, candidate := range candidates {
		g.Go(func() error {
			key, canonical, err := a.classify(gctx, candidate)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				set.Dropped++
				logger.Warn("dropping candidate", "candidate", candidate, "error", err)
				return nil
			}
			if !set.Add(key, canonical) {
				logger.Debug("duplicate mirror", "url", canonical)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("mirror set assembled",
		"candidates", set.Candidates,
		"mirrors", set.Len(),
		"dropped", set.Dropped,
	)
	return set, nil
}

func (a *Assembler) classify(ctx context.Context, candidate string) (string, string, error) {
	canonical, err := Canonicalize(candidate)
	if err != nil {
		return "", "", err
	}
	host := hostname(canonical)
	if host == "" {
		return "", "", failure.New(ErrUnresolvableHost,
			failure.Message("candidate has no hostname"),
			failure.Context{"url": candidate})
	}

	code := a.classifier.Classify(ctx, host)
	key, err := a.resolver.Resolve(code)
	if err != nil {
		return "", "", failure.Wrap(err, failure.Context{"host": host})
	}
	return key, canonical, nil
}
