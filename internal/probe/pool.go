package probe

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Validator decides whether a candidate is a genuine mirror and returns the
// URL to publish for it.
type Validator func(ctx context.Context, candidate string) (string, bool)

// Result is the outcome of validating one candidate.
type Result struct {
	Candidate string
	URL       string
	Accepted  bool
	index     int // Internal: used to maintain result order
}

// Pool validates candidates concurrently using a fixed number of workers.
type Pool struct {
	workers int
	logger  *slog.Logger
}

// NewPool creates a pool with the specified number of worker goroutines.
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		workers: workers,
		logger:  logger,
	}
}

// Execute validates every candidate and waits for all to complete.
// Results keep the order of the input candidates. Candidates not started
// before ctx is cancelled are reported as rejected.
func (p *Pool) Execute(ctx context.Context, candidates []string, validate Validator) []Result {
	if len(candidates) == 0 {
		return []Result{}
	}

	jobsChan := make(chan candidateWithIndex, len(candidates))
	resultsChan := make(chan Result, len(candidates))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go p.worker(ctx, validate, jobsChan, resultsChan, &wg)
	}

	for i, c := range candidates {
		jobsChan <- candidateWithIndex{candidate: c, index: i}
	}
	close(jobsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]Result, 0, len(candidates))
	for result := range resultsChan {
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].index < results[j].index
	})

	return results
}

// candidateWithIndex pairs a candidate with its original index for ordering results.
type candidateWithIndex struct {
	candidate string
	index     int
}

func (p *Pool) worker(ctx context.Context, validate Validator, jobsChan <-chan candidateWithIndex, resultsChan chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range jobsChan {
		result := Result{Candidate: job.candidate, index: job.index}

		if ctx.Err() != nil {
			resultsChan <- result
			continue
		}

		if u, ok := validate(ctx, job.candidate); ok {
			result.URL = u
			result.Accepted = true
			p.logger.Info("mirror accepted", "candidate", job.candidate, "url", u)
		} else {
			p.logger.Info("mirror rejected", "candidate", job.candidate)
		}

		resultsChan <- result
	}
}

// Accepted returns the URLs of accepted results in order.
func Accepted(results []Result) []string {
	var urls []string
	for _, r := range results {
		if r.Accepted {
			urls = append(urls, r.URL)
		}
	}
	return urls
}
