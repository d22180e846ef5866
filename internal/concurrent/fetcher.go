package concurrent

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Fetcher runs fail-soft fetch jobs through a bounded worker pool with a
// shared request budget. Results are joined before returning; order is not
// preserved, only completeness: every job produces exactly one result, with
// absence (nil) standing in for failures.
type Fetcher struct {
	workers int
	limiter *rate.Limiter
}

// Config holds fetcher settings.
type Config struct {
	Workers        int
	RequestsPerSec float64
}

// NewFetcher creates a fetcher. Zero values fall back to 5 workers at
// 5 requests per second.
func NewFetcher(cfg Config) *Fetcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	return &Fetcher{
		workers: workers,
		limiter: rate.NewLimiter(rate.Limit(rps), workers),
	}
}

// Result pairs one job key with whatever the fetch produced. Value is nil
// when the fetch degraded to absence or the context ended first.
type Result struct {
	Key   string
	Value interface{}
}

// FetchFunc fetches one key. A nil return is absence, not an error.
type FetchFunc func(ctx context.Context, key string) interface{}

// FetchAll fetches every key and joins the results. Cancellation stops
// issuing new requests; in-flight ones run to completion.
func (f *Fetcher) FetchAll(ctx context.Context, keys []string, fn FetchFunc) []Result {
	if len(keys) == 0 {
		return nil
	}

	jobs := make(chan string, len(keys))
	results := make(chan Result, len(keys))

	var wg sync.WaitGroup
	for w := 0; w < f.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				if err := f.limiter.Wait(ctx); err != nil {
					results <- Result{Key: key}
					continue
				}
				results <- Result{Key: key, Value: fn(ctx, key)}
			}
		}()
	}

	for _, key := range keys {
		jobs <- key
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := make([]Result, 0, len(keys))
	for r := range results {
		out = append(out, r)
	}
	return out
}
