package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/nodalmesh/sentinel/internal/model"
)

// Registry runs every enabled adapter concurrently, collecting candidates
// and per-source errors independently (spec §4.1: a failing source never
// affects another source's fetch cycle).
type Registry struct {
	adapters []Adapter
}

// NewRegistry builds a Registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// FetchAll runs every adapter's Fetch concurrently and returns the union
// of candidates plus the per-source errors encountered.
func (r *Registry) FetchAll(ctx context.Context) ([]model.Candidate, []error) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		all  []model.Candidate
		errs []error
	)

	for _, a := range r.adapters {
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()

			candidates, err := a.Fetch(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			all = append(all, candidates...)
		}(a)
	}
	wg.Wait()

	return all, errs
}
