// Package prescan implements the Port Prescanner (spec §4.3): an
// optional fast TCP-connect filter run ahead of the Validator, bounded
// by a weighted semaphore the way the teacher bounds its worker pool
// (worker.go's buffered channel), generalized to golang.org/x/sync/semaphore
// so the prescan and validator pools can share the same admission idiom
// with independent weights.
package prescan

import (
	"context"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nodalmesh/sentinel/internal/model"
)

// Config controls the prescanner's timeout and admission bound.
type Config struct {
	Timeout     time.Duration
	Concurrency int64
}

// DefaultConfig matches spec §4.3/§5 defaults.
func DefaultConfig() Config {
	return Config{Timeout: 2 * time.Second, Concurrency: 200}
}

// Dialer abstracts net.Dialer.DialContext for tests.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Scanner runs bounded-concurrency TCP connect checks.
type Scanner struct {
	cfg  Config
	sem  *semaphore.Weighted
	dial Dialer
}

// New builds a Scanner with the default net.Dialer.
func New(cfg Config) *Scanner {
	return &Scanner{
		cfg:  cfg,
		sem:  semaphore.NewWeighted(cfg.Concurrency),
		dial: &net.Dialer{},
	}
}

// NewWithDialer builds a Scanner over a custom Dialer, for tests.
func NewWithDialer(cfg Config, d Dialer) *Scanner {
	return &Scanner{cfg: cfg, sem: semaphore.NewWeighted(cfg.Concurrency), dial: d}
}

// Scan admits candidates in slice order up to the configured concurrency,
// waiting for a free slot before admitting the next one. There is no
// bounded queue and no eviction of the oldest candidates: if ctx ends
// while admission is waiting, the candidates not yet admitted (the later
// ones in slice order) are dropped from this cycle. It never retries (spec §4.3) and drops failures silently rather than
// returning an error for them.
func (s *Scanner) Scan(ctx context.Context, candidates []model.Candidate) []model.Candidate {
	type result struct {
		idx int
		ok  bool
	}

	results := make(chan result, len(candidates))
	for i, c := range candidates {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			// Context cancelled/deadline exceeded: this candidate and every
			// later one in slice order are dropped from this cycle.
			results <- result{idx: i, ok: false}
			continue
		}
		go func(i int, c model.Candidate) {
			defer s.sem.Release(1)
			results <- result{idx: i, ok: s.probe(ctx, c)}
		}(i, c)
	}

	pass := make([]bool, len(candidates))
	for range candidates {
		r := <-results
		pass[r.idx] = r.ok
	}

	out := make([]model.Candidate, 0, len(candidates))
	for i, c := range candidates {
		if pass[i] {
			out = append(out, c)
		}
	}
	return out
}

func (s *Scanner) probe(ctx context.Context, c model.Candidate) bool {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(c.Key.Host, strconv.Itoa(c.Key.Port))
	conn, err := s.dial.DialContext(cctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
