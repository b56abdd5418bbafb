// Package scheduler implements the Scheduler (spec §4.7): a
// single-threaded coordinator that dispatches fetch, revalidation,
// retention-sweep and persist cycles on cron-style cadences, modeled on
// mercator-hq/jupiter's pkg/evidence/retention.Scheduler (robfig/cron/v3)
// but generalized from one job to four, plus a single-flight
// request-scoped trigger_fetch (spec §6).
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Jobs holds the callbacks the Scheduler dispatches into bounded worker
// pools; the Scheduler itself does no I/O (spec §5).
type Jobs struct {
	Fetch      func(ctx context.Context)
	Revalidate func(ctx context.Context)
	Retain     func(ctx context.Context)
	Persist    func(ctx context.Context)
}

// Schedule carries the four cron expressions (spec §6 timers).
type Schedule struct {
	FetchInterval   string
	RevalInterval   string
	RetainInterval  string
	PersistInterval string
}

// Scheduler owns the cron runtime and the fetch single-flight gate.
type Scheduler struct {
	jobs Jobs
	cron *cron.Cron
	log  *slog.Logger

	mu            sync.Mutex
	fetchInFlight bool
}

// New builds a Scheduler.
func New(jobs Jobs, log *slog.Logger) *Scheduler {
	return &Scheduler{jobs: jobs, cron: cron.New(), log: log}
}

// Start registers the four cadences and starts the cron runtime. It
// validates every expression up front so a malformed schedule is a
// configuration error, not a runtime surprise (spec §7).
func (s *Scheduler) Start(ctx context.Context, sched Schedule) error {
	entries := []struct {
		expr string
		fn   func(ctx context.Context)
	}{
		{sched.FetchInterval, func(ctx context.Context) { s.TriggerFetch(ctx) }},
		{sched.RevalInterval, s.jobs.Revalidate},
		{sched.RetainInterval, s.jobs.Retain},
		{sched.PersistInterval, s.jobs.Persist},
	}

	for _, e := range entries {
		if e.expr == "" || e.fn == nil {
			continue
		}
		if _, err := cron.ParseStandard(e.expr); err != nil {
			return err
		}
		fn := e.fn
		if _, err := s.cron.AddFunc(e.expr, func() { fn(ctx) }); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.log.Info("scheduler started",
		"fetch_interval", sched.FetchInterval,
		"reval_interval", sched.RevalInterval,
		"retain_interval", sched.RetainInterval,
		"persist_interval", sched.PersistInterval,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop drains in-flight cron jobs and stops the scheduler.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("scheduler stopped")
}

// TriggerFetch runs a fetch cycle, merging with any already in flight so
// concurrent callers never duplicate a fetch (spec §6 trigger_fetch).
func (s *Scheduler) TriggerFetch(ctx context.Context) {
	s.mu.Lock()
	if s.fetchInFlight {
		s.mu.Unlock()
		return
	}
	s.fetchInFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.fetchInFlight = false
		s.mu.Unlock()
	}()

	if s.jobs.Fetch != nil {
		s.jobs.Fetch(ctx)
	}
}
