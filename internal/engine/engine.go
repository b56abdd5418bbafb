// Package engine is the single owner that constructs C1-C9 and exposes
// the spec §6 engine-facing API, replacing the source's scattered global
// singletons (gorilla/websocket broadcast channel, package-level stat,
// etc. in the teacher) with one explicit constructor-injected Engine.
package engine

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/nodalmesh/sentinel/internal/adapters"
	"github.com/nodalmesh/sentinel/internal/config"
	"github.com/nodalmesh/sentinel/internal/dedup"
	"github.com/nodalmesh/sentinel/internal/logging"
	"github.com/nodalmesh/sentinel/internal/metrics"
	"github.com/nodalmesh/sentinel/internal/model"
	"github.com/nodalmesh/sentinel/internal/persistence"
	"github.com/nodalmesh/sentinel/internal/pool"
	"github.com/nodalmesh/sentinel/internal/prescan"
	"github.com/nodalmesh/sentinel/internal/scheduler"
	"github.com/nodalmesh/sentinel/internal/scorer"
	"github.com/nodalmesh/sentinel/internal/selector"
	"github.com/nodalmesh/sentinel/internal/validator"
)

// Stats mirrors spec §6's stats() shape.
type Stats struct {
	PerTierCount            map[model.Tier]int `json:"per_tier_count"`
	AvgScore                float64            `json:"avg_score"`
	FetchCyclesCompleted    int64              `json:"fetch_cycles_completed"`
	ValidationSuccessRate1h float64            `json:"validation_success_rate_1h"`
}

// Engine wires every component together and exposes the §6 API.
type Engine struct {
	cfg *config.Config
	log *slog.Logger

	registry  *adapters.Registry
	prescan   *prescan.Scanner
	validator *validator.Validator
	scorer    *scorer.Scorer
	pool      *pool.Manager
	selector  *selector.Selector
	sched     *scheduler.Scheduler
	store     *persistence.Store
	metrics   *metrics.Metrics

	fetchCycles int64
	val1h       *slidingSuccessRate
}

// New constructs an Engine from configuration. The caller still owns
// calling Start/Shutdown.
func New(cfg *config.Config, log *slog.Logger) (*Engine, error) {
	sc := scorer.New(scorer.Config{
		Alpha:    cfg.Scorer.Alpha,
		HalfLife: time.Duration(cfg.Scorer.HalfLifeMin) * time.Minute,
		LMax:     cfg.Scorer.ScoreLatMaxMs,
	})

	th := pool.Thresholds{
		HotEntry:           cfg.TierThresholds.HotEntry,
		HotExit:            cfg.TierThresholds.HotExit,
		WarmLow:            cfg.TierThresholds.WarmLow,
		WarmHigh:           cfg.TierThresholds.WarmHigh,
		ColdDemoteFailures: cfg.TierThresholds.ColdDemoteFailures,
		BlacklistFailures:  cfg.TierThresholds.BlacklistFailures,
		RetentionHorizon:   time.Duration(cfg.TierThresholds.RetentionDays) * 24 * time.Hour,
	}
	pm := pool.New(th, sc)

	store, err := persistence.Open(cfg.Persistence.DBPath, cfg.Persistence.SnapshotPath, cfg.Persistence.SnapshotRetention)
	if err != nil {
		return nil, err
	}

	var adapterList []adapters.Adapter
	for _, s := range cfg.Sources {
		adapterList = append(adapterList, buildAdapter(s, time.Duration(cfg.Timeouts.AdapterTimeoutS)*time.Second))
	}

	e := &Engine{
		cfg:      cfg,
		log:      log,
		registry: adapters.NewRegistry(adapterList...),
		prescan: prescan.New(prescan.Config{
			Timeout:     time.Duration(cfg.Timeouts.PrescanTimeoutS) * time.Second,
			Concurrency: int64(cfg.Concurrency.PrescanConcurrency),
		}),
		validator: validator.New(validator.Config{
			Timeout:            time.Duration(cfg.Timeouts.ValidatorTimeoutS) * time.Second,
			Concurrency:        int64(cfg.Concurrency.ValidatorConcurrency),
			TestEndpoints:      cfg.TestEndpoints,
			HTTPSProbeEndpoint: cfg.TestEndpoints[0],
		}),
		scorer:   sc,
		pool:     pm,
		selector: selector.New(pm),
		store:    store,
		metrics:  metrics.New(),
		val1h:    newSlidingSuccessRate(time.Hour),
	}

	e.sched = scheduler.New(scheduler.Jobs{
		Fetch:      e.runFetchCycle,
		Revalidate: e.runRevalCycle,
		Retain:     e.runRetentionSweep,
		Persist:    e.runPersist,
	}, logging.Component(log, "scheduler"))

	return e, nil
}

func buildAdapter(s config.Source, timeout time.Duration) adapters.Adapter {
	switch s.Kind {
	case "json_api":
		return &adapters.JSONAPIAdapter{SourceName: s.Name, URL: s.URL, Timeout: timeout}
	case "html_table":
		return &adapters.HTMLTableAdapter{SourceName: s.Name, URL: s.URL, Timeout: timeout}
	default:
		return &adapters.LineListAdapter{SourceName: s.Name, URL: s.URL, Protocol: model.HTTP, Timeout: timeout}
	}
}

// Start loads the last persisted snapshot and starts the Scheduler.
// requireSnapshot makes a failed load fatal (spec §6/§7 exit code 2)
// instead of starting with an empty pool.
func (e *Engine) Start(ctx context.Context, requireSnapshot bool) error {
	nodes, err := e.store.Load(ctx)
	if err != nil {
		if requireSnapshot {
			return err
		}
		e.log.Warn("no prior snapshot loaded, starting empty", "error", err)
	}
	for _, n := range nodes {
		e.pool.Restore(n)
	}
	e.log.Info("restored nodes from persistence", "count", len(nodes))

	return e.sched.Start(ctx, scheduler.Schedule{
		FetchInterval:   e.cfg.Timers.FetchInterval,
		RevalInterval:   e.cfg.Timers.RevalInterval,
		RetainInterval:  e.cfg.Timers.RetainInterval,
		PersistInterval: e.cfg.Timers.PersistInterval,
	})
}

// Shutdown drains the scheduler and persists one final snapshot.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.sched.Stop()
	e.runPersist(ctx)
	return e.store.Close()
}

// GetProxy implements spec §6's get_proxy(filter).
func (e *Engine) GetProxy(f selector.Filter) (*model.Node, error) {
	return e.selector.Get(f)
}

// ReportOutcome implements spec §6's report_outcome: external usage
// feedback is fed into the Scorer as one additional validation outcome,
// symmetrically with internally-produced outcomes (spec §9).
func (e *Engine) ReportOutcome(key model.Key, outcome model.ValidationOutcome) {
	now := time.Now()
	ev, ok := e.pool.ApplyOutcome(key, outcome, now, false)
	if !ok {
		return
	}
	e.val1h.Record(outcome.OK, now)
	e.recordTransition(ev)
}

// Stats implements spec §6's stats().
func (e *Engine) Stats() Stats {
	return Stats{
		PerTierCount:            e.pool.TierCounts(),
		AvgScore:                e.pool.AvgScore(),
		FetchCyclesCompleted:    e.fetchCycles,
		ValidationSuccessRate1h: e.val1h.Rate(time.Now()),
	}
}

// TriggerFetch implements spec §6's trigger_fetch().
func (e *Engine) TriggerFetch(ctx context.Context) {
	e.sched.TriggerFetch(ctx)
}

func (e *Engine) runFetchCycle(ctx context.Context) {
	raws, errs := e.registry.FetchAll(ctx)
	for _, err := range errs {
		e.log.Warn("adapter fetch failed", "error", err)
		source, kind := "unknown", "unknown"
		if ae, ok := err.(*model.AdapterError); ok {
			source, kind = ae.Source, string(ae.Kind)
		}
		e.metrics.FetchErrors.WithLabelValues(source, kind).Inc()
	}

	rawInputs := make([]dedup.Raw, len(raws))
	for i, c := range raws {
		rawInputs[i] = dedup.Raw{Protocol: c.Key.Protocol, HostPort: hostPort(c.Key), Source: c.Source, SourceURL: c.SourceURL}
	}
	candidates := dedup.Dedup(rawInputs, time.Now())

	if e.cfg.Concurrency.PrescanConcurrency > 0 {
		candidates = e.prescan.Scan(ctx, candidates)
	}

	now := time.Now()
	for _, c := range candidates {
		e.pool.UpsertCandidate(c, now)
	}

	outcomes := e.validator.Validate(ctx, candidates)
	e.recordOutcomes(outcomes)

	e.fetchCycles++
	e.metrics.FetchCycles.Inc()
}

// revalIntervals holds the per-tier staleness threshold a node's
// (now - last_checked) must exceed before the revalidation sweep submits
// it to the Validator again (spec §4.7), so Cold nodes don't burn
// validator capacity on the same cadence as Hot.
var revalIntervals = map[model.Tier]time.Duration{
	model.Hot:       2 * time.Minute,
	model.Warm:      10 * time.Minute,
	model.Cold:      time.Hour,
	model.Blacklist: 24 * time.Hour,
}

func (e *Engine) runRevalCycle(ctx context.Context) {
	var targets []model.Candidate
	now := time.Now()
	for _, tier := range []model.Tier{model.Hot, model.Warm, model.Cold, model.Blacklist} {
		interval := revalIntervals[tier]
		for _, n := range e.pool.TierView(tier) {
			if now.Sub(n.LastChecked) < interval {
				continue
			}
			targets = append(targets, model.Candidate{Key: model.Key{Host: n.Host, Port: n.Port, Protocol: n.Protocol}})
		}
	}

	outcomes := e.validator.Validate(ctx, targets)
	e.recordOutcomes(outcomes)
}

func (e *Engine) recordOutcomes(outcomes []model.ValidationOutcome) {
	now := time.Now()
	for _, o := range outcomes {
		result := "success"
		if !o.OK {
			result = "failure"
		}
		e.metrics.ValidationsTotal.WithLabelValues(result).Inc()
		if o.OK {
			e.metrics.ValidationLatency.Observe(float64(o.LatencyMs))
		}

		ev, ok := e.pool.ApplyOutcome(o.Key, o, now, false)
		if ok {
			e.val1h.Record(o.OK, now)
			e.recordTransition(ev)
		}
	}
}

func (e *Engine) runRetentionSweep(ctx context.Context) {
	destroyed := e.pool.RetentionSweep(time.Now())
	if len(destroyed) > 0 {
		e.log.Info("retention sweep destroyed nodes", "count", len(destroyed))
	}
}

func (e *Engine) runPersist(ctx context.Context) {
	nodes := e.pool.Snapshot()
	if err := e.store.Persist(ctx, nodes, time.Now()); err != nil {
		e.log.Error("persist failed, retrying next tick", "error", err)
		e.metrics.PersistWrites.WithLabelValues("error").Inc()
		return
	}
	e.metrics.PersistWrites.WithLabelValues("ok").Inc()
}

func (e *Engine) recordTransition(ev pool.Event) {
	if ev.Node == nil {
		return
	}
	if ev.From != ev.To {
		e.metrics.TierTransitions.WithLabelValues(string(ev.From), string(ev.To)).Inc()
	}
	counts := e.pool.TierCounts()
	e.metrics.PoolSize.WithLabelValues(string(ev.From)).Set(float64(counts[ev.From]))
	e.metrics.PoolSize.WithLabelValues(string(ev.To)).Set(float64(counts[ev.To]))
	e.metrics.ScoreAvg.Set(e.pool.AvgScore())
}

func hostPort(k model.Key) string {
	return k.Host + ":" + strconv.Itoa(k.Port)
}
