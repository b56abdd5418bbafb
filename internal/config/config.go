package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nodalmesh/sentinel/internal/logging"
)

// Source describes one enabled source adapter (spec §6 sources[]).
type Source struct {
	Name      string `yaml:"name" validate:"required"`
	Kind      string `yaml:"kind" validate:"required"` // line_list, json_api, html_table
	URL       string `yaml:"url" validate:"required"`
	RateLimit int    `yaml:"rate_limit_per_min" default:"60"`
}

// Timers holds the Scheduler's cron-style cadences (spec §4.7/§6).
type Timers struct {
	FetchInterval   string `yaml:"fetch_interval" default:"@every 5m"`
	RevalInterval   string `yaml:"reval_interval" default:"@every 2m"`
	RetainInterval  string `yaml:"retain_interval" default:"@every 1h"`
	PersistInterval string `yaml:"persist_interval" default:"@every 60s"`
}

// Concurrency holds the bounded worker-pool sizes (spec §5).
type Concurrency struct {
	AdapterConcurrency   int `yaml:"adapter_concurrency" default:"16"`
	PrescanConcurrency   int `yaml:"prescan_concurrency" default:"200"`
	ValidatorConcurrency int `yaml:"validator_concurrency" default:"50"`
}

// Timeouts holds the per-stage deadlines (spec §5/§6), in seconds.
type Timeouts struct {
	AdapterTimeoutS   int `yaml:"adapter_timeout" default:"15"`
	PrescanTimeoutS   int `yaml:"prescan_timeout" default:"2"`
	ValidatorTimeoutS int `yaml:"validator_timeout" default:"10"`
}

// TierThresholds mirrors pool.Thresholds in YAML-friendly form (spec §4.6).
type TierThresholds struct {
	HotEntry           float64 `yaml:"hot_entry" default:"0.8"`
	HotExit            float64 `yaml:"hot_exit" default:"0.7"`
	WarmLow            float64 `yaml:"warm_low" default:"0.5"`
	WarmHigh           float64 `yaml:"warm_high" default:"0.8"`
	ColdDemoteFailures int     `yaml:"cold_demote_failures" default:"5"`
	BlacklistFailures  int     `yaml:"blacklist_failures" default:"10"`
	RetentionDays      int     `yaml:"retention_days" default:"7"`
}

// ScorerParams mirrors scorer.Config in YAML-friendly form (spec §4.5).
type ScorerParams struct {
	Alpha        float64 `yaml:"score_alpha" default:"0.3"`
	HalfLifeMin  int     `yaml:"score_half_life_minutes" default:"360"`
	ScoreLatMaxMs int    `yaml:"score_latency_max_ms" default:"5000"`
}

// Persistence holds the snapshot target and history depth (spec §4.9/§6).
type Persistence struct {
	DBPath            string `yaml:"db_path" default:"sentinel.db" validate:"required"`
	SnapshotPath      string `yaml:"snapshot_path" default:"snapshots/sentinel.json" validate:"required"`
	SnapshotRetention int    `yaml:"snapshot_retention" default:"10"`
}

// Config is the root configuration object, loaded from YAML and
// hot-reloaded in part (scalars only) by the fsnotify watcher.
type Config struct {
	Sources       []Source       `yaml:"sources" validate:"required"`
	Timers        Timers         `yaml:"timers"`
	Concurrency   Concurrency    `yaml:"concurrency"`
	Timeouts      Timeouts       `yaml:"timeouts"`
	TierThresholds TierThresholds `yaml:"tier_thresholds"`
	Scorer        ScorerParams   `yaml:"scorer"`
	TestEndpoints []string       `yaml:"test_endpoints" default:"https://httpbin.org/get" validate:"required"`
	Persistence   Persistence    `yaml:"persistence"`
	Logging       logging.Config `yaml:"logging"`
	ListenAddr    string         `yaml:"listen_addr" default:":8181"`
}

// Load reads path, applies defaults to zero fields, and validates
// required fields, refusing to start on error (spec §7 configuration
// errors, mapped by the CLI entrypoint to exit code 1).
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if cfg.TierThresholds.WarmLow >= cfg.TierThresholds.HotEntry {
		return nil, fmt.Errorf("validate config: tier_thresholds.warm_low must be < hot_entry")
	}
	if cfg.TierThresholds.HotExit > cfg.TierThresholds.HotEntry {
		return nil, fmt.Errorf("validate config: tier_thresholds.hot_exit must be <= hot_entry")
	}
	if len(cfg.TestEndpoints) == 0 {
		return nil, fmt.Errorf("validate config: test_endpoints must be non-empty")
	}

	return &cfg, nil
}
