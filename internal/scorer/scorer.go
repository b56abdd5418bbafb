// Package scorer folds validation outcomes into a time-decaying quality
// score per spec §4.5. The EMA + exponential-decay formulas here are
// authoritative per spec §9 (the Python source left them fuzzy); this is
// the one component where the spec deliberately overrides the teacher
// and the original source rather than generalizing either.
package scorer

import (
	"math"
	"time"

	"github.com/nodalmesh/sentinel/internal/model"
)

// Config holds the tunable scorer parameters (spec §6: score_alpha,
// score_half_life).
type Config struct {
	// Alpha is the EMA weight given to the new reward. Default 0.3.
	Alpha float64
	// HalfLife is the score's time-decay half-life. Default 6h.
	HalfLife time.Duration
	// LMax is the latency ceiling used to compute the success reward.
	// Default 5000ms.
	LMax float64
}

// DefaultConfig matches spec §4.5's defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:    0.3,
		HalfLife: 6 * time.Hour,
		LMax:     5000,
	}
}

// tau converts a half-life into the decay time-constant: τ = half_life / ln 2.
func (c Config) tau() float64 {
	return c.HalfLife.Seconds() / math.Ln2
}

// Scorer computes the next score given a node's prior state and a fresh
// validation outcome. It holds no per-node state itself — callers
// (typically the Pool Manager, under its per-node shard lock) own the
// node and pass its current score/timestamp in.
type Scorer struct {
	cfg Config
}

// New builds a Scorer with the given config, filling zero-valued fields
// with spec defaults.
func New(cfg Config) *Scorer {
	if cfg.Alpha == 0 {
		cfg.Alpha = DefaultConfig().Alpha
	}
	if cfg.HalfLife == 0 {
		cfg.HalfLife = DefaultConfig().HalfLife
	}
	if cfg.LMax == 0 {
		cfg.LMax = DefaultConfig().LMax
	}
	return &Scorer{cfg: cfg}
}

// Update computes the node's next score from its previous score/timestamp
// and a fresh outcome observed at `now`. A zero prevUpdatedAt means "no
// prior measurement"; per spec §4.5 the undefined prior score is taken as
// 0.5 and no decay is applied.
func (s *Scorer) Update(prevScore float64, prevUpdatedAt time.Time, outcome model.ValidationOutcome, now time.Time) float64 {
	sPrev := prevScore
	if prevUpdatedAt.IsZero() {
		sPrev = 0.5
	} else {
		dt := now.Sub(prevUpdatedAt).Seconds()
		if dt > 0 {
			sPrev *= math.Exp(-dt / s.cfg.tau())
		}
	}

	reward := s.reward(outcome)
	sNew := s.cfg.Alpha*reward + (1-s.cfg.Alpha)*sPrev

	return clamp(sNew, 0, 1)
}

// reward computes r from a validation outcome: clamp(1 - latency/Lmax,
// 0.1, 1.0) on success, 0 on failure.
func (s *Scorer) reward(o model.ValidationOutcome) float64 {
	if !o.OK {
		return 0
	}
	r := 1 - float64(o.LatencyMs)/s.cfg.LMax
	return clamp(r, 0.1, 1.0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TieBreak reports whether a should rank ahead of b under the Selector's
// deterministic ordering (spec §4.5): higher score first, then lower
// response_time_ms, then more recent last_successful, then lexicographic
// key.
func TieBreak(a, b *model.Node) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.ResponseTimeMs != b.ResponseTimeMs {
		return a.ResponseTimeMs < b.ResponseTimeMs
	}
	if !a.LastSuccessful.Equal(b.LastSuccessful) {
		return a.LastSuccessful.After(b.LastSuccessful)
	}
	return a.Key.Less(b.Key)
}
