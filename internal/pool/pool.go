// Package pool implements the Pool Manager (spec §4.6): the tiered pools
// (Hot/Warm/Cold/Blacklist) plus the Pending staging set, at-most-one-tier
// membership, hysteresis-governed transitions, and per-node serialization.
//
// Per-node serialization is implemented as hash-partitioned shards over
// (host, port, protocol), generalizing the teacher's single global
// sync.RWMutex (balancer.m in balancer.go) into N independent shard locks
// addressed by xxhash — the same pattern, scaled to avoid one lock
// serializing every node in the engine.
package pool

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/nodalmesh/sentinel/internal/model"
	"github.com/nodalmesh/sentinel/internal/scorer"
)

// Thresholds holds the configurable tier boundaries from spec §4.6/§6.
type Thresholds struct {
	HotEntry           float64       // score >= HotEntry to enter Hot (0.8)
	HotExit            float64       // score < HotExit to leave Hot (0.7)
	WarmLow            float64       // band floor (0.5)
	WarmHigh           float64       // band ceiling, == HotEntry (0.8)
	ColdDemoteFailures int           // consecutive failures that demote Cold -> Blacklist (5)
	BlacklistFailures  int           // consecutive failures that demote any tier -> Blacklist (10)
	RetentionHorizon   time.Duration // grace period before destroying Blacklist entries (7 days)
}

// DefaultThresholds matches spec §4.6's defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HotEntry:           0.8,
		HotExit:            0.7,
		WarmLow:            0.5,
		WarmHigh:           0.8,
		ColdDemoteFailures: 5,
		BlacklistFailures:  10,
		RetentionHorizon:   7 * 24 * time.Hour,
	}
}

// EventKind distinguishes the change events Persistence consumes.
type EventKind string

const (
	EventTransition EventKind = "transition"
	EventDestroyed  EventKind = "destroyed"
)

// Event is emitted on every tier transition (spec §4.6) and every
// retention-sweep destruction.
type Event struct {
	Kind Kind
	Key  model.Key
	From model.Tier
	To   model.Tier
	Node *model.Node
}

// Kind aliases EventKind to keep call sites terse.
type Kind = EventKind

const numShards = 64

type shard struct {
	mu    sync.RWMutex
	nodes map[model.Key]*model.Node
}

// Manager owns the four pools and the Pending staging set.
type Manager struct {
	th     Thresholds
	scorer *scorer.Scorer
	shards [numShards]*shard

	events chan Event
}

// New builds a Pool Manager.
func New(th Thresholds, sc *scorer.Scorer) *Manager {
	m := &Manager{
		th:     th,
		scorer: sc,
		events: make(chan Event, 256),
	}
	for i := range m.shards {
		m.shards[i] = &shard{nodes: make(map[model.Key]*model.Node)}
	}
	return m
}

// Events returns the channel transition and destruction events are sent
// on. Sends never block: an event is dropped while the 256-slot buffer is
// full. Nothing in the engine reads this channel; Persistence writes on
// its own persist timer instead.
func (m *Manager) Events() <-chan Event {
	return m.events
}

func (m *Manager) shardFor(k model.Key) *shard {
	h := xxhash.Sum64String(k.String())
	return m.shards[h%numShards]
}

// Get returns the node for key, if present in any pool.
func (m *Manager) Get(k model.Key) (*model.Node, bool) {
	s := m.shardFor(k)
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[k]
	return n, ok
}

// UpsertCandidate applies the Deduplicator's merge rule (spec §4.2): if
// the key already exists in some pool, only its source set and last-seen
// timestamp are updated (measurement/score untouched); otherwise a new
// node is created in Pending.
func (m *Manager) UpsertCandidate(c model.Candidate, now time.Time) (*model.Node, bool) {
	s := m.shardFor(c.Key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.nodes[c.Key]; ok {
		n.MergeSources(c.Sources...)
		n.LastSeenAt = now
		return n, false
	}

	n := &model.Node{
		ID:        c.Key.String(),
		Key:       c.Key,
		Host:      c.Key.Host,
		Port:      c.Key.Port,
		Protocol:  c.Key.Protocol,
		Sources:   append([]string(nil), c.Sources...),
		SourceURL: c.SourceURL,
		FirstSeen: c.FirstSeen,
		Pool:      model.Pending,
		Anonymity: model.AnonUnknown,
	}
	n.LastSeenAt = now
	s.nodes[c.Key] = n
	return n, true
}

// ApplyOutcome folds a validation outcome into the node's score and
// resolves its next tier under hysteresis, atomically with the tier
// field (spec §4.6). Returns an Event carrying the node's from/to tiers
// (From == To when the tier did not change; only actual transitions are
// sent on the Events channel), or the zero Event and false if the node
// isn't found (e.g. destroyed by a concurrent retention sweep).
func (m *Manager) ApplyOutcome(key model.Key, outcome model.ValidationOutcome, now time.Time, explicitBan bool) (Event, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[key]
	if !ok {
		return Event{}, false
	}

	n.ChecksTotal++
	if outcome.OK {
		n.ChecksOK++
		n.ConsecutiveFailures = 0
		n.LastSuccessful = now
		n.ResponseTimeMs = outcome.LatencyMs
		if outcome.Anonymity != "" {
			n.Anonymity = outcome.Anonymity
		}
		n.HTTPSCapable = outcome.HTTPSCapable
	} else {
		n.ConsecutiveFailures++
	}
	n.LastChecked = now

	newScore := m.scorer.Update(n.Score, n.ScoreUpdatedAt, outcome, now)
	n.Score = newScore
	n.ScoreUpdatedAt = now

	from := n.Pool
	to := nextTier(from, newScore, n.ConsecutiveFailures, explicitBan, m.th)

	if to == model.Blacklist && from != model.Blacklist {
		n.Score = 0
		n.BlacklistedAt = now
	}
	n.Pool = to

	ev := Event{Kind: EventTransition, Key: key, From: from, To: to, Node: n}
	if from != to {
		select {
		case m.events <- ev:
		default:
		}
	}
	return ev, true
}

// nextTier resolves the destination tier for a node under hysteresis
// (spec §4.6): a node only leaves a tier when the score crosses the
// *opposite* threshold, not the entry threshold.
func nextTier(curr model.Tier, score float64, failures int, explicitBan bool, th Thresholds) model.Tier {
	if explicitBan || failures >= th.BlacklistFailures {
		return model.Blacklist
	}
	if curr == model.Blacklist {
		// No automatic rehabilitation (spec §9 open-question resolution):
		// exit only via the retention sweep.
		return model.Blacklist
	}
	if curr == model.Cold && failures >= th.ColdDemoteFailures {
		return model.Blacklist
	}

	switch curr {
	case model.Hot:
		if score < th.HotExit {
			if score < th.WarmLow {
				return model.Cold
			}
			return model.Warm
		}
		return model.Hot
	case model.Warm:
		if score >= th.HotEntry && failures == 0 {
			return model.Hot
		}
		if score < th.WarmLow {
			return model.Cold
		}
		return model.Warm
	case model.Pending:
		// A node's first-ever validation always lands in Cold regardless
		// of score (spec §4.6): Cold's entry condition is "0 < score <
		// 0.5 OR newly validated node." Promotion out of Cold only
		// happens on a subsequent check, below.
		return model.Cold
	default: // Cold
		if score >= th.WarmLow {
			if score >= th.HotEntry && failures == 0 {
				return model.Hot
			}
			return model.Warm
		}
		return model.Cold
	}
}

// TierView returns the nodes currently in tier, ordered by the Scorer's
// deterministic tie-break (spec §4.5). This is a point-in-time,
// in-memory-only read (spec §5: "eventually consistent within a bounded
// delay equal to one validator batch completion"): each returned node is
// a copy taken under its shard's lock, so later updates do not change it.
func (m *Manager) TierView(tier model.Tier) []*model.Node {
	var out []*model.Node
	for _, s := range m.shards {
		s.mu.RLock()
		for _, n := range s.nodes {
			if n.Pool == tier {
				cp := *n
				cp.Sources = append([]string(nil), n.Sources...)
				out = append(out, &cp)
			}
		}
		s.mu.RUnlock()
	}
	insertionSortByTieBreak(out)
	return out
}

func insertionSortByTieBreak(nodes []*model.Node) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && scorer.TieBreak(nodes[j], nodes[j-1]); j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}

// TierCounts reports the size of every pool, for stats() (spec §6).
func (m *Manager) TierCounts() map[model.Tier]int {
	counts := map[model.Tier]int{
		model.Pending:   0,
		model.Cold:      0,
		model.Warm:      0,
		model.Hot:       0,
		model.Blacklist: 0,
	}
	for _, s := range m.shards {
		s.mu.RLock()
		for _, n := range s.nodes {
			counts[n.Pool]++
		}
		s.mu.RUnlock()
	}
	return counts
}

// AvgScore reports the mean score across all non-blacklisted nodes.
func (m *Manager) AvgScore() float64 {
	var sum float64
	var count int
	for _, s := range m.shards {
		s.mu.RLock()
		for _, n := range s.nodes {
			if n.Pool == model.Blacklist {
				continue
			}
			sum += n.Score
			count++
		}
		s.mu.RUnlock()
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// RetentionSweep destroys Blacklist entries beyond the retention horizon
// that have seen no re-emission from any source since being blacklisted
// (spec §3's destruction rule, §8 scenario coverage).
func (m *Manager) RetentionSweep(now time.Time) []model.Key {
	var destroyed []model.Key
	for _, s := range m.shards {
		s.mu.Lock()
		for k, n := range s.nodes {
			if n.Pool != model.Blacklist {
				continue
			}
			if now.Sub(n.BlacklistedAt) < m.th.RetentionHorizon {
				continue
			}
			if now.Sub(n.LastSeenAt) < m.th.RetentionHorizon {
				// Rediscovered by some adapter since being blacklisted;
				// stays blacklisted, not destroyed.
				continue
			}
			delete(s.nodes, k)
			destroyed = append(destroyed, k)
			select {
			case m.events <- Event{Kind: EventDestroyed, Key: k, From: model.Blacklist, To: model.Blacklist, Node: n}:
			default:
			}
		}
		s.mu.Unlock()
	}
	return destroyed
}

// Snapshot dumps every node across all tiers, for Persistence.
func (m *Manager) Snapshot() []*model.Node {
	var out []*model.Node
	for _, s := range m.shards {
		s.mu.RLock()
		for _, n := range s.nodes {
			cp := *n
			out = append(out, &cp)
		}
		s.mu.RUnlock()
	}
	return out
}

// Restore loads a previously snapshotted node back into its tier,
// preserving its prior score, ScoreUpdatedAt, and LastChecked so the next
// ApplyOutcome decays from the node's real prior score instead of
// resetting the EMA basis to 0.5, and so the Scheduler can judge urgency
// correctly (spec §4.9).
func (m *Manager) Restore(n *model.Node) {
	n.Key = model.Key{Host: n.Host, Port: n.Port, Protocol: n.Protocol}
	if n.LastSeenAt.IsZero() {
		// Snapshot without a last-seen time: anchor retention on the last check.
		n.LastSeenAt = n.LastChecked
	}
	s := m.shardFor(n.Key)
	s.mu.Lock()
	s.nodes[n.Key] = n
	s.mu.Unlock()
}
