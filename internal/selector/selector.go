// Package selector implements the Selector (spec §4.8): a pure
// in-memory read over the Pool Manager's tiers honoring a filter, tier
// fallback (Hot -> Warm -> Cold), and the Scorer's tie-break order.
package selector

import (
	"errors"

	"github.com/nodalmesh/sentinel/internal/model"
)

// ErrNotFound is returned when no node satisfies the filter in any
// fallback tier.
var ErrNotFound = errors.New("selector: no matching proxy found")

// Filter restricts candidate nodes (spec §4.8).
type Filter struct {
	Protocol         model.Protocol
	AnonymityAtLeast model.Anonymity
	Country          string
	HTTPSRequired    bool
	MaxLatencyMs     int
	ExcludeIDs       map[string]bool
}

// TierSource provides the ordered view of a tier the Pool Manager exposes.
type TierSource interface {
	TierView(tier model.Tier) []*model.Node
}

// Selector selects a single node per call.
type Selector struct {
	pool TierSource
}

// New builds a Selector over pool.
func New(pool TierSource) *Selector {
	return &Selector{pool: pool}
}

var fallbackOrder = []model.Tier{model.Hot, model.Warm, model.Cold}

// Get implements spec §4.8's selection policy: restrict to Hot, falling
// back to Warm then Cold if empty after filtering; within a tier, the
// Pool Manager's TierView is already ordered by the Scorer tie-break, so
// the first match is the top-ranked one.
func (s *Selector) Get(f Filter) (*model.Node, error) {
	for _, tier := range fallbackOrder {
		for _, n := range s.pool.TierView(tier) {
			if matches(n, f) {
				return n, nil
			}
		}
	}
	return nil, ErrNotFound
}

func matches(n *model.Node, f Filter) bool {
	if f.Protocol != "" && n.Protocol != f.Protocol {
		return false
	}
	if f.Country != "" && n.Country != f.Country {
		return false
	}
	if f.HTTPSRequired && !n.HTTPSCapable {
		return false
	}
	if f.MaxLatencyMs > 0 && n.ResponseTimeMs > f.MaxLatencyMs {
		return false
	}
	if f.AnonymityAtLeast != "" && anonymityRank(n.Anonymity) < anonymityRank(f.AnonymityAtLeast) {
		return false
	}
	if f.ExcludeIDs != nil && f.ExcludeIDs[n.ID] {
		return false
	}
	return true
}

// anonymityRank orders anonymity classes from least to most private, so
// "at least anonymous" also admits elite.
func anonymityRank(a model.Anonymity) int {
	switch a {
	case model.Transparent:
		return 0
	case model.AnonUnknown:
		return 0
	case model.Anonymous:
		return 1
	case model.Elite:
		return 2
	default:
		return 0
	}
}
