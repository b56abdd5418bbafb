package pool_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nodalmesh/sentinel/internal/model"
	"github.com/nodalmesh/sentinel/internal/pool"
	"github.com/nodalmesh/sentinel/internal/scorer"
)

var _ = Describe("Manager", func() {
	var (
		m   *pool.Manager
		key model.Key
		now time.Time
	)

	BeforeEach(func() {
		m = pool.New(pool.DefaultThresholds(), scorer.New(scorer.DefaultConfig()))
		key = model.Key{Host: "1.2.3.4", Port: 8080, Protocol: model.HTTP}
		now = time.Now()
	})

	Describe("UpsertCandidate", func() {
		It("creates a new node in Pending on first sight", func() {
			n, isNew := m.UpsertCandidate(model.Candidate{Key: key, Sources: []string{"sslproxies"}, FirstSeen: now}, now)
			Expect(isNew).To(BeTrue())
			Expect(n.Pool).To(Equal(model.Pending))
			Expect(n.Sources).To(ConsistOf("sslproxies"))
		})

		It("merges sources without touching measurement on rediscovery", func() {
			m.UpsertCandidate(model.Candidate{Key: key, Sources: []string{"sslproxies"}, FirstSeen: now}, now)
			m.ApplyOutcome(key, model.ValidationOutcome{OK: true, LatencyMs: 100}, now, false)

			n, isNew := m.UpsertCandidate(model.Candidate{Key: key, Sources: []string{"geonode"}, FirstSeen: now}, now.Add(time.Minute))
			Expect(isNew).To(BeFalse())
			Expect(n.Sources).To(ConsistOf("sslproxies", "geonode"))
			Expect(n.Score).To(BeNumerically(">", 0))
		})
	})

	Describe("ApplyOutcome", func() {
		// spec §8 scenario 1: fresh-start promotion
		It("promotes a new node to Cold on first successful validation", func() {
			m.UpsertCandidate(model.Candidate{Key: key, Sources: []string{"sslproxies"}, FirstSeen: now}, now)
			ev, ok := m.ApplyOutcome(key, model.ValidationOutcome{OK: true, LatencyMs: 200, Anonymity: model.Elite}, now, false)
			Expect(ok).To(BeTrue())
			Expect(ev.To).To(Equal(model.Cold))
			Expect(ev.Node.Score).To(BeNumerically("~", 0.638, 0.001))
			Expect(ev.Node.Anonymity).To(Equal(model.Elite))
		})

		// spec §8 scenario 2: promotion through tiers
		It("reaches Hot after repeated fast successes", func() {
			m.UpsertCandidate(model.Candidate{Key: key, Sources: []string{"sslproxies"}, FirstSeen: now}, now)
			var ev pool.Event
			for i := 0; i < 6; i++ {
				ev, _ = m.ApplyOutcome(key, model.ValidationOutcome{OK: true, LatencyMs: 200}, now, false)
			}
			Expect(ev.To).To(Equal(model.Hot))
		})

		// spec §8 scenario 3: demotion on failures
		It("demotes Hot -> Warm -> Cold -> Blacklist under consecutive failures", func() {
			m.UpsertCandidate(model.Candidate{Key: key, Sources: []string{"sslproxies"}, FirstSeen: now}, now)
			n, _ := m.Get(key)
			n.Pool = model.Hot
			n.Score = 0.85
			n.ScoreUpdatedAt = now

			ev, _ := m.ApplyOutcome(key, model.ValidationOutcome{OK: false}, now, false) // -> 0.595, Warm
			Expect(ev.To).To(Equal(model.Warm))

			ev, _ = m.ApplyOutcome(key, model.ValidationOutcome{OK: false}, now, false) // -> 0.4165, Cold
			Expect(ev.To).To(Equal(model.Cold))

			for i := 0; i < 8; i++ {
				ev, _ = m.ApplyOutcome(key, model.ValidationOutcome{OK: false}, now, false)
			}
			Expect(ev.To).To(Equal(model.Blacklist))
			Expect(ev.Node.Score).To(Equal(0.0))
		})

		It("never auto-rehabilitates out of Blacklist", func() {
			m.UpsertCandidate(model.Candidate{Key: key, Sources: []string{"sslproxies"}, FirstSeen: now}, now)
			n, _ := m.Get(key)
			n.Pool = model.Blacklist
			n.BlacklistedAt = now

			ev, _ := m.ApplyOutcome(key, model.ValidationOutcome{OK: true, LatencyMs: 100}, now, false)
			Expect(ev.To).To(Equal(model.Blacklist))
		})
	})

	Describe("RetentionSweep", func() {
		It("destroys Blacklist entries past the retention horizon with no rediscovery", func() {
			m.UpsertCandidate(model.Candidate{Key: key, Sources: []string{"sslproxies"}, FirstSeen: now}, now)
			n, _ := m.Get(key)
			n.Pool = model.Blacklist
			n.BlacklistedAt = now.Add(-8 * 24 * time.Hour)
			n.LastSeenAt = now.Add(-8 * 24 * time.Hour)

			destroyed := m.RetentionSweep(now)
			Expect(destroyed).To(ConsistOf(key))

			_, ok := m.Get(key)
			Expect(ok).To(BeFalse())
		})

		It("keeps a Blacklisted node alive if rediscovered within the horizon", func() {
			m.UpsertCandidate(model.Candidate{Key: key, Sources: []string{"sslproxies"}, FirstSeen: now}, now)
			n, _ := m.Get(key)
			n.Pool = model.Blacklist
			n.BlacklistedAt = now.Add(-8 * 24 * time.Hour)
			n.LastSeenAt = now.Add(-time.Hour) // rediscovered recently

			destroyed := m.RetentionSweep(now)
			Expect(destroyed).To(BeEmpty())

			got, ok := m.Get(key)
			Expect(ok).To(BeTrue())
			Expect(got.Pool).To(Equal(model.Blacklist))
		})
	})

	Describe("TierView", func() {
		It("orders nodes within a tier by the Scorer tie-break", func() {
			a := model.Key{Host: "a", Port: 1, Protocol: model.HTTP}
			b := model.Key{Host: "b", Port: 1, Protocol: model.HTTP}
			m.UpsertCandidate(model.Candidate{Key: a, Sources: []string{"s"}, FirstSeen: now}, now)
			m.UpsertCandidate(model.Candidate{Key: b, Sources: []string{"s"}, FirstSeen: now}, now)

			na, _ := m.Get(a)
			na.Pool, na.Score = model.Hot, 0.9
			nb, _ := m.Get(b)
			nb.Pool, nb.Score = model.Hot, 0.95

			view := m.TierView(model.Hot)
			Expect(view).To(HaveLen(2))
			Expect(view[0].Key).To(Equal(b))
		})
	})
})
