package scorer_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nodalmesh/sentinel/internal/model"
	"github.com/nodalmesh/sentinel/internal/scorer"
)

var _ = Describe("Scorer", func() {
	var s *scorer.Scorer

	BeforeEach(func() {
		s = scorer.New(scorer.DefaultConfig())
	})

	Describe("Update", func() {
		// scenario 1 from spec §8: fresh-start promotion
		It("scores a first successful measurement from the undefined prior of 0.5", func() {
			outcome := model.ValidationOutcome{OK: true, LatencyMs: 200}
			got := s.Update(0, time.Time{}, outcome, time.Now())
			Expect(got).To(BeNumerically("~", 0.638, 0.001))
		})

		// scenario 2: promotion through tiers, no time decay
		It("asymptotes toward the reward under repeated identical successes", func() {
			now := time.Now()
			score := s.Update(0, time.Time{}, model.ValidationOutcome{OK: true, LatencyMs: 200}, now)
			for i := 0; i < 5; i++ {
				score = s.Update(score, now, model.ValidationOutcome{OK: true, LatencyMs: 200}, now)
			}
			Expect(score).To(BeNumerically(">=", 0.8))
			Expect(score).To(BeNumerically("<", 0.97))
		})

		// scenario 3: demotion on failures, no time decay between updates
		It("decays per EMA across consecutive failures", func() {
			now := time.Now()
			score := 0.85
			expected := []float64{0.595, 0.4165, 0.29155, 0.204085, 0.1428595}
			for _, want := range expected {
				score = s.Update(score, now, model.ValidationOutcome{OK: false}, now)
				Expect(score).To(BeNumerically("~", want, 0.001))
			}
		})

		It("never exceeds [0, 1] regardless of input", func() {
			now := time.Now()
			score := s.Update(2.0, now.Add(-time.Hour), model.ValidationOutcome{OK: true, LatencyMs: -500}, now)
			Expect(score).To(BeNumerically(">=", 0))
			Expect(score).To(BeNumerically("<=", 1))
		})

		It("applies exponential time decay before folding in the new reward", func() {
			now := time.Now()
			decayed := s.Update(0.9, now.Add(-6*time.Hour), model.ValidationOutcome{OK: false}, now)
			fresh := s.Update(0.9, now, model.ValidationOutcome{OK: false}, now)
			Expect(decayed).To(BeNumerically("<", fresh))
		})
	})

	Describe("TieBreak", func() {
		It("ranks higher score first", func() {
			a := &model.Node{Score: 0.9}
			b := &model.Node{Score: 0.5}
			Expect(scorer.TieBreak(a, b)).To(BeTrue())
		})

		It("falls back to lower latency on equal score", func() {
			a := &model.Node{Score: 0.9, ResponseTimeMs: 80}
			b := &model.Node{Score: 0.9, ResponseTimeMs: 120}
			Expect(scorer.TieBreak(a, b)).To(BeTrue())
		})

		It("falls back to lexicographic key as the final tie-break", func() {
			now := time.Now()
			a := &model.Node{Score: 0.9, ResponseTimeMs: 100, LastSuccessful: now, Key: model.Key{Host: "a.example.com"}}
			b := &model.Node{Score: 0.9, ResponseTimeMs: 100, LastSuccessful: now, Key: model.Key{Host: "b.example.com"}}
			Expect(scorer.TieBreak(a, b)).To(BeTrue())
		})
	})
})
