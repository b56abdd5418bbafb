package engine_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nodalmesh/sentinel/internal/config"
	"github.com/nodalmesh/sentinel/internal/engine"
	"github.com/nodalmesh/sentinel/internal/selector"
)

var _ = Describe("Engine", func() {
	var (
		dir      string
		source   *httptest.Server
		endpoint *httptest.Server
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()

		endpoint = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"origin":"1.2.3.4","headers":{}}`))
		}))

		source = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("127.0.0.1:1\n"))
		}))
	})

	AfterEach(func() {
		source.Close()
		endpoint.Close()
	})

	buildConfig := func() *config.Config {
		return &config.Config{
			Sources: []config.Source{{Name: "test-source", Kind: "line_list", URL: source.URL}},
			Timers: config.Timers{
				FetchInterval:   "@every 1h",
				RevalInterval:   "@every 1h",
				RetainInterval:  "@every 1h",
				PersistInterval: "@every 1h",
			},
			Concurrency: config.Concurrency{AdapterConcurrency: 1, PrescanConcurrency: 0, ValidatorConcurrency: 5},
			Timeouts:    config.Timeouts{AdapterTimeoutS: 2, PrescanTimeoutS: 1, ValidatorTimeoutS: 2},
			TierThresholds: config.TierThresholds{
				HotEntry: 0.8, HotExit: 0.7, WarmLow: 0.5, WarmHigh: 0.8,
				ColdDemoteFailures: 5, BlacklistFailures: 10, RetentionDays: 7,
			},
			Scorer:        config.ScorerParams{Alpha: 0.3, HalfLifeMin: 360, ScoreLatMaxMs: 5000},
			TestEndpoints: []string{endpoint.URL},
			Persistence: config.Persistence{
				DBPath:            filepath.Join(dir, "sentinel.db"),
				SnapshotPath:      filepath.Join(dir, "snapshots", "sentinel.json"),
				SnapshotRetention: 5,
			},
		}
	}

	It("runs a fetch cycle end to end and makes a node selectable", func() {
		e, err := engine.New(buildConfig(), slog.Default())
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		Expect(e.Start(ctx, false)).To(Succeed())
		defer e.Shutdown(context.Background())

		e.TriggerFetch(context.Background())
		time.Sleep(200 * time.Millisecond)

		_, err = e.GetProxy(selector.Filter{})
		Expect(err).NotTo(HaveOccurred())

		stats := e.Stats()
		Expect(stats.FetchCyclesCompleted).To(BeNumerically(">=", 1))
	})
})
