package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nodalmesh/sentinel/internal/config"
)

func writeTemp(dir, content string) string {
	p := filepath.Join(dir, "config.yaml")
	Expect(os.WriteFile(p, []byte(content), 0o644)).To(Succeed())
	return p
}

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("fills defaults for omitted scalar fields", func() {
		p := writeTemp(dir, `
sources:
  - name: sslproxies
    kind: line_list
    url: https://example.com/list.txt
test_endpoints:
  - https://httpbin.org/get
`)
		cfg, err := config.Load(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Concurrency.ValidatorConcurrency).To(Equal(50))
		Expect(cfg.Concurrency.PrescanConcurrency).To(Equal(200))
		Expect(cfg.TierThresholds.HotEntry).To(Equal(0.8))
		Expect(cfg.Scorer.Alpha).To(Equal(0.3))
		Expect(cfg.Persistence.SnapshotRetention).To(Equal(10))
	})

	It("rejects a config with no sources", func() {
		p := writeTemp(dir, `
test_endpoints:
  - https://httpbin.org/get
`)
		_, err := config.Load(p)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a config with no test endpoints", func() {
		p := writeTemp(dir, `
sources:
  - name: sslproxies
    kind: line_list
    url: https://example.com/list.txt
test_endpoints: []
`)
		_, err := config.Load(p)
		Expect(err).To(HaveOccurred())
	})

	It("rejects inverted tier thresholds", func() {
		p := writeTemp(dir, `
sources:
  - name: sslproxies
    kind: line_list
    url: https://example.com/list.txt
test_endpoints:
  - https://httpbin.org/get
tier_thresholds:
  warm_low: 0.9
  hot_entry: 0.5
`)
		_, err := config.Load(p)
		Expect(err).To(HaveOccurred())
	})

	It("errors when the file does not exist", func() {
		_, err := config.Load(filepath.Join(dir, "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})
})
