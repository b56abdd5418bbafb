package web_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nodalmesh/sentinel/internal/web"
)

var _ = Describe("Dashboard", func() {
	It("serves the index template with a websocket URL injected", func() {
		d := web.New(func() any { return map[string]int{"hot": 1} }, slog.Default())
		srv := httptest.NewServer(d.Handler())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body, _ := io.ReadAll(resp.Body)
		Expect(string(body)).To(ContainSubstring("ws://"))
	})

	It("serves prometheus metrics", func() {
		d := web.New(func() any { return nil }, slog.Default())
		srv := httptest.NewServer(d.Handler())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/metrics")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})
})
