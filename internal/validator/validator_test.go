package validator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nodalmesh/sentinel/internal/model"
)

var _ = Describe("classifyAnonymity", func() {
	It("classifies elite when there is no leakage and a single origin IP", func() {
		Expect(classifyAnonymity([]byte(`{"origin":"1.2.3.4","headers":{"Host":"x"}}`))).To(Equal(model.Elite))
	})

	It("classifies transparent when Via/X-Forwarded-For headers leak", func() {
		Expect(classifyAnonymity([]byte(`{"origin":"1.2.3.4","headers":{"X-Forwarded-For":"5.6.7.8"}}`))).To(Equal(model.Transparent))
	})

	It("classifies anonymous when the origin lists multiple IPs without leak headers", func() {
		Expect(classifyAnonymity([]byte(`{"origin":"1.2.3.4, 9.9.9.9","headers":{}}`))).To(Equal(model.Anonymous))
	})

	It("classifies unknown on an unparseable body", func() {
		Expect(classifyAnonymity([]byte(`not json`))).To(Equal(model.AnonUnknown))
	})
})

var _ = Describe("Validator", func() {
	var server *httptest.Server

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	It("validates a candidate through an HTTP proxy and reports success", func() {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"origin":"1.2.3.4","headers":{}}`))
		}))
		defer upstream.Close()

		// A trivial "proxy" that just forwards to upstream regardless of
		// the requested target, standing in for a real CONNECT/GET proxy.
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp, err := http.Get(upstream.URL)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			w.WriteHeader(resp.StatusCode)
		}))

		proxyURL, _ := url.Parse(server.URL)
		host, port := proxyURL.Hostname(), proxyURL.Port()

		v := New(Config{
			Timeout:            2 * time.Second,
			Concurrency:        5,
			TestEndpoints:      []string{upstream.URL},
			HTTPSProbeEndpoint: "",
		})

		portNum, err := strconv.Atoi(port)
		Expect(err).NotTo(HaveOccurred())

		c := model.Candidate{Key: model.Key{Host: host, Port: portNum, Protocol: model.HTTP}}
		outcomes := v.Validate(context.Background(), []model.Candidate{c})
		Expect(outcomes).To(HaveLen(1))
		Expect(outcomes[0].OK).To(BeTrue())
	})

	It("reports a transport failure for an unreachable proxy", func() {
		v := New(Config{
			Timeout:       300 * time.Millisecond,
			Concurrency:   5,
			TestEndpoints: []string{"https://example.com"},
		})
		c := model.Candidate{Key: model.Key{Host: "127.0.0.1", Port: 1, Protocol: model.HTTP}}
		outcomes := v.Validate(context.Background(), []model.Candidate{c})
		Expect(outcomes).To(HaveLen(1))
		Expect(outcomes[0].OK).To(BeFalse())
		Expect(outcomes[0].ErrKind).To(Or(Equal(model.ErrTransport), Equal(model.ErrTimeout)))
	})
})
