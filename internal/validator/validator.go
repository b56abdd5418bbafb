// Package validator implements the Validator (spec §4.4): routing an
// idempotent probe request through each candidate proxy, classifying
// anonymity from the echoed response, and probing HTTPS capability.
//
// HTTP/HTTPS candidates are dialed the way the teacher's makeRequest
// (pkg/wlpb/wlpb.go) does it, via http.Transport{Proxy: http.ProxyURL(...)}.
// SOCKS5 candidates are dialed with golang.org/x/net/proxy and SOCKS4
// candidates with the minimal dialer in socks4.go; the teacher never
// needed either because it only ever balanced HTTP proxies.
package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/sync/semaphore"

	"github.com/nodalmesh/sentinel/internal/model"
)

// Config controls probe endpoints, timeout and admission bound.
type Config struct {
	Timeout            time.Duration
	Concurrency        int64
	TestEndpoints      []string
	HTTPSProbeEndpoint string
}

// DefaultConfig matches spec §4.4/§5 defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:            10 * time.Second,
		Concurrency:        50,
		TestEndpoints:      []string{"https://httpbin.org/get"},
		HTTPSProbeEndpoint: "https://httpbin.org/get",
	}
}

// Validator runs bounded-concurrency proxy probes.
type Validator struct {
	cfg Config
	sem *semaphore.Weighted
}

// New builds a Validator.
func New(cfg Config) *Validator {
	return &Validator{cfg: cfg, sem: semaphore.NewWeighted(cfg.Concurrency)}
}

// Validate probes every candidate concurrently, bounded by cfg.Concurrency,
// and returns one ValidationOutcome per candidate in input order.
func (v *Validator) Validate(ctx context.Context, candidates []model.Candidate) []model.ValidationOutcome {
	out := make([]model.ValidationOutcome, len(candidates))

	type result struct {
		idx int
		o   model.ValidationOutcome
	}
	results := make(chan result, len(candidates))

	for i, c := range candidates {
		if err := v.sem.Acquire(ctx, 1); err != nil {
			results <- result{idx: i, o: model.ValidationOutcome{Key: c.Key, OK: false, ErrKind: model.ErrTimeout, Detail: "admission cancelled", ObservedAt: time.Now()}}
			continue
		}
		go func(i int, c model.Candidate) {
			defer v.sem.Release(1)
			results <- result{idx: i, o: v.probeWithRetry(ctx, c)}
		}(i, c)
	}

	for range candidates {
		r := <-results
		out[r.idx] = r.o
	}
	return out
}

// probeWithRetry implements spec §4.4's retry rule: Transport and Timeout
// failures get exactly one retry with a fresh connection; other failures
// are not retried in the same cycle.
func (v *Validator) probeWithRetry(ctx context.Context, c model.Candidate) model.ValidationOutcome {
	o := v.probe(ctx, c)
	if !o.OK && (o.ErrKind == model.ErrTransport || o.ErrKind == model.ErrTimeout) {
		o = v.probe(ctx, c)
	}
	return o
}

func (v *Validator) probe(ctx context.Context, c model.Candidate) model.ValidationOutcome {
	endpoint := v.cfg.TestEndpoints[0]

	client, err := clientFor(c.Key, v.cfg.Timeout)
	if err != nil {
		return model.ValidationOutcome{Key: c.Key, OK: false, ErrKind: model.ErrTransport, Detail: err.Error(), ObservedAt: time.Now()}
	}

	cctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	started := time.Now()
	body, status, err := doGet(cctx, client, endpoint, randomUserAgent())
	latency := int(time.Since(started).Milliseconds())

	if err != nil {
		return model.ValidationOutcome{Key: c.Key, OK: false, ErrKind: classifyErr(err), Detail: err.Error(), ObservedAt: time.Now()}
	}
	if status < 200 || status >= 300 {
		return model.ValidationOutcome{Key: c.Key, OK: false, ErrKind: model.ErrHTTPStatus, Detail: fmt.Sprintf("status %d", status), ObservedAt: time.Now()}
	}

	anonymity := classifyAnonymity(body)
	httpsCapable := c.Key.Protocol == model.HTTPS
	if c.Key.Protocol == model.HTTP {
		httpsCapable = v.probeHTTPS(cctx, client)
	}

	return model.ValidationOutcome{
		Key:          c.Key,
		OK:           true,
		LatencyMs:    latency,
		Anonymity:    anonymity,
		HTTPSCapable: httpsCapable,
		ObservedAt:   time.Now(),
	}
}

func (v *Validator) probeHTTPS(ctx context.Context, client *http.Client) bool {
	if v.cfg.HTTPSProbeEndpoint == "" {
		return false
	}
	_, status, err := doGet(ctx, client, v.cfg.HTTPSProbeEndpoint, randomUserAgent())
	return err == nil && status >= 200 && status < 300
}

// clientFor builds an *http.Client routed through the candidate,
// honoring its declared protocol (spec §4.4 step 1).
func clientFor(k model.Key, timeout time.Duration) (*http.Client, error) {
	addr := net.JoinHostPort(k.Host, strconv.Itoa(k.Port))

	switch k.Protocol {
	case model.HTTP, model.HTTPS:
		proxyURL, err := url.Parse(fmt.Sprintf("%s://%s", k.Protocol, addr))
		if err != nil {
			return nil, err
		}
		return &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}, nil

	case model.SOCKS5:
		dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
		if err != nil {
			return nil, err
		}
		return &http.Client{Timeout: timeout, Transport: dialerTransport(dialer)}, nil

	case model.SOCKS4:
		return &http.Client{Timeout: timeout, Transport: dialerTransport(socks4Dialer{addr: addr})}, nil

	default:
		return nil, fmt.Errorf("unsupported protocol %q", k.Protocol)
	}
}

func dialerTransport(d proxy.Dialer) *http.Transport {
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := d.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return d.Dial(network, addr)
		},
	}
}

func doGet(ctx context.Context, client *http.Client, target, agent string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", agent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func classifyErr(err error) model.ErrorKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ErrTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrTimeout
	}
	return model.ErrTransport
}

// echoPayload is the subset of an httpbin-style echo response the
// anonymity classifier inspects.
type echoPayload struct {
	Origin  string            `json:"origin"`
	Headers map[string]string `json:"headers"`
}

// classifyAnonymity implements spec §4.4 step 6, defaulting to unknown
// when the body carries no recognizable echo fields (spec §9).
func classifyAnonymity(body []byte) model.Anonymity {
	var p echoPayload
	if err := json.Unmarshal(body, &p); err != nil || p.Origin == "" {
		return model.AnonUnknown
	}

	leaks := false
	for key := range p.Headers {
		lk := strings.ToLower(key)
		if lk == "via" || lk == "x-forwarded-for" || lk == "x-real-ip" {
			leaks = true
			break
		}
	}
	if leaks {
		return model.Transparent
	}

	if strings.Contains(p.Origin, ",") {
		return model.Anonymous
	}
	return model.Elite
}
