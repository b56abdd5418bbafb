// Package adapters implements the Source Adapters (spec §4.1): a closed
// set of concrete fetchers behind one capability interface, promoted from
// the teacher's raw `Sources map[string][]string` (httptines.go, Worker.Sources)
// into first-class, independently testable adapter types.
package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nodalmesh/sentinel/internal/model"
)

// Adapter is the uniform capability every source implements (spec §4.1).
type Adapter interface {
	Name() string
	Fetch(ctx context.Context) ([]model.Candidate, error)
}

// httpGet performs the shared "respect at most one redirect, read the
// body, classify failures" contract every adapter needs (spec §4.1),
// mirroring the teacher's fetchProxies loop in pkg/wlpb/wlpb.go but
// returning a structured model.AdapterError instead of just logging.
func httpGet(ctx context.Context, client *http.Client, sourceName, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &model.AdapterError{Source: sourceName, Kind: model.ErrUnreachable, Detail: err.Error()}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &model.AdapterError{Source: sourceName, Kind: model.ErrUnreachable, Detail: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &model.AdapterError{Source: sourceName, Kind: model.ErrRateLimited, Detail: "429 too many requests"}
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return nil, &model.AdapterError{Source: sourceName, Kind: model.ErrUnreachable, Detail: fmt.Sprintf("redirect limit exceeded, status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &model.AdapterError{Source: sourceName, Kind: model.ErrUnreachable, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &model.AdapterError{Source: sourceName, Kind: model.ErrUnreachable, Detail: err.Error()}
	}
	return body, nil
}

// newClient builds a redirect-limited client (spec §4.1: "follows at most
// 1 redirect, then emits an adapter-level error").
func newClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// via holds the requests already made; allow exactly one hop.
			if len(via) >= 2 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}
