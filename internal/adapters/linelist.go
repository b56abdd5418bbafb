package adapters

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nodalmesh/sentinel/internal/model"
)

// LineListAdapter parses a raw newline-delimited "host:port" body, the
// teacher's native source format (the GitHub-hosted lists fetched in
// pkg/wlpb/wlpb.go's fetchProxies).
type LineListAdapter struct {
	SourceName string
	URL        string
	Protocol   model.Protocol
	Timeout    time.Duration

	client *http.Client
}

// Name returns the adapter's stable identifier.
func (a *LineListAdapter) Name() string { return a.SourceName }

// Fetch downloads and parses the line list into candidates.
func (a *LineListAdapter) Fetch(ctx context.Context) ([]model.Candidate, error) {
	if a.client == nil {
		a.client = newClient(a.Timeout)
	}

	body, err := httpGet(ctx, a.client, a.SourceName, a.URL)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var out []model.Candidate
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		host, port, ok := model.ParseHostPort(line)
		if !ok {
			continue
		}
		out = append(out, model.Candidate{
			Key:       model.Key{Host: host, Port: port, Protocol: a.Protocol},
			Source:    a.SourceName,
			SourceURL: a.URL,
			FirstSeen: now,
		})
	}

	if len(out) == 0 {
		return nil, &model.AdapterError{Source: a.SourceName, Kind: model.ErrParseError, Detail: "no parseable host:port lines"}
	}
	return out, nil
}
