// Package dedup implements the Candidate Deduplicator (spec §4.2):
// canonicalizing (host, port, protocol) and merging duplicates produced
// within one fetch cycle before they reach the Prescanner/Validator.
package dedup

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/nodalmesh/sentinel/internal/model"
)

// Raw is an adapter's unparsed emission: a schema-qualified "host:port"
// line plus its provenance, mirroring the shape the teacher's adapters
// work with (schema + "host:port" strings from a source body).
type Raw struct {
	Protocol  model.Protocol
	HostPort  string
	Source    string
	SourceURL string
}

// Dedup canonicalizes and merges a cycle's raw adapter emissions into a
// set of Candidates, keyed by the canonical (host, port, protocol) tuple.
// Running Dedup twice on the same input yields identical output (spec §8
// idempotence property) because it is a pure function of its input.
func Dedup(raws []Raw, now time.Time) []model.Candidate {
	merged := make(map[model.Key]*model.Candidate)
	order := make([]model.Key, 0, len(raws))

	for _, r := range raws {
		key, ok := canonicalize(r.Protocol, r.HostPort)
		if !ok {
			continue
		}

		if c, exists := merged[key]; exists {
			c.Sources = unionSource(c.Sources, r.Source)
			continue
		}

		merged[key] = &model.Candidate{
			Key:       key,
			Sources:   []string{r.Source},
			SourceURL: r.SourceURL,
			FirstSeen: now,
		}
		order = append(order, key)
	}

	out := make([]model.Candidate, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	return out
}

// canonicalize lowercases and IDN-normalizes the host, parses and
// validates the port, and lowercases the protocol (spec §4.2).
func canonicalize(proto model.Protocol, hostPort string) (model.Key, bool) {
	host, portStr, ok := splitHostPort(hostPort)
	if !ok {
		return model.Key{}, false
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return model.Key{}, false
	}

	host = strings.ToLower(strings.TrimSpace(host))
	if normalized, err := idna.Lookup.ToASCII(host); err == nil {
		host = normalized
	}

	return model.Key{
		Host:     host,
		Port:     port,
		Protocol: model.Protocol(strings.ToLower(string(proto))),
	}, true
}

func splitHostPort(s string) (host, port string, ok bool) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ":")
	if idx < 0 || idx == len(s)-1 || idx == 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

// unionSource appends src to set if not already present, keeping Sources
// a true set (spec §4.2/§8: merging two adapters' emissions of the same
// key yields a source set of size 2, not a delimited label string).
func unionSource(set []string, src string) []string {
	for _, s := range set {
		if s == src {
			return set
		}
	}
	return append(set, src)
}
