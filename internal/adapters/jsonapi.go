package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/nodalmesh/sentinel/internal/model"
)

// JSONAPIAdapter fetches a JSON array of proxy records from a Geonode-style
// API source.
type JSONAPIAdapter struct {
	SourceName string
	URL        string
	Timeout    time.Duration

	client *http.Client
}

type jsonProxyRecord struct {
	IP       string `json:"ip"`
	Port     string `json:"port"`
	Protocol string `json:"protocol"`
}

type jsonAPIEnvelope struct {
	Data []jsonProxyRecord `json:"data"`
}

// Name returns the adapter's stable identifier.
func (a *JSONAPIAdapter) Name() string { return a.SourceName }

// Fetch downloads and parses the JSON API response into candidates.
func (a *JSONAPIAdapter) Fetch(ctx context.Context) ([]model.Candidate, error) {
	if a.client == nil {
		a.client = newClient(a.Timeout)
	}

	body, err := httpGet(ctx, a.client, a.SourceName, a.URL)
	if err != nil {
		return nil, err
	}

	var env jsonAPIEnvelope
	if jsonErr := json.Unmarshal(body, &env); jsonErr != nil {
		// The envelope shape may be a bare array instead of {"data": [...]}.
		var records []jsonProxyRecord
		if jsonErr2 := json.Unmarshal(body, &records); jsonErr2 != nil {
			return nil, &model.AdapterError{Source: a.SourceName, Kind: model.ErrSchemaDrift, Detail: jsonErr.Error()}
		}
		env.Data = records
	}

	now := time.Now()
	var out []model.Candidate
	for _, r := range env.Data {
		port, err := strconv.Atoi(r.Port)
		if err != nil || r.IP == "" || port < 1 || port > 65535 {
			continue
		}
		proto := model.Protocol(r.Protocol)
		if proto == "" {
			proto = model.HTTP
		}
		out = append(out, model.Candidate{
			Key:       model.Key{Host: r.IP, Port: port, Protocol: proto},
			Source:    a.SourceName,
			SourceURL: a.URL,
			FirstSeen: now,
		})
	}

	if len(out) == 0 {
		return nil, &model.AdapterError{Source: a.SourceName, Kind: model.ErrSchemaDrift, Detail: "no usable records in response"}
	}
	return out, nil
}
