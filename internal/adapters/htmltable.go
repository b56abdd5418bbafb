package adapters

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/nodalmesh/sentinel/internal/model"
)

// HTMLTableAdapter scrapes an sslproxies-style HTML table whose rows carry
// an IP column and a Port column, using golang.org/x/net/html's tokenizer
// (already a transitive dependency of this module via idna/proxy) rather
// than a dedicated HTML-parsing library.
type HTMLTableAdapter struct {
	SourceName string
	URL        string
	Timeout    time.Duration

	client *http.Client
}

// Name returns the adapter's stable identifier.
func (a *HTMLTableAdapter) Name() string { return a.SourceName }

// Fetch downloads and scrapes the HTML table into candidates.
func (a *HTMLTableAdapter) Fetch(ctx context.Context) ([]model.Candidate, error) {
	if a.client == nil {
		a.client = newClient(a.Timeout)
	}

	body, err := httpGet(ctx, a.client, a.SourceName, a.URL)
	if err != nil {
		return nil, err
	}

	rows, err := extractTableRows(string(body))
	if err != nil {
		return nil, &model.AdapterError{Source: a.SourceName, Kind: model.ErrParseError, Detail: err.Error()}
	}

	now := time.Now()
	var out []model.Candidate
	for _, cells := range rows {
		if len(cells) < 2 {
			continue
		}
		ip := strings.TrimSpace(cells[0])
		port, err := strconv.Atoi(strings.TrimSpace(cells[1]))
		if ip == "" || err != nil || port < 1 || port > 65535 {
			continue
		}
		out = append(out, model.Candidate{
			Key:       model.Key{Host: ip, Port: port, Protocol: model.HTTP},
			Source:    a.SourceName,
			SourceURL: a.URL,
			FirstSeen: now,
		})
	}

	if len(out) == 0 {
		return nil, &model.AdapterError{Source: a.SourceName, Kind: model.ErrParseError, Detail: "no table rows with ip/port columns"}
	}
	return out, nil
}

// extractTableRows tokenizes body and returns each <tr>'s <td>/<th> text
// contents in order. Header rows are returned too; the caller drops them
// because their second cell is not a numeric port.
func extractTableRows(body string) ([][]string, error) {
	tokenizer := html.NewTokenizer(strings.NewReader(body))

	var rows [][]string
	var current []string
	var cell strings.Builder
	inCell := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return rows, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tokenizer.Token()
			switch tok.Data {
			case "tr":
				current = nil
			case "td", "th":
				inCell = true
				cell.Reset()
			}
		case html.EndTagToken:
			tok := tokenizer.Token()
			switch tok.Data {
			case "td", "th":
				current = append(current, cell.String())
				inCell = false
			case "tr":
				if len(current) > 0 {
					rows = append(rows, current)
				}
			}
		case html.TextToken:
			if inCell {
				cell.WriteString(string(tokenizer.Text()))
			}
		}
	}
}
