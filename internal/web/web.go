// Package web implements the engine's embedded dashboard (SPEC_FULL.md
// §C.11): a small HTTP+WebSocket surface repurposed from the teacher's
// web.go, broadcasting Stats() instead of per-request processing stats,
// plus a Prometheus /metrics endpoint for scrape-based monitoring.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed assets/template.html
var assets embed.FS

// Payload is the shape of every message broadcast to dashboard clients.
type Payload struct {
	Kind string `json:"kind"`
	Body any    `json:"body"`
}

// StatsFunc returns the current engine statistics snapshot.
type StatsFunc func() any

// Dashboard owns the WebSocket broadcast fan-out and the stats ticker.
type Dashboard struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	mu        sync.Mutex
	broadcast chan []byte
	stats     StatsFunc
	log       *slog.Logger
}

// New builds a Dashboard that polls statsFn every tick and broadcasts it.
func New(statsFn StatsFunc, log *slog.Logger) *Dashboard {
	return &Dashboard{
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 16),
		stats:     statsFn,
		log:       log,
	}
}

// Handler builds the dashboard's http.Handler: "/" (the template page),
// "/ws" (the WebSocket upgrade), "/metrics" (Prometheus).
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", d.serveIndex)
	mux.HandleFunc("/ws", d.serveWS)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run starts the broadcast fan-out and the periodic stats ticker; it
// blocks until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) {
	go d.fanOut(ctx)

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.broadcastPayload(Payload{Kind: "stats", Body: d.stats()})
		}
	}
}

// Log broadcasts a log line to connected dashboard clients, the way the
// teacher's writeLog does.
func (d *Dashboard) Log(msg string) {
	d.broadcastPayload(Payload{Kind: "log", Body: msg})
}

func (d *Dashboard) broadcastPayload(p Payload) {
	body, err := json.Marshal(p)
	if err != nil {
		return
	}
	select {
	case d.broadcast <- body:
	default:
		// Slow consumer; drop rather than block the ticker.
	}
}

func (d *Dashboard) fanOut(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.broadcast:
			d.mu.Lock()
			for c := range d.clients {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					c.Close()
					delete(d.clients, c)
				}
			}
			d.mu.Unlock()
		}
	}
}

func (d *Dashboard) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.log.Error("websocket upgrade failed", "error", err)
		return
	}
	d.mu.Lock()
	d.clients[conn] = true
	d.mu.Unlock()
}

func (d *Dashboard) serveIndex(w http.ResponseWriter, r *http.Request) {
	t, err := template.ParseFS(assets, "assets/template.html")
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	if err := t.Execute(w, "ws://"+r.Host+"/ws"); err != nil {
		d.log.Error("template execute failed", "error", err)
	}
}
