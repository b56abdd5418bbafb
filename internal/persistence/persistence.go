// Package persistence implements Persistence (spec §4.9): a durable
// modernc.org/sqlite table of every node plus a rotated, atomically
// written JSON snapshot for manual rollback, grounded on the rotation
// policy in the original implementation's persistence_service.py
// (timestamped backups pruned to the newest 10).
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nodalmesh/sentinel/internal/model"
)

// Store owns the sqlite durable table and the rotated snapshot directory.
type Store struct {
	db                *sql.DB
	snapshotPath      string
	snapshotRetention int
}

// Open opens (creating if absent) the sqlite database at dbPath and
// ensures the nodes table exists.
func Open(dbPath, snapshotPath string, retention int) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("persistence: create db dir: %w", err)
		}
	}
	if dir := filepath.Dir(snapshotPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("persistence: create snapshot dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("persistence: open sqlite: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: create table: %w", err)
	}

	return &Store{db: db, snapshotPath: snapshotPath, snapshotRetention: retention}, nil
}

// Close releases the underlying sqlite handle.
func (s *Store) Close() error { return s.db.Close() }

// Load reloads the most recent durable state on startup, preferring the
// live sqlite table and falling back to the latest JSON snapshot.
func (s *Store) Load(ctx context.Context) ([]*model.Node, error) {
	return Load(ctx, s.db, s.snapshotPath)
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	pool TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// snapshotEnvelope mirrors spec §6's logical snapshot format.
type snapshotEnvelope struct {
	SnapshotID string        `json:"snapshot_id"`
	Version    int           `json:"version"`
	TakenAt    time.Time     `json:"taken_at"`
	NodeCount  int           `json:"node_count"`
	Nodes      []*model.Node `json:"nodes"`
}

// Persist writes nodes durably to sqlite (spec §4.9: "a pure function of
// pool state at the time of the snapshot barrier"), replacing the whole
// table in one transaction, then exports a rotated JSON snapshot.
func (s *Store) Persist(ctx context.Context, nodes []*model.Node, now time.Time) error {
	if err := s.writeSQLite(ctx, nodes, now); err != nil {
		return fmt.Errorf("persistence: sqlite write failed (will retry next tick): %w", err)
	}
	if err := s.writeSnapshot(nodes, now); err != nil {
		return fmt.Errorf("persistence: snapshot export failed: %w", err)
	}
	return nil
}

func (s *Store) writeSQLite(ctx context.Context, nodes []*model.Node, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM nodes"); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO nodes (id, pool, payload, updated_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range nodes {
		payload, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("marshal node %s: %w", n.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, n.ID, string(n.Pool), string(payload), now.Unix()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// writeSnapshot renders the JSON snapshot via a temp file swapped into
// place with os.Rename (append-safe per spec §6), then rotates backups
// to the configured retention depth.
func (s *Store) writeSnapshot(nodes []*model.Node, now time.Time) error {
	env := snapshotEnvelope{SnapshotID: uuid.NewString(), Version: 1, TakenAt: now, NodeCount: len(nodes), Nodes: nodes}
	body, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}

	if err := atomicWrite(s.snapshotPath, body); err != nil {
		return err
	}

	dir := filepath.Dir(s.snapshotPath)
	base := filepath.Base(s.snapshotPath)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	backupName := fmt.Sprintf("%s_%s%s", stem, now.Format("20060102_150405"), ext)
	if err := atomicWrite(filepath.Join(dir, backupName), body); err != nil {
		return err
	}

	return pruneBackups(dir, stem, ext, s.snapshotRetention)
}

func atomicWrite(path string, body []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// pruneBackups keeps the newest `keep` timestamped backups, deleting the
// rest, mirroring persistence_service.py's _prune_old.
func pruneBackups(dir, stem, ext string, keep int) error {
	pattern := filepath.Join(dir, stem+"_*"+ext)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	type entry struct {
		path    string
		modTime time.Time
	}
	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: m, modTime: info.ModTime()})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].modTime.After(entries[j].modTime) })

	for _, e := range entries[min(keep, len(entries)):] {
		os.Remove(e.path)
	}
	return nil
}

// Load reloads the most recent durable state on startup (spec §4.9): it
// prefers the live sqlite table, falling back to the latest JSON snapshot
// if sqlite is empty or corrupt, and returns the snapshot's error if that
// fails too (the caller decides whether to start with an empty pool).
func Load(ctx context.Context, db *sql.DB, snapshotPath string) ([]*model.Node, error) {
	nodes, err := loadSQLite(ctx, db)
	if err == nil && len(nodes) > 0 {
		return nodes, nil
	}

	return loadSnapshot(snapshotPath)
}

func loadSQLite(ctx context.Context, db *sql.DB) ([]*model.Node, error) {
	rows, err := db.QueryContext(ctx, "SELECT payload FROM nodes")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Node
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var n model.Node
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			return nil, fmt.Errorf("persistence: corrupt row: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func loadSnapshot(path string) ([]*model.Node, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persistence: load snapshot: %w", err)
	}
	var env snapshotEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("persistence: corrupt snapshot: %w", err)
	}
	return env.Nodes, nil
}
