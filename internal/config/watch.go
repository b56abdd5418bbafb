package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads scalar configuration (timers, concurrency limits, tier
// thresholds, scorer parameters) on file change without a restart.
// Structural fields (sources, persistence paths) are compared against the
// previous load and any change there is logged but not applied, per
// SPEC_FULL.md A.2.
type Watcher struct {
	path   string
	log    *slog.Logger
	onSet  func(*Config)
	latest *Config
}

// NewWatcher builds a Watcher over path, calling onSet with the merged
// configuration whenever a hot-reloadable field changes.
func NewWatcher(path string, initial *Config, log *slog.Logger, onSet func(*Config)) *Watcher {
	return &Watcher{path: path, log: log, onSet: onSet, latest: initial}
}

// Run blocks watching path for writes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("config watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		w.log.Error("config reload failed, keeping prior configuration", "error", err)
		return
	}

	if structuralDiff(w.latest, next) {
		w.log.Warn("structural configuration fields changed; restart required to apply",
			"sources_changed", !sourcesEqual(w.latest.Sources, next.Sources),
			"db_path_changed", w.latest.Persistence.DBPath != next.Persistence.DBPath,
			"snapshot_path_changed", w.latest.Persistence.SnapshotPath != next.Persistence.SnapshotPath,
		)
		// Preserve the structural fields already running; only scalars flow through.
		next.Sources = w.latest.Sources
		next.Persistence.DBPath = w.latest.Persistence.DBPath
		next.Persistence.SnapshotPath = w.latest.Persistence.SnapshotPath
	}

	w.latest = next
	w.log.Info("configuration reloaded")
	w.onSet(next)
}

func structuralDiff(a, b *Config) bool {
	return !sourcesEqual(a.Sources, b.Sources) ||
		a.Persistence.DBPath != b.Persistence.DBPath ||
		a.Persistence.SnapshotPath != b.Persistence.SnapshotPath
}

func sourcesEqual(a, b []Source) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
