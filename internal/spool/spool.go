// Package spool dispatches lifecycle events dropped into a watched
// directory. Each envelope JSON file is answered in place with a
// <name>.response.json file, so a file-based caller can drive the
// reconcilers without the HTTP endpoint.
package spool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"studioprov/internal/envelope"
	"studioprov/internal/reconciler"
	"studioprov/pkg/logging"
)

const responseSuffix = ".response.json"

// Dispatcher routes a parsed event to its reconciler.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *envelope.Event) (*envelope.Response, error)
}

// Watcher processes envelope files appearing in a spool directory.
type Watcher struct {
	mu sync.Mutex

	dir        string
	dispatcher Dispatcher
	watcher    *fsnotify.Watcher
	running    bool
	stopCh     chan struct{}
}

// NewWatcher creates a watcher for dir. The directory is created if it does
// not exist yet.
func NewWatcher(dir string, dispatcher Dispatcher) *Watcher {
	return &Watcher{
		dir:        dir,
		dispatcher: dispatcher,
		stopCh:     make(chan struct{}),
	}
}

// Start sweeps files already present in the spool directory, then watches
// for new ones until the context is cancelled or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	logging.Info("Spool", "Watching %s for lifecycle events", w.dir)

	// Files dropped before the watch was in place still get processed.
	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return w.Stop()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.processFile(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("Spool", err, "Spool watcher error")
		}
	}
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			logging.Error("Spool", err, "Error closing spool watcher")
		}
		w.watcher = nil
	}
	logging.Info("Spool", "Stopped spool watcher")
	return nil
}

// Sweep processes every unanswered envelope file currently in the spool
// directory.
func (w *Watcher) Sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.Error("Spool", err, "Failed to list spool directory %s", w.dir)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.processFile(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

// processFile dispatches one envelope file and writes its response next to
// it. Already answered files and non-envelope files are skipped.
func (w *Watcher) processFile(ctx context.Context, path string) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, responseSuffix) {
		return
	}
	responsePath := strings.TrimSuffix(path, ".json") + responseSuffix
	if _, err := os.Stat(responsePath); err == nil {
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		logging.Error("Spool", err, "Failed to read %s", path)
		return
	}

	event, err := envelope.Parse(raw)
	if err != nil {
		logging.Warn("Spool", "Rejected %s: %v", name, err)
		w.writeResponse(responsePath, envelope.FailureResponse{Error: err.Error()})
		return
	}
	if event.RequestID == "" {
		event.RequestID = uuid.NewString()
	}

	logging.Info("Spool", "Dispatching %s %s from %s (request %s)",
		event.RequestType, event.ResourceType, name, event.RequestID)

	response, err := w.dispatcher.Dispatch(ctx, event)
	if err != nil {
		logging.Error("Spool", err, "Reconciliation failed for %s (request %s)", name, event.RequestID)
		w.writeResponse(responsePath, reconciler.Failed(event, err))
		return
	}
	w.writeResponse(responsePath, response)
}

func (w *Watcher) writeResponse(path string, payload any) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		logging.Error("Spool", err, "Failed to encode response for %s", path)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logging.Error("Spool", err, "Failed to write %s", path)
	}
}
