// Package watcher watches a drop directory for finalized OCR page
// text and feeds it to ingest. The expected layout is
// <dir>/<document>/<page>.txt; upstream OCR writes a page file once
// the text is final. Events are debounced so a document being copied
// in page by page triggers one ingest, not dozens.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation is a file system operation type.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change to a page file.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// DropWatcher watches the drop directory and its document
// subdirectories through fsnotify.
type DropWatcher struct {
	fs     *fsnotify.Watcher
	events chan FileEvent
	errs   chan error
	done   chan struct{}
}

// NewDropWatcher creates a watcher. Start must be called before
// events flow.
func NewDropWatcher() (*DropWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &DropWatcher{
		fs:     fs,
		events: make(chan FileEvent, 64),
		errs:   make(chan error, 8),
		done:   make(chan struct{}),
	}, nil
}

// Start watches dir and its existing document subdirectories. New
// subdirectories are picked up as they appear. Runs until Stop or
// context cancellation.
func (w *DropWatcher) Start(ctx context.Context, dir string) error {
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.fs.Add(filepath.Join(dir, e.Name())); err != nil {
				return fmt.Errorf("watch %s: %w", e.Name(), err)
			}
		}
	}

	go w.loop(ctx)
	return nil
}

func (w *DropWatcher) loop(ctx context.Context) {
	defer close(w.events)
	defer close(w.errs)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		}
	}
}

func (w *DropWatcher) handle(ev fsnotify.Event) {
	// A new document directory needs its own watch before its page
	// files produce events.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.fs.Add(ev.Name)
			return
		}
	}

	if !strings.HasSuffix(ev.Name, ".txt") {
		return
	}

	var op Operation
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreate
	case ev.Op.Has(fsnotify.Write):
		op = OpModify
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}

	select {
	case w.events <- FileEvent{Path: ev.Name, Operation: op, Timestamp: time.Now()}:
	default:
	}
}

// Events returns the event channel. Closed when the watcher stops.
func (w *DropWatcher) Events() <-chan FileEvent { return w.events }

// Errors returns non-fatal watcher errors. Closed when the watcher
// stops.
func (w *DropWatcher) Errors() <-chan error { return w.errs }

// Stop stops the watcher. Safe to call multiple times.
func (w *DropWatcher) Stop() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.fs.Close()
}
