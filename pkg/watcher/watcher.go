// Package watcher feeds execution reports that the kernel bridge spools to
// disk into the graph manager.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/dfgraph/pkg/logging"
)

// ReportExt is the extension of spooled report files
const ReportExt = ".json"

// ChangeEvent is a batch of spool files that appeared or were rewritten
type ChangeEvent struct {
	Paths     []string
	Timestamp time.Time
}

// SpoolWatcher watches a spool directory for report files
type SpoolWatcher struct {
	watcher *fsnotify.Watcher
	dir     string
	events  chan ChangeEvent
}

// NewSpoolWatcher creates a watcher for dir. The directory must exist.
func NewSpoolWatcher(dir string) (*SpoolWatcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("spool directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("spool path %s is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &SpoolWatcher{
		watcher: watcher,
		dir:     dir,
		events:  make(chan ChangeEvent, 100),
	}, nil
}

// Start begins watching. Events stop and the channel closes when ctx is done.
func (sw *SpoolWatcher) Start(ctx context.Context) error {
	if err := sw.watcher.Add(sw.dir); err != nil {
		sw.watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", sw.dir, err)
	}

	logging.Info("started watching spool", "path", sw.dir)
	go sw.processEvents(ctx)
	return nil
}

// IsReport reports whether name looks like a finished report file. Editors
// and writers that stage through dotfiles are ignored.
func IsReport(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ReportExt) && !strings.HasPrefix(base, ".")
}

func (sw *SpoolWatcher) processEvents(ctx context.Context) {
	defer close(sw.events)
	defer sw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !IsReport(event.Name) {
				continue
			}
			logging.Trace("spool event", "path", event.Name, "op", event.Op.String())

			select {
			case sw.events <- ChangeEvent{Paths: []string{event.Name}, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events
func (sw *SpoolWatcher) Events() <-chan ChangeEvent {
	return sw.events
}

// Dir is the watched spool directory
func (sw *SpoolWatcher) Dir() string {
	return sw.dir
}
