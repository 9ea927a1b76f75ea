// Package download watches a browser download directory for completed files.
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jonathan/keyword-collector/internal/types"
)

// Defaults for a Watcher.
const (
	DefaultInterval = time.Second
	DefaultTimeout  = 90 * time.Second
	DefaultMinSize  = int64(1)
)

// PartialExtensions mark files the browser is still writing.
var PartialExtensions = []string{".crdownload", ".tmp", ".part"}

// SpreadsheetExtensions are the file types the research site exports.
var SpreadsheetExtensions = []string{".xlsx", ".csv"}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithExtensions sets the accepted file extensions.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) { w.accepted = normalizeExts(exts) }
}

// WithMinSize sets the minimum byte size of an accepted file.
func WithMinSize(n int64) Option {
	return func(w *Watcher) { w.minSize = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// Watcher detects a new completed file in a directory. The set of files
// present when the Watcher is created is ignored.
type Watcher struct {
	dir      string
	interval time.Duration
	accepted []string
	minSize  int64
	baseline map[string]struct{}
	log      zerolog.Logger
}

// NewWatcher snapshots dir. Create it before triggering the download.
func NewWatcher(dir string, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		dir:      dir,
		interval: DefaultInterval,
		accepted: normalizeExts(SpreadsheetExtensions),
		minSize:  DefaultMinSize,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	names, err := listFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot download directory %s: %w", dir, err)
	}
	w.baseline = make(map[string]struct{}, len(names))
	for _, name := range names {
		w.baseline[name] = struct{}{}
	}
	return w, nil
}

// WaitForFile blocks until a new, complete file with an accepted extension
// appears, timeout elapses, or ctx ends. It returns false when nothing
// qualified in time.
func (w *Watcher) WaitForFile(ctx context.Context, timeout time.Duration) (types.DownloadArtifact, bool) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fw, err := fsnotify.NewWatcher(); err != nil {
		w.log.Debug().Err(err).Msg("fsnotify unavailable, polling only")
	} else {
		defer func() { _ = fw.Close() }()
		if err := fw.Add(w.dir); err != nil {
			w.log.Debug().Err(err).Str("dir", w.dir).Msg("fsnotify watch failed, polling only")
		} else {
			events, errs = fw.Events, fw.Errors
		}
	}
	return w.wait(ctx, timeout, events, errs)
}

// wait scans on every tick and on every relevant filesystem event. Watch
// errors are drained so the event source keeps delivering.
func (w *Watcher) wait(ctx context.Context, timeout time.Duration, events <-chan fsnotify.Event, errs <-chan error) (types.DownloadArtifact, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		if artifact, ok := w.scan(); ok {
			w.log.Info().
				Str("file", filepath.Base(artifact.Path)).
				Int64("size", artifact.Size).
				Dur("waited", time.Since(start)).
				Msg("download complete")
			return artifact, true
		}

		select {
		case <-ctx.Done():
			return types.DownloadArtifact{}, false
		case <-deadline.C:
			w.log.Warn().Str("dir", w.dir).Dur("timeout", timeout).Msg("no download appeared")
			return types.DownloadArtifact{}, false
		case <-ticker.C:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Debug().Err(err).Str("dir", w.dir).Msg("fsnotify error")
		}
	}
}

// scan returns the oldest new file that qualifies.
func (w *Watcher) scan() (types.DownloadArtifact, bool) {
	names, err := listFiles(w.dir)
	if err != nil {
		w.log.Debug().Err(err).Msg("download directory scan failed")
		return types.DownloadArtifact{}, false
	}

	var found []types.DownloadArtifact
	for _, name := range names {
		if _, old := w.baseline[name]; old {
			continue
		}
		if IsPartial(name) || !hasExt(name, w.accepted) {
			continue
		}
		path := filepath.Join(w.dir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.Size() < w.minSize {
			continue
		}
		found = append(found, types.DownloadArtifact{Path: path, Size: info.Size(), Modified: info.ModTime()})
	}
	if len(found) == 0 {
		return types.DownloadArtifact{}, false
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Modified.Equal(found[j].Modified) {
			return found[i].Path < found[j].Path
		}
		return found[i].Modified.Before(found[j].Modified)
	})
	return found[0], true
}

// IsPartial reports whether name carries an in-progress download extension.
func IsPartial(name string) bool {
	return hasExt(name, PartialExtensions)
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
