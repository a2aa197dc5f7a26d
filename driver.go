package hotreload

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// TickDriver is a headless frame driver: a fixed rate frame loop, optionally woken early when the
// artifact is rewritten, and fed by an optional event channel.
type TickDriver struct {
	Interval time.Duration
	Watch    string        // artifact to watch, empty disables watching
	Events   <-chan *Event // optional event source, an EventQuit event stops the loop
	Frames   int           // stop after this many frames when positive
	Log      *zap.SugaredLogger
}

func (d *TickDriver) Run(ctx context.Context, cb Callbacks) error {
	log := orNop(d.Log)
	interval := d.Interval
	if interval <= 0 {
		interval = time.Second / 60
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cb.Init()
	defer cb.Cleanup()

	var wake <-chan struct{}
	if d.Watch != "" {
		w, err := watchArtifact(ctx, d.Watch, log)
		if err != nil {
			log.Warnw("watch artifact, polling only", "path", d.Watch, "error", err)
		} else {
			wake = w
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	events := d.Events
	for n := 0; ; {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			cb.Event(e)
			if e.Kind == EventQuit {
				return nil
			}
			continue
		case <-wake:
			log.Debugw("artifact changed", "path", d.Watch)
		case <-ticker.C:
		}
		cb.Frame()
		n++
		if d.Frames > 0 && n >= d.Frames {
			return nil
		}
	}
}

// watchArtifact signal on the returned channel after the artifact was written, created or renamed
// over. The directory is watched, so editors and build tools replacing the file are seen too.
func watchArtifact(ctx context.Context, path string, log *zap.SugaredLogger) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err = watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	target := filepath.Clean(path)
	wake := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnw("artifact watcher", "error", err)
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				// coalesce the burst of events of one build
				settle := time.NewTimer(10 * time.Millisecond)
			drain:
				for {
					select {
					case <-watcher.Events:
					case <-settle.C:
						break drain
					case <-ctx.Done():
						settle.Stop()
						return
					}
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		}
	}()
	return wake, nil
}
