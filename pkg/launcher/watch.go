package launcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce coalesces the bursts of events editors emit per save.
const debounce = 300 * time.Millisecond

// Reload re-evaluates the configuration after a change and returns the
// options for the next child invocation.
type Reload func(ctx context.Context) (Options, error)

// Watch runs the child and restarts it whenever one of the watched
// files changes. It returns the child's exit code when the child exits
// on its own, or when ctx is cancelled.
func (l *Launcher) Watch(ctx context.Context, files []string, reload Reload) (int, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return -1, fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch parent directories: editors replace files on save, which
	// drops a watch placed on the file itself.
	watched := make(map[string]bool)
	targets := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		targets[abs] = true
		dir := filepath.Dir(abs)
		if !watched[dir] {
			if err := watcher.Add(dir); err != nil {
				return -1, fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			watched[dir] = true
		}
	}

	for {
		opts, err := reload(ctx)
		if err != nil {
			return -1, err
		}

		runCtx, cancel := context.WithCancel(ctx)
		changed := make(chan struct{})
		go l.waitForChange(runCtx, watcher, targets, changed)

		type outcome struct {
			code int
			err  error
		}
		done := make(chan outcome, 1)
		go func() {
			code, err := l.Run(runCtx, opts)
			done <- outcome{code, err}
		}()

		select {
		case <-changed:
			l.logger.Info().Msg("configuration changed, restarting child")
			cancel()
			<-done
		case out := <-done:
			cancel()
			if ctx.Err() != nil {
				return out.code, ctx.Err()
			}
			return out.code, out.err
		}
	}
}

// waitForChange signals once after a debounced change to any target
// file.
func (l *Launcher) waitForChange(ctx context.Context, watcher *fsnotify.Watcher, targets map[string]bool, changed chan<- struct{}) {
	var timer *time.Timer
	var fired <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !targets[abs] {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				fired = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn().Err(err).Msg("watch error")
		case <-fired:
			close(changed)
			return
		}
	}
}
