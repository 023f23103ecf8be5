package artifact

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/medcost/pkg/errors"
)

// Handle is the shared, read-only view of the loaded bundle. Request
// handlers read through Get; a reload replaces the whole bundle in one
// atomic swap so no in-flight request ever observes a mix of old and new
// parts.
type Handle struct {
	ptr atomic.Pointer[Bundle]
}

// NewHandle wraps an already-loaded bundle.
func NewHandle(b *Bundle) *Handle {
	h := &Handle{}
	h.ptr.Store(b)
	return h
}

// Get returns the current bundle.
func (h *Handle) Get() *Bundle {
	return h.ptr.Load()
}

// Swap installs a new bundle.
func (h *Handle) Swap(b *Bundle) {
	h.ptr.Store(b)
}

// Watch reloads the artifact directory whenever its files change and swaps
// the handle on success. A failed reload keeps the current bundle and logs a
// warning. Watch blocks until ctx is cancelled.
//
// Pipeline saves rename three files in quick succession, so events are
// debounced before reloading.
func Watch(ctx context.Context, dir string, h *Handle, logger zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "artifact: create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "artifact: watch %s", dir)
	}

	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	var timerC <-chan time.Time

	relevant := map[string]struct{}{
		ModelFile:    {},
		EncodersFile: {},
		ScalerFile:   {},
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if _, ok := relevant[filepath.Base(event.Name)]; !ok {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("artifact watcher error")

		case <-timerC:
			timer = nil
			timerC = nil
			bundle, err := Load(dir)
			if err != nil {
				logger.Warn().Err(err).Str("dir", dir).Msg("artifact reload failed, keeping current bundle")
				continue
			}
			h.Swap(bundle)
			logger.Info().Str("dir", dir).Str("model", bundle.Model.Name()).Msg("artifact reloaded")
		}
	}
}
