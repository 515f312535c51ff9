package artifact

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mediassist/ml"
)

// Change describes an artifact file that was written, replaced or removed on disk.
type Change struct {
	Disease ml.Disease
	Kind    Kind
	Op      string
}

// Watcher reports changes to artifact files. It never reloads anything: cached
// artifacts stay in use until the cache is cleared explicitly.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	onChange func(Change)
	keys     map[string]Change
}

// NewWatcher starts watching dir. onChange may be nil.
func NewWatcher(dir string, logger *zap.Logger, onChange func(Change)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create watcher")
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "watch %s", dir)
	}

	keys := make(map[string]Change)
	for _, disease := range ml.Diseases() {
		for _, kind := range []Kind{KindModel, KindScaler, KindMetadata} {
			keys[Key(disease, kind)] = Change{Disease: disease, Kind: kind}
		}
	}
	return &Watcher{watcher: w, logger: logger, onChange: onChange, keys: keys}, nil
}

// Run blocks until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			change, known := w.keys[filepath.Base(event.Name)]
			if !known || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			change.Op = event.Op.String()
			w.logger.Warn("artifact changed on disk; cached copy stays in use until the cache is cleared",
				zap.String("disease", string(change.Disease)),
				zap.String("kind", string(change.Kind)),
				zap.String("op", change.Op))
			if w.onChange != nil {
				w.onChange(change)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("artifact watcher error", zap.Error(err))
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
