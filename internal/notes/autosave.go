package notes

import (
	"sync"
	"time"

	"github.com/voxnote/voxnote/pkg/logger"
)

// DefaultSaveDelay is how long the saver waits after the last edit before
// writing. Typing produces a burst of updates; only the last one matters.
const DefaultSaveDelay = time.Second

// SaveFunc persists one content snapshot
type SaveFunc func(content string) error

// AutoSaver debounces content writes. Updates reset the delay timer; only the
// latest content is ever saved. Saves are single-flight: if an update lands
// while a save is running, another save follows with the newer content.
// Close flushes anything still pending, so no edit is lost on teardown.
type AutoSaver struct {
	save   SaveFunc
	delay  time.Duration
	logger *logger.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending string
	dirty   bool
	saving  bool
	closed  bool
}

// NewAutoSaver creates an auto-saver with the given debounce delay. A
// non-positive delay uses the default.
func NewAutoSaver(save SaveFunc, delay time.Duration, log *logger.Logger) *AutoSaver {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	return &AutoSaver{
		save:   save,
		delay:  delay,
		logger: log.Named("autosave"),
	}
}

// Update records new content and (re)starts the debounce timer
func (a *AutoSaver) Update(content string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	a.pending = content
	a.dirty = true

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.flushAsync)
}

// Flush writes any pending content immediately
func (a *AutoSaver) Flush() error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if !a.dirty {
		a.mu.Unlock()
		return nil
	}
	content := a.pending
	a.dirty = false
	a.mu.Unlock()

	return a.doSave(content)
}

// Close stops the saver and flushes pending content. Further updates are
// ignored.
func (a *AutoSaver) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	return a.Flush()
}

// flushAsync fires on the debounce timer
func (a *AutoSaver) flushAsync() {
	a.mu.Lock()
	if !a.dirty || a.saving {
		// A save in flight re-checks dirty when it finishes
		a.mu.Unlock()
		return
	}
	content := a.pending
	a.dirty = false
	a.saving = true
	a.mu.Unlock()

	if err := a.doSave(content); err != nil {
		a.logger.Error("Auto-save failed", logger.Error(err))
	}

	a.mu.Lock()
	a.saving = false
	redo := a.dirty && !a.closed
	a.mu.Unlock()

	if redo {
		// Content changed mid-save; write the newer snapshot
		a.flushAsync()
	}
}

func (a *AutoSaver) doSave(content string) error {
	if err := a.save(content); err != nil {
		return err
	}
	a.logger.Debug("Saved content", logger.Int("length", len(content)))
	return nil
}
