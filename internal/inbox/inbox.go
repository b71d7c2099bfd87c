// Package inbox watches a directory for study documents and hands each one to
// a handler once writes to it have settled. Handled files are moved into a
// done/ or failed/ subdirectory so that every document is processed once.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Subdirectories receiving handled documents.
const (
	DoneDir   = "done"
	FailedDir = "failed"
)

const (
	defaultPattern = "*.json"
	defaultSettle  = 500 * time.Millisecond

	watchErrInitBackoff = time.Second
	watchErrMaxBackoff  = 30 * time.Second
	watchErrBackoffMult = 2
)

// Watcher is the subset of *fsnotify.Watcher the inbox uses.
type Watcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsWatcher struct {
	w *fsnotify.Watcher
}

// NewFsWatcher returns a Watcher backed by fsnotify.
func NewFsWatcher() (Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("inbox: creating watcher: %w", err)
	}

	return fsWatcher{w: w}, nil
}

func (f fsWatcher) Add(name string) error         { return f.w.Add(name) }
func (f fsWatcher) Close() error                  { return f.w.Close() }
func (f fsWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f fsWatcher) Errors() <-chan error          { return f.w.Errors }

// Handler processes one settled document.
type Handler func(ctx context.Context, path string) error

// Options configures an Inbox. Zero values select defaults.
type Options struct {
	// Pattern is the filepath.Match pattern of document names.
	Pattern string
	// Settle returns the quiet period after the last write before a document
	// is handled. It is consulted on every event so that it can change while
	// the inbox runs.
	Settle func() time.Duration
	// NewWatcher creates the filesystem watcher.
	NewWatcher func() (Watcher, error)
}

// Inbox merges documents dropped into a directory.
type Inbox struct {
	dir        string
	pattern    string
	settle     func() time.Duration
	newWatcher func() (Watcher, error)
	handle     Handler
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// New returns an inbox over dir.
func New(dir string, handle Handler, logger *slog.Logger, opts Options) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}

	in := &Inbox{
		dir:        dir,
		pattern:    opts.Pattern,
		settle:     opts.Settle,
		newWatcher: opts.NewWatcher,
		handle:     handle,
		logger:     logger,
		sleep:      timeSleep,
	}

	if in.pattern == "" {
		in.pattern = defaultPattern
	}

	if in.settle == nil {
		in.settle = func() time.Duration { return defaultSettle }
	}

	if in.newWatcher == nil {
		in.newWatcher = NewFsWatcher
	}

	return in
}

// Run watches the directory until ctx is canceled. Documents already present
// when Run starts are handled as if they had just been written.
func (in *Inbox) Run(ctx context.Context) error {
	for _, sub := range []string{DoneDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(in.dir, sub), 0o755); err != nil {
			return fmt.Errorf("inbox: creating %s: %w", sub, err)
		}
	}

	watcher, err := in.newWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("inbox: watching %s: %w", in.dir, err)
	}

	in.logger.Info("watching inbox", slog.String("dir", in.dir), slog.String("pattern", in.pattern))

	st := &loopState{
		pending: make(map[string]*time.Timer),
		ready:   make(chan string),
		done:    make(chan struct{}),
	}
	defer st.stop()

	existing, err := in.scan()
	if err != nil {
		return err
	}

	for _, path := range existing {
		in.schedule(st, path)
	}

	return in.watchLoop(ctx, watcher, st)
}

// loopState holds the settle timers of one Run.
type loopState struct {
	pending map[string]*time.Timer
	ready   chan string
	done    chan struct{}
}

func (st *loopState) stop() {
	close(st.done)

	for _, t := range st.pending {
		t.Stop()
	}
}

// watchLoop processes fsnotify events, settled documents, watcher errors and
// context cancellation.
func (in *Inbox) watchLoop(ctx context.Context, watcher Watcher, st *loopState) error {
	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			in.handleEvent(ev, st)
			errBackoff = watchErrInitBackoff

		case path := <-st.ready:
			delete(st.pending, path)
			in.process(ctx, path)

		case watchErr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			in.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if sleepErr := in.sleep(ctx, errBackoff); sleepErr != nil {
				return nil
			}

			errBackoff = min(errBackoff*watchErrBackoffMult, watchErrMaxBackoff)
		}
	}
}

func (in *Inbox) handleEvent(ev fsnotify.Event, st *loopState) {
	if !in.matches(ev.Name) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		in.schedule(st, ev.Name)
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if t, ok := st.pending[ev.Name]; ok {
			t.Stop()
			delete(st.pending, ev.Name)
		}
	}
}

// schedule (re)starts the settle timer for path.
func (in *Inbox) schedule(st *loopState, path string) {
	settle := in.settle()

	if t, ok := st.pending[path]; ok {
		t.Reset(settle)
		return
	}

	st.pending[path] = time.AfterFunc(settle, func() {
		select {
		case st.ready <- path:
		case <-st.done:
		}
	})
}

// process hands path to the handler and files it under done/ or failed/.
func (in *Inbox) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		in.logger.Debug("document vanished before merge", slog.String("path", path))
		return
	}

	dest := DoneDir

	if err := in.handle(ctx, path); err != nil {
		dest = FailedDir

		in.logger.Warn("document rejected",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	target := filepath.Join(in.dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		in.logger.Error("filing handled document",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func (in *Inbox) matches(path string) bool {
	if filepath.Dir(path) != filepath.Clean(in.dir) {
		return false
	}

	ok, err := filepath.Match(in.pattern, filepath.Base(path))

	return err == nil && ok
}

// scan returns the documents already in the directory, sorted by name.
func (in *Inbox) scan() ([]string, error) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: reading %s: %w", in.dir, err)
	}

	var out []string

	for _, e := range entries {
		path := filepath.Join(in.dir, e.Name())
		if e.Type().IsRegular() && in.matches(path) {
			out = append(out, path)
		}
	}

	slices.Sort(out)

	return out, nil
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
