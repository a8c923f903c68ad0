package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/sirupsen/logrus"
)

// DefaultProgressInterval is the default interval for progress updates.
const DefaultProgressInterval = 500 * time.Millisecond

// sizeBuffer is the capacity of the channel between the walk and the consumer.
const sizeBuffer = 64

// ScanError reports a root directory that cannot be scanned.
//
//nolint:revive // ScanError reads better than Error at call sites.
type ScanError struct {
	// Root is the directory that was requested.
	Root string
	// Err is the underlying cause.
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scanning %q: %v", e.Root, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Walker produces file sizes for directory trees.
// The zero value is usable and walks everything with default settings.
type Walker struct {
	// Excludes skips paths (slash separated) matching any of the patterns.
	Excludes []*regexp.Regexp
	// Workers is the number of fastwalk workers (0 = fastwalk default).
	Workers int
	// Progress, if set, is invoked periodically with the files and bytes seen so far.
	Progress func(files, bytes int64)
	// ProgressInterval controls progress callback cadence.
	ProgressInterval time.Duration
	// Log receives debug output about skipped entries.
	Log logrus.FieldLogger
}

// CompileExcludes compiles exclusion patterns.
func CompileExcludes(patterns []string) ([]*regexp.Regexp, error) {
	excludes := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling exclusion pattern %q: %w", p, err)
		}

		excludes = append(excludes, re)
	}

	return excludes, nil
}

// counters tracks walk progress from concurrent fastwalk callbacks.
type counters struct {
	files   atomic.Int64
	bytes   atomic.Int64
	skipped atomic.Int64
}

// Sizes returns a single-pass sequence of the sizes of all regular files under root.
//
// Directories are descended into but not reported; symlinks are neither followed
// nor reported. Entries that fail to stat are skipped. If root is missing, unreadable
// or not a directory, the sequence yields a *ScanError and ends.
//
// The walk runs on its own goroutines; the loop body always runs on the goroutine
// ranging over the sequence.
func (w *Walker) Sizes(ctx context.Context, root string) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		log := w.logger()

		if root == "" {
			root = "."
		}

		root = filepath.Clean(root)

		if err := checkRoot(root); err != nil {
			yield(0, &ScanError{Root: root, Err: err})

			return
		}

		ctx, cancel := context.WithCancel(ctx)

		var (
			count   counters
			walkErr error
		)

		sizes := make(chan int64, sizeBuffer)

		stopProgress := w.startProgressReporter(&count)
		defer stopProgress()

		// Stop the walk and wait for it when the consumer breaks or panics.
		defer func() {
			cancel()

			for range sizes {
				// Drain until the walk goroutine exits.
			}
		}()

		go func() {
			defer close(sizes)

			walkErr = w.walk(ctx, root, &count, sizes, log)
		}()

		for size := range sizes {
			if !yield(size, nil) {
				return
			}
		}

		// The channel is closed, so walkErr is final.
		if walkErr != nil {
			yield(0, fmt.Errorf("walking %q: %w", root, walkErr))
		}
	}
}

// walk sends the size of every regular file under root to sizes until ctx is done.
func (w *Walker) walk(ctx context.Context, root string, count *counters, sizes chan<- int64, log logrus.FieldLogger) error {
	start := time.Now()

	conf := &fastwalk.Config{
		Follow:     false,
		NumWorkers: w.Workers,
	}

	//nolint:varnamelen // d is standard for DirEntry
	err := fastwalk.Walk(conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.WithError(err).WithField("path", path).Debug("skipping unreadable entry")
			count.skipped.Add(1)

			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if re := w.excluded(path); re != nil {
			log.WithFields(logrus.Fields{"path": filepath.ToSlash(path), "regex": re.String()}).Debug("excluding")

			if d.IsDir() && path != root {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.WithError(err).WithField("path", path).Debug("skipping file")
			count.skipped.Add(1)

			return nil //nolint:nilerr // Intentionally skip errors during walk
		}

		count.files.Add(1)
		count.bytes.Add(info.Size())

		select {
		case sizes <- info.Size():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	log.WithFields(logrus.Fields{
		"root":    root,
		"files":   count.files.Load(),
		"skipped": count.skipped.Load(),
		"elapsed": time.Since(start).String(),
	}).Debug("walk finished")

	return err
}

// checkRoot verifies that root is an accessible directory.
func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return errors.New("not a directory")
	}

	dir, err := os.Open(root)
	if err != nil {
		return err
	}

	return dir.Close()
}

// excluded returns the first pattern matching path, or nil.
func (w *Walker) excluded(path string) *regexp.Regexp {
	if len(w.Excludes) == 0 {
		return nil
	}

	fPath := filepath.ToSlash(path)

	for _, re := range w.Excludes {
		if re.MatchString(fPath) {
			return re
		}
	}

	return nil
}

func (w *Walker) logger() logrus.FieldLogger {
	if w.Log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)

		return discard
	}

	return w.Log
}

// startProgressReporter invokes the progress hook on each tick until the returned
// stop function is called. stop waits for the reporter to exit.
func (w *Walker) startProgressReporter(c *counters) (stop func()) {
	if w.Progress == nil {
		return func() {}
	}

	interval := w.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	ticker := time.NewTicker(interval)
	quit := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.Progress(c.files.Load(), c.bytes.Load())
			case <-quit:
				return
			}
		}
	}()

	return func() {
		close(quit)
		wg.Wait()
	}
}
