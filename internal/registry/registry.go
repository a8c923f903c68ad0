// Package registry builds the histogram collection once per process.
//
// On initialisation the collection is loaded from the cache file when one is
// present; otherwise every configured image is scanned and the result written
// back to the cache. The collection is read-only afterwards.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/idelchi/sizehist/internal/cache"
	"github.com/idelchi/sizehist/internal/histogram"
)

// ErrNotInitialized is returned by Get before a successful Initialize.
var ErrNotInitialized = errors.New("dataset registry not initialized")

// Scanner produces the sizes of all regular files below a root directory.
type Scanner interface {
	Sizes(ctx context.Context, root string) iter.Seq2[int64, error]
}

// CorruptPolicy decides what happens when the cache file fails validation.
type CorruptPolicy string

const (
	// CorruptFail aborts initialisation with the cache error.
	CorruptFail CorruptPolicy = "fail"
	// CorruptRescan logs the corruption, rescans and overwrites the cache.
	CorruptRescan CorruptPolicy = "rescan"
)

// Image names a directory tree to scan.
type Image struct {
	// Name labels the dataset; defaults to the base name of Root.
	Name string
	// Root is the directory to scan.
	Root string
}

// Options configures initialisation.
type Options struct {
	// CachePath is the location of the cache file.
	CachePath string
	// Images are scanned in order when the cache is missing.
	Images []Image
	// Refresh ignores an existing cache and rescans.
	Refresh bool
	// OnCorrupt selects the corrupt cache policy (default CorruptFail).
	OnCorrupt CorruptPolicy
}

// Registry holds the process-wide histogram collection.
type Registry struct {
	scanner Scanner
	log     logrus.FieldLogger

	mu          sync.Mutex
	collection  histogram.Collection
	initialized bool
}

// New creates a registry that scans with scanner.
// A nil log discards all output.
func New(scanner Scanner, log logrus.FieldLogger) *Registry {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)

		log = discard
	}

	return &Registry{scanner: scanner, log: log}
}

// Initialize builds the collection on the first successful call and returns it.
// Later calls return the same collection without touching the filesystem.
func (r *Registry) Initialize(ctx context.Context, opts Options) (histogram.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return r.collection, nil
	}

	collection, err := r.build(ctx, opts)
	if err != nil {
		return nil, err
	}

	r.collection = collection
	r.initialized = true

	return collection, nil
}

// Get returns the collection built by Initialize.
func (r *Registry) Get() (histogram.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil, ErrNotInitialized
	}

	return r.collection, nil
}

func (r *Registry) build(ctx context.Context, opts Options) (histogram.Collection, error) {
	if opts.CachePath == "" {
		return nil, errors.New("cache path is not configured")
	}

	log := r.log.WithField("cache", opts.CachePath)

	switch {
	case opts.Refresh:
		log.Info("refresh requested, ignoring cache")
	case cache.Exists(opts.CachePath):
		collection, err := cache.Load(opts.CachePath)
		if err == nil {
			log.WithField("datasets", len(collection)).Info("loaded cache")

			return collection, nil
		}

		var corrupt *cache.CorruptError
		if !errors.As(err, &corrupt) || opts.OnCorrupt != CorruptRescan {
			return nil, err
		}

		log.WithError(err).Warn("cache is corrupt, rescanning")
	default:
		log.Info("no cache found, scanning")
	}

	collection, err := r.scan(ctx, opts.Images)
	if err != nil {
		return nil, err
	}

	if err := cache.Save(opts.CachePath, collection); err != nil {
		return nil, fmt.Errorf("saving cache: %w", err)
	}

	log.WithField("datasets", len(collection)).Info("wrote cache")

	return collection, nil
}

// scan builds one dataset per image, in order.
func (r *Registry) scan(ctx context.Context, images []Image) (histogram.Collection, error) {
	if len(images) == 0 {
		return nil, errors.New("no images configured to scan")
	}

	images, err := resolveNames(images)
	if err != nil {
		return nil, err
	}

	collection := make(histogram.Collection, 0, len(images))

	for _, image := range images {
		log := r.log.WithFields(logrus.Fields{"image": image.Name, "root": image.Root})
		start := time.Now()

		h, err := histogram.Collect(r.scanner.Sizes(ctx, image.Root))
		if err != nil {
			return nil, fmt.Errorf("image %q: %w", image.Name, err)
		}

		log.WithFields(logrus.Fields{
			"files":   h.TotalFileCount(),
			"bytes":   h.TotalSizeBytes(),
			"elapsed": time.Since(start).Round(time.Millisecond).String(),
		}).Info("scanned image")

		collection = append(collection, histogram.Dataset{Name: image.Name, Histogram: h})
	}

	return collection, nil
}

// resolveNames fills in missing image names and rejects duplicates.
func resolveNames(images []Image) ([]Image, error) {
	resolved := make([]Image, 0, len(images))
	seen := make(map[string]struct{}, len(images))

	for _, image := range images {
		if image.Root == "" {
			return nil, fmt.Errorf("image %q: root directory is empty", image.Name)
		}

		if image.Name == "" {
			image.Name = filepath.Base(filepath.Clean(image.Root))
		}

		if _, dup := seen[image.Name]; dup {
			return nil, fmt.Errorf("image %q: duplicate name", image.Name)
		}

		seen[image.Name] = struct{}{}
		resolved = append(resolved, image)
	}

	return resolved, nil
}
