package registry_test

import (
	"context"
	"io"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idelchi/sizehist/internal/cache"
	"github.com/idelchi/sizehist/internal/histogram"
	"github.com/idelchi/sizehist/internal/registry"
	"github.com/idelchi/sizehist/internal/scan"
)

// fakeScanner serves fixed sizes per root and counts scans.
type fakeScanner struct {
	roots map[string][]int64
	calls int
}

func (f *fakeScanner) Sizes(_ context.Context, root string) iter.Seq2[int64, error] {
	f.calls++

	return func(yield func(int64, error) bool) {
		sizes, ok := f.roots[root]
		if !ok {
			yield(0, &scan.ScanError{Root: root, Err: os.ErrNotExist})

			return
		}

		for _, s := range sizes {
			if !yield(s, nil) {
				return
			}
		}
	}
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestInitializeScansAndWritesCache(t *testing.T) {
	t.Parallel()

	cachePath := filepath.Join(t.TempDir(), "cache.json")
	scanner := &fakeScanner{roots: map[string][]int64{
		"/data/a": {5, 50, 500, 5000},
		"/data/b": {0, 7},
	}}

	reg := registry.New(scanner, quietLogger())

	collection, err := reg.Initialize(context.Background(), registry.Options{
		CachePath: cachePath,
		Images:    []registry.Image{{Name: "first", Root: "/data/a"}, {Root: "/data/b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, scanner.calls)

	want := histogram.Collection{
		{Name: "first", Histogram: histogram.Histogram{
			0: {Count: 1, TotalSizeBytes: 5},
			1: {Count: 1, TotalSizeBytes: 50},
			2: {Count: 1, TotalSizeBytes: 500},
			3: {Count: 1, TotalSizeBytes: 5000},
		}},
		{Name: "b", Histogram: histogram.Histogram{0: {Count: 2, TotalSizeBytes: 7}}},
	}
	assert.True(t, want.Equal(collection), "got %v", collection)

	cached, err := cache.Load(cachePath)
	require.NoError(t, err)
	assert.True(t, want.Equal(cached))

	got, err := reg.Get()
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestInitializeUsesCache(t *testing.T) {
	t.Parallel()

	cachePath := filepath.Join(t.TempDir(), "cache.json")
	stored := histogram.Collection{
		{Name: "cached", Histogram: histogram.Histogram{4: {Count: 9, TotalSizeBytes: 123456}}},
	}
	require.NoError(t, cache.Save(cachePath, stored))

	scanner := &fakeScanner{}
	reg := registry.New(scanner, quietLogger())

	collection, err := reg.Initialize(context.Background(), registry.Options{
		CachePath: cachePath,
		Images:    []registry.Image{{Name: "ignored", Root: "/nowhere"}},
	})
	require.NoError(t, err)
	assert.Zero(t, scanner.calls)
	assert.True(t, stored.Equal(collection))
}

func TestInitializeOnce(t *testing.T) {
	t.Parallel()

	cachePath := filepath.Join(t.TempDir(), "cache.json")
	scanner := &fakeScanner{roots: map[string][]int64{"/r": {1}}}
	reg := registry.New(scanner, quietLogger())
	opts := registry.Options{CachePath: cachePath, Images: []registry.Image{{Root: "/r"}}}

	first, err := reg.Initialize(context.Background(), opts)
	require.NoError(t, err)

	require.NoError(t, os.Remove(cachePath))

	second, err := reg.Initialize(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, scanner.calls)
	assert.True(t, first.Equal(second))
	assert.False(t, cache.Exists(cachePath))
}

func TestGetBeforeInitialize(t *testing.T) {
	t.Parallel()

	_, err := registry.New(&fakeScanner{}, quietLogger()).Get()
	require.ErrorIs(t, err, registry.ErrNotInitialized)
}

func TestInitializeRefreshIgnoresCache(t *testing.T) {
	t.Parallel()

	cachePath := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, cache.Save(cachePath, histogram.Collection{
		{Name: "old", Histogram: histogram.Histogram{0: {Count: 1, TotalSizeBytes: 1}}},
	}))

	scanner := &fakeScanner{roots: map[string][]int64{"/r": {100}}}
	reg := registry.New(scanner, quietLogger())

	collection, err := reg.Initialize(context.Background(), registry.Options{
		CachePath: cachePath,
		Images:    []registry.Image{{Name: "new", Root: "/r"}},
		Refresh:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, scanner.calls)
	assert.Equal(t, []string{"new"}, collection.Names())

	cached, err := cache.Load(cachePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, cached.Names())
}

func TestInitializeScanErrorAborts(t *testing.T) {
	t.Parallel()

	cachePath := filepath.Join(t.TempDir(), "cache.json")
	scanner := &fakeScanner{roots: map[string][]int64{"/ok": {1}}}
	reg := registry.New(scanner, quietLogger())

	_, err := reg.Initialize(context.Background(), registry.Options{
		CachePath: cachePath,
		Images:    []registry.Image{{Name: "ok", Root: "/ok"}, {Name: "missing", Root: "/missing"}},
	})

	var scanErr *scan.ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Contains(t, err.Error(), `"missing"`)
	assert.False(t, cache.Exists(cachePath))

	_, err = reg.Get()
	require.ErrorIs(t, err, registry.ErrNotInitialized)
}

func TestInitializeCorruptCache(t *testing.T) {
	t.Parallel()

	newCorrupt := func(t *testing.T) string {
		t.Helper()

		path := filepath.Join(t.TempDir(), "cache.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"not": "a list"}`), 0o600))

		return path
	}

	t.Run("fail", func(t *testing.T) {
		t.Parallel()

		scanner := &fakeScanner{roots: map[string][]int64{"/r": {1}}}
		_, err := registry.New(scanner, quietLogger()).Initialize(context.Background(), registry.Options{
			CachePath: newCorrupt(t),
			Images:    []registry.Image{{Root: "/r"}},
		})

		var corrupt *cache.CorruptError
		require.ErrorAs(t, err, &corrupt)
		assert.Zero(t, scanner.calls)
	})

	t.Run("rescan", func(t *testing.T) {
		t.Parallel()

		path := newCorrupt(t)
		scanner := &fakeScanner{roots: map[string][]int64{"/r": {1}}}

		collection, err := registry.New(scanner, quietLogger()).Initialize(context.Background(), registry.Options{
			CachePath: path,
			Images:    []registry.Image{{Root: "/r"}},
			OnCorrupt: registry.CorruptRescan,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, scanner.calls)
		assert.Equal(t, []string{"r"}, collection.Names())

		cached, err := cache.Load(path)
		require.NoError(t, err)
		assert.True(t, collection.Equal(cached))
	})
}

func TestInitializeRejectsBadImages(t *testing.T) {
	t.Parallel()

	tests := map[string][]registry.Image{
		"none":           nil,
		"empty root":     {{Name: "x"}},
		"duplicate name": {{Root: "/a/data"}, {Root: "/b/data"}},
	}

	for name, images := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			scanner := &fakeScanner{}
			_, err := registry.New(scanner, quietLogger()).Initialize(context.Background(), registry.Options{
				CachePath: filepath.Join(t.TempDir(), "cache.json"),
				Images:    images,
			})
			require.Error(t, err)
			assert.Zero(t, scanner.calls)
		})
	}
}

func TestInitializeWithWalker(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for name, size := range map[string]int{"zero": 0, "five": 5, "fifty": 50} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), make([]byte, size), 0o600))
	}

	collection, err := registry.New(&scan.Walker{}, quietLogger()).Initialize(context.Background(), registry.Options{
		CachePath: filepath.Join(t.TempDir(), "cache.json"),
		Images:    []registry.Image{{Name: "tmp", Root: root}},
	})
	require.NoError(t, err)

	assert.Equal(t, histogram.Histogram{
		0: {Count: 2, TotalSizeBytes: 5},
		1: {Count: 1, TotalSizeBytes: 50},
	}, collection[0].Histogram)
}

func TestNewWithoutLogger(t *testing.T) {
	t.Parallel()

	scanner := &fakeScanner{roots: map[string][]int64{"/r": {5}}}

	collection, err := registry.New(scanner, nil).Initialize(context.Background(), registry.Options{
		CachePath: filepath.Join(t.TempDir(), "cache.json"),
		Images:    []registry.Image{{Name: "quiet", Root: "/r"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"quiet"}, collection.Names())
}
