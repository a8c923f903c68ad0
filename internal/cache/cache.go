// Package cache persists a histogram collection as a pretty-printed JSON file.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/idelchi/sizehist/internal/histogram"
)

// CorruptError reports a cache file that exists but does not hold a valid collection.
type CorruptError struct {
	// Path is the cache file.
	Path string
	// Err describes what failed validation.
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt cache %q: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// bucketRecord mirrors histogram.BucketStat with required fields.
type bucketRecord struct {
	Count          *int64 `json:"count"`
	TotalSizeBytes *int64 `json:"totalSizeBytes"`
}

// datasetRecord is the on-disk form of a dataset.
type datasetRecord struct {
	Name      string                  `json:"name"`
	Histogram map[string]bucketRecord `json:"histogram"`
}

// UnmarshalJSON decodes a bucket, matching field names exactly.
func (r *bucketRecord) UnmarshalJSON(data []byte) error {
	fields, err := exactFields(data, "count", "totalSizeBytes")
	if err != nil {
		return err
	}

	if raw, ok := fields["count"]; ok {
		r.Count = new(int64)
		if err := json.Unmarshal(raw, r.Count); err != nil {
			return fmt.Errorf("count: %w", err)
		}
	}

	if raw, ok := fields["totalSizeBytes"]; ok {
		r.TotalSizeBytes = new(int64)
		if err := json.Unmarshal(raw, r.TotalSizeBytes); err != nil {
			return fmt.Errorf("totalSizeBytes: %w", err)
		}
	}

	return nil
}

// UnmarshalJSON decodes a dataset, matching field names exactly.
func (r *datasetRecord) UnmarshalJSON(data []byte) error {
	fields, err := exactFields(data, "name", "histogram")
	if err != nil {
		return err
	}

	if raw, ok := fields["name"]; ok {
		if err := json.Unmarshal(raw, &r.Name); err != nil {
			return fmt.Errorf("name: %w", err)
		}
	}

	if raw, ok := fields["histogram"]; ok {
		if err := json.Unmarshal(raw, &r.Histogram); err != nil {
			return fmt.Errorf("histogram: %w", err)
		}
	}

	return nil
}

// exactFields splits a JSON object into its members.
// encoding/json folds field name case, so keys are checked here instead.
func exactFields(data []byte, allowed ...string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	for key := range fields {
		if !slices.Contains(allowed, key) {
			return nil, fmt.Errorf("unknown field %q", key)
		}
	}

	return fields, nil
}

// Exists reports whether a cache file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}

// Load reads the collection stored at path.
// Content that does not match the expected schema yields a *CorruptError.
func Load(path string) (histogram.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}

	collection, err := decode(data)
	if err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}

	return collection, nil
}

func decode(data []byte) (histogram.Collection, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var records *[]datasetRecord
	if err := decoder.Decode(&records); err != nil {
		return nil, err
	}

	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after collection")
	}

	if records == nil {
		return nil, errors.New("collection is null")
	}

	collection := make(histogram.Collection, 0, len(*records))
	seen := make(map[string]struct{}, len(*records))

	for i, record := range *records {
		if record.Name == "" {
			return nil, fmt.Errorf("dataset %d: missing name", i)
		}

		if _, dup := seen[record.Name]; dup {
			return nil, fmt.Errorf("dataset %q: duplicate name", record.Name)
		}

		seen[record.Name] = struct{}{}

		h, err := decodeHistogram(record.Histogram)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", record.Name, err)
		}

		collection = append(collection, histogram.Dataset{Name: record.Name, Histogram: h})
	}

	return collection, nil
}

func decodeHistogram(records map[string]bucketRecord) (histogram.Histogram, error) {
	if records == nil {
		return nil, errors.New("missing histogram")
	}

	h := make(histogram.Histogram, len(records))

	for key, record := range records {
		bucket, err := strconv.Atoi(key)
		if err != nil || bucket < 0 || strconv.Itoa(bucket) != key {
			return nil, fmt.Errorf("invalid bucket index %q", key)
		}

		switch {
		case record.Count == nil || record.TotalSizeBytes == nil:
			return nil, fmt.Errorf("bucket %d: missing count or totalSizeBytes", bucket)
		case *record.Count < 1:
			return nil, fmt.Errorf("bucket %d: count %d must be at least 1", bucket, *record.Count)
		case *record.TotalSizeBytes < 0:
			return nil, fmt.Errorf("bucket %d: negative totalSizeBytes %d", bucket, *record.TotalSizeBytes)
		}

		h[bucket] = histogram.BucketStat{Count: *record.Count, TotalSizeBytes: *record.TotalSizeBytes}
	}

	return h, nil
}

// Save writes the whole collection to path, replacing any existing file.
// Buckets without files are not persisted.
func Save(path string, collection histogram.Collection) error {
	records := make([]histogram.Dataset, 0, len(collection))

	for _, d := range collection {
		h := make(histogram.Histogram, len(d.Histogram))

		for bucket, stat := range d.Histogram {
			if stat.Count > 0 {
				h[bucket] = stat
			}
		}

		records = append(records, histogram.Dataset{Name: d.Name, Histogram: h})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}

	defer os.Remove(tmp.Name()) //nolint:errcheck // Already renamed on success

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()

		return fmt.Errorf("creating cache file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()

		return fmt.Errorf("writing cache file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}

	return nil
}
