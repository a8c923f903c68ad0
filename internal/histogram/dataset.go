package histogram

import (
	"fmt"
	"maps"
	"slices"
)

// Dataset is the histogram of one scanned directory tree ("image").
type Dataset struct {
	// Name labels the dataset in reports.
	Name string `json:"name"`
	// Histogram holds the per-bucket statistics.
	Histogram Histogram `json:"histogram"`
}

// TotalFileCount returns the number of files in the dataset.
func (d Dataset) TotalFileCount() int64 {
	return d.Histogram.TotalFileCount()
}

// TotalSizeBytes returns the size of all files in the dataset.
func (d Dataset) TotalSizeBytes() int64 {
	return d.Histogram.TotalSizeBytes()
}

// Equal reports whether both datasets carry the same name and statistics.
func (d Dataset) Equal(other Dataset) bool {
	return d.Name == other.Name && maps.Equal(d.Histogram, other.Histogram)
}

// Dimension selects which bucket statistic a series is built from.
type Dimension string

const (
	// DimensionCount builds series from file counts.
	DimensionCount Dimension = "count"
	// DimensionSize builds series from byte totals.
	DimensionSize Dimension = "size"
)

// SeriesKind selects the transform applied to a projection.
type SeriesKind string

const (
	// Raw is the projection itself.
	Raw SeriesKind = "raw"
	// Relative is each bucket's share of the grand total as a percentage.
	Relative SeriesKind = "relative"
	// Cumulative is the running total over increasing buckets.
	Cumulative SeriesKind = "cumulative"
	// RelativeCumulative is the running total as a percentage of the grand total.
	RelativeCumulative SeriesKind = "relative-cumulative"
)

// Series derives a series of the given kind over the given dimension.
func (d Dataset) Series(dim Dimension, kind SeriesKind) (map[int]float64, error) {
	var (
		values map[int]int64
		total  int64
	)

	switch dim {
	case DimensionCount:
		values, total = d.Histogram.Counts(), d.TotalFileCount()
	case DimensionSize:
		values, total = d.Histogram.Sizes(), d.TotalSizeBytes()
	default:
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}

	switch kind {
	case Raw:
		return toFloat(values), nil
	case Relative:
		return d.relativize(values, total, dim)
	case Cumulative:
		return toFloat(Cumulate(values)), nil
	case RelativeCumulative:
		return d.relativize(Cumulate(values), total, dim)
	default:
		return nil, fmt.Errorf("unknown series kind %q", kind)
	}
}

func (d Dataset) relativize(values map[int]int64, total int64, dim Dimension) (map[int]float64, error) {
	rel, err := Relativize(values, total)
	if err != nil {
		return nil, fmt.Errorf("dataset %q by %s: %w", d.Name, dim, err)
	}

	return rel, nil
}

func toFloat(in map[int]int64) map[int]float64 {
	out := make(map[int]float64, len(in))
	for k, v := range in {
		out[k] = float64(v)
	}

	return out
}

// Collection is the ordered set of datasets that is cached as one unit.
type Collection []Dataset

// Names returns the dataset names in order.
func (c Collection) Names() []string {
	names := make([]string, 0, len(c))
	for _, d := range c {
		names = append(names, d.Name)
	}

	return names
}

// Lookup returns the dataset with the given name.
func (c Collection) Lookup(name string) (Dataset, bool) {
	idx := slices.IndexFunc(c, func(d Dataset) bool { return d.Name == name })
	if idx < 0 {
		return Dataset{}, false
	}

	return c[idx], true
}

// Equal reports whether both collections hold equal datasets in the same order.
func (c Collection) Equal(other Collection) bool {
	return slices.EqualFunc(c, other, Dataset.Equal)
}
