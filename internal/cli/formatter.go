package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/idelchi/sizehist/internal/histogram"
)

const (
	// TabSpacing is the number of spaces between tabwriter columns.
	TabSpacing = 2
)

// BucketRow carries one bucket of a dataset together with its derived series.
type BucketRow struct {
	Bucket                  int      `json:"bucket"`
	Label                   string   `json:"label"`
	Count                   int64    `json:"count"`
	TotalSizeBytes          int64    `json:"totalSizeBytes"`
	CumulativeCount         int64    `json:"cumulativeCount"`
	CumulativeSizeBytes     int64    `json:"cumulativeSizeBytes"`
	RelativeCount           *float64 `json:"relativeCount"`
	RelativeSize            *float64 `json:"relativeSize"`
	RelativeCumulativeCount *float64 `json:"relativeCumulativeCount"`
	RelativeCumulativeSize  *float64 `json:"relativeCumulativeSize"`
}

// DatasetReport is the rendered view of one dataset.
type DatasetReport struct {
	Name           string      `json:"name"`
	TotalFileCount int64       `json:"totalFileCount"`
	TotalSizeBytes int64       `json:"totalSizeBytes"`
	Buckets        []BucketRow `json:"buckets"`
}

// BuildReport derives the per-bucket rows of every dataset in order.
// Relative series of a dataset with no files (or no bytes) are left empty and logged.
func BuildReport(collection histogram.Collection, log logrus.FieldLogger) []DatasetReport {
	reports := make([]DatasetReport, 0, len(collection))

	for _, dataset := range collection {
		h := dataset.Histogram
		cumCount := histogram.Cumulate(h.Counts())
		cumSize := histogram.Cumulate(h.Sizes())

		shareCount := relative(dataset, histogram.DimensionCount, histogram.Relative, nil)
		shareSize := relative(dataset, histogram.DimensionSize, histogram.Relative, nil)
		relCount := relative(dataset, histogram.DimensionCount, histogram.RelativeCumulative, log)
		relSize := relative(dataset, histogram.DimensionSize, histogram.RelativeCumulative, log)

		report := DatasetReport{
			Name:           dataset.Name,
			TotalFileCount: dataset.TotalFileCount(),
			TotalSizeBytes: dataset.TotalSizeBytes(),
			Buckets:        make([]BucketRow, 0, len(h)),
		}

		for _, bucket := range h.Buckets() {
			report.Buckets = append(report.Buckets, BucketRow{
				Bucket:                  bucket,
				Label:                   histogram.Label(bucket),
				Count:                   h[bucket].Count,
				TotalSizeBytes:          h[bucket].TotalSizeBytes,
				CumulativeCount:         cumCount[bucket],
				CumulativeSizeBytes:     cumSize[bucket],
				RelativeCount:           lookup(shareCount, bucket),
				RelativeSize:            lookup(shareSize, bucket),
				RelativeCumulativeCount: lookup(relCount, bucket),
				RelativeCumulativeSize:  lookup(relSize, bucket),
			})
		}

		reports = append(reports, report)
	}

	return reports
}

// relative derives a percentage series; failures are logged when log is set.
func relative(
	dataset histogram.Dataset,
	dim histogram.Dimension,
	kind histogram.SeriesKind,
	log logrus.FieldLogger,
) map[int]float64 {
	series, err := dataset.Series(dim, kind)
	if err == nil {
		return series
	}

	if log == nil {
		return nil
	}

	if errors.Is(err, histogram.ErrNonPositiveTotal) {
		log.WithField("image", dataset.Name).Warnf("no relative %s series: total is zero", dim)
	} else {
		log.WithError(err).Error("deriving series")
	}

	return nil
}

func lookup(series map[int]float64, bucket int) *float64 {
	v, ok := series[bucket]
	if !ok {
		return nil
	}

	return &v
}

// PrintJSON outputs the report in JSON format.
func PrintJSON(reports []DatasetReport, writer io.Writer) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	if _, err := fmt.Fprintln(writer, string(data)); err != nil {
		return err
	}

	return nil
}

func percent(v *float64) string {
	if v == nil {
		return "n/a"
	}

	return fmt.Sprintf("%.1f%%", *v)
}

// PrintTable outputs the report in human-readable table format.
// dimension selects the count columns, the size columns or both.
func PrintTable(reports []DatasetReport, dimension string, writer io.Writer) error {
	w := tabwriter.NewWriter(writer, 0, 4, TabSpacing, ' ', 0)

	showCount := dimension != "size"
	showSize := dimension != "count"

	for i, report := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}

		fmt.Fprintf(w, "Image %q: %d files, %s (%d bytes)\n",
			report.Name, report.TotalFileCount,
			humanize.IBytes(uint64(report.TotalSizeBytes)), report.TotalSizeBytes) //nolint:gosec // Sizes are never negative

		fmt.Fprint(w, "  Range")

		if showCount {
			fmt.Fprint(w, "\tFiles\tFiles %\tCum. files\tCum. files %")
		}

		if showSize {
			fmt.Fprint(w, "\tSize\tSize %\tCum. size\tCum. size %")
		}

		fmt.Fprintln(w)

		for _, row := range report.Buckets {
			fmt.Fprintf(w, "  %s", row.Label)

			if showCount {
				fmt.Fprintf(w, "\t%d\t%s\t%d\t%s",
					row.Count, percent(row.RelativeCount), row.CumulativeCount, percent(row.RelativeCumulativeCount))
			}

			if showSize {
				fmt.Fprintf(w, "\t%s\t%s\t%s\t%s",
					humanize.IBytes(uint64(row.TotalSizeBytes)), //nolint:gosec // Sizes are never negative
					percent(row.RelativeSize),
					humanize.IBytes(uint64(row.CumulativeSizeBytes)), //nolint:gosec // Sizes are never negative
					percent(row.RelativeCumulativeSize))
			}

			fmt.Fprintln(w)
		}
	}

	return w.Flush()
}
