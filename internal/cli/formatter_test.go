package cli_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idelchi/sizehist/internal/cli"
	"github.com/idelchi/sizehist/internal/histogram"
)

func TestBuildReportZeroSizeDataset(t *testing.T) {
	t.Parallel()

	log := logrus.New()
	log.SetOutput(io.Discard)

	reports := cli.BuildReport(histogram.Collection{
		{Name: "empty-files", Histogram: histogram.Histogram{0: {Count: 3, TotalSizeBytes: 0}}},
	}, log)
	require.Len(t, reports, 1)
	require.Len(t, reports[0].Buckets, 1)

	row := reports[0].Buckets[0]
	require.NotNil(t, row.RelativeCumulativeCount)
	assert.InDelta(t, 100.0, *row.RelativeCumulativeCount, 0.001)
	assert.Nil(t, row.RelativeCumulativeSize)
	assert.Nil(t, row.RelativeSize)

	var out bytes.Buffer
	require.NoError(t, cli.PrintTable(reports, "both", &out))
	assert.Contains(t, out.String(), "n/a")
}

func TestBuildReportOrdersBuckets(t *testing.T) {
	t.Parallel()

	log := logrus.New()
	log.SetOutput(io.Discard)

	reports := cli.BuildReport(histogram.Collection{
		{Name: "a", Histogram: histogram.Histogram{
			5: {Count: 2, TotalSizeBytes: 300000},
			0: {Count: 1, TotalSizeBytes: 1},
			2: {Count: 3, TotalSizeBytes: 450},
		}},
	}, log)

	buckets := reports[0].Buckets
	require.Len(t, buckets, 3)
	assert.Equal(t, []int{0, 2, 5}, []int{buckets[0].Bucket, buckets[1].Bucket, buckets[2].Bucket})
	assert.Equal(t, []int64{1, 4, 6}, []int64{buckets[0].CumulativeCount, buckets[1].CumulativeCount, buckets[2].CumulativeCount})
	assert.Equal(t, int64(300451), buckets[2].CumulativeSizeBytes)

	require.NotNil(t, buckets[1].RelativeCount)
	assert.InDelta(t, 50.0, *buckets[1].RelativeCount, 0.01)
	require.NotNil(t, buckets[2].RelativeCount)
	assert.InDelta(t, 33.33, *buckets[2].RelativeCount, 0.01)

	var out bytes.Buffer
	require.NoError(t, cli.PrintTable(reports, "count", &out))
	assert.Contains(t, out.String(), "Files %")
	assert.Contains(t, out.String(), "50.0%")
	assert.NotContains(t, out.String(), "Size %")
}
