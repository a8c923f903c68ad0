package histogram

import (
	"iter"
	"slices"

	"github.com/dustin/go-humanize"
)

// Bucket returns the decade index of a size in bytes: floor(log10(max(1, size))).
// The index is computed by integer division so decade boundaries are exact.
func Bucket(size int64) int {
	if size < 1 {
		size = 1
	}

	bucket := 0
	for size >= 10 {
		size /= 10
		bucket++
	}

	return bucket
}

// Label returns a human-readable byte range for a bucket, e.g. "1.0 kB-10 kB".
func Label(bucket int) string {
	if bucket < 0 {
		return "???"
	}

	return humanize.Bytes(pow10(bucket)) + "-" + humanize.Bytes(pow10(bucket+1))
}

// pow10 returns 10^n, saturating at the largest uint64 power of ten.
func pow10(n int) uint64 {
	const maxExp = 19

	if n > maxExp {
		n = maxExp
	}

	value := uint64(1)
	for range n {
		value *= 10
	}

	return value
}

// BucketStat holds the aggregate of all files falling into one bucket.
type BucketStat struct {
	// Count is the number of files in the bucket.
	Count int64 `json:"count"`
	// TotalSizeBytes is the cumulative size of those files.
	TotalSizeBytes int64 `json:"totalSizeBytes"`
}

// Histogram maps a bucket index to its statistics.
// Only buckets that received at least one file are present.
type Histogram map[int]BucketStat

// Add records one file. The bucket is taken from the clamped size while the
// unclamped size is what is accumulated, so a zero-byte file lands in bucket 0
// and adds nothing to the total.
func (h Histogram) Add(size int64) {
	bucket := Bucket(size)

	stat := h[bucket]
	stat.Count++
	stat.TotalSizeBytes += max(0, size)
	h[bucket] = stat
}

// TotalFileCount returns the number of files across all buckets.
func (h Histogram) TotalFileCount() int64 {
	var total int64
	for _, stat := range h {
		total += stat.Count
	}

	return total
}

// TotalSizeBytes returns the size of all files across all buckets.
func (h Histogram) TotalSizeBytes() int64 {
	var total int64
	for _, stat := range h {
		total += stat.TotalSizeBytes
	}

	return total
}

// Buckets returns the bucket indices in ascending order.
func (h Histogram) Buckets() []int {
	buckets := make([]int, 0, len(h))
	for bucket := range h {
		buckets = append(buckets, bucket)
	}

	slices.Sort(buckets)

	return buckets
}

// Counts projects the histogram onto file counts.
func (h Histogram) Counts() map[int]int64 {
	out := make(map[int]int64, len(h))
	for bucket, stat := range h {
		out[bucket] = stat.Count
	}

	return out
}

// Sizes projects the histogram onto byte totals.
func (h Histogram) Sizes() map[int]int64 {
	out := make(map[int]int64, len(h))
	for bucket, stat := range h {
		out[bucket] = stat.TotalSizeBytes
	}

	return out
}

// Collect builds a histogram from a sequence of file sizes.
// The sequence is consumed once; the first error stops consumption and is returned.
func Collect(sizes iter.Seq2[int64, error]) (Histogram, error) {
	h := make(Histogram)

	for size, err := range sizes {
		if err != nil {
			return nil, err
		}

		h.Add(size)
	}

	return h, nil
}
