package histogram

import (
	"errors"
	"slices"
)

// ErrNonPositiveTotal is returned by Relativize when the reference total is not positive.
var ErrNonPositiveTotal = errors.New("relative series requires a positive total")

// Number is the set of values a series can hold.
type Number interface {
	~int | ~int64 | ~float64
}

// Cumulate returns, for every key k of in, the sum of in[i] for i in 0..k.
// Missing keys count as zero and the result has exactly the keys of in.
func Cumulate[V Number](in map[int]V) map[int]V {
	keys := make([]int, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	out := make(map[int]V, len(in))

	var sum V

	for _, k := range keys {
		if k < 0 {
			// The range 0..k is empty.
			out[k] = 0

			continue
		}

		sum += in[k]
		out[k] = sum
	}

	return out
}

// Relativize expresses every value of in as a percentage of total.
func Relativize[V Number](in map[int]V, total V) (map[int]float64, error) {
	if total <= 0 {
		return nil, ErrNonPositiveTotal
	}

	out := make(map[int]float64, len(in))
	for k, v := range in {
		out[k] = float64(v) / float64(total) * 100
	}

	return out, nil
}
