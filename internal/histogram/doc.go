// Package histogram provides the decade histogram of file sizes.
//
// Sizes are grouped into logarithmic buckets (one per power of ten), each
// bucket accumulating a file count and a byte total. Cumulative and relative
// series are derived on demand from a histogram projection and never stored.
package histogram
