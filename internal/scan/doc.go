// Package scan walks directory trees and yields the size of every regular file.
//
// It uses fastwalk for parallel traversal and serialises the results into a
// single-pass sequence, skipping entries that cannot be read.
package scan
