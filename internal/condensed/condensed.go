// Package condensed maps between positions in a condensed pairwise array and
// the (i, j) pairs they hold.
//
// A condensed array over n items stores one value per unordered pair i < j,
// rows outer and columns inner, skipping the diagonal and the lower triangle:
//
//	k:  0      1      2      3      4      5
//	    (0,1)  (0,2)  (0,3)  (1,2)  (1,3)  (2,3)   for n = 4
//
// Its length is n*(n-1)/2, so memory grows quadratically in n.
package condensed

import (
	"math"

	"github.com/TobiSchelling/herbtax/internal/core"
)

const stage = "condensed index"

// Size returns the length of the condensed array for n items.
func Size(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

// Offset returns the condensed position of pair (i, j) without validation.
// Arguments may come in either order; i == j is not a valid pair.
func Offset(n, i, j int) int {
	if i > j {
		i, j = j, i
	}
	return n*i - i*(i+1)/2 + j - i - 1
}

// Index returns the condensed position of pair (i, j) with 0 <= i < j < n.
func Index(n, i, j int) (int, error) {
	if i < 0 || j < 0 || i >= n || j >= n {
		return 0, core.Invalid(stage, "pair (%d, %d) out of range for n=%d", i, j, n)
	}
	if i >= j {
		return 0, core.Invalid(stage, "pair (%d, %d) requires i < j", i, j)
	}
	return Offset(n, i, j), nil
}

// Pair returns the (i, j) pair stored at condensed position k.
func Pair(n, k int) (int, int, error) {
	if n < 2 {
		return 0, 0, core.Invalid(stage, "need at least 2 items, got %d", n)
	}
	if k < 0 || k >= Size(n) {
		return 0, 0, core.Invalid(stage, "position %d out of range [0, %d)", k, Size(n))
	}
	i := row(n, k)
	return i, k - rowStart(n, i) + i + 1, nil
}

// rowStart is the number of elements held by rows 0..i-1.
func rowStart(n, i int) int {
	return i * (2*n - i - 1) / 2
}

// row inverts rowStart for k. The square root estimate can land one row off
// near row boundaries, so it is clamped and then settled against the exact
// integer bounds rowStart(i) <= k < rowStart(i+1).
func row(n, k int) int {
	c := float64(2*n - 1)
	disc := c*c - 8*float64(k)
	if disc < 0 {
		disc = 0
	}
	i := int(math.Floor((c - math.Sqrt(disc)) / 2))
	if i < 0 {
		i = 0
	}
	if i > n-2 {
		i = n - 2
	}
	for i > 0 && rowStart(n, i) > k {
		i--
	}
	for i < n-2 && rowStart(n, i+1) <= k {
		i++
	}
	return i
}
