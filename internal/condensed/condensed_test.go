package condensed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/herbtax/internal/core"
)

func TestPairFourItems(t *testing.T) {
	want := [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	require.Equal(t, len(want), Size(4))

	for k, p := range want {
		i, j, err := Pair(4, k)
		require.NoError(t, err)
		assert.Equal(t, p, [2]int{i, j}, "k=%d", k)
	}
}

func TestRoundTripSmallN(t *testing.T) {
	for n := 2; n <= 60; n++ {
		k := 0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				got, err := Index(n, i, j)
				require.NoError(t, err)
				require.Equal(t, k, got, "n=%d (%d,%d)", n, i, j)

				gi, gj, err := Pair(n, k)
				require.NoError(t, err)
				require.Equal(t, [2]int{i, j}, [2]int{gi, gj}, "n=%d k=%d", n, k)
				k++
			}
		}
		require.Equal(t, Size(n), k)
	}
}

func TestRoundTripRowBoundariesLargeN(t *testing.T) {
	// Large n puts the square root estimate under the most rounding pressure
	// at the first and last element of each row.
	for _, n := range []int{1 << 16, 100003, 3000000} {
		for _, i := range []int{0, 1, 2, n / 3, n / 2, n - 3, n - 2} {
			start := rowStart(n, i)
			end := rowStart(n, i+1) - 1
			for _, k := range []int{start, start + 1, end - 1, end} {
				if k < start || k > end {
					continue
				}
				gi, gj, err := Pair(n, k)
				require.NoError(t, err)
				require.Equal(t, i, gi, "n=%d k=%d", n, k)

				back, err := Index(n, gi, gj)
				require.NoError(t, err)
				require.Equal(t, k, back, "n=%d k=%d", n, k)
			}
		}
	}
}

func TestOffsetAcceptsEitherOrder(t *testing.T) {
	assert.Equal(t, Offset(5, 1, 3), Offset(5, 3, 1))
	assert.Equal(t, 5, Offset(5, 1, 3))
}

func TestIndexRejectsInvalidPairs(t *testing.T) {
	cases := []struct {
		name string
		n    int
		i, j int
	}{
		{"diagonal", 4, 2, 2},
		{"lower triangle", 4, 3, 1},
		{"negative", 4, -1, 2},
		{"past end", 4, 1, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Index(tc.n, tc.i, tc.j)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidInput))
		})
	}
}

func TestPairRejectsOutOfRange(t *testing.T) {
	_, _, err := Pair(4, 6)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	_, _, err = Pair(4, -1)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	_, _, err = Pair(1, 0)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestSize(t *testing.T) {
	assert.Equal(t, 0, Size(0))
	assert.Equal(t, 0, Size(1))
	assert.Equal(t, 1, Size(2))
	assert.Equal(t, 4950, Size(100))
}
