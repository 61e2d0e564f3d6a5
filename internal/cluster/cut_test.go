package cluster

import (
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/TobiSchelling/herbtax/internal/core"
	"github.com/TobiSchelling/herbtax/internal/distance"
)

// outlierTree is four identical entities and one orthogonal outlier: three
// merges at 0 and a final merge at cosine distance 1.
func outlierTree(t *testing.T) *Tree {
	t.Helper()
	dist := condensedFor(t, [][]int{
		{1, 1, 0},
		{1, 1, 0},
		{2, 2, 0},
		{1, 1, 0},
		{0, 0, 1},
	}, distance.MetricCosine)
	tree, err := Linkage(dist, 5, MethodSingle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tree
}

func clusterSizes(labels []int) []int {
	var sizes []int
	for _, g := range Members(labels) {
		sizes = append(sizes, len(g))
	}
	return sizes
}

func TestCutOutlierScenario(t *testing.T) {
	tree := outlierTree(t)

	for _, threshold := range []float64{0, 0.5, 0.999} {
		labels, err := Cut(tree, threshold)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := clusterSizes(labels); !reflect.DeepEqual(got, []int{4, 1}) {
			t.Errorf("threshold %v: expected sizes [4 1], got %v (labels %v)", threshold, got, labels)
		}
		if labels[4] == labels[0] {
			t.Errorf("threshold %v: outlier should be separate, got labels %v", threshold, labels)
		}
	}

	// The final merge sits exactly at 1.0 and the cut is inclusive.
	labels, _ := Cut(tree, 1.0)
	if got := clusterSizes(labels); !reflect.DeepEqual(got, []int{5}) {
		t.Errorf("threshold 1.0: expected a single cluster, got %v", got)
	}
}

func TestCutAllSeparate(t *testing.T) {
	dist := condensedFor(t, [][]int{{1, 0}, {0, 1}, {1, 1}}, distance.MetricCosine)
	tree, _ := Linkage(dist, 3, MethodSingle)

	labels, _ := Cut(tree, 0.001)
	if labels[0] == labels[1] || labels[1] == labels[2] || labels[0] == labels[2] {
		t.Errorf("expected all separate clusters with tiny threshold, got labels %v", labels)
	}
}

func TestCutAllMerged(t *testing.T) {
	dist := condensedFor(t, [][]int{{1, 0}, {0, 1}, {1, 1}}, distance.MetricCosine)
	tree, _ := Linkage(dist, 3, MethodSingle)

	labels, _ := Cut(tree, 100.0)
	if labels[0] != labels[1] || labels[1] != labels[2] {
		t.Errorf("expected all in same cluster with large threshold, got labels %v", labels)
	}
}

func TestCutLabelsFollowEntityOrder(t *testing.T) {
	dist := condensedFor(t, [][]int{{0}, {10}, {1}, {11}}, distance.MetricEuclidean)
	tree, _ := Linkage(dist, 4, MethodSingle)

	labels, _ := Cut(tree, 2)
	if want := []int{0, 1, 0, 1}; !reflect.DeepEqual(labels, want) {
		t.Errorf("expected %v, got %v", want, labels)
	}
}

func TestCutCountNonIncreasingInThreshold(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	for trial := 0; trial < 10; trial++ {
		n := 3 + r.IntN(30)
		dist := condensedFor(t, randomVectors(r, n, 5), distance.MetricCosine)
		tree, _ := Linkage(dist, n, MethodSingle)

		for _, criterion := range []Criterion{CriterionDistance, CriterionInconsistent} {
			prev := math.MaxInt
			for threshold := 0.0; threshold <= 2.0; threshold += 0.05 {
				labels, err := Flatten(tree, criterion, threshold)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(labels) != n {
					t.Fatalf("expected %d labels, got %d", n, len(labels))
				}
				groups := Members(labels)
				total := 0
				for _, g := range groups {
					total += len(g)
				}
				if total != n {
					t.Fatalf("groups cover %d entities, expected %d", total, n)
				}
				if len(groups) > prev {
					t.Errorf("%s: cluster count grew from %d to %d at threshold %v", criterion, prev, len(groups), threshold)
				}
				prev = len(groups)
			}
		}
	}
}

func TestInconsistency(t *testing.T) {
	dist := condensedFor(t, [][]int{{0}, {1}, {2}, {10}}, distance.MetricEuclidean)
	tree, _ := Linkage(dist, 4, MethodSingle)

	coef := Inconsistency(tree)
	if coef[0] != 0 || coef[1] != 0 {
		t.Errorf("expected flat links to score 0, got %v", coef)
	}
	if math.Abs(coef[2]-math.Sqrt(0.5)) > 1e-12 {
		t.Errorf("expected root coefficient %f, got %f", math.Sqrt(0.5), coef[2])
	}
}

func TestCutInconsistent(t *testing.T) {
	dist := condensedFor(t, [][]int{{0}, {1}, {2}, {10}}, distance.MetricEuclidean)
	tree, _ := Linkage(dist, 4, MethodSingle)

	labels, err := CutInconsistent(tree, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []int{0, 0, 0, 1}; !reflect.DeepEqual(labels, want) {
		t.Errorf("threshold 0.5: expected %v, got %v", want, labels)
	}

	labels, _ = CutInconsistent(tree, 1)
	if want := []int{0, 0, 0, 0}; !reflect.DeepEqual(labels, want) {
		t.Errorf("threshold 1: expected %v, got %v", want, labels)
	}
}

func TestCutRejectsNaN(t *testing.T) {
	tree := outlierTree(t)
	if _, err := Cut(tree, math.NaN()); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if _, err := CutInconsistent(tree, math.NaN()); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if _, err := Flatten(tree, Criterion("maxclust"), 1); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestLeaves(t *testing.T) {
	dist := condensedFor(t, [][]int{{0}, {1}, {2}, {10}}, distance.MetricEuclidean)
	tree, _ := Linkage(dist, 4, MethodSingle)

	if got, want := Leaves(tree), []int{3, 2, 0, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected leaves %v, got %v", want, got)
	}

	if got, want := Leaves(outlierTree(t)), []int{4, 3, 2, 0, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected leaves %v, got %v", want, got)
	}
}

func TestLeavesIsPermutation(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 10))
	n := 40
	dist := condensedFor(t, randomVectors(r, n, 6), distance.MetricCosine)
	tree, _ := Linkage(dist, n, MethodAverage)

	seen := make([]bool, n)
	for _, leaf := range Leaves(tree) {
		if seen[leaf] {
			t.Fatalf("leaf %d appears twice", leaf)
		}
		seen[leaf] = true
	}
	for i, ok := range seen {
		if !ok {
			t.Errorf("leaf %d missing", i)
		}
	}
}
