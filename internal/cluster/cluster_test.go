package cluster

import (
	"errors"
	"reflect"
	"testing"

	"github.com/TobiSchelling/herbtax/internal/core"
	"github.com/TobiSchelling/herbtax/internal/distance"
)

func TestNewClustererDefaults(t *testing.T) {
	c := NewClusterer("", "", -1, 0)
	if c.method != MethodSingle {
		t.Errorf("expected method %q, got %q", MethodSingle, c.method)
	}
	if c.criterion != CriterionDistance {
		t.Errorf("expected criterion %q, got %q", CriterionDistance, c.criterion)
	}
	if c.Threshold() != DefaultDistanceThreshold {
		t.Errorf("expected threshold %v, got %v", DefaultDistanceThreshold, c.Threshold())
	}
	if c.MinClusterSize() != DefaultMinClusterSize {
		t.Errorf("expected min size %d, got %d", DefaultMinClusterSize, c.MinClusterSize())
	}

	// Zero is a meaningful threshold and must survive.
	if got := NewClusterer(MethodSingle, CriterionDistance, 0, 3).Threshold(); got != 0 {
		t.Errorf("expected threshold 0, got %v", got)
	}
}

func TestClusterOutlierScenario(t *testing.T) {
	dist := condensedFor(t, [][]int{
		{1, 1, 0},
		{1, 1, 0},
		{1, 1, 0},
		{1, 1, 0},
		{0, 0, 1},
	}, distance.MetricCosine)

	c := NewClusterer(MethodSingle, CriterionDistance, 0, 4)
	result, err := c.Cluster(dist, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Tree.Merges) != 4 {
		t.Errorf("expected 4 merges, got %d", len(result.Tree.Merges))
	}
	if want := [][]int{{0, 1, 2, 3}, {4}}; !reflect.DeepEqual(result.Groups, want) {
		t.Errorf("expected groups %v, got %v", want, result.Groups)
	}
	if want := [][]int{{0, 1, 2, 3}}; !reflect.DeepEqual(result.Kept, want) {
		t.Errorf("expected kept %v, got %v", want, result.Kept)
	}
	if len(result.Leaves) != 5 {
		t.Errorf("expected 5 leaves, got %d", len(result.Leaves))
	}
}

func TestClusterMinSizeFilter(t *testing.T) {
	dist := condensedFor(t, [][]int{{0}, {1}, {2}, {50}, {51}, {100}}, distance.MetricEuclidean)

	result, err := NewClusterer(MethodSingle, CriterionDistance, 1.5, 2).Cluster(dist, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Groups) != 3 {
		t.Fatalf("expected 3 clusters, got %v", result.Groups)
	}
	if want := [][]int{{0, 1, 2}, {3, 4}}; !reflect.DeepEqual(result.Kept, want) {
		t.Errorf("expected kept %v, got %v", want, result.Kept)
	}
}

func TestClusterTooFewEntities(t *testing.T) {
	_, err := NewClusterer("", "", -1, 0).Cluster(nil, 1)
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}
