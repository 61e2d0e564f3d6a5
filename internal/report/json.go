package report

import (
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/TobiSchelling/herbtax/internal/ingest"
)

// Bundle is the JSON export of a run.
type Bundle struct {
	Run         BundleRun                    `json:"run"`
	Pairs       []BundlePair                 `json:"ranked_pairs"`
	Clusters    [][]string                   `json:"clusters"`
	Leaves      []BundleLeaf                 `json:"leaves"`
	Linkage     []BundleMerge                `json:"linkage"`
	Annotations map[string]ingest.Annotation `json:"annotations,omitempty"`
}

type BundleRun struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
	Metric         string    `json:"metric"`
	Linkage        string    `json:"linkage"`
	Criterion      string    `json:"criterion"`
	Threshold      float64   `json:"threshold"`
	MinClusterSize int       `json:"min_cluster_size"`
	TopK           int       `json:"top_k"`
	Entities       int       `json:"entities"`
	Attributes     int       `json:"attributes"`
	ClusterCount   int       `json:"cluster_count"`
}

type BundlePair struct {
	Herb1    string   `json:"herb_1"`
	Herb2    string   `json:"herb_2"`
	Shared   []string `json:"shared_symptoms"`
	Distance float64  `json:"distance"`
}

type BundleLeaf struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

type BundleMerge struct {
	Left     int     `json:"left"`
	Right    int     `json:"right"`
	Distance float64 `json:"distance"`
	Size     int     `json:"size"`
}

// NewBundle converts run into its JSON form.
func NewBundle(run *Run) *Bundle {
	b := &Bundle{
		Run: BundleRun{
			ID:             run.ID,
			Source:         run.Source,
			CreatedAt:      run.CreatedAt.UTC(),
			Metric:         run.Metric,
			Linkage:        run.Linkage,
			Criterion:      run.Criterion,
			Threshold:      run.Threshold,
			MinClusterSize: run.MinClusterSize,
			TopK:           run.TopK,
			Entities:       len(run.Entities),
			Attributes:     len(run.Universe),
			ClusterCount:   run.ClusterCount,
		},
		Pairs:       make([]BundlePair, len(run.Pairs)),
		Clusters:    make([][]string, len(run.Clusters)),
		Leaves:      make([]BundleLeaf, len(run.Leaves)),
		Linkage:     make([]BundleMerge, len(run.Merges)),
		Annotations: run.Annotations,
	}
	for i, p := range run.Pairs {
		shared := p.Shared
		if shared == nil {
			shared = []string{}
		}
		b.Pairs[i] = BundlePair{Herb1: p.EntityI, Herb2: p.EntityJ, Shared: shared, Distance: p.Distance}
	}
	for i, members := range run.Clusters {
		names := make([]string, len(members))
		for j, m := range members {
			names[j] = run.Entities[m]
		}
		b.Clusters[i] = names
	}
	for i, leaf := range run.Leaves {
		b.Leaves[i] = BundleLeaf{Name: run.Entities[leaf], Index: leaf}
	}
	for i, m := range run.Merges {
		b.Linkage[i] = BundleMerge{Left: m.Left, Right: m.Right, Distance: m.Distance, Size: m.Size}
	}
	return b
}

// WriteJSON writes the indented JSON bundle of run.
func WriteJSON(w io.Writer, run *Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewBundle(run))
}

// ReadJSON decodes a bundle written by WriteJSON.
func ReadJSON(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, err
	}
	return &b, nil
}
