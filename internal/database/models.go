package database

// Run is one archived pipeline run.
type Run struct {
	ID              string
	Source          string
	Metric          string
	Linkage         string
	Criterion       string
	Threshold       float64
	MinClusterSize  int
	TopK            int
	EntityCount     int
	AttributeCount  int
	PairCount       int
	ClusterCount    int // flat clusters before the size filter
	KeptCount       int
	OutputDir       *string
	SummaryMarkdown *string
	Annotations     map[string]Annotation
	CreatedAt       *string
}

// Annotation is the optional English name and provenance of a symptom.
type Annotation struct {
	English  string `json:"english,omitempty"`
	SourceDB string `json:"source_db,omitempty"`
	SourceID string `json:"source_id,omitempty"`
}

// RankedPair is one row of a run's most-similar table. Rank starts at 1.
type RankedPair struct {
	Rank     int
	Herb1    string
	Herb2    string
	Shared   []string
	Distance float64
}

// Leaf is one entity in dendrogram order.
type Leaf struct {
	Position int
	Entity   string
	Index    int
}

// Stats contains aggregate archive statistics.
type Stats struct {
	Runs        int
	RankedPairs int
	Clusters    int
	Herbs       int // distinct herbs across all runs
	LastRunAt   *string
}
