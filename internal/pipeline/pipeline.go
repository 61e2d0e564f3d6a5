package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/TobiSchelling/herbtax/internal/cluster"
	"github.com/TobiSchelling/herbtax/internal/condensed"
	"github.com/TobiSchelling/herbtax/internal/config"
	"github.com/TobiSchelling/herbtax/internal/database"
	"github.com/TobiSchelling/herbtax/internal/distance"
	"github.com/TobiSchelling/herbtax/internal/features"
	"github.com/TobiSchelling/herbtax/internal/ingest"
	"github.com/TobiSchelling/herbtax/internal/rank"
	"github.com/TobiSchelling/herbtax/internal/report"
)

// Step names in execution order.
const (
	StepLoad      = "Load"
	StepEncode    = "Encode"
	StepDistances = "Distances"
	StepRank      = "Rank"
	StepCluster   = "Cluster"
	StepWrite     = "Write"
	StepArchive   = "Archive"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID     string
	OutputDir string
	Steps     []StepResult
	Run       *report.Run
}

// Err returns the error of the failed step, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// Pipeline turns a herb/symptom dictionary into ranked pairs and clusters.
type Pipeline struct {
	cfg    *config.Config
	db     *database.DB
	loader *ingest.Loader
	now    func() time.Time
}

// New creates a new pipeline. db may be nil, in which case runs are written
// to disk but not archived.
func New(cfg *config.Config, db *database.DB) (*Pipeline, error) {
	var objects ingest.ObjectGetter
	if s3 := cfg.Storage.S3; s3.Endpoint != "" {
		store, err := ingest.NewMinioStore(ingest.S3Options{
			Endpoint:     s3.Endpoint,
			AccessKeyEnv: s3.AccessKeyEnv,
			SecretKeyEnv: s3.SecretKeyEnv,
			Secure:       s3.Secure,
			Region:       s3.Region,
		})
		if err != nil {
			return nil, err
		}
		objects = store
	}
	return newWithLoader(cfg, db, ingest.NewLoader(objects)), nil
}

func newWithLoader(cfg *config.Config, db *database.DB, loader *ingest.Loader) *Pipeline {
	return &Pipeline{cfg: cfg, db: db, loader: loader, now: time.Now}
}

// state carries intermediate values from one step to the next.
type state struct {
	dict      *ingest.Dictionary
	enc       *features.Encoding
	metric    distance.Metric
	dist      []float64
	pairs     []rank.Pair
	clusterer *cluster.Clusterer
	clusters  *cluster.Result
	run       *report.Run
}

type step struct {
	name string
	run  func(ctx context.Context, st *state) (string, error)
}

// Run executes every step, stopping at the first failure.
func (p *Pipeline) Run(ctx context.Context) *Result {
	id := uuid.NewString()
	r := &Result{
		RunID:     id,
		OutputDir: filepath.Join(p.cfg.Output.Dir, id),
	}

	steps := []step{
		{StepLoad, p.runLoad},
		{StepEncode, p.runEncode},
		{StepDistances, p.runDistances},
		{StepRank, p.runRank},
		{StepCluster, p.runCluster},
		{StepWrite, func(ctx context.Context, st *state) (string, error) {
			st.run = p.assemble(id, st)
			r.Run = st.run
			return p.runWrite(ctx, r.OutputDir, st)
		}},
		{StepArchive, func(_ context.Context, st *state) (string, error) {
			return p.runArchive(r.OutputDir, st)
		}},
	}

	r.Steps = p.execute(ctx, steps, &state{})
	return r
}

// DryRun loads and encodes the input and reports what a run would cost.
func (p *Pipeline) DryRun(ctx context.Context) *Result {
	r := &Result{OutputDir: filepath.Join(p.cfg.Output.Dir, "<run id>")}

	steps := []step{
		{StepLoad, p.runLoad},
		{StepEncode, p.runEncode},
		{StepDistances, func(_ context.Context, st *state) (string, error) {
			n := st.enc.N()
			return fmt.Sprintf("[dry-run] %s pairs, %s distance array",
				humanize.Comma(int64(condensed.Size(n))), humanize.Bytes(distance.EstimateBytes(n))), nil
		}},
		{StepRank, func(context.Context, *state) (string, error) {
			return fmt.Sprintf("[dry-run] Would rank the top %d pairs", p.cfg.Ranking.TopK), nil
		}},
		{StepCluster, func(context.Context, *state) (string, error) {
			c := p.cfg.Clustering
			return fmt.Sprintf("[dry-run] Would run %s linkage, cut by %s at %g", c.Linkage, c.Criterion, c.Threshold), nil
		}},
		{StepWrite, func(context.Context, *state) (string, error) {
			return fmt.Sprintf("[dry-run] Would write outputs to %s", r.OutputDir), nil
		}},
	}

	r.Steps = p.execute(ctx, steps, &state{})
	return r
}

func (p *Pipeline) execute(ctx context.Context, steps []step, st *state) []StepResult {
	var results []StepResult
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			results = append(results, StepResult{Name: s.name, Err: err})
			break
		}

		slog.Info("running step", "step", fmt.Sprintf("%d/%d", i+1, len(steps)), "name", s.name)
		start := time.Now()
		summary, err := s.run(ctx, st)
		results = append(results, StepResult{Name: s.name, Summary: summary, Err: err})
		if err != nil {
			slog.Error("step failed", "name", s.name, "error", err)
			break
		}
		slog.Debug("step complete", "name", s.name, "elapsed", time.Since(start))
	}
	return results
}

func (p *Pipeline) runLoad(ctx context.Context, st *state) (string, error) {
	dict, err := p.loader.Load(ctx, p.cfg.Input.Path)
	if err != nil {
		return "", err
	}
	st.dict = dict
	return fmt.Sprintf("Read %s rows: %s herbs, %s symptoms",
		humanize.Comma(int64(dict.Rows)),
		humanize.Comma(int64(len(dict.Records))),
		humanize.Comma(int64(len(dict.Universe)))), nil
}

func (p *Pipeline) runEncode(_ context.Context, st *state) (string, error) {
	enc, err := features.Encode(st.dict.Records, st.dict.Universe)
	if err != nil {
		return "", err
	}
	st.enc = enc
	return fmt.Sprintf("Encoded %d herbs over %d symptoms (%s of count vectors)",
		enc.N(), enc.D(), humanize.Bytes(uint64(enc.N())*uint64(enc.D())*8)), nil
}

func (p *Pipeline) runDistances(_ context.Context, st *state) (string, error) {
	metric, err := distance.ParseMetric(p.cfg.Clustering.Metric)
	if err != nil {
		return "", err
	}
	dist, err := distance.Condensed(st.enc.Vectors, metric)
	if err != nil {
		return "", err
	}
	st.metric = metric
	st.dist = dist
	return fmt.Sprintf("Computed %s %s distances (%s)",
		humanize.Comma(int64(len(dist))), metric, humanize.Bytes(distance.EstimateBytes(st.enc.N()))), nil
}

func (p *Pipeline) runRank(_ context.Context, st *state) (string, error) {
	ranker, err := rank.New(st.enc, st.dist)
	if err != nil {
		return "", err
	}
	top, err := ranker.Top(p.cfg.Ranking.TopK)
	if err != nil {
		return "", err
	}
	st.pairs = slices.Collect(top)
	return fmt.Sprintf("Ranked %d of %s nonzero pairs", len(st.pairs), humanize.Comma(int64(ranker.Len()))), nil
}

func (p *Pipeline) runCluster(_ context.Context, st *state) (string, error) {
	c := p.cfg.Clustering
	method, err := cluster.ParseMethod(c.Linkage)
	if err != nil {
		return "", err
	}
	criterion, err := cluster.ParseCriterion(c.Criterion)
	if err != nil {
		return "", err
	}

	clusterer := cluster.NewClusterer(method, criterion, c.Threshold, c.MinClusterSize)
	result, err := clusterer.Cluster(st.dist, st.enc.N())
	if err != nil {
		return "", err
	}
	st.clusterer = clusterer
	st.clusters = result
	return fmt.Sprintf("Cut %d herbs into %d clusters, %d with at least %d members",
		st.enc.N(), len(result.Groups), len(result.Kept), clusterer.MinClusterSize()), nil
}

func (p *Pipeline) runWrite(ctx context.Context, dir string, st *state) (string, error) {
	paths, err := report.WriteAll(ctx, dir, st.run)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %d files to %s", len(paths), dir), nil
}

func (p *Pipeline) runArchive(dir string, st *state) (string, error) {
	if p.db == nil {
		return "Skipped, no archive configured", nil
	}

	run := st.run
	created := run.CreatedAt.Format(time.DateTime)
	summary := report.Summary(run)

	annotations := make(map[string]database.Annotation, len(run.Annotations))
	for symptom, a := range run.Annotations {
		annotations[symptom] = database.Annotation{English: a.English, SourceDB: a.SourceDB, SourceID: a.SourceID}
	}

	pairs := make([]database.RankedPair, len(run.Pairs))
	for i, pr := range run.Pairs {
		pairs[i] = database.RankedPair{Rank: i + 1, Herb1: pr.EntityI, Herb2: pr.EntityJ, Shared: pr.Shared, Distance: pr.Distance}
	}

	clusters := make([][]string, len(run.Clusters))
	for i, members := range run.Clusters {
		names := make([]string, len(members))
		for j, m := range members {
			names[j] = run.Entities[m]
		}
		clusters[i] = names
	}

	leaves := make([]database.Leaf, len(run.Leaves))
	for i, leaf := range run.Leaves {
		leaves[i] = database.Leaf{Position: i, Entity: run.Entities[leaf], Index: leaf}
	}

	id, err := p.db.InsertRun(&database.Run{
		ID:              run.ID,
		Source:          run.Source,
		Metric:          run.Metric,
		Linkage:         run.Linkage,
		Criterion:       run.Criterion,
		Threshold:       run.Threshold,
		MinClusterSize:  run.MinClusterSize,
		TopK:            run.TopK,
		EntityCount:     len(run.Entities),
		AttributeCount:  len(run.Universe),
		ClusterCount:    run.ClusterCount,
		OutputDir:       &dir,
		SummaryMarkdown: &summary,
		Annotations:     annotations,
		CreatedAt:       &created,
	}, pairs, clusters, leaves)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Archived run %s", id), nil
}

// assemble gathers the outputs of the compute steps into a report.
func (p *Pipeline) assemble(id string, st *state) *report.Run {
	clusterer := st.clusterer
	return &report.Run{
		ID:             id,
		Source:         p.cfg.Input.Path,
		CreatedAt:      p.now().UTC(),
		Metric:         string(st.metric),
		Linkage:        string(clusterer.Method()),
		Criterion:      string(clusterer.Criterion()),
		Threshold:      clusterer.Threshold(),
		MinClusterSize: clusterer.MinClusterSize(),
		TopK:           p.cfg.Ranking.TopK,
		Entities:       st.enc.Entities,
		Universe:       st.enc.Universe,
		Annotations:    st.dict.Annotations,
		Pairs:          st.pairs,
		ClusterCount:   len(st.clusters.Groups),
		Clusters:       st.clusters.Kept,
		Leaves:         st.clusters.Leaves,
		Merges:         st.clusters.Tree.Merges,
	}
}
