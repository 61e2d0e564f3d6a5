// Package report writes a finished run to its output directory.
package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/herbtax/internal/cluster"
	"github.com/TobiSchelling/herbtax/internal/ingest"
	"github.com/TobiSchelling/herbtax/internal/rank"
)

// Output file names inside a run directory.
const (
	PairsFile    = "most_similar_herbs.txt"
	ClustersFile = "dendrogram_clusters.txt"
	LeavesFile   = "dendrogram_leaves.txt"
	JSONFile     = "result.json"
	SummaryFile  = "summary.md"
)

// Run is everything a finished run produced.
type Run struct {
	ID             string
	Source         string
	CreatedAt      time.Time
	Metric         string
	Linkage        string
	Criterion      string
	Threshold      float64
	MinClusterSize int
	TopK           int

	Entities    []string
	Universe    []string
	Annotations map[string]ingest.Annotation

	Pairs        []rank.Pair
	ClusterCount int     // flat clusters before the size filter
	Clusters     [][]int // clusters with at least MinClusterSize members
	Leaves       []int
	Merges       []cluster.Merge
}

// WritePairs writes the ranked pair table.
func WritePairs(w io.Writer, pairs []rank.Pair) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "herb_1\therb_2\tshared_symptoms\tdistance")
	for _, p := range pairs {
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\n", p.EntityI, p.EntityJ, strings.Join(p.Shared, ","), formatDistance(p.Distance))
	}
	return bw.Flush()
}

// WriteClusters writes one tab-separated line of member names per cluster.
func WriteClusters(w io.Writer, entities []string, clusters [][]int) error {
	bw := bufio.NewWriter(w)
	for _, members := range clusters {
		names := make([]string, len(members))
		for i, m := range members {
			names[i] = entities[m]
		}
		fmt.Fprintln(bw, strings.Join(names, "\t"))
	}
	return bw.Flush()
}

// WriteLeaves writes one "name<TAB>index" line per entity in leaf order.
func WriteLeaves(w io.Writer, entities []string, leaves []int) error {
	bw := bufio.NewWriter(w)
	for _, leaf := range leaves {
		fmt.Fprintf(bw, "%s\t%d\n", entities[leaf], leaf)
	}
	return bw.Flush()
}

func formatDistance(d float64) string {
	return strconv.FormatFloat(d, 'g', -1, 64)
}

// WriteAll writes every output file of run into dir and returns the paths
// written. Files are written concurrently; the first failure cancels the
// rest.
func WriteAll(ctx context.Context, dir string, run *Run) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{PairsFile, func(w io.Writer) error { return WritePairs(w, run.Pairs) }},
		{ClustersFile, func(w io.Writer) error { return WriteClusters(w, run.Entities, run.Clusters) }},
		{LeavesFile, func(w io.Writer) error { return WriteLeaves(w, run.Entities, run.Leaves) }},
		{JSONFile, func(w io.Writer) error { return WriteJSON(w, run) }},
		{SummaryFile, func(w io.Writer) error {
			_, err := io.WriteString(w, Summary(run))
			return err
		}},
	}

	g, ctx := errgroup.WithContext(ctx)
	paths := make([]string, len(writers))
	for i, wr := range writers {
		path := filepath.Join(dir, wr.name)
		paths[i] = path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writeFile(path, wr.write)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("outputs written", "dir", dir, "files", len(paths))
	return paths, nil
}

// writeFile writes through a temp file so a failed run never leaves a
// truncated output behind.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}
