package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// summaryPairs is how many ranked pairs the summary lists.
const summaryPairs = 10

// Summary renders a markdown overview of run.
func Summary(run *Run) string {
	var sections []string

	sections = append(sections, fmt.Sprintf("# Run %s\n\n%s from `%s`",
		shortID(run.ID), run.CreatedAt.UTC().Format("2006-01-02 15:04 MST"), run.Source))

	sections = append(sections, strings.Join([]string{
		"## Parameters",
		"",
		"| Setting | Value |",
		"| --- | --- |",
		fmt.Sprintf("| Herbs | %s |", humanize.Comma(int64(len(run.Entities)))),
		fmt.Sprintf("| Symptoms | %s |", humanize.Comma(int64(len(run.Universe)))),
		fmt.Sprintf("| Metric | %s |", run.Metric),
		fmt.Sprintf("| Linkage | %s |", run.Linkage),
		fmt.Sprintf("| Cut | %s at %s |", run.Criterion, formatDistance(run.Threshold)),
		fmt.Sprintf("| Minimum cluster size | %d |", run.MinClusterSize),
	}, "\n"))

	sections = append(sections, pairsSection(run))
	sections = append(sections, clustersSection(run))

	return strings.Join(sections, "\n\n") + "\n"
}

func pairsSection(run *Run) string {
	if len(run.Pairs) == 0 {
		return "## Most similar herbs\n\nNo pairs with a nonzero distance."
	}

	lines := []string{
		fmt.Sprintf("## Most similar herbs\n\nTop %d of %d ranked pairs.\n", min(summaryPairs, len(run.Pairs)), len(run.Pairs)),
		"| Herb | Herb | Shared symptoms | Distance |",
		"| --- | --- | --- | --- |",
	}
	for _, p := range run.Pairs[:min(summaryPairs, len(run.Pairs))] {
		shared := strings.Join(p.Shared, ", ")
		if shared == "" {
			shared = "none"
		}
		lines = append(lines, fmt.Sprintf("| %s | %s | %s | %.4f |", p.EntityI, p.EntityJ, shared, p.Distance))
	}
	return strings.Join(lines, "\n")
}

func clustersSection(run *Run) string {
	header := fmt.Sprintf("## Clusters\n\n%d of %d flat clusters have at least %d members.",
		len(run.Clusters), run.ClusterCount, run.MinClusterSize)
	if len(run.Clusters) == 0 {
		return header
	}

	var items []string
	for i, members := range run.Clusters {
		names := make([]string, len(members))
		for j, m := range members {
			names[j] = run.Entities[m]
		}
		items = append(items, fmt.Sprintf("%d. **%d herbs**: %s", i+1, len(members), strings.Join(names, ", ")))
	}
	return header + "\n\n" + strings.Join(items, "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
