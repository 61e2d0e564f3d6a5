package cluster

import (
	"math"
	"strings"

	"github.com/TobiSchelling/herbtax/internal/core"
)

// Criterion decides how a threshold flattens the dendrogram.
type Criterion string

const (
	// CriterionDistance joins entities whose first common merge happened at a
	// distance <= threshold.
	CriterionDistance Criterion = "distance"
	// CriterionInconsistent keeps a subtree whole when no link inside it has
	// an inconsistency coefficient above the threshold.
	CriterionInconsistent Criterion = "inconsistent"
)

// DefaultCriterion is used when no criterion is configured.
const DefaultCriterion = CriterionDistance

// InconsistencyDepth is how many link levels feed each inconsistency
// coefficient: the link itself and its non-singleton children.
const InconsistencyDepth = 2

// ParseCriterion resolves a criterion name. Empty selects the default.
func ParseCriterion(s string) (Criterion, error) {
	switch c := Criterion(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return DefaultCriterion, nil
	case CriterionDistance, CriterionInconsistent:
		return c, nil
	default:
		return "", core.Invalid(stage, "unknown cut criterion %q", s)
	}
}

// Flatten cuts tree at threshold under criterion.
func Flatten(tree *Tree, criterion Criterion, threshold float64) ([]int, error) {
	switch criterion {
	case CriterionDistance:
		return Cut(tree, threshold)
	case CriterionInconsistent:
		return CutInconsistent(tree, threshold)
	default:
		return nil, core.Invalid(stage, "unsupported cut criterion %q", criterion)
	}
}

// Cut assigns flat cluster labels by cutting the dendrogram at threshold.
// Two entities share a label when the merge that first joins them happened at
// a distance <= threshold. Labels are 0.. in order of first entity.
func Cut(tree *Tree, threshold float64) ([]int, error) {
	if math.IsNaN(threshold) {
		return nil, core.Invalid(stage, "threshold is NaN")
	}
	n := tree.N

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}

	// leaf holds one entity from every dendrogram node, enough to union whole
	// subtrees through the entity-level parent array.
	leaf := make([]int, 2*n-1)
	for i := 0; i < n; i++ {
		leaf[i] = i
	}
	for step, m := range tree.Merges {
		leaf[n+step] = leaf[m.Left]
		if m.Distance <= threshold {
			ra, rb := find(parent, leaf[m.Left]), find(parent, leaf[m.Right])
			if ra != rb {
				parent[rb] = ra
			}
		}
	}

	groupOf := make([]int, n)
	for i := range groupOf {
		groupOf[i] = find(parent, i)
	}
	return relabel(groupOf), nil
}

// Inconsistency returns the inconsistency coefficient of every merge: how
// many standard deviations its height sits above the mean height of itself
// and its non-singleton children. Links whose heights do not vary score 0.
func Inconsistency(tree *Tree) []float64 {
	n := tree.N
	coef := make([]float64, len(tree.Merges))
	for s, m := range tree.Merges {
		sum, sumSq, count := m.Distance, m.Distance*m.Distance, 1.0
		for _, child := range []int{m.Left, m.Right} {
			if child >= n {
				h := tree.Merges[child-n].Distance
				sum += h
				sumSq += h * h
				count++
			}
		}
		if count < 2 {
			continue
		}
		variance := (sumSq - sum*sum/count) / (count - 1)
		if variance <= 0 {
			continue
		}
		coef[s] = (m.Distance - sum/count) / math.Sqrt(variance)
	}
	return coef
}

// CutInconsistent flattens tree so that each cluster is a maximal subtree
// whose largest inconsistency coefficient is <= threshold. Entities under no
// such subtree become singletons.
func CutInconsistent(tree *Tree, threshold float64) ([]int, error) {
	if math.IsNaN(threshold) {
		return nil, core.Invalid(stage, "threshold is NaN")
	}
	n := tree.N

	// Merges are stored children first, so one forward pass propagates the
	// subtree maximum.
	maxCoef := Inconsistency(tree)
	for s, m := range tree.Merges {
		for _, child := range []int{m.Left, m.Right} {
			if child >= n {
				maxCoef[s] = math.Max(maxCoef[s], maxCoef[child-n])
			}
		}
	}

	groupOf := make([]int, n)
	type frame struct{ id, group int }
	stack := []frame{{id: tree.Root(), group: -1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.id < n {
			if f.group < 0 {
				f.group = f.id
			}
			groupOf[f.id] = f.group
			continue
		}
		group := f.group
		if group < 0 && maxCoef[f.id-n] <= threshold {
			group = f.id
		}
		m := tree.Merges[f.id-n]
		stack = append(stack, frame{m.Right, group}, frame{m.Left, group})
	}
	return relabel(groupOf), nil
}

// relabel maps arbitrary group ids to 0.. in order of first entity.
func relabel(groupOf []int) []int {
	labels := make([]int, len(groupOf))
	labelMap := make(map[int]int)
	for i, g := range groupOf {
		id, ok := labelMap[g]
		if !ok {
			id = len(labelMap)
			labelMap[g] = id
		}
		labels[i] = id
	}
	return labels
}

// Members groups entity indices by label. Entry c lists the members of
// cluster c in ascending entity order.
func Members(labels []int) [][]int {
	var groups [][]int
	for i, l := range labels {
		for len(groups) <= l {
			groups = append(groups, nil)
		}
		groups[l] = append(groups[l], i)
	}
	return groups
}

// Leaves returns the entities in dendrogram order: a left-to-right walk from
// the root, smaller child first.
func Leaves(tree *Tree) []int {
	n := tree.N
	order := make([]int, 0, n)
	stack := []int{tree.Root()}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id < n {
			order = append(order, id)
			continue
		}
		m := tree.Merges[id-n]
		stack = append(stack, m.Right, m.Left)
	}
	return order
}
