// Package plan holds the district assignment type shared by the sampler and
// the analyzer, plus the tally-aggregation and contiguity routines that both
// paths use so generation-time and analysis-time numbers come from one
// algorithm.
package plan

import (
	"fmt"
	"sort"

	"github.com/xkilldash9x/ensemble-cli/internal/graph"
)

// Assignment is a total mapping from every graph node to one district id.
// An Assignment is immutable once produced; a chain step builds a brand-new
// one rather than mutating its predecessor.
type Assignment map[string]int

// Clone returns an independent copy.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Districts returns the sorted set of district ids derived from the
// assignment's values. There is no externally fixed district count.
func (a Assignment) Districts() []int {
	seen := make(map[int]bool)
	for _, d := range a {
		seen[d] = true
	}
	out := make([]int, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// FromSeedColumn builds the chain's starting assignment from a detected
// seed-assignment attribute. Every node must carry a numeric district id.
func FromSeedColumn(g *graph.Graph, key string) (Assignment, error) {
	a := make(Assignment, g.NumNodes())
	for _, id := range g.Nodes() {
		if !g.HasAttr(id, key) {
			return nil, fmt.Errorf("node %s has no %s attribute", id, key)
		}
		a[id] = int(g.Number(id, key))
	}
	return a, nil
}

// DistrictTally aggregates one district's vote and population totals.
// Tallies are derived data: recomputed fresh from graph + assignment
// whenever needed, never cached across generation and analysis.
type DistrictTally struct {
	Dem float64
	Rep float64
	Pop float64
}

// TwoParty returns the combined two-party total.
func (t DistrictTally) TwoParty() float64 { return t.Dem + t.Rep }

// Tally maps district id to its aggregated totals.
type Tally map[int]DistrictTally

// Aggregate sums the detected vote and population attributes per district.
// Assignment entries for nodes absent from the graph are skipped, so an
// ensemble recorded against a slightly larger graph still analyzes cleanly.
func Aggregate(g *graph.Graph, f graph.Fields, a Assignment) Tally {
	tally := make(Tally)
	for node, dist := range a {
		if !g.HasNode(node) {
			continue
		}
		t := tally[dist]
		t.Dem += g.Number(node, f.Dem)
		t.Rep += g.Number(node, f.Rep)
		t.Pop += g.Number(node, f.Pop)
		tally[dist] = t
	}
	return tally
}

// Contiguous reports whether every district in the assignment induces a
// non-empty, single connected component on the graph. Pure function,
// O(nodes+edges); the sampler records the result but never rejects on it.
func Contiguous(g *graph.Graph, a Assignment) bool {
	members := make(map[int][]string)
	for node, dist := range a {
		if g.HasNode(node) {
			members[dist] = append(members[dist], node)
		}
	}
	if len(members) == 0 {
		return false
	}
	for _, nodes := range members {
		if !connected(g, a, nodes) {
			return false
		}
	}
	return true
}

// connected runs a BFS from the first member, restricted to edges whose
// endpoints share the member set's district.
func connected(g *graph.Graph, a Assignment, nodes []string) bool {
	if len(nodes) == 0 {
		return false
	}
	dist := a[nodes[0]]
	visited := map[string]bool{nodes[0]: true}
	queue := []string{nodes[0]}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nbr := range g.Neighbors(cur) {
			if visited[nbr] {
				continue
			}
			if d, ok := a[nbr]; !ok || d != dist {
				continue
			}
			visited[nbr] = true
			queue = append(queue, nbr)
		}
	}
	return len(visited) == len(nodes)
}
