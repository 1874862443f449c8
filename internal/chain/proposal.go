package chain

import (
	"math/rand"

	"github.com/xkilldash9x/ensemble-cli/internal/graph"
	"github.com/xkilldash9x/ensemble-cli/internal/plan"
)

// boundaryFlipAttempts bounds the engine's own search effort before it
// reports ErrNoCandidate.
const boundaryFlipAttempts = 64

// BoundaryFlip is the bundled proposal engine: it reassigns one random
// boundary node to a neighboring district. It is deliberately naive (no
// recombination) but conforms to the ProposalEngine contract, which makes
// it useful for tests, demos, and small graphs. Production runs are
// expected to inject an external recombination engine instead.
type BoundaryFlip struct {
	graph *graph.Graph
}

// NewBoundaryFlip builds the engine over the run's graph.
func NewBoundaryFlip(g *graph.Graph) *BoundaryFlip {
	return &BoundaryFlip{graph: g}
}

// Name identifies the engine in logs and run metadata.
func (e *BoundaryFlip) Name() string { return "boundary-flip" }

// Propose returns a new assignment with one boundary node moved into an
// adjacent district. The donor district is never emptied. Population
// balance is not checked here; that is the chain's constraint set.
// The epsilon tolerance is unused by this engine but kept by richer ones.
func (e *BoundaryFlip) Propose(rng *rand.Rand, current plan.Assignment, _ float64) (plan.Assignment, error) {
	nodes := e.graph.Nodes()
	if len(nodes) == 0 {
		return nil, ErrNoCandidate
	}

	sizes := make(map[int]int)
	for _, d := range current {
		sizes[d]++
	}

	for attempt := 0; attempt < boundaryFlipAttempts; attempt++ {
		node := nodes[rng.Intn(len(nodes))]
		home, ok := current[node]
		if !ok || sizes[home] <= 1 {
			continue
		}

		// Collect neighboring districts other than the node's own.
		var targets []int
		seen := map[int]bool{home: true}
		for _, nbr := range e.graph.Neighbors(node) {
			if d, ok := current[nbr]; ok && !seen[d] {
				seen[d] = true
				targets = append(targets, d)
			}
		}
		if len(targets) == 0 {
			continue
		}

		next := current.Clone()
		next[node] = targets[rng.Intn(len(targets))]
		return next, nil
	}

	return nil, ErrNoCandidate
}
