package graph

import (
	"fmt"
	"math"
	"os"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// adjacencyDoc is the node/adjacency JSON shape produced by the upstream
// geospatial conversion tooling: a "nodes" array of attribute objects
// (including "id") and a parallel "adjacency" array of neighbor lists.
type adjacencyDoc struct {
	Directed  bool               `json:"directed"`
	Nodes     []map[string]any   `json:"nodes"`
	Adjacency [][]map[string]any `json:"adjacency"`
}

// LoadFile reads an adjacency-format graph from disk.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes an adjacency-format graph document.
func Parse(data []byte) (*Graph, error) {
	var doc adjacencyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode graph JSON: %w", err)
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("graph file contains no nodes")
	}
	if len(doc.Adjacency) != 0 && len(doc.Adjacency) != len(doc.Nodes) {
		return nil, fmt.Errorf("adjacency rows (%d) do not match node count (%d)",
			len(doc.Adjacency), len(doc.Nodes))
	}

	g := New()
	order := make([]string, len(doc.Nodes))
	for i, raw := range doc.Nodes {
		idVal, ok := raw["id"]
		if !ok {
			return nil, fmt.Errorf("node %d has no id", i)
		}
		id := normalizeID(idVal)
		attrs := make(map[string]any, len(raw))
		for k, v := range raw {
			if k == "id" {
				continue
			}
			attrs[k] = v
		}
		g.AddNode(id, attrs)
		order[i] = id
	}

	for i, nbrs := range doc.Adjacency {
		for _, nbr := range nbrs {
			idVal, ok := nbr["id"]
			if !ok {
				continue
			}
			g.AddEdge(order[i], normalizeID(idVal))
		}
	}

	return g, nil
}

// normalizeID renders a JSON node id (number or string) as a canonical
// string key. Integral floats lose the trailing ".0" so the same precinct
// keyed as 17 and "17" collapses to one node.
func normalizeID(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Preprocess runs the one-time cleanup pass before sampling or analysis:
// degree-zero islands are removed, the detected population and vote
// attributes are coerced to non-negative integers (malformed values become
// 0, with a logged count per attribute), and zero-population nodes are
// optionally dropped. After this the graph is immutable.
func Preprocess(g *Graph, f Fields, dropZeroPop bool, logger *zap.Logger) {
	log := logger.Named("graph")

	var islands []string
	for _, id := range g.Nodes() {
		if g.Degree(id) == 0 {
			islands = append(islands, id)
		}
	}
	if len(islands) > 0 {
		log.Info("Removing island nodes", zap.Int("count", len(islands)))
		g.RemoveNodes(islands)
	}

	var patchedPop, patchedDem, patchedRep int
	for _, id := range g.Nodes() {
		patchedPop += coerceAttr(g, id, f.Pop)
		patchedDem += coerceAttr(g, id, f.Dem)
		patchedRep += coerceAttr(g, id, f.Rep)
	}
	if patchedPop > 0 || patchedDem > 0 || patchedRep > 0 {
		log.Info("Patched non-numeric attribute values to zero",
			zap.Int("pop", patchedPop),
			zap.Int("dem", patchedDem),
			zap.Int("rep", patchedRep),
		)
	}

	if dropZeroPop {
		var zeros []string
		for _, id := range g.Nodes() {
			if g.Number(id, f.Pop) == 0 {
				zeros = append(zeros, id)
			}
		}
		if len(zeros) > 0 {
			log.Info("Dropping zero-population nodes", zap.Int("count", len(zeros)))
			g.RemoveNodes(zeros)
		}
	}
}

// coerceAttr normalizes one attribute in place, returning 1 if the value
// was missing or malformed and had to be patched to zero.
func coerceAttr(g *Graph, id, key string) int {
	v, ok := coerceNumeric(g.Attr(id, key))
	g.SetAttr(id, key, math.Round(v))
	if !ok {
		return 1
	}
	return 0
}
