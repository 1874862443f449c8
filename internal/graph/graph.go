// Package graph loads and holds the immutable precinct adjacency graph a
// chain run or analysis pass works over. The graph is owned exclusively by
// whichever component loaded it and is never mutated after preprocessing.
package graph

import (
	stdjson "encoding/json"
	"sort"
	"strconv"
)

// Graph is an undirected adjacency graph with per-node attribute maps.
// Node identifiers are strings; numeric ids from the source file are
// normalized at load time.
type Graph struct {
	ids   []string
	attrs map[string]map[string]any
	adj   map[string][]string
}

// New builds an empty graph. Used by tests and the loader.
func New() *Graph {
	return &Graph{
		attrs: make(map[string]map[string]any),
		adj:   make(map[string][]string),
	}
}

// AddNode inserts a node with its attribute map. Adding an existing node
// replaces its attributes.
func (g *Graph) AddNode(id string, attrs map[string]any) {
	if _, ok := g.attrs[id]; !ok {
		g.ids = append(g.ids, id)
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	g.attrs[id] = attrs
}

// AddEdge inserts an undirected edge. Both endpoints must already exist;
// unknown endpoints are ignored so a malformed adjacency row cannot
// invent nodes.
func (g *Graph) AddEdge(a, b string) {
	if _, ok := g.attrs[a]; !ok {
		return
	}
	if _, ok := g.attrs[b]; !ok {
		return
	}
	for _, n := range g.adj[a] {
		if n == b {
			return
		}
	}
	g.adj[a] = append(g.adj[a], b)
	g.adj[b] = append(g.adj[b], a)
}

// Nodes returns the node ids in a stable sorted order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	sort.Strings(out)
	return out
}

// NumNodes returns the node count.
func (g *Graph) NumNodes() int { return len(g.ids) }

// NumEdges returns the undirected edge count.
func (g *Graph) NumEdges() int {
	total := 0
	for _, nbrs := range g.adj {
		total += len(nbrs)
	}
	return total / 2
}

// HasNode reports whether id is present.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.attrs[id]
	return ok
}

// Neighbors returns the adjacency list of id.
func (g *Graph) Neighbors(id string) []string { return g.adj[id] }

// Degree returns the number of edges incident to id.
func (g *Graph) Degree(id string) int { return len(g.adj[id]) }

// Attr returns a raw attribute value, or nil when absent.
func (g *Graph) Attr(id, key string) any {
	a, ok := g.attrs[id]
	if !ok {
		return nil
	}
	return a[key]
}

// SetAttr overwrites one attribute on an existing node. Only the one-time
// coercion pass in Preprocess uses this.
func (g *Graph) SetAttr(id, key string, v any) {
	if a, ok := g.attrs[id]; ok {
		a[key] = v
	}
}

// HasAttr reports whether the node carries the attribute key at all.
func (g *Graph) HasAttr(id, key string) bool {
	a, ok := g.attrs[id]
	if !ok {
		return false
	}
	_, ok = a[key]
	return ok
}

// Number returns an attribute as float64, coercing strings and integer
// types; anything non-numeric (including NaN spellings) comes back as 0.
func (g *Graph) Number(id, key string) float64 {
	v, _ := coerceNumeric(g.Attr(id, key))
	return v
}

// RemoveNodes drops the given nodes and every edge touching them.
func (g *Graph) RemoveNodes(ids []string) {
	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}
	kept := g.ids[:0]
	for _, id := range g.ids {
		if doomed[id] {
			delete(g.attrs, id)
			delete(g.adj, id)
			continue
		}
		kept = append(kept, id)
	}
	g.ids = kept
	for id, nbrs := range g.adj {
		filtered := nbrs[:0]
		for _, n := range nbrs {
			if !doomed[n] {
				filtered = append(filtered, n)
			}
		}
		g.adj[id] = filtered
	}
}

// coerceNumeric converts an attribute value to float64. The second return
// reports whether the value was genuinely numeric; false means the caller
// got the zero fallback.
func coerceNumeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if x != x { // NaN
			return 0, false
		}
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case stdjson.Number:
		f, err := x.Float64()
		if err != nil || f != f {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil || f != f {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
