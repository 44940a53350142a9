// Package graph implements the compact, immutable, cache-friendly
// multi-metric routing graph: compressed-sparse-row
// adjacency in both directions, column-major per-edge metrics, and
// optional Contraction-Hierarchies augmentation (node levels, shortcut
// child pairs).
package graph

import "osmgraph/pkg/metric"

// NoNode is the sentinel for "no node".
const NoNode = ^uint32(0)

// NoShortcut marks an edge as original (not a contraction shortcut).
const NoShortcut = int32(-1)

// Graph is a directed multigraph in CSR form with column-major per-edge
// metrics. It is built once by Build and is read-only afterward;
// concurrent queries share one Graph without synchronization.
type Graph struct {
	NumNodes uint32
	NumEdges uint32

	// Forward adjacency: OffF[u]..OffF[u+1] indexes into AdjF, which
	// holds edge indices sorted by (src, dst).
	OffF []uint32
	AdjF []uint32

	// Backward adjacency: the transpose, sorted by (dst, src).
	OffB []uint32
	AdjB []uint32

	// FwdToBwd[i] gives the position in AdjB of the edge found at AdjF[i].
	FwdToBwd []uint32

	Src []uint32
	Dst []uint32
	// ExtEdgeID holds the caller-supplied external edge id, or -1 if none.
	ExtEdgeID []int64

	// Metrics is column-major: Metrics[col][e] is the value of metric
	// `col` on edge e. len(Metrics) == Registry.Len().
	Metrics  [][]float64
	Registry *metric.Registry

	NodeExtID []int64
	NodeLat   []float64
	NodeLon   []float64

	// Levels holds the CH contraction rank per node, or nil if CH is not
	// in use. ShortcutA/ShortcutB hold the pair of child edge indices a
	// shortcut contracts, or NoShortcut for an original edge.
	Levels    []uint32
	ShortcutA []int32
	ShortcutB []int32
}

// HasCH reports whether this graph carries Contraction-Hierarchies
// augmentation.
func (g *Graph) HasCH() bool { return g.Levels != nil }

// IsShortcut reports whether edge e is a CH shortcut.
func (g *Graph) IsShortcut(e uint32) bool {
	return g.ShortcutA != nil && g.ShortcutA[e] != NoShortcut
}

// EdgesFrom returns the [start, end) range into AdjF for node u's
// outgoing edges.
func (g *Graph) EdgesFrom(u uint32) (start, end uint32) {
	return g.OffF[u], g.OffF[u+1]
}

// EdgesTo returns the [start, end) range into AdjB for node u's incoming
// edges.
func (g *Graph) EdgesTo(u uint32) (start, end uint32) {
	return g.OffB[u], g.OffB[u+1]
}

// Column returns the column index for a registered metric id.
func (g *Graph) Column(id string) (int, bool) {
	return g.Registry.Column(id)
}

// Metric returns the value of column `col` on edge e.
func (g *Graph) Metric(col int, e uint32) float64 {
	return g.Metrics[col][e]
}
