package graph

import "sort"

// UnionFind implements a disjoint-set data structure with path compression
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte // byte is sufficient — max rank ~30 for realistic graphs
	size   []uint32
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range n {
		parent[i] = i
		size[i] = 1
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
		size:   size,
	}
}

// Find returns the representative of the set containing x, with path halving.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}

	// Union by rank.
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// LargestComponent returns the node indices belonging to the largest
// weakly connected component (treating the directed graph as undirected).
func LargestComponent(g *Graph) []uint32 {
	if g.NumNodes == 0 {
		return nil
	}

	uf := NewUnionFind(g.NumNodes)

	for e := uint32(0); e < g.NumEdges; e++ {
		uf.Union(g.Src[e], g.Dst[e])
	}

	bestRoot := uint32(0)
	bestSize := uint32(0)
	for i := uint32(0); i < g.NumNodes; i++ {
		root := uf.Find(i)
		if uf.size[root] > bestSize {
			bestRoot = root
			bestSize = uf.size[root]
		}
	}

	nodes := make([]uint32, 0, bestSize)
	for i := uint32(0); i < g.NumNodes; i++ {
		if uf.Find(i) == bestRoot {
			nodes = append(nodes, i)
		}
	}

	return nodes
}

// FilterToComponent creates a new graph containing only the specified
// nodes and the edges fully within them, preserving every metric column.
// CH augmentation is dropped — a node subset invalidates contraction
// levels and shortcut child indices, so callers must re-contract after
// filtering.
func FilterToComponent(g *Graph, nodes []uint32) *Graph {
	if len(nodes) == 0 {
		return &Graph{Registry: g.Registry}
	}

	oldToNew := make(map[uint32]uint32, len(nodes))
	for newIdx, oldIdx := range nodes {
		oldToNew[oldIdx] = uint32(newIdx)
	}

	numNodes := uint32(len(nodes))
	numCols := len(g.Metrics)

	type kept struct {
		from, to  uint32
		extEdgeID int64
		values    []float64
	}
	var edges []kept

	for _, oldU := range nodes {
		start, end := g.EdgesFrom(oldU)
		for pos := start; pos < end; pos++ {
			e := g.AdjF[pos]
			oldV := g.Dst[e]
			newV, ok := oldToNew[oldV]
			if !ok {
				continue
			}
			values := make([]float64, numCols)
			for c := 0; c < numCols; c++ {
				values[c] = g.Metrics[c][e]
			}
			edges = append(edges, kept{
				from:      oldToNew[oldU],
				to:        newV,
				extEdgeID: g.ExtEdgeID[e],
				values:    values,
			})
		}
	}

	numEdges := uint32(len(edges))
	offF := make([]uint32, numNodes+1)
	for _, e := range edges {
		offF[e.from+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		offF[i] += offF[i-1]
	}

	adjF := make([]uint32, numEdges)
	src := make([]uint32, numEdges)
	dst := make([]uint32, numEdges)
	extEdgeID := make([]int64, numEdges)
	metrics := make([][]float64, numCols)
	for c := range metrics {
		metrics[c] = make([]float64, numEdges)
	}

	pos := make([]uint32, numNodes)
	copy(pos, offF[:numNodes])
	for i, e := range edges {
		idx := pos[e.from]
		adjF[idx] = idx
		src[idx] = e.from
		dst[idx] = e.to
		extEdgeID[idx] = e.extEdgeID
		for c := 0; c < numCols; c++ {
			metrics[c][idx] = edges[i].values[c]
		}
		pos[e.from]++
	}

	offB := make([]uint32, numNodes+1)
	for _, d := range dst {
		offB[d+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		offB[i] += offB[i-1]
	}
	adjB := make([]uint32, numEdges)
	for i := range adjB {
		adjB[i] = uint32(i)
	}
	sortByDst(adjB, src, dst)
	fwdToBwd := make([]uint32, numEdges)
	for bPos, e := range adjB {
		fwdToBwd[e] = uint32(bPos)
	}

	nodeExtID := make([]int64, numNodes)
	nodeLat := make([]float64, numNodes)
	nodeLon := make([]float64, numNodes)
	for newIdx, oldIdx := range nodes {
		nodeExtID[newIdx] = g.NodeExtID[oldIdx]
		nodeLat[newIdx] = g.NodeLat[oldIdx]
		nodeLon[newIdx] = g.NodeLon[oldIdx]
	}

	return &Graph{
		NumNodes:  numNodes,
		NumEdges:  numEdges,
		OffF:      offF,
		AdjF:      adjF,
		OffB:      offB,
		AdjB:      adjB,
		FwdToBwd:  fwdToBwd,
		Src:       src,
		Dst:       dst,
		ExtEdgeID: extEdgeID,
		Metrics:   metrics,
		Registry:  g.Registry,
		NodeExtID: nodeExtID,
		NodeLat:   nodeLat,
		NodeLon:   nodeLon,
	}
}

// sortByDst orders adjB (edge indices) by (dst, src) in place.
func sortByDst(adjB, src, dst []uint32) {
	sort.Slice(adjB, func(i, j int) bool {
		ei, ej := adjB[i], adjB[j]
		if dst[ei] != dst[ej] {
			return dst[ei] < dst[ej]
		}
		return src[ei] < src[ej]
	})
}
