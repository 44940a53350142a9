// Package ch implements Contraction Hierarchies preprocessing: node
// ordering by edge-difference priority, batch witness search,
// and shortcut-edge construction. A shortcut is represented the same way
// as any other edge — it carries real metric values (the sum of its two
// children's values) and a pair of child edge indices recording what it
// contracts, so the router's cost function and CH-restricted search both
// work on shortcuts without special-casing them.
package ch

import (
	"container/heap"
	"log"
	"sort"

	"osmgraph/pkg/cost"
	"osmgraph/pkg/graph"
)

// maxShortcutsPerNode is the limit on shortcuts a single contraction can
// create. Nodes exceeding this form an uncontracted "core" at the top of
// the hierarchy.
const maxShortcutsPerNode = 1000

// adjEntry is an edge in the mutable contraction adjacency list: `to` is
// the neighbor node, `edge` is the index into the builder's growing edge
// arrays (original or previously created shortcut).
type adjEntry struct {
	to   uint32
	edge uint32
}

// shortcut is a candidate shortcut edge discovered by witness search.
type shortcut struct {
	from, to     uint32
	childA, childB uint32
}

// builder accumulates the contracted graph's edge arrays: the original
// edges plus every shortcut created during contraction.
type builder struct {
	cf        cost.Function
	src, dst  []uint32
	extEdgeID []int64
	metrics   [][]float64
	childA    []int32
	childB    []int32
}

func newBuilder(g *graph.Graph, cf cost.Function) *builder {
	numCols := len(g.Metrics)
	b := &builder{
		cf:        cf,
		src:       append([]uint32(nil), g.Src...),
		dst:       append([]uint32(nil), g.Dst...),
		extEdgeID: append([]int64(nil), g.ExtEdgeID...),
		metrics:   make([][]float64, numCols),
		childA:    make([]int32, g.NumEdges),
		childB:    make([]int32, g.NumEdges),
	}
	for c := 0; c < numCols; c++ {
		b.metrics[c] = append([]float64(nil), g.Metrics[c]...)
	}
	for i := range b.childA {
		b.childA[i] = graph.NoShortcut
		b.childB[i] = graph.NoShortcut
	}
	return b
}

// weight evaluates the cost function on edge e directly against the
// builder's growing metric columns.
func (b *builder) weight(e uint32) float64 {
	var total float64
	for _, t := range b.cf.Terms {
		total += t.Weight * b.metrics[t.Column][e]
	}
	return total
}

// addShortcut appends a new edge representing childA followed by childB,
// with every metric column summed from its children, and returns its
// edge index.
func (b *builder) addShortcut(from, to, childA, childB uint32) uint32 {
	e := uint32(len(b.src))
	b.src = append(b.src, from)
	b.dst = append(b.dst, to)
	b.extEdgeID = append(b.extEdgeID, -1)
	for c := range b.metrics {
		b.metrics[c] = append(b.metrics[c], b.metrics[c][childA]+b.metrics[c][childB])
	}
	b.childA = append(b.childA, int32(childA))
	b.childB = append(b.childB, int32(childB))
	return e
}

// Contract performs Contraction Hierarchies preprocessing on g under cf
// and returns a new Graph carrying the original edges, every shortcut
// created, and per-node contraction levels.
func Contract(g *graph.Graph, cf cost.Function) *graph.Graph {
	n := g.NumNodes
	if n == 0 {
		return &graph.Graph{Registry: g.Registry}
	}

	b := newBuilder(g, cf)

	outAdj := make([][]adjEntry, n)
	inAdj := make([][]adjEntry, n)
	for u := uint32(0); u < n; u++ {
		start, end := g.EdgesFrom(u)
		for pos := start; pos < end; pos++ {
			e := g.AdjF[pos]
			v := g.Dst[e]
			outAdj[u] = append(outAdj[u], adjEntry{to: v, edge: e})
			inAdj[v] = append(inAdj[v], adjEntry{to: u, edge: e})
		}
	}

	contracted := make([]bool, n)
	levels := make([]uint32, n)
	contractedNeighbors := make([]int, n)
	levelHeur := make([]int, n)

	pq := make(priorityQueue, n)
	for i := uint32(0); i < n; i++ {
		pq[i] = &pqEntry{
			node:     i,
			priority: computePriority(b, outAdj, inAdj, i, contracted, contractedNeighbors[i], levelHeur[i]),
			index:    int(i),
		}
	}
	heap.Init(&pq)

	ws := newWitnessState(n)

	log.Printf("Starting contraction of %d nodes...", n)

	var totalShortcuts int
	order := uint32(0)
	logInterval := uint32(50000)

	for pq.Len() > 0 {
		entry := heap.Pop(&pq).(*pqEntry)
		node := entry.node

		if contracted[node] {
			continue
		}

		newPriority := computePriority(b, outAdj, inAdj, node, contracted, contractedNeighbors[node], levelHeur[node])
		if newPriority > entry.priority && pq.Len() > 0 && newPriority > pq[0].priority {
			entry.priority = newPriority
			heap.Push(&pq, entry)
			continue
		}

		shortcuts := findShortcuts(b, ws, outAdj, inAdj, node, contracted)

		if len(shortcuts) > maxShortcutsPerNode {
			log.Printf("Stopping contraction: node %d would create %d shortcuts (limit %d). %d nodes remain in core.",
				node, len(shortcuts), maxShortcutsPerNode, n-order)
			break
		}

		contracted[node] = true
		levels[node] = order
		order++
		totalShortcuts += len(shortcuts)

		for _, sc := range shortcuts {
			newEdge := b.addShortcut(sc.from, sc.to, sc.childA, sc.childB)
			outAdj[sc.from] = append(outAdj[sc.from], adjEntry{to: sc.to, edge: newEdge})
			inAdj[sc.to] = append(inAdj[sc.to], adjEntry{to: sc.from, edge: newEdge})
		}

		for _, e := range outAdj[node] {
			if !contracted[e.to] {
				contractedNeighbors[e.to]++
				if levelHeur[node]+1 > levelHeur[e.to] {
					levelHeur[e.to] = levelHeur[node] + 1
				}
			}
		}
		for _, e := range inAdj[node] {
			if !contracted[e.to] {
				contractedNeighbors[e.to]++
				if levelHeur[node]+1 > levelHeur[e.to] {
					levelHeur[e.to] = levelHeur[node] + 1
				}
			}
		}

		remaining := n - order
		switch {
		case remaining < 1000:
			logInterval = 100
		case remaining < 10000:
			logInterval = 1000
		case remaining < 100000:
			logInterval = 10000
		default:
			logInterval = 50000
		}
		if order%logInterval == 0 {
			log.Printf("Contracted %d/%d nodes, %d shortcuts so far", order, n, totalShortcuts)
		}
	}

	for i := uint32(0); i < n; i++ {
		if !contracted[i] {
			contracted[i] = true
			levels[i] = order
			order++
		}
	}

	log.Printf("Contraction complete: %d shortcuts created (%.1fx original edges)",
		totalShortcuts, float64(totalShortcuts)/float64(g.NumEdges))

	return b.finalize(g, levels)
}

// findShortcuts determines which shortcuts are needed when contracting a
// node. Uses batch witness search: one Dijkstra per incoming neighbor
// instead of one per (incoming, outgoing) pair, reducing search count
// from O(|in|*|out|) to O(|in|).
func findShortcuts(b *builder, ws *witnessState, outAdj, inAdj [][]adjEntry, node uint32, contracted []bool) []shortcut {
	var incoming, outgoing []adjEntry
	for _, e := range inAdj[node] {
		if !contracted[e.to] {
			incoming = append(incoming, e)
		}
	}
	for _, e := range outAdj[node] {
		if !contracted[e.to] {
			outgoing = append(outgoing, e)
		}
	}
	if len(incoming) == 0 || len(outgoing) == 0 {
		return nil
	}

	var shortcuts []shortcut
	for _, in := range incoming {
		inWeight := b.weight(in.edge)

		var maxOut float64
		for _, out := range outgoing {
			if out.to != in.to {
				if w := b.weight(out.edge); w > maxOut {
					maxOut = w
				}
			}
		}
		if maxOut == 0 {
			continue
		}

		maxWeight := inWeight + maxOut
		batchWitnessSearch(b, ws, outAdj, in.to, node, maxWeight, contracted)

		for _, out := range outgoing {
			if out.to == in.to {
				continue
			}
			scWeight := inWeight + b.weight(out.edge)
			if ws.dist[out.to] > scWeight {
				shortcuts = append(shortcuts, shortcut{
					from:   in.to,
					to:     out.to,
					childA: in.edge,
					childB: out.edge,
				})
			}
		}
	}
	return shortcuts
}

// computePriority returns the priority for a node (lower = contract first).
func computePriority(b *builder, outAdj, inAdj [][]adjEntry, node uint32, contracted []bool, contractedNeighbors, level int) int {
	activeIn := 0
	for _, e := range inAdj[node] {
		if !contracted[e.to] {
			activeIn++
		}
	}
	activeOut := 0
	for _, e := range outAdj[node] {
		if !contracted[e.to] {
			activeOut++
		}
	}
	edgeDifference := activeIn*activeOut - (activeIn + activeOut)
	return edgeDifference + 2*contractedNeighbors + level
}

// finalize builds the final Graph: original node coordinates and
// registry, the complete edge set (original + shortcuts), recomputed
// forward/backward CSR over all of it, and the contraction levels.
func (b *builder) finalize(orig *graph.Graph, levels []uint32) *graph.Graph {
	n := orig.NumNodes
	numEdges := uint32(len(b.src))

	offF := make([]uint32, n+1)
	for _, s := range b.src {
		offF[s+1]++
	}
	for i := uint32(1); i <= n; i++ {
		offF[i] += offF[i-1]
	}
	adjF := make([]uint32, numEdges)
	pos := make([]uint32, n)
	copy(pos, offF[:n])
	for e := uint32(0); e < numEdges; e++ {
		s := b.src[e]
		adjF[pos[s]] = e
		pos[s]++
	}
	for s := uint32(0); s < n; s++ {
		sort.Slice(adjF[offF[s]:offF[s+1]], func(i, j int) bool {
			return b.dst[adjF[offF[s]:offF[s+1]][i]] < b.dst[adjF[offF[s]:offF[s+1]][j]]
		})
	}

	offB := make([]uint32, n+1)
	for _, d := range b.dst {
		offB[d+1]++
	}
	for i := uint32(1); i <= n; i++ {
		offB[i] += offB[i-1]
	}
	adjB := make([]uint32, numEdges)
	posB := make([]uint32, n)
	copy(posB, offB[:n])
	for e := uint32(0); e < numEdges; e++ {
		d := b.dst[e]
		adjB[posB[d]] = e
		posB[d]++
	}
	for d := uint32(0); d < n; d++ {
		sort.Slice(adjB[offB[d]:offB[d+1]], func(i, j int) bool {
			return b.src[adjB[offB[d]:offB[d+1]][i]] < b.src[adjB[offB[d]:offB[d+1]][j]]
		})
	}

	fwdToBwd := make([]uint32, numEdges)
	for bpos, e := range adjB {
		fwdToBwd[e] = uint32(bpos)
	}

	return &graph.Graph{
		NumNodes:  n,
		NumEdges:  numEdges,
		OffF:      offF,
		AdjF:      adjF,
		OffB:      offB,
		AdjB:      adjB,
		FwdToBwd:  fwdToBwd,
		Src:       b.src,
		Dst:       b.dst,
		ExtEdgeID: b.extEdgeID,
		Metrics:   b.metrics,
		Registry:  orig.Registry,
		NodeExtID: orig.NodeExtID,
		NodeLat:   orig.NodeLat,
		NodeLon:   orig.NodeLon,
		Levels:    levels,
		ShortcutA: b.childA,
		ShortcutB: b.childB,
	}
}

// Priority queue implementation for contraction ordering.

type pqEntry struct {
	node     uint32
	priority int
	index    int
}

type priorityQueue []*pqEntry

func (pq priorityQueue) Len() int           { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool { return pq[i].priority < pq[j].priority }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	entry := x.(*pqEntry)
	entry.index = len(*pq)
	*pq = append(*pq, entry)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*pq = old[:n-1]
	return entry
}
