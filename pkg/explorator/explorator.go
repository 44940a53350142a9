// Package explorator enumerates up to K distinct, admissible paths
// between two nodes: a multi-criteria labeling search that
// keeps, per node, a Pareto-frontier of non-dominated
// (cost_primary, cost_m1, …, cost_mk) tuples instead of a single best
// distance, pruned by the tolerance bound τ_m·best_m(s,t) on each
// constrained metric. A global candidate heap pops the cheapest
// unexpanded label, expands it, and pushes its successors back, so paths
// emit in nondecreasing primary cost.
package explorator

import (
	"container/heap"
	"context"

	"osmgraph/pkg/cost"
	"osmgraph/pkg/errs"
	"osmgraph/pkg/graph"
	"osmgraph/pkg/routing"
)

// maxLabelsPerNode bounds the Pareto frontier kept at any one node, the
// same defensive cap pattern as ch.maxShortcutsPerNode: without it, a
// graph with many near-tied metrics could grow a frontier unboundedly.
const maxLabelsPerNode = 64

// Path is one admissible route the Explorator returns.
type Path struct {
	Cost     float64
	Metrics  map[string]float64
	EdgePath []uint32
}

// label is one entry of a node's Pareto frontier: the accumulated primary
// cost, the accumulated value of every tolerance-bounded metric, and
// enough bookkeeping to reconstruct the edge path on emission.
type label struct {
	node   uint32
	cost   float64
	bounds []float64 // accumulated value per cost.Tolerance, same order
	via    uint32    // edge used to reach node, noEdge at the source label
	parent *label
}

const noEdge = ^uint32(0)

// dominates reports whether a strictly beats or ties b on every
// dimension and strictly beats it on at least one, i.e. b can never lead
// to a better path than a already does.
func dominates(a, b *label) bool {
	strictlyBetter := false
	if a.cost > b.cost {
		return false
	}
	if a.cost < b.cost {
		strictlyBetter = true
	}
	for i := range a.bounds {
		if a.bounds[i] > b.bounds[i] {
			return false
		}
		if a.bounds[i] < b.bounds[i] {
			strictlyBetter = true
		}
	}
	return strictlyBetter
}

// less implements the lexicographic tie-break on the full
// (cost, bounds...) tuple.
func less(a, b *label) bool {
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	for i := range a.bounds {
		if a.bounds[i] != b.bounds[i] {
			return a.bounds[i] < b.bounds[i]
		}
	}
	return false
}

// labelHeap is a global min-heap of frontier candidates ordered by the
// tie-break in less, driving the labeling search in nondecreasing
// primary-cost order.
type labelHeap []*label

func (h labelHeap) Len() int            { return len(h) }
func (h labelHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h labelHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *labelHeap) Push(x interface{}) { *h = append(*h, x.(*label)) }
func (h *labelHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Find enumerates up to k admissible paths from source to target under
// cf, bounded by tolerances. tolerances must reference
// the same metric columns used to build cf's companion cost.Tolerance
// set (see config.RoutingConfig.CostFunction); their Scale fields bound
// how far a path's accumulated value for that metric may exceed the
// metric's own optimum between source and target.
func Find(ctx context.Context, g *graph.Graph, cf cost.Function, tolerances []cost.Tolerance, source, target uint32, k int) ([]Path, error) {
	if k <= 0 {
		return nil, nil
	}

	bounds := make([]float64, len(tolerances))
	for i, tol := range tolerances {
		best, err := routing.Dijkstra(ctx, g, cost.NewSingleMetric(tol.Column), source, target)
		if err != nil {
			return nil, err
		}
		bounds[i] = best.Cost * tol.Scale
	}

	frontier := make([][]*label, g.NumNodes)

	start := &label{node: source, cost: 0, bounds: make([]float64, len(tolerances)), via: noEdge}
	frontier[source] = []*label{start}

	var pq labelHeap
	heap.Push(&pq, start)

	var results []Path
	iterations := 0
	for pq.Len() > 0 && len(results) < k {
		iterations++
		if iterations&255 == 0 && ctx.Err() != nil {
			return results, ctx.Err()
		}

		cur := heap.Pop(&pq).(*label)
		if !inFrontier(frontier[cur.node], cur) {
			continue // superseded by a dominating label since it was pushed
		}

		if cur.node == target {
			results = append(results, buildPath(g, cf, cur))
			continue
		}

		start, end := g.EdgesFrom(cur.node)
		for pos := start; pos < end; pos++ {
			e := g.AdjF[pos]
			v := g.Dst[e]

			next := &label{
				node:   v,
				cost:   cur.cost + cf.Eval(g, e),
				bounds: make([]float64, len(tolerances)),
				via:    e,
				parent: cur,
			}
			admissible := true
			for i, tol := range tolerances {
				next.bounds[i] = cur.bounds[i] + g.Metric(tol.Column, e)
				if next.bounds[i] > bounds[i] {
					admissible = false
					break
				}
			}
			if !admissible {
				continue
			}

			if insertFrontier(&frontier[v], next) {
				heap.Push(&pq, next)
			}
		}
	}

	if len(results) == 0 {
		return nil, &errs.Unreachable{S: source, T: target}
	}
	return results, nil
}

// inFrontier reports whether l is still present in node's frontier (a
// popped heap entry may have since been dominated and evicted).
func inFrontier(f []*label, l *label) bool {
	for _, c := range f {
		if c == l {
			return true
		}
	}
	return false
}

// insertFrontier adds next to *f if no existing entry dominates it,
// evicting any entries next dominates, keeping the frontier sorted by
// the tie-break order and capped at maxLabelsPerNode. Reports whether
// next was kept.
func insertFrontier(f *[]*label, next *label) bool {
	for _, c := range *f {
		if dominates(c, next) {
			return false
		}
	}

	kept := make([]*label, 0, len(*f)+1)
	for _, c := range *f {
		if !dominates(next, c) {
			kept = append(kept, c)
		}
	}
	kept = append(kept, next)
	sortLabels(kept)
	if len(kept) > maxLabelsPerNode {
		kept = kept[:maxLabelsPerNode]
	}
	*f = kept
	return inFrontier(kept, next)
}

func sortLabels(f []*label) {
	for i := 1; i < len(f); i++ {
		for j := i; j > 0 && less(f[j], f[j-1]); j-- {
			f[j], f[j-1] = f[j-1], f[j]
		}
	}
}

// buildPath walks a target label's parent chain back to the source,
// reversing it into a source-to-target edge sequence, and totals every
// registered metric over the unpacked (shortcut-expanded) path.
func buildPath(g *graph.Graph, cf cost.Function, l *label) Path {
	var rev []uint32
	for n := l; n.via != noEdge; n = n.parent {
		rev = append(rev, n.via)
	}
	path := make([]uint32, len(rev))
	for i, e := range rev {
		path[len(rev)-1-i] = e
	}
	unpacked := routing.UnpackEdges(g, path)

	totals := make(map[string]float64, g.Registry.Len())
	for _, id := range g.Registry.IDs() {
		col, _ := g.Column(id)
		var sum float64
		for _, e := range unpacked {
			sum += g.Metric(col, e)
		}
		totals[id] = sum
	}

	return Path{Cost: l.cost, Metrics: totals, EdgePath: unpacked}
}
