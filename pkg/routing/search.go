package routing

import (
	"context"
	"math"

	"osmgraph/pkg/cost"
	"osmgraph/pkg/errs"
	"osmgraph/pkg/graph"
)

// Result is the outcome of a point-to-point search: the total cost and
// enough bookkeeping for the caller to reconstruct the edge sequence.
type Result struct {
	Cost float64
	Path []uint32 // edge indices, source to target, original (unpacked) edges
}

// Dijkstra runs a plain single-source-to-target search: no
// bidirectional meeting, no CH restriction. Used as the ground truth the
// bidirectional and CH searches are tested against, and directly by the
// balancing loop in rounds configured with the Dijkstra algorithm.
func Dijkstra(ctx context.Context, g *graph.Graph, cf cost.Function, source, target uint32) (Result, error) {
	dist := make([]float64, g.NumNodes)
	pred := make([]uint32, g.NumNodes)
	predEdge := make([]uint32, g.NumNodes)
	for i := range dist {
		dist[i] = math.Inf(1)
		pred[i] = noNode
	}
	dist[source] = 0

	var pq MinHeap
	pq.Push(source, 0)

	iterations := 0
	for pq.Len() > 0 {
		iterations++
		if iterations&255 == 0 && ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		item := pq.Pop()
		u, d := item.Node, item.Dist
		if d > dist[u] {
			continue
		}
		if u == target {
			break
		}

		start, end := g.EdgesFrom(u)
		for pos := start; pos < end; pos++ {
			e := g.AdjF[pos]
			v := g.Dst[e]
			nd := d + cf.Eval(g, e)
			if nd < dist[v] {
				dist[v] = nd
				pred[v] = u
				predEdge[v] = e
				pq.Push(v, nd)
			}
		}
	}

	if math.IsInf(dist[target], 1) {
		return Result{}, &errs.Unreachable{S: source, T: target}
	}

	return Result{Cost: dist[target], Path: reconstructEdges(pred, predEdge, source, target)}, nil
}

func reconstructEdges(pred, predEdge []uint32, source, target uint32) []uint32 {
	var path []uint32
	for n := target; n != source; n = pred[n] {
		if n == noNode {
			return nil
		}
		path = append(path, predEdge[n])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// bidirectionalSearch runs the alternating forward/backward labeling
// algorithm. When useCH is true, relaxation only follows
// edges into a strictly higher CH level, matching the upward-search
// restriction that makes CH-Dijkstra fast; the caller is responsible for
// only setting useCH when g.HasCH().
func bidirectionalSearch(ctx context.Context, g *graph.Graph, cf cost.Function, qs *QueryState, useCH bool) (mu float64, meetNode uint32) {
	mu = math.Inf(1)
	meetNode = noNode

	iterations := uint32(0)
	for {
		fwdMin := qs.FwdPQ.PeekDist()
		bwdMin := qs.BwdPQ.PeekDist()
		if fwdMin >= mu && bwdMin >= mu {
			break
		}

		iterations++
		if iterations&255 == 0 && ctx.Err() != nil {
			return mu, meetNode
		}

		if fwdMin < mu {
			item := qs.FwdPQ.Pop()
			u, d := item.Node, item.Dist
			if d <= qs.DistFwd[u] {
				if !math.IsInf(qs.DistBwd[u], 1) {
					if cand := d + qs.DistBwd[u]; cand < mu {
						mu, meetNode = cand, u
					}
				}
				start, end := g.EdgesFrom(u)
				for pos := start; pos < end; pos++ {
					e := g.AdjF[pos]
					v := g.Dst[e]
					if useCH && g.Levels[v] <= g.Levels[u] {
						continue
					}
					nd := d + cf.Eval(g, e)
					if nd < qs.DistFwd[v] {
						qs.touchFwd(v, nd, e)
						qs.FwdPQ.Push(v, nd)
						qs.PredFwd[v] = u
					}
				}
			}
		}

		if qs.BwdPQ.PeekDist() < mu {
			item := qs.BwdPQ.Pop()
			u, d := item.Node, item.Dist
			if d <= qs.DistBwd[u] {
				if !math.IsInf(qs.DistFwd[u], 1) {
					if cand := qs.DistFwd[u] + d; cand < mu {
						mu, meetNode = cand, u
					}
				}
				start, end := g.EdgesTo(u)
				for pos := start; pos < end; pos++ {
					e := g.AdjB[pos]
					v := g.Src[e]
					if useCH && g.Levels[v] <= g.Levels[u] {
						continue
					}
					nd := d + cf.Eval(g, e)
					if nd < qs.DistBwd[v] {
						qs.touchBwd(v, nd, e)
						qs.BwdPQ.Push(v, nd)
						qs.PredBwd[v] = u
					}
				}
			}
		}
	}

	return mu, meetNode
}

// reconstructMeetingPath builds the edge sequence source → meetNode →
// target from a completed bidirectional search's predecessor arrays.
func reconstructMeetingPath(qs *QueryState, meetNode uint32) []uint32 {
	var fwd []uint32
	for n := meetNode; qs.PredFwd[n] != noNode; n = qs.PredFwd[n] {
		fwd = append(fwd, qs.EdgeFwd[n])
	}
	for i, j := 0, len(fwd)-1; i < j; i, j = i+1, j-1 {
		fwd[i], fwd[j] = fwd[j], fwd[i]
	}

	var bwd []uint32
	for n := meetNode; qs.PredBwd[n] != noNode; n = qs.PredBwd[n] {
		bwd = append(bwd, qs.EdgeBwd[n])
	}

	return append(fwd, bwd...)
}
