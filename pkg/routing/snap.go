package routing

import (
	"errors"
	"math"

	"github.com/tidwall/rtree"

	"osmgraph/pkg/geo"
	"osmgraph/pkg/graph"
)

const maxSnapDistMeters = 500.0

// metersPerDegreeLat approximates the degree padding needed to bound a
// maxSnapDistMeters search box; good enough away from the poles.
const metersPerDegreeLat = 111_000.0

// ErrPointTooFar is returned when the query point is too far from any road.
var ErrPointTooFar = errors.New("point too far from road")

// SnapResult represents a point snapped to a road segment.
type SnapResult struct {
	EdgeIdx uint32  // index into the graph's edge arrays
	NodeU   uint32  // source node of the edge
	NodeV   uint32  // target node of the edge
	Ratio   float64 // 0.0 = at NodeU, 1.0 = at NodeV
	Dist    float64 // distance in meters from query point to snapped point
}

// Snapper finds the nearest road edge to a query point using an R-tree
// over every edge's bounding box.
type Snapper struct {
	tree rtree.RTreeG[uint32]
	g    *graph.Graph
}

// NewSnapper builds an R-tree spatial index over g's edges.
func NewSnapper(g *graph.Graph) *Snapper {
	s := &Snapper{g: g}
	for e := uint32(0); e < g.NumEdges; e++ {
		u, v := g.Src[e], g.Dst[e]
		min := [2]float64{math.Min(g.NodeLat[u], g.NodeLat[v]), math.Min(g.NodeLon[u], g.NodeLon[v])}
		max := [2]float64{math.Max(g.NodeLat[u], g.NodeLat[v]), math.Max(g.NodeLon[u], g.NodeLon[v])}
		s.tree.Insert(min, max, e)
	}
	return s
}

// Snap finds the nearest road edge to the given lat/lng.
func (s *Snapper) Snap(lat, lng float64) (SnapResult, error) {
	g := s.g
	pad := maxSnapDistMeters / metersPerDegreeLat

	bestDist := math.Inf(1)
	var best SnapResult

	s.tree.Search(
		[2]float64{lat - pad, lng - pad},
		[2]float64{lat + pad, lng + pad},
		func(_, _ [2]float64, e uint32) bool {
			u, v := g.Src[e], g.Dst[e]
			d, ratio := geo.PointToSegmentDist(
				lat, lng,
				g.NodeLat[u], g.NodeLon[u],
				g.NodeLat[v], g.NodeLon[v],
			)
			if d < bestDist {
				bestDist = d
				best = SnapResult{EdgeIdx: e, NodeU: u, NodeV: v, Ratio: ratio, Dist: d}
			}
			return true
		},
	)

	if math.IsInf(bestDist, 1) || bestDist > maxSnapDistMeters {
		return SnapResult{}, ErrPointTooFar
	}
	return best, nil
}
