package routing

import (
	"context"
	"math"
	"sync"

	"osmgraph/pkg/cost"
	"osmgraph/pkg/errs"
	"osmgraph/pkg/graph"
)

// Mode selects which search strategy Engine.Route runs.
type Mode int

const (
	// ModeDijkstra is the plain unidirectional search.
	ModeDijkstra Mode = iota
	// ModeBidirectional meets in the middle with no CH restriction.
	ModeBidirectional
	// ModeCH requires g.HasCH() and restricts relaxation to upward edges.
	ModeCH
)

// LatLng is a geographic coordinate.
type LatLng struct {
	Lat float64
	Lng float64
}

// RouteResult is the output of a route query: the scalar cost under the
// active cost.Function, the per-metric totals summed over every
// unpacked original edge, and the geometry for rendering.
type RouteResult struct {
	TotalCost float64
	Metrics   map[string]float64
	Geometry  []LatLng
	EdgePath  []uint32 // original, unpacked edge indices, source to target
}

// Router is the interface satisfied by Engine, mockable for API tests.
type Router interface {
	Route(ctx context.Context, start, end LatLng) (*RouteResult, error)
}

// Engine answers point-to-point route queries against one immutable
// Graph. It is safe for concurrent use: the graph is read-only, and each
// query borrows a pooled QueryState.
type Engine struct {
	g       *graph.Graph
	cf      cost.Function
	mode    Mode
	snapper *Snapper
	qsPool  sync.Pool
}

// NewEngine creates a routing engine over g using cf to weigh edges. mode
// must be ModeDijkstra or ModeBidirectional unless g.HasCH(), in which
// case ModeCH is also valid.
func NewEngine(g *graph.Graph, cf cost.Function, mode Mode) *Engine {
	e := &Engine{g: g, cf: cf, mode: mode, snapper: NewSnapper(g)}
	e.qsPool.New = func() any { return NewQueryState(g.NumNodes) }
	return e
}

// Route snaps start and end to the nearest road edges and computes the
// route between the snapped points.
func (e *Engine) Route(ctx context.Context, start, end LatLng) (*RouteResult, error) {
	startSnap, err := e.snapper.Snap(start.Lat, start.Lng)
	if err != nil {
		return nil, err
	}
	endSnap, err := e.snapper.Snap(end.Lat, end.Lng)
	if err != nil {
		return nil, err
	}

	if e.mode == ModeDijkstra {
		return e.routeDijkstra(ctx, startSnap.NodeV, endSnap.NodeU)
	}

	qs := e.qsPool.Get().(*QueryState)
	defer func() {
		qs.Reset()
		e.qsPool.Put(qs)
	}()

	e.seedForward(qs, startSnap)
	e.seedBackward(qs, endSnap)

	useCH := e.mode == ModeCH && e.g.HasCH()
	mu, meetNode := bidirectionalSearch(ctx, e.g, e.cf, qs, useCH)
	if meetNode == noNode || math.IsInf(mu, 1) {
		return nil, &errs.Unreachable{S: startSnap.NodeU, T: endSnap.NodeV}
	}

	path := reconstructMeetingPath(qs, meetNode)
	unpacked := UnpackEdges(e.g, path)

	return &RouteResult{
		TotalCost: mu,
		Metrics:   e.sumMetrics(unpacked),
		Geometry:  e.buildGeometry(unpacked),
		EdgePath:  unpacked,
	}, nil
}

// RouteNodes routes directly between two graph node indices, skipping
// spatial snapping. Used by the balancing loop, which samples O-D pairs
// as node indices rather than coordinates.
func (e *Engine) RouteNodes(ctx context.Context, source, target uint32) (*RouteResult, error) {
	if e.mode == ModeDijkstra {
		return e.routeDijkstra(ctx, source, target)
	}

	qs := e.qsPool.Get().(*QueryState)
	defer func() {
		qs.Reset()
		e.qsPool.Put(qs)
	}()

	qs.touchFwd(source, 0, noNode)
	qs.FwdPQ.Push(source, 0)
	qs.touchBwd(target, 0, noNode)
	qs.BwdPQ.Push(target, 0)

	useCH := e.mode == ModeCH && e.g.HasCH()
	mu, meetNode := bidirectionalSearch(ctx, e.g, e.cf, qs, useCH)
	if meetNode == noNode || math.IsInf(mu, 1) {
		return nil, &errs.Unreachable{S: source, T: target}
	}

	path := reconstructMeetingPath(qs, meetNode)
	unpacked := UnpackEdges(e.g, path)
	return &RouteResult{
		TotalCost: mu,
		Metrics:   e.sumMetrics(unpacked),
		EdgePath:  unpacked,
	}, nil
}

func (e *Engine) routeDijkstra(ctx context.Context, source, target uint32) (*RouteResult, error) {
	res, err := Dijkstra(ctx, e.g, e.cf, source, target)
	if err != nil {
		return nil, err
	}
	return &RouteResult{
		TotalCost: res.Cost,
		Metrics:   e.sumMetrics(res.Path),
		Geometry:  e.buildGeometry(res.Path),
		EdgePath:  res.Path,
	}, nil
}

func (e *Engine) sumMetrics(path []uint32) map[string]float64 {
	totals := make(map[string]float64, e.g.Registry.Len())
	for _, id := range e.g.Registry.IDs() {
		col, _ := e.g.Column(id)
		var sum float64
		for _, edge := range path {
			sum += e.g.Metric(col, edge)
		}
		totals[id] = sum
	}
	return totals
}

func (e *Engine) buildGeometry(path []uint32) []LatLng {
	if len(path) == 0 {
		return nil
	}
	g := e.g
	geom := make([]LatLng, 0, len(path)+1)
	geom = append(geom, LatLng{Lat: g.NodeLat[g.Src[path[0]]], Lng: g.NodeLon[g.Src[path[0]]]})
	for _, e := range path {
		v := g.Dst[e]
		geom = append(geom, LatLng{Lat: g.NodeLat[v], Lng: g.NodeLon[v]})
	}
	return geom
}

// seedForward seeds the forward frontier with both endpoints of the
// snapped edge, weighted by the fractional distance along it.
func (e *Engine) seedForward(qs *QueryState, snap SnapResult) {
	full := e.cf.Eval(e.g, snap.EdgeIdx)
	dv := full * (1 - snap.Ratio)
	du := full * snap.Ratio
	qs.touchFwd(snap.NodeV, dv, snap.EdgeIdx)
	qs.FwdPQ.Push(snap.NodeV, dv)
	qs.touchFwd(snap.NodeU, du, snap.EdgeIdx)
	qs.FwdPQ.Push(snap.NodeU, du)
}

// seedBackward seeds the backward frontier symmetrically.
func (e *Engine) seedBackward(qs *QueryState, snap SnapResult) {
	full := e.cf.Eval(e.g, snap.EdgeIdx)
	du := full * snap.Ratio
	dv := full * (1 - snap.Ratio)
	qs.touchBwd(snap.NodeU, du, snap.EdgeIdx)
	qs.BwdPQ.Push(snap.NodeU, du)
	qs.touchBwd(snap.NodeV, dv, snap.EdgeIdx)
	qs.BwdPQ.Push(snap.NodeV, dv)
}
