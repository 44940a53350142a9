package routing

import (
	"context"
	"testing"

	"osmgraph/pkg/ch"
	"osmgraph/pkg/cost"
	"osmgraph/pkg/graph"
	"osmgraph/pkg/metric"
)

// buildHexGraph builds the six-node test graph:
//
//	0 ---100--- 1 ---200--- 2
//	|                       |
//	300                    400
//	|                       |
//	3 ---500--- 4 ---600--- 5
//
// All edges bidirectional, single metric "length_m".
func buildHexGraph(t *testing.T) *graph.Graph {
	t.Helper()
	raw := &graph.RawGraph{
		Nodes: []graph.RawNode{
			{ExtID: 10, Lat: 1.300, Lon: 103.800},
			{ExtID: 20, Lat: 1.300, Lon: 103.801},
			{ExtID: 30, Lat: 1.300, Lon: 103.802},
			{ExtID: 40, Lat: 1.301, Lon: 103.800},
			{ExtID: 50, Lat: 1.301, Lon: 103.801},
			{ExtID: 60, Lat: 1.301, Lon: 103.802},
		},
		Edges: []graph.RawEdge{
			{From: 10, To: 20, Data: map[string]float64{"length_m": 100}},
			{From: 20, To: 10, Data: map[string]float64{"length_m": 100}},
			{From: 20, To: 30, Data: map[string]float64{"length_m": 200}},
			{From: 30, To: 20, Data: map[string]float64{"length_m": 200}},
			{From: 10, To: 40, Data: map[string]float64{"length_m": 300}},
			{From: 40, To: 10, Data: map[string]float64{"length_m": 300}},
			{From: 30, To: 60, Data: map[string]float64{"length_m": 400}},
			{From: 60, To: 30, Data: map[string]float64{"length_m": 400}},
			{From: 40, To: 50, Data: map[string]float64{"length_m": 500}},
			{From: 50, To: 40, Data: map[string]float64{"length_m": 500}},
			{From: 50, To: 60, Data: map[string]float64{"length_m": 600}},
			{From: 60, To: 50, Data: map[string]float64{"length_m": 600}},
		},
		Inputs: []graph.InputColumn{{ID: "length_m", Unit: metric.F64}},
	}
	g, err := graph.Build(raw)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func lengthCost(t *testing.T, g *graph.Graph) cost.Function {
	t.Helper()
	col, ok := g.Column("length_m")
	if !ok {
		t.Fatalf("length_m column not registered")
	}
	return cost.NewSingleMetric(col)
}

func TestCHDijkstraMatchesPlainDijkstra(t *testing.T) {
	g := buildHexGraph(t)
	cf := lengthCost(t, g)
	chg := ch.Contract(g, cf)

	for s := uint32(0); s < g.NumNodes; s++ {
		for d := uint32(0); d < g.NumNodes; d++ {
			if s == d {
				continue
			}

			plain, err := Dijkstra(context.Background(), g, cf, s, d)
			if err != nil {
				t.Fatalf("s=%d d=%d: plain Dijkstra: %v", s, d, err)
			}

			qs := NewQueryState(chg.NumNodes)
			qs.touchFwd(s, 0, noNode)
			qs.FwdPQ.Push(s, 0)
			qs.touchBwd(d, 0, noNode)
			qs.BwdPQ.Push(d, 0)

			mu, meetNode := bidirectionalSearch(context.Background(), chg, cf, qs, true)
			if meetNode == noNode {
				t.Fatalf("s=%d d=%d: CH search found no meeting node", s, d)
			}
			if mu != plain.Cost {
				t.Errorf("s=%d d=%d: CH cost=%v, plain Dijkstra cost=%v", s, d, mu, plain.Cost)
			}
		}
	}
}

func TestBidirectionalMatchesPlainDijkstra(t *testing.T) {
	g := buildHexGraph(t)
	cf := lengthCost(t, g)

	for s := uint32(0); s < g.NumNodes; s++ {
		for d := uint32(0); d < g.NumNodes; d++ {
			if s == d {
				continue
			}

			plain, err := Dijkstra(context.Background(), g, cf, s, d)
			if err != nil {
				t.Fatalf("s=%d d=%d: plain Dijkstra: %v", s, d, err)
			}

			qs := NewQueryState(g.NumNodes)
			qs.touchFwd(s, 0, noNode)
			qs.FwdPQ.Push(s, 0)
			qs.touchBwd(d, 0, noNode)
			qs.BwdPQ.Push(d, 0)

			mu, meetNode := bidirectionalSearch(context.Background(), g, cf, qs, false)
			if meetNode == noNode {
				t.Fatalf("s=%d d=%d: bidirectional search found no meeting node", s, d)
			}
			if mu != plain.Cost {
				t.Errorf("s=%d d=%d: bidirectional cost=%v, plain cost=%v", s, d, mu, plain.Cost)
			}
		}
	}
}

func TestDijkstraDeterministic(t *testing.T) {
	g := buildHexGraph(t)
	cf := lengthCost(t, g)

	first, err := Dijkstra(context.Background(), g, cf, 0, 5)
	if err != nil {
		t.Fatalf("Dijkstra: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Dijkstra(context.Background(), g, cf, 0, 5)
		if err != nil {
			t.Fatalf("Dijkstra run %d: %v", i, err)
		}
		if again.Cost != first.Cost {
			t.Fatalf("run %d: cost=%v, want %v", i, again.Cost, first.Cost)
		}
		if len(again.Path) != len(first.Path) {
			t.Fatalf("run %d: path length %d, want %d", i, len(again.Path), len(first.Path))
		}
		for j := range first.Path {
			if again.Path[j] != first.Path[j] {
				t.Fatalf("run %d: path[%d]=%d, want %d", i, j, again.Path[j], first.Path[j])
			}
		}
	}
}

func TestDijkstraUnreachable(t *testing.T) {
	raw := &graph.RawGraph{
		Nodes: []graph.RawNode{
			{ExtID: 1, Lat: 1.0, Lon: 103.0},
			{ExtID: 2, Lat: 1.0, Lon: 103.1},
		},
		Edges: []graph.RawEdge{
			{From: 1, To: 2, Data: map[string]float64{"length_m": 100}},
		},
		Inputs: []graph.InputColumn{{ID: "length_m", Unit: metric.F64}},
	}
	g, err := graph.Build(raw)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	col, _ := g.Column("length_m")

	if _, err := Dijkstra(context.Background(), g, cost.NewSingleMetric(col), 1, 0); err == nil {
		t.Fatal("Dijkstra: want Unreachable error for the reverse of a one-way edge, got nil")
	}
}

func TestMinHeap(t *testing.T) {
	var h MinHeap

	h.Push(1, 30)
	h.Push(2, 10)
	h.Push(3, 20)

	if h.PeekDist() != 10 {
		t.Errorf("PeekDist = %v, want 10", h.PeekDist())
	}

	item := h.Pop()
	if item.Node != 2 || item.Dist != 10 {
		t.Errorf("Pop = {%d, %v}, want {2, 10}", item.Node, item.Dist)
	}

	item = h.Pop()
	if item.Node != 3 || item.Dist != 20 {
		t.Errorf("Pop = {%d, %v}, want {3, 20}", item.Node, item.Dist)
	}

	item = h.Pop()
	if item.Node != 1 || item.Dist != 30 {
		t.Errorf("Pop = {%d, %v}, want {1, 30}", item.Node, item.Dist)
	}

	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
}

func BenchmarkCHDijkstraRoute(b *testing.B) {
	raw := &graph.RawGraph{
		Nodes: []graph.RawNode{
			{ExtID: 10, Lat: 1.300, Lon: 103.800},
			{ExtID: 20, Lat: 1.300, Lon: 103.801},
			{ExtID: 30, Lat: 1.300, Lon: 103.802},
			{ExtID: 40, Lat: 1.301, Lon: 103.800},
			{ExtID: 50, Lat: 1.301, Lon: 103.801},
			{ExtID: 60, Lat: 1.301, Lon: 103.802},
		},
		Edges: []graph.RawEdge{
			{From: 10, To: 20, Data: map[string]float64{"length_m": 100}},
			{From: 20, To: 10, Data: map[string]float64{"length_m": 100}},
			{From: 20, To: 30, Data: map[string]float64{"length_m": 200}},
			{From: 30, To: 20, Data: map[string]float64{"length_m": 200}},
			{From: 10, To: 40, Data: map[string]float64{"length_m": 300}},
			{From: 40, To: 10, Data: map[string]float64{"length_m": 300}},
			{From: 30, To: 60, Data: map[string]float64{"length_m": 400}},
			{From: 60, To: 30, Data: map[string]float64{"length_m": 400}},
			{From: 40, To: 50, Data: map[string]float64{"length_m": 500}},
			{From: 50, To: 40, Data: map[string]float64{"length_m": 500}},
			{From: 50, To: 60, Data: map[string]float64{"length_m": 600}},
			{From: 60, To: 50, Data: map[string]float64{"length_m": 600}},
		},
		Inputs: []graph.InputColumn{{ID: "length_m", Unit: metric.F64}},
	}
	g, err := graph.Build(raw)
	if err != nil {
		b.Fatalf("Build: %v", err)
	}
	col, _ := g.Column("length_m")
	cf := cost.NewSingleMetric(col)
	chg := ch.Contract(g, cf)
	eng := NewEngine(chg, cf, ModeCH)

	ctx := context.Background()
	start := LatLng{Lat: 1.300, Lng: 103.800}
	end := LatLng{Lat: 1.301, Lng: 103.802}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = eng.Route(ctx, start, end)
	}
}

func TestRouteEndToEnd(t *testing.T) {
	g := buildHexGraph(t)
	cf := lengthCost(t, g)
	chg := ch.Contract(g, cf)
	eng := NewEngine(chg, cf, ModeCH)

	result, err := eng.Route(context.Background(),
		LatLng{Lat: 1.300, Lng: 103.800}, // near node 10
		LatLng{Lat: 1.301, Lng: 103.802}, // near node 60
	)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	if result.TotalCost <= 0 {
		t.Errorf("TotalCost = %v, want > 0", result.TotalCost)
	}
}
