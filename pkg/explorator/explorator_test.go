package explorator

import (
	"context"
	"testing"

	"osmgraph/pkg/cost"
	"osmgraph/pkg/graph"
	"osmgraph/pkg/metric"
)

// buildDiamondGraph builds two parallel s→t routes with a length/time
// trade-off: via node 2 is shorter but slower per unit, via node 3 is
// longer but faster, so tolerance on time admits or excludes the slow
// route depending on the scale under test.
//
//	   2
//	 /   \
//	1     4
//	 \   /
//	   3
func buildDiamondGraph(t *testing.T) *graph.Graph {
	t.Helper()
	raw := &graph.RawGraph{
		Nodes: []graph.RawNode{
			{ExtID: 1, Lat: 1.0, Lon: 103.0},
			{ExtID: 2, Lat: 1.1, Lon: 103.0},
			{ExtID: 3, Lat: 0.9, Lon: 103.0},
			{ExtID: 4, Lat: 1.0, Lon: 103.1},
		},
		Edges: []graph.RawEdge{
			{From: 1, To: 2, Data: map[string]float64{"length_m": 100, "time_s": 10}},
			{From: 2, To: 4, Data: map[string]float64{"length_m": 100, "time_s": 10}},
			{From: 1, To: 3, Data: map[string]float64{"length_m": 150, "time_s": 5}},
			{From: 3, To: 4, Data: map[string]float64{"length_m": 150, "time_s": 5}},
		},
		Inputs: []graph.InputColumn{
			{ID: "length_m", Unit: metric.F64},
			{ID: "time_s", Unit: metric.F64},
		},
	}
	g, err := graph.Build(raw)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func diamondCost(t *testing.T, g *graph.Graph) (cost.Function, int, int) {
	t.Helper()
	lengthCol, ok := g.Column("length_m")
	if !ok {
		t.Fatalf("length_m not registered")
	}
	timeCol, ok := g.Column("time_s")
	if !ok {
		t.Fatalf("time_s not registered")
	}
	return cost.NewSingleMetric(lengthCol), lengthCol, timeCol
}

func TestFindReturnsBothRoutesWithLooseTolerance(t *testing.T) {
	g := buildDiamondGraph(t)
	cf, _, timeCol := diamondCost(t, g)
	tolerances := []cost.Tolerance{{Column: timeCol, Scale: 2.5}}

	source := nodeByExtID(g, 1)
	target := nodeByExtID(g, 4)

	paths, err := Find(context.Background(), g, cf, tolerances, source, target, 2)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("len(paths) = %d, want 2", len(paths))
	}
	if paths[0].Cost != 200 {
		t.Errorf("paths[0].Cost = %v, want 200 (via node 2)", paths[0].Cost)
	}
	if paths[1].Cost != 300 {
		t.Errorf("paths[1].Cost = %v, want 300 (via node 3)", paths[1].Cost)
	}
	if paths[0].Cost > paths[1].Cost {
		t.Errorf("paths not in nondecreasing primary-cost order: %v then %v", paths[0].Cost, paths[1].Cost)
	}
}

func TestFindExcludesSlowRouteUnderTightTolerance(t *testing.T) {
	g := buildDiamondGraph(t)
	cf, _, timeCol := diamondCost(t, g)
	// best time(s,t) is 10 (via node 3); scale 1.0 admits only that route,
	// even though it is the longer one by length.
	tolerances := []cost.Tolerance{{Column: timeCol, Scale: 1.0}}

	source := nodeByExtID(g, 1)
	target := nodeByExtID(g, 4)

	paths, err := Find(context.Background(), g, cf, tolerances, source, target, 2)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("len(paths) = %d, want 1 (slow route pruned)", len(paths))
	}
	if paths[0].Cost != 300 {
		t.Errorf("paths[0].Cost = %v, want 300 (via node 3)", paths[0].Cost)
	}
}

func TestFindUnreachable(t *testing.T) {
	g := buildDiamondGraph(t)
	cf, _, timeCol := diamondCost(t, g)
	tolerances := []cost.Tolerance{{Column: timeCol, Scale: 2.5}}

	source := nodeByExtID(g, 4)
	target := nodeByExtID(g, 1) // edges are one-directional, so 4 cannot reach 1

	if _, err := Find(context.Background(), g, cf, tolerances, source, target, 1); err == nil {
		t.Fatal("Find: want Unreachable error, got nil")
	}
}

func TestFindZeroK(t *testing.T) {
	g := buildDiamondGraph(t)
	cf, _, timeCol := diamondCost(t, g)
	tolerances := []cost.Tolerance{{Column: timeCol, Scale: 2.5}}

	source := nodeByExtID(g, 1)
	target := nodeByExtID(g, 4)

	paths, err := Find(context.Background(), g, cf, tolerances, source, target, 0)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if paths != nil {
		t.Errorf("paths = %v, want nil for k=0", paths)
	}
}

func nodeByExtID(g *graph.Graph, extID int64) uint32 {
	for i, id := range g.NodeExtID {
		if id == extID {
			return uint32(i)
		}
	}
	return graph.NoNode
}
