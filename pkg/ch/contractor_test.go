package ch

import (
	"math"
	"testing"

	"osmgraph/pkg/cost"
	"osmgraph/pkg/graph"
	"osmgraph/pkg/metric"
)

// buildTestGraph creates a small bidirectional graph for testing:
//
//	0 ---100--- 1 ---200--- 2
//	|                       |
//	300                    400
//	|                       |
//	3 ---500--- 4 ---600--- 5
func buildTestGraph(t *testing.T) (*graph.Graph, cost.Function) {
	t.Helper()
	raw := &graph.RawGraph{
		Nodes: []graph.RawNode{
			{ExtID: 10, Lat: 1.0, Lon: 103.0},
			{ExtID: 20, Lat: 1.0, Lon: 103.1},
			{ExtID: 30, Lat: 1.0, Lon: 103.2},
			{ExtID: 40, Lat: 1.1, Lon: 103.0},
			{ExtID: 50, Lat: 1.1, Lon: 103.1},
			{ExtID: 60, Lat: 1.1, Lon: 103.2},
		},
		Edges: []graph.RawEdge{
			{ExtID: 1, From: 10, To: 20, Data: map[string]float64{"length_m": 100}},
			{ExtID: 2, From: 20, To: 10, Data: map[string]float64{"length_m": 100}},
			{ExtID: 3, From: 20, To: 30, Data: map[string]float64{"length_m": 200}},
			{ExtID: 4, From: 30, To: 20, Data: map[string]float64{"length_m": 200}},
			{ExtID: 5, From: 10, To: 40, Data: map[string]float64{"length_m": 300}},
			{ExtID: 6, From: 40, To: 10, Data: map[string]float64{"length_m": 300}},
			{ExtID: 7, From: 30, To: 60, Data: map[string]float64{"length_m": 400}},
			{ExtID: 8, From: 60, To: 30, Data: map[string]float64{"length_m": 400}},
			{ExtID: 9, From: 40, To: 50, Data: map[string]float64{"length_m": 500}},
			{ExtID: 10, From: 50, To: 40, Data: map[string]float64{"length_m": 500}},
			{ExtID: 11, From: 50, To: 60, Data: map[string]float64{"length_m": 600}},
			{ExtID: 12, From: 60, To: 50, Data: map[string]float64{"length_m": 600}},
		},
		Inputs: []graph.InputColumn{{ID: "length_m", Unit: metric.F64}},
	}
	g, err := graph.Build(raw)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	col, _ := g.Column("length_m")
	return g, cost.NewSingleMetric(col)
}

// plainDijkstra runs standard Dijkstra on the original graph for comparison.
func plainDijkstra(g *graph.Graph, cf cost.Function, source, target uint32) float64 {
	dist := make([]float64, g.NumNodes)
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	dist[source] = 0

	type item struct {
		node uint32
		dist float64
	}
	var pq []item
	pq = append(pq, item{source, 0})

	for len(pq) > 0 {
		minIdx := 0
		for i := 1; i < len(pq); i++ {
			if pq[i].dist < pq[minIdx].dist {
				minIdx = i
			}
		}
		cur := pq[minIdx]
		pq[minIdx] = pq[len(pq)-1]
		pq = pq[:len(pq)-1]

		if cur.dist > dist[cur.node] {
			continue
		}
		if cur.node == target {
			return cur.dist
		}

		start, end := g.EdgesFrom(cur.node)
		for pos := start; pos < end; pos++ {
			e := g.AdjF[pos]
			v := g.Dst[e]
			newDist := cur.dist + cf.Eval(g, e)
			if newDist < dist[v] {
				dist[v] = newDist
				pq = append(pq, item{v, newDist})
			}
		}
	}
	return dist[target]
}

// chDijkstra runs bidirectional upward-only Dijkstra on the contracted graph.
func chDijkstra(ch *graph.Graph, cf cost.Function, source, target uint32) float64 {
	distFwd := make([]float64, ch.NumNodes)
	distBwd := make([]float64, ch.NumNodes)
	for i := range distFwd {
		distFwd[i] = math.Inf(1)
		distBwd[i] = math.Inf(1)
	}
	distFwd[source] = 0
	distBwd[target] = 0

	type item struct {
		node uint32
		dist float64
	}
	var fwdPQ, bwdPQ []item
	fwdPQ = append(fwdPQ, item{source, 0})
	bwdPQ = append(bwdPQ, item{target, 0})

	mu := math.Inf(1)

	popMin := func(pq *[]item) item {
		minIdx := 0
		for i := 1; i < len(*pq); i++ {
			if (*pq)[i].dist < (*pq)[minIdx].dist {
				minIdx = i
			}
		}
		cur := (*pq)[minIdx]
		(*pq)[minIdx] = (*pq)[len(*pq)-1]
		*pq = (*pq)[:len(*pq)-1]
		return cur
	}
	peekMin := func(pq []item) float64 {
		if len(pq) == 0 {
			return math.Inf(1)
		}
		min := pq[0].dist
		for _, it := range pq[1:] {
			if it.dist < min {
				min = it.dist
			}
		}
		return min
	}

	for len(fwdPQ) > 0 || len(bwdPQ) > 0 {
		if len(fwdPQ) > 0 && peekMin(fwdPQ) < mu {
			cur := popMin(&fwdPQ)
			if cur.dist <= distFwd[cur.node] {
				if !math.IsInf(distBwd[cur.node], 1) {
					if cand := cur.dist + distBwd[cur.node]; cand < mu {
						mu = cand
					}
				}
				start, end := ch.EdgesFrom(cur.node)
				for pos := start; pos < end; pos++ {
					e := ch.AdjF[pos]
					v := ch.Dst[e]
					if ch.Levels[v] <= ch.Levels[cur.node] {
						continue
					}
					newDist := cur.dist + cf.Eval(ch, e)
					if newDist < distFwd[v] {
						distFwd[v] = newDist
						fwdPQ = append(fwdPQ, item{v, newDist})
					}
				}
			}
		}
		if len(bwdPQ) > 0 && peekMin(bwdPQ) < mu {
			cur := popMin(&bwdPQ)
			if cur.dist <= distBwd[cur.node] {
				if !math.IsInf(distFwd[cur.node], 1) {
					if cand := distFwd[cur.node] + cur.dist; cand < mu {
						mu = cand
					}
				}
				start, end := ch.EdgesTo(cur.node)
				for pos := start; pos < end; pos++ {
					e := ch.AdjB[pos]
					v := ch.Src[e]
					if ch.Levels[v] <= ch.Levels[cur.node] {
						continue
					}
					newDist := cur.dist + cf.Eval(ch, e)
					if newDist < distBwd[v] {
						distBwd[v] = newDist
						bwdPQ = append(bwdPQ, item{v, newDist})
					}
				}
			}
		}

		if peekMin(fwdPQ) >= mu && peekMin(bwdPQ) >= mu {
			break
		}
	}
	return mu
}

func TestContractSmallGraph(t *testing.T) {
	g, cf := buildTestGraph(t)

	if g.NumNodes != 6 {
		t.Fatalf("test graph has %d nodes, want 6", g.NumNodes)
	}

	ch := Contract(g, cf)
	if ch.NumNodes != 6 {
		t.Fatalf("CH has %d nodes, want 6", ch.NumNodes)
	}
	if !ch.HasCH() {
		t.Fatal("contracted graph should report HasCH() true")
	}

	rankSeen := make(map[uint32]bool)
	for _, r := range ch.Levels {
		if r >= ch.NumNodes {
			t.Errorf("rank %d >= NumNodes %d", r, ch.NumNodes)
		}
		rankSeen[r] = true
	}
	if len(rankSeen) != int(ch.NumNodes) {
		t.Errorf("ranks are not a permutation: saw %d unique values, want %d", len(rankSeen), ch.NumNodes)
	}
}

func TestCHCorrectnessAllPairs(t *testing.T) {
	g, cf := buildTestGraph(t)
	ch := Contract(g, cf)

	for s := uint32(0); s < g.NumNodes; s++ {
		for d := uint32(0); d < g.NumNodes; d++ {
			if s == d {
				continue
			}
			plainDist := plainDijkstra(g, cf, s, d)
			chDist := chDijkstra(ch, cf, s, d)
			if math.Abs(chDist-plainDist) > 1e-9 {
				t.Errorf("s=%d d=%d: CH=%v, Dijkstra=%v", s, d, chDist, plainDist)
			}
		}
	}
}

func TestContractSingleNode(t *testing.T) {
	raw := &graph.RawGraph{
		Nodes:  []graph.RawNode{{ExtID: 1, Lat: 1.0, Lon: 103.0}},
		Inputs: []graph.InputColumn{{ID: "length_m", Unit: metric.F64}},
	}
	g, err := graph.Build(raw)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	col, _ := g.Column("length_m")
	ch := Contract(g, cost.NewSingleMetric(col))
	if ch.NumNodes != 1 {
		t.Errorf("NumNodes=%d, want 1", ch.NumNodes)
	}
	if ch.NumEdges != 0 {
		t.Errorf("NumEdges=%d, want 0", ch.NumEdges)
	}
}

func TestContractLinearGraph(t *testing.T) {
	raw := &graph.RawGraph{
		Nodes: []graph.RawNode{
			{ExtID: 1, Lat: 1.0, Lon: 103.0},
			{ExtID: 2, Lat: 1.1, Lon: 103.1},
			{ExtID: 3, Lat: 1.2, Lon: 103.2},
			{ExtID: 4, Lat: 1.3, Lon: 103.3},
			{ExtID: 5, Lat: 1.4, Lon: 103.4},
		},
		Edges: []graph.RawEdge{
			{ExtID: 1, From: 1, To: 2, Data: map[string]float64{"length_m": 100}},
			{ExtID: 2, From: 2, To: 3, Data: map[string]float64{"length_m": 200}},
			{ExtID: 3, From: 3, To: 4, Data: map[string]float64{"length_m": 300}},
			{ExtID: 4, From: 4, To: 5, Data: map[string]float64{"length_m": 400}},
		},
		Inputs: []graph.InputColumn{{ID: "length_m", Unit: metric.F64}},
	}
	g, err := graph.Build(raw)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	col, _ := g.Column("length_m")
	cf := cost.NewSingleMetric(col)
	ch := Contract(g, cf)

	dist := chDijkstra(ch, cf, 0, 4)
	expected := plainDijkstra(g, cf, 0, 4)
	if math.Abs(dist-expected) > 1e-9 {
		t.Errorf("linear chain: CH=%v, Dijkstra=%v", dist, expected)
	}
	if expected != 1000 {
		t.Errorf("expected path cost 1000, got %v", expected)
	}
}

func TestUnpackShortcutRecoversOriginalEdges(t *testing.T) {
	g, cf := buildTestGraph(t)
	ch := Contract(g, cf)

	var shortcutEdge uint32 = math.MaxUint32
	for e := g.NumEdges; e < ch.NumEdges; e++ {
		if ch.IsShortcut(e) {
			shortcutEdge = e
			break
		}
	}
	if shortcutEdge == math.MaxUint32 {
		t.Skip("no shortcuts created for this small graph")
	}

	a := ch.ShortcutA[shortcutEdge]
	b := ch.ShortcutB[shortcutEdge]
	col, _ := ch.Column("length_m")
	sum := ch.Metric(col, uint32(a)) + ch.Metric(col, uint32(b))
	if math.Abs(sum-ch.Metric(col, shortcutEdge)) > 1e-9 {
		t.Errorf("shortcut metric %v != sum of children %v", ch.Metric(col, shortcutEdge), sum)
	}
}
