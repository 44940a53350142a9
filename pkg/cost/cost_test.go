package cost

import (
	"testing"

	"osmgraph/pkg/graph"
	"osmgraph/pkg/metric"
)

func buildGraph(t *testing.T) *graph.Graph {
	t.Helper()
	raw := &graph.RawGraph{
		Nodes: []graph.RawNode{{ExtID: 1}, {ExtID: 2}},
		Edges: []graph.RawEdge{
			{From: 1, To: 2, Data: map[string]float64{"length_m": 100, "hours": 0.01}},
		},
		Inputs: []graph.InputColumn{
			{ID: "length_m", Unit: metric.F64},
			{ID: "hours", Unit: metric.Hours},
		},
	}
	g, err := graph.Build(raw)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestEvalSingleMetric(t *testing.T) {
	g := buildGraph(t)
	col, _ := g.Column("length_m")
	f := NewSingleMetric(col)
	if got := f.Eval(g, 0); got != 100 {
		t.Errorf("Eval = %v, want 100", got)
	}
}

func TestEvalLinearCombination(t *testing.T) {
	g := buildGraph(t)
	lenCol, _ := g.Column("length_m")
	hrCol, _ := g.Column("hours")
	f := Function{Terms: []Term{
		{Column: lenCol, Weight: 1},
		{Column: hrCol, Weight: 1000},
	}}
	want := 100.0 + 1000*0.01
	if got := f.Eval(g, 0); got != want {
		t.Errorf("Eval = %v, want %v", got, want)
	}
}

func TestAdmissible(t *testing.T) {
	tol := []Tolerance{{Column: 0, Scale: 1.2}}
	optimal := []float64{100}
	if !Admissible(tol, optimal, []float64{119}) {
		t.Errorf("119 should be admissible under 20%% tolerance of 100")
	}
	if Admissible(tol, optimal, []float64{121}) {
		t.Errorf("121 should not be admissible under 20%% tolerance of 100")
	}
}
