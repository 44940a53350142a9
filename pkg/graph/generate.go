package graph

import (
	"math"

	"osmgraph/pkg/errs"
	"osmgraph/pkg/geo"
	"osmgraph/pkg/metric"
)

// applyGenerators resolves gens into topological order and fills one new
// metric column per generator, appending it to g.Metrics and registering
// its id on g.Registry.
func applyGenerators(g *Graph, gens []metric.Generator) error {
	if len(gens) == 0 {
		return nil
	}
	ordered, err := g.Registry.ResolveGenerators(gens)
	if err != nil {
		return err
	}

	for _, gen := range ordered {
		col, ok := g.Registry.Column(gen.ID)
		if !ok {
			return &errs.MissingInput{ID: gen.ID}
		}
		values := make([]float64, g.NumEdges)
		if err := fillGenerated(g, gen, values); err != nil {
			return err
		}
		g.Metrics = append(g.Metrics, nil)
		g.Metrics[col] = values
	}
	return nil
}

func fillGenerated(g *Graph, gen metric.Generator, out []float64) error {
	switch gen.Kind {
	case metric.GenHaversine:
		// geo.Haversine returns meters; a Kilometers-tagged column gets km.
		scale := 1.0
		if gen.Unit == metric.Kilometers {
			scale = 1.0 / 1000
		}
		for e := uint32(0); e < g.NumEdges; e++ {
			u, v := g.Src[e], g.Dst[e]
			out[e] = scale * geo.Haversine(g.NodeLat[u], g.NodeLon[u], g.NodeLat[v], g.NodeLon[v])
		}

	case metric.GenCalc:
		colA, ok := g.Registry.Column(gen.A)
		if !ok {
			return &errs.MissingInput{ID: gen.A}
		}
		colB, ok := g.Registry.Column(gen.B)
		if !ok {
			return &errs.MissingInput{ID: gen.B}
		}
		a, b := g.Metrics[colA], g.Metrics[colB]
		for e := uint32(0); e < g.NumEdges; e++ {
			if b[e] == 0 {
				return &errs.DegenerateMetric{Metric: gen.ID, Reason: "division by zero"}
			}
			v := a[e] / b[e]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &errs.DegenerateMetric{Metric: gen.ID, Reason: "non-finite result"}
			}
			out[e] = v
		}

	case metric.GenCopy:
		from, ok := g.Registry.Column(gen.From)
		if !ok {
			return &errs.MissingInput{ID: gen.From}
		}
		copy(out, g.Metrics[from])

	case metric.GenCustom:
		for e := range out {
			out[e] = gen.Default
		}
	}
	return nil
}
