package config

import (
	"osmgraph/pkg/cost"
	"osmgraph/pkg/errs"
	"osmgraph/pkg/graph"
	"osmgraph/pkg/metric"
)

// InputColumns converts the parsing.edges.data column declarations into
// graph.InputColumn values, in file order, skipping meta and ignored
// columns.
func (p *ParsingConfig) InputColumns() ([]graph.InputColumn, error) {
	var cols []graph.InputColumn
	for _, c := range p.Edges.Data {
		if c.Metric == nil {
			continue
		}
		unit, ok := metric.ParseUnit(c.Metric.Unit)
		if !ok {
			return nil, &errs.BadConfig{Reason: "unknown unit: " + c.Metric.Unit}
		}
		cols = append(cols, graph.InputColumn{ID: c.Metric.ID, Unit: unit})
	}
	return cols, nil
}

// NormalizeIDs returns the metric ids that must be mean-normalized, i.e.
// every declared input column when will_normalize_metrics_by_mean is set.
func (p *ParsingConfig) NormalizeIDs() []string {
	if !p.Edges.WillNormalizeMetricsByMean {
		return nil
	}
	var ids []string
	for _, c := range p.Edges.Data {
		if c.Metric != nil {
			ids = append(ids, c.Metric.ID)
		}
	}
	return ids
}

// Generators converts the parsing.generating.edges declarations into
// metric.Generator values. The parsing.generating.nodes declarations
// are decoded but not converted or evaluated anywhere.
func (g *GeneratingConfig) Generators() ([]metric.Generator, error) {
	gens := make([]metric.Generator, 0, len(g.Edges))
	for _, spec := range g.Edges {
		gen, err := spec.toGenerator()
		if err != nil {
			return nil, err
		}
		gens = append(gens, gen)
	}
	return gens, nil
}

func (s GeneratorSpec) toGenerator() (metric.Generator, error) {
	n := 0
	if s.Haversine != nil {
		n++
	}
	if s.Calc != nil {
		n++
	}
	if s.Copy != nil {
		n++
	}
	if s.Custom != nil {
		n++
	}
	if n != 1 {
		return metric.Generator{}, &errs.BadConfig{Reason: "generator spec must set exactly one of haversine, calc, copy, custom"}
	}

	switch {
	case s.Haversine != nil:
		unit := metric.Kilometers
		if s.Haversine.Unit != "" {
			u, ok := metric.ParseUnit(s.Haversine.Unit)
			if !ok {
				return metric.Generator{}, &errs.BadConfig{Reason: "unknown unit: " + s.Haversine.Unit}
			}
			unit = u
		}
		return metric.Generator{ID: s.Haversine.Result, Unit: unit, Kind: metric.GenHaversine}, nil
	case s.Calc != nil:
		unit := metric.F64
		if s.Calc.Unit != "" {
			u, ok := metric.ParseUnit(s.Calc.Unit)
			if !ok {
				return metric.Generator{}, &errs.BadConfig{Reason: "unknown unit: " + s.Calc.Unit}
			}
			unit = u
		}
		return metric.Generator{ID: s.Calc.Result, Unit: unit, Kind: metric.GenCalc, A: s.Calc.A, B: s.Calc.B}, nil
	case s.Copy != nil:
		return metric.Generator{ID: s.Copy.To, Kind: metric.GenCopy, From: s.Copy.From}, nil
	default:
		unit, ok := metric.ParseUnit(s.Custom.Unit)
		if !ok {
			return metric.Generator{}, &errs.BadConfig{Reason: "unknown unit: " + s.Custom.Unit}
		}
		return metric.Generator{ID: s.Custom.ID, Unit: unit, Kind: metric.GenCustom, Default: s.Custom.Default}, nil
	}
}

// RawGraphOptions fills in a graph.RawGraph's Inputs, Generators, and
// Normalize fields from this config's parsing section. Nodes and Edges
// must still be populated by the caller's parser.
func (p *ParsingConfig) RawGraphOptions() (graph.RawGraph, error) {
	inputs, err := p.InputColumns()
	if err != nil {
		return graph.RawGraph{}, err
	}
	gens, err := p.Generating.Generators()
	if err != nil {
		return graph.RawGraph{}, err
	}
	return graph.RawGraph{
		Inputs:     inputs,
		Generators: gens,
		Normalize:  p.NormalizeIDs(),
	}, nil
}

// CostFunction builds the cost.Function and tolerance set the routing
// engine and Explorator use, from this config's routing.metrics
// declarations resolved against a built graph's registry.
func (r *RoutingConfig) CostFunction(g *graph.Graph) (cost.Function, []cost.Tolerance, error) {
	var fn cost.Function
	var tolerances []cost.Tolerance
	for _, m := range r.Metrics {
		col, ok := g.Column(m.ID)
		if !ok {
			return cost.Function{}, nil, &errs.MissingInput{ID: m.ID}
		}
		if m.ToleratedScale != nil {
			tolerances = append(tolerances, cost.Tolerance{Column: col, Scale: *m.ToleratedScale})
			continue
		}
		fn.Terms = append(fn.Terms, cost.Term{Column: col, Weight: 1})
	}
	if len(fn.Terms) == 0 {
		return cost.Function{}, nil, &errs.BadConfig{Reason: "routing.metrics must declare at least one primary (non-tolerated) metric"}
	}
	return fn, tolerances, nil
}
