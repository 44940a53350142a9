// Package cost evaluates the scalar edge cost used by every routing
// engine: a fixed linear combination of registered metric columns, plus
// the per-metric tolerance scale the Explorator uses to admit
// near-optimal alternatives.
package cost

import "osmgraph/pkg/graph"

// Term is one weighted metric in a cost function's linear combination.
type Term struct {
	Column int
	Weight float64
}

// Function computes Sum(term.Weight * g.Metric(term.Column, e)) for an
// edge e. A single-term Function with Weight 1 reduces to "use this
// metric directly", matching the plain-distance or plain-time case.
type Function struct {
	Terms []Term
}

// NewSingleMetric builds a Function that uses one metric column
// unweighted, the common case for shortest-distance or fastest-time
// routing.
func NewSingleMetric(column int) Function {
	return Function{Terms: []Term{{Column: column, Weight: 1}}}
}

// Eval returns the scalar cost of edge e under g.
func (f Function) Eval(g *graph.Graph, e uint32) float64 {
	var total float64
	for _, t := range f.Terms {
		total += t.Weight * g.Metric(t.Column, e)
	}
	return total
}

// Tolerance bounds how far a metric column may exceed its value along the
// optimal path before Explorator discards an alternative route.
type Tolerance struct {
	Column int
	Scale  float64 // e.g. 1.2 admits paths up to 20% worse on this metric
}

// Admissible reports whether candidate satisfies every tolerance given the
// optimal value for the same metric.
func Admissible(tolerances []Tolerance, optimal, candidate []float64) bool {
	for _, tol := range tolerances {
		if candidate[tol.Column] > optimal[tol.Column]*tol.Scale {
			return false
		}
	}
	return true
}
