// Package metric implements the metric registry: the
// mapping from human-readable metric ids to dense column indices, unit
// tagging, and the generation DAG (Haversine / Calc / Copy / Custom)
// evaluated in topological order once raw edges are loaded.
package metric

import (
	"sort"

	"osmgraph/pkg/errs"
)

// GenKind identifies how a generated metric derives its value.
type GenKind int

const (
	// GenHaversine computes the great-circle distance between the edge's
	// source and destination node coordinates. It has no metric-id
	// dependency — it reads node coordinates directly.
	GenHaversine GenKind = iota
	// GenCalc computes Result = A / B from two already-registered columns.
	GenCalc
	// GenCopy copies an already-registered column verbatim under a new id.
	GenCopy
	// GenCustom fills every edge with a constant default value.
	GenCustom
)

// Generator describes one entry of the config's `generating` section.
type Generator struct {
	ID      string
	Unit    Unit
	Kind    GenKind
	A, B    string // operands for GenCalc
	From    string // source id for GenCopy
	Default float64
}

func (g Generator) dependencies() []string {
	switch g.Kind {
	case GenCalc:
		return []string{g.A, g.B}
	case GenCopy:
		return []string{g.From}
	default:
		return nil
	}
}

// Registry maps metric ids to dense column indices and remembers each
// column's unit and whether it was mean-normalized.
type Registry struct {
	order      []string
	index      map[string]int
	units      map[string]Unit
	normalized map[string]bool
	means      map[string]float64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		index:      make(map[string]int),
		units:      make(map[string]Unit),
		normalized: make(map[string]bool),
		means:      make(map[string]float64),
	}
}

// RegisterInput reserves a column for a raw, already-present input
// metric (one declared by an `edges.data[]` column in the parsing
// config). Returns BadConfig on a duplicate id.
func (r *Registry) RegisterInput(id string, unit Unit) (int, error) {
	if _, exists := r.index[id]; exists {
		return 0, &errs.BadConfig{Reason: "duplicate metric id: " + id}
	}
	col := len(r.order)
	r.order = append(r.order, id)
	r.index[id] = col
	r.units[id] = unit
	return col, nil
}

// Column returns the column index for a registered id.
func (r *Registry) Column(id string) (int, bool) {
	col, ok := r.index[id]
	return col, ok
}

// Unit returns the unit tag for a registered id.
func (r *Registry) Unit(id string) (Unit, bool) {
	u, ok := r.units[id]
	return u, ok
}

// Len returns the number of registered columns.
func (r *Registry) Len() int { return len(r.order) }

// IDs returns the registered ids in column order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SetNormalized records that a column was divided by its mean μ, so the
// mean can be retained for lossless denormalization on export.
func (r *Registry) SetNormalized(id string, mean float64) {
	r.normalized[id] = true
	r.means[id] = mean
}

// Mean returns the retained mean for a normalized column, or (0, false)
// if the column was never normalized.
func (r *Registry) Mean(id string) (float64, bool) {
	if !r.normalized[id] {
		return 0, false
	}
	return r.means[id], true
}

// ResolveGenerators registers the ids produced by a set of generators in
// topological order over their dependency DAG (Kahn's algorithm),
// returning the generators in the order they must be evaluated. A
// generator whose dependency is neither a prior input column nor another
// generator's output is MissingInput; a remaining cycle after the sort
// is BadConfig.
func (r *Registry) ResolveGenerators(gens []Generator) ([]Generator, error) {
	byID := make(map[string]Generator, len(gens))
	for _, g := range gens {
		if _, exists := r.index[g.ID]; exists {
			return nil, &errs.BadConfig{Reason: "duplicate metric id: " + g.ID}
		}
		if _, dup := byID[g.ID]; dup {
			return nil, &errs.BadConfig{Reason: "duplicate metric id: " + g.ID}
		}
		byID[g.ID] = g
	}

	// Build in-degree over the generator subgraph; dependencies already
	// satisfied by a registered input column count as depth-0 leaves.
	indegree := make(map[string]int, len(gens))
	dependents := make(map[string][]string) // dep id -> generator ids waiting on it
	for _, g := range gens {
		for _, dep := range g.dependencies() {
			if _, isInput := r.index[dep]; isInput {
				continue // satisfied already
			}
			if _, isGenerated := byID[dep]; !isGenerated {
				return nil, &errs.MissingInput{ID: dep}
			}
			indegree[g.ID]++
			dependents[dep] = append(dependents[dep], g.ID)
		}
	}

	// Deterministic starting order for the queue.
	ids := make([]string, 0, len(gens))
	for _, g := range gens {
		ids = append(ids, g.ID)
	}
	sort.Strings(ids)

	var queue []string
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var ordered []Generator
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byID[id])

		next := dependents[id]
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(ordered) != len(gens) {
		return nil, &errs.BadConfig{Reason: "cycle in metric generation DAG"}
	}

	for _, g := range ordered {
		if _, err := r.RegisterInput(g.ID, g.Unit); err != nil {
			return nil, err
		}
	}

	return ordered, nil
}
