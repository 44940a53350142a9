package graph

import "osmgraph/pkg/metric"

// RawNode is a single parsed node: an external id plus coordinates.
type RawNode struct {
	ExtID int64
	Lat   float64
	Lon   float64
}

// RawEdge is a single parsed directed edge. Data holds one raw value per
// input metric column, keyed by metric id, as declared by the parsing
// config's `edges.data[]` section.
type RawEdge struct {
	ExtID int64
	From  int64 // external node id
	To    int64 // external node id
	Data  map[string]float64
}

// RawGraph is the builder's input: the flat node and edge lists produced
// by an input parser (pkg/osm or pkg/fmi), plus the column declarations
// needed to assign dense metric indices.
type RawGraph struct {
	Nodes []RawNode
	Edges []RawEdge

	// Inputs declares every raw metric column present on RawEdge.Data, in
	// the order it should be assigned a dense column index.
	Inputs []InputColumn
	// Generators declares derived metrics, evaluated after all Inputs are
	// registered and populated.
	Generators []metric.Generator
	// Normalize lists metric ids that must be divided by their column
	// mean after generation, with the mean retained in the registry.
	Normalize []string

	// NodeLevels holds the CH contraction rank for each entry of Nodes, in
	// the same order, or nil if the input carries no CH augmentation.
	NodeLevels []uint32
	// EdgeShortcutA/EdgeShortcutB hold, per entry of Edges (in the same
	// order, before sorting), the pair of child edge indices — referring
	// to other positions in Edges — that a shortcut edge contracts, or
	// NoShortcut for an original edge. Both nil or both populated.
	EdgeShortcutA []int32
	EdgeShortcutB []int32
}

// InputColumn declares one raw edge-data column and its unit.
type InputColumn struct {
	ID   string
	Unit metric.Unit
}
