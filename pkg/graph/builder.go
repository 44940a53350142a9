package graph

import (
	"log"
	"sort"

	"gonum.org/v1/gonum/stat"

	"osmgraph/pkg/errs"
	"osmgraph/pkg/metric"
)

// compactEdge is an edge resolved to dense node indices, still carrying
// its original raw.Edges position so CH shortcut references (which point
// at raw.Edges positions) can be remapped after sorting.
type compactEdge struct {
	from, to uint32
	extID    int64
	data     map[string]float64
	orig     int
}

// Build assembles a CSR Graph from a RawGraph: it assigns dense node and
// edge indices, registers every declared input metric column, evaluates
// generated metrics in dependency order, applies requested
// normalizations, and constructs the forward and backward adjacency.
func Build(raw *RawGraph) (*Graph, error) {
	if len(raw.Nodes) == 0 {
		return &Graph{Registry: metric.NewRegistry()}, nil
	}

	nodeIdx := make(map[int64]uint32, len(raw.Nodes))
	nodeExtID := make([]int64, len(raw.Nodes))
	nodeLat := make([]float64, len(raw.Nodes))
	nodeLon := make([]float64, len(raw.Nodes))
	for i, n := range raw.Nodes {
		nodeIdx[n.ExtID] = uint32(i)
		nodeExtID[i] = n.ExtID
		nodeLat[i] = n.Lat
		nodeLon[i] = n.Lon
	}
	numNodes := uint32(len(raw.Nodes))

	reg := metric.NewRegistry()
	inputCols := make([]int, len(raw.Inputs))
	for i, in := range raw.Inputs {
		col, err := reg.RegisterInput(in.ID, in.Unit)
		if err != nil {
			return nil, err
		}
		inputCols[i] = col
	}

	compact := make([]compactEdge, 0, len(raw.Edges))
	var skippedUnknown, skippedSelfLoop int
	for i, e := range raw.Edges {
		from, ok := nodeIdx[e.From]
		if !ok {
			skippedUnknown++
			continue
		}
		to, ok := nodeIdx[e.To]
		if !ok {
			skippedUnknown++
			continue
		}
		if from == to {
			skippedSelfLoop++
			continue
		}
		compact = append(compact, compactEdge{from: from, to: to, extID: e.ExtID, data: e.Data, orig: i})
	}
	if skippedUnknown > 0 {
		log.Printf("Warning: skipped %d edges referencing unknown nodes", skippedUnknown)
	}
	if skippedSelfLoop > 0 {
		log.Printf("Warning: skipped %d self-loop edges", skippedSelfLoop)
	}

	sort.Slice(compact, func(i, j int) bool {
		if compact[i].from != compact[j].from {
			return compact[i].from < compact[j].from
		}
		return compact[i].to < compact[j].to
	})

	numEdges := uint32(len(compact))

	src := make([]uint32, numEdges)
	dst := make([]uint32, numEdges)
	extEdgeID := make([]int64, numEdges)
	metrics := make([][]float64, reg.Len())
	for _, col := range inputCols {
		metrics[col] = make([]float64, numEdges)
	}

	for i, e := range compact {
		src[i] = e.from
		dst[i] = e.to
		extEdgeID[i] = e.extID
		for j, in := range raw.Inputs {
			metrics[inputCols[j]][i] = e.data[in.ID]
		}
	}

	offF := make([]uint32, numNodes+1)
	for _, s := range src {
		offF[s+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		offF[i] += offF[i-1]
	}
	adjF := make([]uint32, numEdges)
	for i := uint32(0); i < numEdges; i++ {
		adjF[i] = i
	}

	bwdOrder := make([]uint32, numEdges)
	for i := range bwdOrder {
		bwdOrder[i] = uint32(i)
	}
	sort.Slice(bwdOrder, func(i, j int) bool {
		ei, ej := bwdOrder[i], bwdOrder[j]
		if dst[ei] != dst[ej] {
			return dst[ei] < dst[ej]
		}
		return src[ei] < src[ej]
	})

	offB := make([]uint32, numNodes+1)
	for _, d := range dst {
		offB[d+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		offB[i] += offB[i-1]
	}

	fwdToBwd := make([]uint32, numEdges)
	for pos, edgeIdx := range bwdOrder {
		fwdToBwd[edgeIdx] = uint32(pos)
	}

	g := &Graph{
		NumNodes:  numNodes,
		NumEdges:  numEdges,
		OffF:      offF,
		AdjF:      adjF,
		OffB:      offB,
		AdjB:      bwdOrder,
		FwdToBwd:  fwdToBwd,
		Src:       src,
		Dst:       dst,
		ExtEdgeID: extEdgeID,
		Metrics:   metrics,
		Registry:  reg,
		NodeExtID: nodeExtID,
		NodeLat:   nodeLat,
		NodeLon:   nodeLon,
	}

	if err := applyGenerators(g, raw.Generators); err != nil {
		return nil, err
	}

	for _, id := range raw.Normalize {
		if err := normalizeColumn(g, id); err != nil {
			return nil, err
		}
	}

	if err := applyCHAugmentation(g, raw, compact); err != nil {
		return nil, err
	}

	return g, nil
}

// applyCHAugmentation copies node levels and remaps shortcut child
// references from raw.Edges order into the final sorted edge order, when
// raw carries CH augmentation. It is a no-op otherwise.
func applyCHAugmentation(g *Graph, raw *RawGraph, compact []compactEdge) error {
	if raw.NodeLevels == nil && raw.EdgeShortcutA == nil {
		return nil
	}
	if raw.NodeLevels != nil {
		if len(raw.NodeLevels) != len(raw.Nodes) {
			return &errs.BadConfig{Reason: "NodeLevels length does not match Nodes length"}
		}
		g.Levels = append([]uint32(nil), raw.NodeLevels...)
	}
	if raw.EdgeShortcutA == nil {
		return nil
	}
	if len(raw.EdgeShortcutA) != len(raw.Edges) || len(raw.EdgeShortcutB) != len(raw.Edges) {
		return &errs.BadConfig{Reason: "EdgeShortcutA/B length does not match Edges length"}
	}

	finalPos := make([]int32, len(raw.Edges))
	for i := range finalPos {
		finalPos[i] = NoShortcut
	}
	for newIdx, ce := range compact {
		finalPos[ce.orig] = int32(newIdx)
	}

	remap := func(origRef int32) int32 {
		if origRef == NoShortcut {
			return NoShortcut
		}
		if int(origRef) < 0 || int(origRef) >= len(finalPos) {
			return NoShortcut
		}
		pos := finalPos[origRef]
		if pos == NoShortcut {
			log.Printf("Warning: shortcut references a dropped edge, treating as original")
		}
		return pos
	}

	shortcutA := make([]int32, len(compact))
	shortcutB := make([]int32, len(compact))
	for newIdx, ce := range compact {
		a := remap(raw.EdgeShortcutA[ce.orig])
		b := remap(raw.EdgeShortcutB[ce.orig])
		if (a == NoShortcut) != (b == NoShortcut) {
			return &errs.BadConfig{Reason: "shortcut edge must carry both child indices or neither"}
		}
		if a != NoShortcut {
			// Children must chain the shortcut's endpoints through one
			// via node.
			if g.Src[a] != ce.from || g.Dst[b] != ce.to || g.Dst[a] != g.Src[b] {
				return &errs.BadConfig{Reason: "shortcut children do not chain from the shortcut's source to its destination"}
			}
		}
		shortcutA[newIdx] = a
		shortcutB[newIdx] = b
	}
	g.ShortcutA = shortcutA
	g.ShortcutB = shortcutB
	return nil
}

// normalizeColumn divides every value of metric id by the column mean and
// records the mean on the registry for later denormalization.
func normalizeColumn(g *Graph, id string) error {
	col, ok := g.Registry.Column(id)
	if !ok {
		return &errs.MissingInput{ID: id}
	}
	values := g.Metrics[col]
	if len(values) == 0 {
		return nil
	}
	mean := stat.Mean(values, nil)
	if mean <= 0 {
		return &errs.DegenerateMetric{Metric: id, Reason: "non-positive mean, cannot normalize"}
	}
	for i, v := range values {
		values[i] = v / mean
	}
	g.Registry.SetNormalized(id, mean)
	return nil
}
