package fmi

import (
	"strings"
	"testing"

	"osmgraph/pkg/config"
	"osmgraph/pkg/graph"
	"osmgraph/pkg/metric"
)

func triangleParsingConfig() *config.ParsingConfig {
	return &config.ParsingConfig{
		Nodes: []config.ColumnSpec{
			{Meta: &config.MetaSpec{Info: "node-id"}},
			{Meta: &config.MetaSpec{Info: "lat"}},
			{Meta: &config.MetaSpec{Info: "lon"}},
		},
		Edges: config.EdgesConfig{
			Data: []config.ColumnSpec{
				{Meta: &config.MetaSpec{Info: "src-id"}},
				{Meta: &config.MetaSpec{Info: "dst-id"}},
				{Metric: &config.MetricSpec{Unit: "F64", ID: "length_m"}},
			},
		},
	}
}

const triangleFmi = `1 3 3
100 1.0 103.0
200 1.1 103.0
300 1.0 103.1
100 200 1000
200 300 2000
300 100 3000
`

func TestReadTriangle(t *testing.T) {
	cfg := triangleParsingConfig()
	raw, err := Read(strings.NewReader(triangleFmi), "triangle.fmi", cfg)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(raw.Nodes) != 3 {
		t.Fatalf("len(Nodes) = %d, want 3", len(raw.Nodes))
	}
	if len(raw.Edges) != 3 {
		t.Fatalf("len(Edges) = %d, want 3", len(raw.Edges))
	}
	if raw.Edges[0].From != 100 || raw.Edges[0].To != 200 {
		t.Errorf("Edges[0] = %+v, want From=100 To=200", raw.Edges[0])
	}
	if raw.Edges[0].Data["length_m"] != 1000 {
		t.Errorf("Edges[0].Data[length_m] = %v, want 1000", raw.Edges[0].Data["length_m"])
	}

	g, err := graph.Build(raw)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.NumNodes != 3 || g.NumEdges != 3 {
		t.Fatalf("NumNodes=%d NumEdges=%d, want 3,3", g.NumNodes, g.NumEdges)
	}
}

func TestReadWrongColumnCount(t *testing.T) {
	cfg := triangleParsingConfig()
	bad := "1 1 0\n100 1.0\n" // node line missing a column
	if _, err := Read(strings.NewReader(bad), "bad.fmi", cfg); err == nil {
		t.Fatal("Read: want ParseError for short node line, got nil")
	}
}

func TestReadTruncatedFile(t *testing.T) {
	cfg := triangleParsingConfig()
	bad := "1 3 3\n100 1.0 103.0\n"
	if _, err := Read(strings.NewReader(bad), "bad.fmi", cfg); err == nil {
		t.Fatal("Read: want ParseError for truncated file, got nil")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	cfg := triangleParsingConfig()
	raw, err := Read(strings.NewReader(triangleFmi), "triangle.fmi", cfg)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	g, err := graph.Build(raw)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	writeCfg := config.GraphWriteConfig{
		Nodes: cfg.Nodes,
		Edges: cfg.Edges,
	}

	var buf strings.Builder
	if err := Write(&buf, g, writeCfg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw2, err := Read(strings.NewReader(buf.String()), "roundtrip.fmi", cfg)
	if err != nil {
		t.Fatalf("Read round-trip: %v", err)
	}
	g2, err := graph.Build(raw2)
	if err != nil {
		t.Fatalf("Build round-trip: %v", err)
	}
	if g2.NumNodes != g.NumNodes || g2.NumEdges != g.NumEdges {
		t.Errorf("round-trip NumNodes=%d NumEdges=%d, want %d,%d", g2.NumNodes, g2.NumEdges, g.NumNodes, g.NumEdges)
	}
	col, _ := g.Column("length_m")
	col2, _ := g2.Column("length_m")
	var total, total2 float64
	for _, v := range g.Metrics[col] {
		total += v
	}
	for _, v := range g2.Metrics[col2] {
		total2 += v
	}
	if total != total2 {
		t.Errorf("round-trip total length_m = %v, want %v", total2, total)
	}
}

func TestWriteCHColumns(t *testing.T) {
	raw := &graph.RawGraph{
		Nodes: []graph.RawNode{
			{ExtID: 1, Lat: 1.0, Lon: 103.0},
			{ExtID: 2, Lat: 1.1, Lon: 103.0},
			{ExtID: 3, Lat: 1.0, Lon: 103.1},
		},
		Edges: []graph.RawEdge{
			{From: 1, To: 2, Data: map[string]float64{"length_m": 100}},
			{From: 2, To: 3, Data: map[string]float64{"length_m": 200}},
			{From: 1, To: 3, Data: map[string]float64{"length_m": 300}},
		},
		Inputs:        []graph.InputColumn{{ID: "length_m", Unit: metric.F64}},
		NodeLevels:    []uint32{0, 1, 2},
		EdgeShortcutA: []int32{graph.NoShortcut, graph.NoShortcut, 0},
		EdgeShortcutB: []int32{graph.NoShortcut, graph.NoShortcut, 1},
	}
	g, err := graph.Build(raw)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	writeCfg := config.GraphWriteConfig{
		Nodes: []config.ColumnSpec{
			{Meta: &config.MetaSpec{Info: "node-id"}},
			{Meta: &config.MetaSpec{Info: "lat"}},
			{Meta: &config.MetaSpec{Info: "lon"}},
			{Meta: &config.MetaSpec{Info: "level"}},
		},
		Edges: config.EdgesConfig{
			Data: []config.ColumnSpec{
				{Meta: &config.MetaSpec{Info: "src-id"}},
				{Meta: &config.MetaSpec{Info: "dst-id"}},
				{Metric: &config.MetricSpec{Unit: "F64", ID: "length_m"}},
				{Meta: &config.MetaSpec{Info: "shortcut-a"}},
				{Meta: &config.MetaSpec{Info: "shortcut-b"}},
			},
		},
	}

	var buf strings.Builder
	if err := Write(&buf, g, writeCfg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), "1\n") {
		t.Errorf("header missing CH flag: %q", buf.String())
	}
}
