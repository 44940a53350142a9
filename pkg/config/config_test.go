package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, yamlText string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yamlText), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const minimalYAML = `
parsing:
  map-file: map.osm.pbf
  vehicles:
    category: Car
  edges:
    data:
      - metric:
          unit: KilometersPerHour
          id: speed_kmh
routing:
  algorithm: Dijkstra
  metrics:
    - id: length_m
`

func TestLoadMinimal(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Parsing.MapFile != "map.osm.pbf" {
		t.Errorf("MapFile = %q, want map.osm.pbf", cfg.Parsing.MapFile)
	}
	if cfg.Routing.Algorithm != "Dijkstra" {
		t.Errorf("Algorithm = %q, want Dijkstra", cfg.Routing.Algorithm)
	}
}

func TestLoadMissingMapFile(t *testing.T) {
	path := writeTempConfig(t, "parsing:\n  vehicles:\n    category: Car\nrouting:\n  algorithm: Dijkstra\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load: want error for missing map-file, got nil")
	}
}

func TestLoadBadAlgorithm(t *testing.T) {
	path := writeTempConfig(t, "parsing:\n  map-file: m.pbf\nrouting:\n  algorithm: Bogus\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load: want error for unknown algorithm, got nil")
	}
}

func TestLoadAmbiguousColumnSpec(t *testing.T) {
	yamlText := `
parsing:
  map-file: m.pbf
  edges:
    data:
      - metric:
          unit: F64
          id: x
        ignored: true
routing:
  algorithm: Dijkstra
`
	path := writeTempConfig(t, yamlText)
	if _, err := Load(path); err == nil {
		t.Fatal("Load: want error for column spec setting both metric and ignored, got nil")
	}
}

func TestLoadBalancingRequiresCHForRoundZero(t *testing.T) {
	yamlText := `
parsing:
  map-file: m.pbf
routing:
  algorithm: Dijkstra
balancing:
  number_of_threads: 4
  optimizing_with:
    metric-id: load
    method: averaging
  iter-0-cfg:
    algorithm: CHDijkstra
`
	path := writeTempConfig(t, yamlText)
	if _, err := Load(path); err == nil {
		t.Fatal("Load: want BadConfig for CHDijkstra round 0 without multi-ch-constructor, got nil")
	}
}

func TestLoadBalancingExplicitEulerNeedsCorrection(t *testing.T) {
	yamlText := `
parsing:
  map-file: m.pbf
routing:
  algorithm: Dijkstra
balancing:
  number_of_threads: 4
  optimizing_with:
    metric-id: load
    method: explicit_euler
`
	path := writeTempConfig(t, yamlText)
	if _, err := Load(path); err == nil {
		t.Fatal("Load: want BadConfig for explicit_euler without correction, got nil")
	}
}

func TestInputColumnsSkipsMetaAndIgnored(t *testing.T) {
	p := &ParsingConfig{
		Edges: EdgesConfig{
			Data: []ColumnSpec{
				{Meta: &MetaSpec{Info: "src-id"}},
				{Metric: &MetricSpec{Unit: "KilometersPerHour", ID: "speed_kmh"}},
				{Ignored: true},
				{Metric: &MetricSpec{Unit: "LaneCount", ID: "lanes"}},
			},
		},
	}
	cols, err := p.InputColumns()
	if err != nil {
		t.Fatalf("InputColumns: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("len(cols) = %d, want 2", len(cols))
	}
	if cols[0].ID != "speed_kmh" || cols[1].ID != "lanes" {
		t.Errorf("cols = %+v, want speed_kmh, lanes", cols)
	}
}

func TestInputColumnsUnknownUnit(t *testing.T) {
	p := &ParsingConfig{
		Edges: EdgesConfig{
			Data: []ColumnSpec{
				{Metric: &MetricSpec{Unit: "Furlongs", ID: "x"}},
			},
		},
	}
	if _, err := p.InputColumns(); err == nil {
		t.Fatal("InputColumns: want error for unknown unit, got nil")
	}
}

func TestGeneratorsAllKinds(t *testing.T) {
	scale := 1.0
	_ = scale
	g := GeneratingConfig{
		Edges: []GeneratorSpec{
			{Haversine: &HaversineSpec{Result: "dist_m"}},
			{Calc: &CalcSpec{Result: "speed", A: "dist_m", B: "hours"}},
			{Copy: &CopySpec{From: "speed", To: "speed2"}},
			{Custom: &CustomSpec{ID: "lanes", Unit: "LaneCount", Default: 1}},
		},
	}
	gens, err := g.Generators()
	if err != nil {
		t.Fatalf("Generators: %v", err)
	}
	if len(gens) != 4 {
		t.Fatalf("len(gens) = %d, want 4", len(gens))
	}
}

func TestGeneratorSpecAmbiguous(t *testing.T) {
	spec := GeneratorSpec{
		Haversine: &HaversineSpec{Result: "dist_m"},
		Copy:      &CopySpec{From: "a", To: "b"},
	}
	if _, err := spec.toGenerator(); err == nil {
		t.Fatal("toGenerator: want error for ambiguous spec, got nil")
	}
}
