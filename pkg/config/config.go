// Package config decodes the YAML configuration schema:
// parsing (map file, vehicle category, column layout, generated
// metrics), routing (algorithm, active metrics, tolerances), balancing
// (seed, worker count, iteration configs, fold-back method, external CH
// constructor, monitoring), and the writing.graph output layout.
// Validation is fail-fast: a config that cannot drive a full run is
// rejected before any input is read.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"osmgraph/pkg/errs"
)

// Config is the full decoded YAML document.
type Config struct {
	Parsing   ParsingConfig    `yaml:"parsing"`
	Routing   RoutingConfig    `yaml:"routing"`
	Balancing *BalancingConfig `yaml:"balancing,omitempty"`
	Writing   *WritingConfig   `yaml:"writing,omitempty"`
}

// ParsingConfig is the `parsing` section.
type ParsingConfig struct {
	MapFile    string           `yaml:"map-file"`
	Vehicles   VehiclesConfig   `yaml:"vehicles"`
	Nodes      []ColumnSpec     `yaml:"nodes"`
	Edges      EdgesConfig      `yaml:"edges"`
	Generating GeneratingConfig `yaml:"generating"`
}

// VehiclesConfig selects the vehicle category used to filter OSM ways.
type VehiclesConfig struct {
	Category        string `yaml:"category"`
	AreDriversPicky bool   `yaml:"are_drivers_picky"`
}

// ColumnSpec declares the meaning of one whitespace-separated fmi column:
// exactly one of Meta, Metric, or Ignored is set.
type ColumnSpec struct {
	Meta    *MetaSpec   `yaml:"meta,omitempty"`
	Metric  *MetricSpec `yaml:"metric,omitempty"`
	Ignored bool        `yaml:"ignored,omitempty"`
}

// MetaSpec marks a column as structural metadata: a node/edge id, source/
// destination reference, coordinate, CH level, or shortcut child index.
type MetaSpec struct {
	Info string `yaml:"info"`
	ID   string `yaml:"id,omitempty"`
}

// MetricSpec marks a column as a numeric edge metric.
type MetricSpec struct {
	Unit string `yaml:"unit"`
	ID   string `yaml:"id"`
}

// EdgesConfig is the `parsing.edges` section.
type EdgesConfig struct {
	Data                       []ColumnSpec `yaml:"data"`
	WillNormalizeMetricsByMean bool         `yaml:"will_normalize_metrics_by_mean"`
}

// GeneratingConfig is the `parsing.generating` section: metrics derived
// after raw columns are loaded, evaluated in dependency order.
type GeneratingConfig struct {
	Nodes []GeneratorSpec `yaml:"nodes"`
	Edges []GeneratorSpec `yaml:"edges"`
}

// GeneratorSpec is one generated-metric declaration; exactly one field
// is set.
type GeneratorSpec struct {
	Haversine *HaversineSpec `yaml:"haversine,omitempty"`
	Calc      *CalcSpec      `yaml:"calc,omitempty"`
	Copy      *CopySpec      `yaml:"copy,omitempty"`
	Custom    *CustomSpec    `yaml:"custom,omitempty"`
}

// HaversineSpec generates a great-circle distance metric from node
// coordinates.
type HaversineSpec struct {
	Result string `yaml:"result"`
	Unit   string `yaml:"unit,omitempty"`
}

// CalcSpec generates Result = A / B from two already-registered metrics.
type CalcSpec struct {
	Result string `yaml:"result"`
	Unit   string `yaml:"unit,omitempty"`
	A      string `yaml:"a"`
	B      string `yaml:"b"`
}

// CopySpec duplicates an already-registered metric under a new id.
type CopySpec struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// CustomSpec fills every edge with a constant default value.
type CustomSpec struct {
	ID      string  `yaml:"id"`
	Unit    string  `yaml:"unit"`
	Default float64 `yaml:"default"`
}

// RoutingConfig is the `routing` section.
type RoutingConfig struct {
	Algorithm      string      `yaml:"algorithm"` // Dijkstra, CHDijkstra, Explorator
	ExploratorAlgo string      `yaml:"explorator-algo,omitempty"`
	Metrics        []MetricRef `yaml:"metrics"`
	RoutePairsFile string      `yaml:"route-pairs-file,omitempty"`
}

// MetricRef activates one metric for the cost function, with an optional
// tolerance scale that makes it a secondary (constrained) metric for the
// Explorator.
type MetricRef struct {
	ID             string   `yaml:"id"`
	ToleratedScale *float64 `yaml:"tolerated-scale,omitempty"`
}

// BalancingConfig is the `balancing` section.
type BalancingConfig struct {
	Seed                  int64                `yaml:"seed"`
	NumberOfThreads       int                  `yaml:"number_of_threads"`
	ResultsDir            string               `yaml:"results-dir"`
	Iter0Cfg              IterationConfig      `yaml:"iter-0-cfg"`
	IterICfg              IterationConfig      `yaml:"iter-i-cfg"`
	OptimizingWith        OptimizingWith       `yaml:"optimizing_with"`
	NumberOfMetricUpdates int                  `yaml:"number_of_metric-updates"`
	MinNewMetric          float64              `yaml:"min_new_metric"`
	MultiCHConstructor    *CHConstructorConfig `yaml:"multi-ch-constructor,omitempty"`
	Monitoring            MonitoringConfig     `yaml:"monitoring"`
}

// IterationConfig selects the routing algorithm used for one round (or,
// via iter-i-cfg, every round after the first).
type IterationConfig struct {
	Algorithm string `yaml:"algorithm"`
}

// OptimizingWith selects the workload fold-back method.
type OptimizingWith struct {
	MetricID   string  `yaml:"metric-id"`
	Method     string  `yaml:"method"` // averaging, explicit_euler
	Correction float64 `yaml:"correction,omitempty"`
}

// CHConstructorConfig configures the external CH-constructor subprocess.
type CHConstructorConfig struct {
	Binary           string  `yaml:"binary"`
	ContractionRatio float64 `yaml:"contraction-ratio"`
	Threads          int     `yaml:"threads"`
	PrintIDs         bool    `yaml:"print-ids"`
}

// MonitoringConfig is the `balancing.monitoring` section.
type MonitoringConfig struct {
	EdgesInfo EdgesInfoConfig `yaml:"edges-info"`
}

// EdgesInfoConfig configures the per-round edges-info CSV diagnostic.
type EdgesInfoConfig struct {
	File                         string   `yaml:"file"`
	WithShortcuts                bool     `yaml:"with_shortcuts"`
	WillDenormalizeMetricsByMean bool     `yaml:"will_denormalize_metrics_by_mean"`
	IDs                          []string `yaml:"ids"`
}

// WritingConfig is the `writing` section.
type WritingConfig struct {
	Graph GraphWriteConfig `yaml:"graph"`
}

// GraphWriteConfig mirrors ParsingConfig's column layout for round-tripping
// a built graph back to an fmi file.
type GraphWriteConfig struct {
	Nodes []ColumnSpec `yaml:"nodes"`
	Edges EdgesConfig  `yaml:"edges"`
}

// Load reads and decodes a YAML config file, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.IoError{Path: path, Err: err}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &errs.BadConfig{Reason: fmt.Sprintf("invalid YAML in %s: %v", path, err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and cross-references that yaml
// decoding alone cannot catch.
func (c *Config) Validate() error {
	if c.Parsing.MapFile == "" {
		return &errs.BadConfig{Reason: "parsing.map-file is required"}
	}
	switch c.Routing.Algorithm {
	case "Dijkstra", "CHDijkstra", "Explorator", "":
	default:
		return &errs.BadConfig{Reason: "routing.algorithm must be one of Dijkstra, CHDijkstra, Explorator"}
	}
	for _, col := range c.Parsing.Edges.Data {
		if err := col.validate(); err != nil {
			return err
		}
	}
	if c.Balancing != nil {
		if err := c.Balancing.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c ColumnSpec) validate() error {
	n := 0
	if c.Meta != nil {
		n++
	}
	if c.Metric != nil {
		n++
	}
	if c.Ignored {
		n++
	}
	if n != 1 {
		return &errs.BadConfig{Reason: "column spec must set exactly one of meta, metric, ignored"}
	}
	return nil
}

func (b *BalancingConfig) validate() error {
	if b.NumberOfThreads <= 0 {
		return &errs.BadConfig{Reason: "balancing.number_of_threads must be positive"}
	}
	switch b.OptimizingWith.Method {
	case "averaging", "explicit_euler":
	default:
		return &errs.BadConfig{Reason: "balancing.optimizing_with.method must be averaging or explicit_euler"}
	}
	if b.OptimizingWith.Method == "explicit_euler" && b.OptimizingWith.Correction <= 0 {
		return &errs.BadConfig{Reason: "balancing.optimizing_with.correction must be positive for explicit_euler"}
	}
	// CH selected without a constructor to (re)build the contraction is a
	// config error, not a silent fallback to plain Dijkstra.
	if b.Iter0Cfg.Algorithm == "CHDijkstra" && b.MultiCHConstructor == nil {
		return &errs.BadConfig{Reason: "iter-0-cfg selects CHDijkstra but no multi-ch-constructor is configured to produce the initial contraction"}
	}
	if b.IterICfg.Algorithm == "CHDijkstra" && b.MultiCHConstructor == nil {
		return &errs.BadConfig{Reason: "iter-i-cfg selects CHDijkstra but no multi-ch-constructor is configured to rebuild the contraction between rounds"}
	}
	return nil
}
