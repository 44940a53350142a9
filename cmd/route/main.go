// Command route runs a single point-to-point query against a
// preprocessed graph, or, when the config carries a `balancing` section,
// the full iterative workload-feedback loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"osmgraph/pkg/balancing"
	"osmgraph/pkg/config"
	"osmgraph/pkg/explorator"
	"osmgraph/pkg/graph"
	"osmgraph/pkg/routing"
)

func main() {
	graphPath := flag.String("graph", "graph.bin", "Path to preprocessed graph binary")
	configPath := flag.String("config", "", "Path to the YAML routing/balancing config")
	output := flag.String("output", "", "Balancing mode only: where to write the final graph binary")
	fromLat := flag.Float64("from-lat", 0, "Single-query mode: source latitude")
	fromLng := flag.Float64("from-lng", 0, "Single-query mode: source longitude")
	toLat := flag.Float64("to-lat", 0, "Single-query mode: target latitude")
	toLng := flag.Float64("to-lng", 0, "Single-query mode: target longitude")
	k := flag.Int("k", 1, "Single-query Explorator mode: number of alternative paths to return")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: route --config <config.yaml> [--graph graph.bin] (--from-lat/--from-lng/--to-lat/--to-lng | balancing config section)")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loading graph from %s...", *graphPath)
	g, err := graph.ReadBinary(*graphPath)
	if err != nil {
		log.Fatalf("Failed to load graph: %v", err)
	}
	log.Printf("Loaded: %d nodes, %d edges, CH=%v", g.NumNodes, g.NumEdges, g.HasCH())

	if cfg.Balancing != nil {
		runBalancing(cfg, g, *output)
		return
	}
	runSingleQuery(cfg, g, *fromLat, *fromLng, *toLat, *toLng, *k)
}

func runSingleQuery(cfg *config.Config, g *graph.Graph, fromLat, fromLng, toLat, toLng float64, k int) {
	cf, tolerances, err := cfg.Routing.CostFunction(g)
	if err != nil {
		log.Fatalf("Failed to build cost function: %v", err)
	}

	ctx := context.Background()

	if cfg.Routing.Algorithm == "Explorator" {
		snapper := routing.NewSnapper(g)
		source, err := snapToNode(snapper, fromLat, fromLng)
		if err != nil {
			log.Fatalf("Failed to snap start point: %v", err)
		}
		target, err := snapToNode(snapper, toLat, toLng)
		if err != nil {
			log.Fatalf("Failed to snap end point: %v", err)
		}

		paths, err := explorator.Find(ctx, g, cf, tolerances, source, target, k)
		if err != nil {
			log.Fatalf("Explorator query failed: %v", err)
		}
		for i, p := range paths {
			log.Printf("path %d: cost=%.2f metrics=%v edges=%d", i, p.Cost, p.Metrics, len(p.EdgePath))
		}
		return
	}

	mode := routing.ModeBidirectional
	switch cfg.Routing.Algorithm {
	case "Dijkstra":
		mode = routing.ModeDijkstra
	case "CHDijkstra":
		if !g.HasCH() {
			log.Fatalf("routing.algorithm is CHDijkstra but the loaded graph carries no CH augmentation")
		}
		mode = routing.ModeCH
	}

	engine := routing.NewEngine(g, cf, mode)
	res, err := engine.Route(ctx, routing.LatLng{Lat: fromLat, Lng: fromLng}, routing.LatLng{Lat: toLat, Lng: toLng})
	if err != nil {
		log.Fatalf("Route query failed: %v", err)
	}
	log.Printf("cost=%.2f metrics=%v edges=%d", res.TotalCost, res.Metrics, len(res.EdgePath))
}

// snapToNode resolves a lat/lng to the nearer of its snapped edge's two
// endpoints — the Explorator works over node indices, not fractional
// positions along an edge the way the bidirectional engine's seeding
// does.
func snapToNode(snapper *routing.Snapper, lat, lng float64) (uint32, error) {
	snap, err := snapper.Snap(lat, lng)
	if err != nil {
		return 0, err
	}
	if snap.Ratio < 0.5 {
		return snap.NodeU, nil
	}
	return snap.NodeV, nil
}

func runBalancing(cfg *config.Config, g *graph.Graph, outputPath string) {
	if cfg.Routing.RoutePairsFile == "" {
		log.Fatal("balancing mode requires routing.route-pairs-file")
	}
	if cfg.Writing == nil {
		log.Fatal("balancing mode requires a writing.graph section to round-trip through the external CH constructor")
	}

	cf, tolerances, err := cfg.Routing.CostFunction(g)
	if err != nil {
		log.Fatalf("Failed to build cost function: %v", err)
	}

	log.Printf("Reading O-D pairs from %s...", cfg.Routing.RoutePairsFile)
	pairs, err := balancing.ParsePairsFile(cfg.Routing.RoutePairsFile, g)
	if err != nil {
		log.Fatalf("Failed to read route-pairs-file: %v", err)
	}
	log.Printf("Loaded %d O-D pairs", len(pairs))

	start := time.Now()
	out, rounds, err := balancing.Run(context.Background(), g, cf, tolerances, cfg.Balancing, cfg.Writing.Graph, &cfg.Parsing, pairs)
	if err != nil {
		log.Fatalf("Balancing run failed: %v", err)
	}
	for _, r := range rounds {
		log.Printf("round %d: algorithm=%s failed=%d rebuilt_ch=%v diagnostics=%s", r.Index, r.Algorithm, r.FailedQueries, r.RebuiltCH, r.DiagnosticsCSV)
	}
	log.Printf("Balancing complete in %s", time.Since(start).Round(time.Second))

	if outputPath != "" {
		log.Printf("Writing final graph to %s...", outputPath)
		if err := graph.WriteBinary(outputPath, out); err != nil {
			log.Fatalf("Failed to write output graph: %v", err)
		}
	}
}
