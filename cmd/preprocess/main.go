package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"osmgraph/pkg/ch"
	"osmgraph/pkg/config"
	"osmgraph/pkg/graph"
	osmparser "osmgraph/pkg/osm"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML parsing/routing config")
	output := flag.String("output", "graph.bin", "Output binary graph file path")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 1.15,103.6,1.48,104.1)")
	singapore := flag.Bool("singapore", false, "Shortcut for --bbox 1.15,103.6,1.48,104.1 (Singapore bounding box)")
	kl := flag.Bool("kl", false, "Shortcut for --bbox 2.75,101.2,3.5,102.0 (Selangor + Kuala Lumpur bounding box)")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: preprocess --config <config.yaml> [--output graph.bin] [--singapore | --kl | --bbox minLat,minLng,maxLat,maxLng]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var opts osmparser.ParseOptions
	if *kl {
		opts.BBox = osmparser.BBox{MinLat: 2.75, MaxLat: 3.5, MinLng: 101.2, MaxLng: 102.0}
		log.Println("Using Selangor + KL bounding box filter: lat [2.75, 3.50], lng [101.20, 102.00]")
	} else if *singapore {
		opts.BBox = osmparser.BBox{MinLat: 1.15, MaxLat: 1.48, MinLng: 103.6, MaxLng: 104.1}
		log.Println("Using Singapore bounding box filter: lat [1.15, 1.48], lng [103.6, 104.1]")
	} else if *bbox != "" {
		var minLat, minLng, maxLat, maxLng float64
		if _, err := fmt.Sscanf(*bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng); err != nil {
			log.Fatalf("Invalid bbox format (expected minLat,minLng,maxLat,maxLng): %v", err)
		}
		opts.BBox = osmparser.BBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", minLat, maxLat, minLng, maxLng)
	}

	if cfg.Parsing.Vehicles.Category != "" && cfg.Parsing.Vehicles.Category != "Car" {
		log.Fatalf("unsupported vehicles.category %q: only Car is built in", cfg.Parsing.Vehicles.Category)
	}
	cat := osmparser.CarCategory
	cat.PickyDrivers = cfg.Parsing.Vehicles.AreDriversPicky
	opts.Category = cat

	start := time.Now()

	log.Printf("Opening OSM file %s...", cfg.Parsing.MapFile)
	f, err := os.Open(cfg.Parsing.MapFile)
	if err != nil {
		log.Fatalf("Failed to open input file: %v", err)
	}
	defer f.Close()

	log.Println("Parsing OSM data...")
	raw, err := osmparser.Parse(context.Background(), f, opts)
	if err != nil {
		log.Fatalf("Failed to parse OSM data: %v", err)
	}
	log.Printf("Parsed %d edges, %d nodes", len(raw.Edges), len(raw.Nodes))

	log.Println("Resolving generated metrics...")
	gens, err := cfg.Parsing.Generating.Generators()
	if err != nil {
		log.Fatalf("Failed to resolve generating config: %v", err)
	}
	raw.Generators = gens
	raw.Normalize = cfg.Parsing.NormalizeIDs()

	log.Println("Building graph...")
	g, err := graph.Build(raw)
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}
	log.Printf("Graph: %d nodes, %d edges", g.NumNodes, g.NumEdges)

	log.Println("Extracting largest connected component...")
	componentNodes := graph.LargestComponent(g)
	log.Printf("Largest component: %d nodes (%.1f%%)", len(componentNodes), float64(len(componentNodes))/float64(g.NumNodes)*100)
	g = graph.FilterToComponent(g, componentNodes)
	log.Printf("Filtered graph: %d nodes, %d edges", g.NumNodes, g.NumEdges)

	cf, _, err := cfg.Routing.CostFunction(g)
	if err != nil {
		log.Fatalf("Failed to build cost function: %v", err)
	}

	log.Println("Running Contraction Hierarchies...")
	chGraph := ch.Contract(g, cf)
	log.Printf("CH complete: %d nodes, %d edges", chGraph.NumNodes, chGraph.NumEdges)

	log.Printf("Writing binary to %s...", *output)
	if err := graph.WriteBinary(*output, chGraph); err != nil {
		log.Fatalf("Failed to write binary: %v", err)
	}

	info, _ := os.Stat(*output)
	elapsed := time.Since(start)
	log.Printf("Done in %s. Output: %s (%.1f MB)", elapsed.Round(time.Second), *output, float64(info.Size())/(1024*1024))
}
