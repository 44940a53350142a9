package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"osmgraph/pkg/api"
	"osmgraph/pkg/config"
	"osmgraph/pkg/graph"
	"osmgraph/pkg/routing"
)

func main() {
	graphPath := flag.String("graph", "graph.bin", "Path to preprocessed graph binary")
	configPath := flag.String("config", "", "Path to the YAML routing config")
	port := flag.Int("port", 8080, "HTTP port")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (empty = same-origin)")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: server --config <config.yaml> [--graph graph.bin] [--port 8080]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	start := time.Now()

	log.Printf("Loading graph from %s...", *graphPath)
	g, err := graph.ReadBinary(*graphPath)
	if err != nil {
		log.Fatalf("Failed to load graph: %v", err)
	}
	log.Printf("Loaded: %d nodes, %d edges, CH=%v", g.NumNodes, g.NumEdges, g.HasCH())

	cf, _, err := cfg.Routing.CostFunction(g)
	if err != nil {
		log.Fatalf("Failed to build cost function: %v", err)
	}

	mode := routing.ModeBidirectional
	switch cfg.Routing.Algorithm {
	case "Dijkstra":
		mode = routing.ModeDijkstra
	case "CHDijkstra":
		if !g.HasCH() {
			log.Fatalf("routing.algorithm is CHDijkstra but %s carries no CH augmentation", *graphPath)
		}
		mode = routing.ModeCH
	}

	log.Println("Building spatial index...")
	engine := routing.NewEngine(g, cf, mode)

	// Reclaim memory from init-time temporaries. Without this, Go's heap
	// retains peak RSS from index construction (GC doubles heap each cycle:
	// 120→240→480→960→1920 MB). This returns unused pages to the OS.
	runtime.GC()
	debug.FreeOSMemory()

	loadTime := time.Since(start)
	log.Printf("Ready in %s", loadTime.Round(time.Millisecond))

	addr := fmt.Sprintf(":%d", *port)
	serverCfg := api.DefaultConfig(addr)
	serverCfg.CORSOrigin = *corsOrigin

	stats := api.StatsResponse{
		NumNodes: g.NumNodes,
		NumEdges: g.NumEdges,
		HasCH:    g.HasCH(),
	}

	handlers := api.NewHandlers(engine, stats)
	srv := api.NewServer(serverCfg, handlers)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
