// Package balancing implements the iterative workload-feedback loop:
// repeatedly route a fixed set of O-D pairs, accumulate how
// much traffic crosses each edge, and fold that workload back into a
// metric column so the next round's routes react to the load the
// previous round created.
//
// Pairs are striped across a fixed worker pool, each worker accumulating
// into its own workload shard, so the reduction is deterministic and
// edges never ping-pong between caches.
package balancing

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/floats"

	"osmgraph/pkg/chexec"
	"osmgraph/pkg/config"
	"osmgraph/pkg/cost"
	"osmgraph/pkg/errs"
	"osmgraph/pkg/explorator"
	"osmgraph/pkg/graph"
	"osmgraph/pkg/routing"
)

// exploratorK is the number of alternative paths requested per O-D pair
// when an iteration's algorithm is Explorator. Every returned path
// contributes equally to the workload.
const exploratorK = 3

// Pair is one origin-destination query, as dense node indices.
type Pair struct {
	Source, Target uint32
}

// ParsePairsFile reads whitespace-separated "src-ext-id dst-ext-id" lines
// (one pair per line, blank lines and '#' comments skipped) and resolves
// each external id against g's node table.
func ParsePairsFile(path string, g *graph.Graph) ([]Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.IoError{Path: path, Err: err}
	}
	defer f.Close()

	byExtID := make(map[int64]uint32, len(g.NodeExtID))
	for i, id := range g.NodeExtID {
		byExtID[id] = uint32(i)
	}

	var pairs []Pair
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		var srcExt, dstExt int64
		if _, err := fmt.Sscanf(line, "%d %d", &srcExt, &dstExt); err != nil {
			return nil, &errs.ParseError{File: path, Line: lineNo, Reason: "expected two whitespace-separated node ids"}
		}
		src, ok := byExtID[srcExt]
		if !ok {
			return nil, &errs.ParseError{File: path, Line: lineNo, Reason: fmt.Sprintf("unknown source node id %d", srcExt)}
		}
		dst, ok := byExtID[dstExt]
		if !ok {
			return nil, &errs.ParseError{File: path, Line: lineNo, Reason: fmt.Sprintf("unknown target node id %d", dstExt)}
		}
		pairs = append(pairs, Pair{Source: src, Target: dst})
	}
	if err := scanner.Err(); err != nil {
		return nil, &errs.IoError{Path: path, Err: err}
	}
	return pairs, nil
}

// Round summarizes one completed balancing round for the caller (e.g. a
// CLI printing progress).
type Round struct {
	Index          int
	Algorithm      string
	FailedQueries  int
	RebuiltCH      bool
	DiagnosticsCSV string
}

// Run executes cfg.NumberOfMetricUpdates rounds against g, mutating its
// workload metric column in place each round and, when an iteration's
// algorithm requires a contraction hierarchy, replacing the returned
// graph handle with the external constructor's output. cf and tolerances
// are the routing engine's active cost function, built the same way a
// plain route query's would be (see config.RoutingConfig.CostFunction).
func Run(ctx context.Context, g *graph.Graph, cf cost.Function, tolerances []cost.Tolerance, cfg *config.BalancingConfig, writeCfg config.GraphWriteConfig, parseCfg *config.ParsingConfig, pairs []Pair) (*graph.Graph, []Round, error) {
	workloadCol, ok := g.Column(cfg.OptimizingWith.MetricID)
	if !ok {
		return nil, nil, &errs.MissingInput{ID: cfg.OptimizingWith.MetricID}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	if cfg.Iter0Cfg.Algorithm == "CHDijkstra" && !g.HasCH() {
		rebuilt, err := chexec.Run(ctx, cfg.MultiCHConstructor, writeCfg, parseCfg, g)
		if err != nil {
			return nil, nil, err
		}
		g = rebuilt
		workloadCol, ok = g.Column(cfg.OptimizingWith.MetricID)
		if !ok {
			return nil, nil, &errs.MissingInput{ID: cfg.OptimizingWith.MetricID}
		}
	}

	if cfg.ResultsDir != "" {
		if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
			return nil, nil, &errs.IoError{Path: cfg.ResultsDir, Err: err}
		}
	}

	rounds := make([]Round, 0, cfg.NumberOfMetricUpdates)

	for i := 0; i < cfg.NumberOfMetricUpdates; i++ {
		iterCfg := cfg.IterICfg
		if i == 0 {
			iterCfg = cfg.Iter0Cfg
		}

		shuffled := make([]Pair, len(pairs))
		copy(shuffled, pairs)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		workload, failed := queryRound(ctx, g, cf, tolerances, iterCfg.Algorithm, shuffled, cfg.NumberOfThreads)

		foldWorkload(g, workloadCol, workload, i, cfg.OptimizingWith, cfg.MinNewMetric)

		round := Round{Index: i, Algorithm: iterCfg.Algorithm, FailedQueries: failed}

		if iterCfg.Algorithm == "CHDijkstra" {
			rebuilt, err := chexec.Run(ctx, cfg.MultiCHConstructor, writeCfg, parseCfg, g)
			if err != nil {
				return nil, rounds, err
			}
			g = rebuilt
			// The rebuilt graph's column order depends on the parse config,
			// not on the graph it was written from.
			workloadCol, ok = g.Column(cfg.OptimizingWith.MetricID)
			if !ok {
				return nil, rounds, &errs.MissingInput{ID: cfg.OptimizingWith.MetricID}
			}
			round.RebuiltCH = true
		}

		if cfg.Monitoring.EdgesInfo.File != "" {
			path, err := writeEdgesInfo(g, cfg, i, workload)
			if err != nil {
				return nil, rounds, err
			}
			round.DiagnosticsCSV = path
		}

		rounds = append(rounds, round)
	}

	return g, rounds, nil
}

// queryRound routes every pair under algo across a fixed worker pool,
// each worker accumulating into its own workload shard to avoid
// contending on a shared array, then reduces the shards into one W[].
// Returns the combined workload and the count of pairs that failed to
// route (logged by the caller's round summary, not fatal to the round).
func queryRound(ctx context.Context, g *graph.Graph, cf cost.Function, tolerances []cost.Tolerance, algo string, pairs []Pair, numThreads int) ([]float64, int) {
	workload := make([]float64, g.NumEdges)
	if len(pairs) == 0 {
		return workload, 0
	}

	workerCount := numThreads
	if workerCount > len(pairs) {
		workerCount = len(pairs)
	}
	if workerCount < 1 {
		workerCount = 1
	}

	mode := routing.ModeBidirectional
	if algo == "CHDijkstra" && g.HasCH() {
		mode = routing.ModeCH
	}
	var engine *routing.Engine
	if algo != "Explorator" && algo != "Dijkstra" {
		engine = routing.NewEngine(g, cf, mode)
	}

	shards := make([][]float64, workerCount)
	failedCounts := make([]int, workerCount)

	// pairs[i] goes to worker i mod workerCount. A fixed assignment keeps
	// the shard reduction byte-identical across runs with the same seed.
	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		shard := make([]float64, g.NumEdges)
		shards[w] = shard
		go func(w int, shard []float64) {
			defer wg.Done()
			for i := w; i < len(pairs); i += workerCount {
				p := pairs[i]
				switch algo {
				case "Dijkstra":
					res, err := routing.Dijkstra(ctx, g, cf, p.Source, p.Target)
					if err != nil {
						failedCounts[w]++
						continue
					}
					for _, e := range res.Path {
						shard[e]++
					}
				case "Explorator":
					paths, err := explorator.Find(ctx, g, cf, tolerances, p.Source, p.Target, exploratorK)
					if err != nil {
						failedCounts[w]++
						continue
					}
					weight := 1.0 / float64(len(paths))
					for _, path := range paths {
						for _, e := range path.EdgePath {
							shard[e] += weight
						}
					}
				default: // CHDijkstra, or Dijkstra-fallback bidirectional
					res, err := engine.RouteNodes(ctx, p.Source, p.Target)
					if err != nil {
						failedCounts[w]++
						continue
					}
					for _, e := range res.EdgePath {
						shard[e]++
					}
				}
			}
		}(w, shard)
	}
	wg.Wait()

	failed := 0
	for w, shard := range shards {
		failed += failedCounts[w]
		floats.Add(workload, shard)
	}
	return workload, failed
}

// foldWorkload folds the round's accumulated workload back into the
// workload metric column, clamping at minNewMetric.
func foldWorkload(g *graph.Graph, col int, workload []float64, round int, opt config.OptimizingWith, minNewMetric float64) {
	values := g.Metrics[col]
	for e := range values {
		old := values[e]
		var next float64
		switch opt.Method {
		case "explicit_euler":
			next = old + opt.Correction*(workload[e]-old)
		default: // averaging
			next = (float64(round)*old + workload[e]) / float64(round+1)
		}
		if next < minNewMetric {
			next = minNewMetric
		}
		values[e] = next
	}
}

// writeEdgesInfo persists one round's per-edge diagnostics as CSV:
// edge id, source/destination node ids, the round's accumulated
// workload, and every monitored metric (denormalized by its retained
// mean when the config asks for it). Shortcut edges are included only
// when the config asks for them.
func writeEdgesInfo(g *graph.Graph, cfg *config.BalancingConfig, round int, workload []float64) (string, error) {
	info := cfg.Monitoring.EdgesInfo
	base := info.File
	ext := filepath.Ext(base)
	path := fmt.Sprintf("%s-round%d%s", base[:len(base)-len(ext)], round, ext)
	if cfg.ResultsDir != "" {
		path = filepath.Join(cfg.ResultsDir, path)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", &errs.IoError{Path: path, Err: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"edge_id", "src_node_id", "dst_node_id", "workload"}
	header = append(header, info.IDs...)
	if err := w.Write(header); err != nil {
		return "", &errs.IoError{Path: path, Err: err}
	}

	for e := uint32(0); e < g.NumEdges; e++ {
		if g.IsShortcut(e) && !info.WithShortcuts {
			continue
		}
		row := []string{
			strconv.FormatInt(g.ExtEdgeID[e], 10),
			strconv.FormatInt(g.NodeExtID[g.Src[e]], 10),
			strconv.FormatInt(g.NodeExtID[g.Dst[e]], 10),
			strconv.FormatFloat(workload[e], 'f', -1, 64),
		}
		for _, id := range info.IDs {
			col, ok := g.Column(id)
			if !ok {
				row = append(row, "")
				continue
			}
			v := g.Metric(col, e)
			if info.WillDenormalizeMetricsByMean {
				if mean, ok := g.Registry.Mean(id); ok {
					v *= mean
				}
			}
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return "", &errs.IoError{Path: path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", &errs.IoError{Path: path, Err: err}
	}
	return path, nil
}
