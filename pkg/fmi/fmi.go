// Package fmi reads and writes the `fmi` text graph format: a header
// of counts, then one line per node, then one line per
// edge, with whitespace-separated columns whose meaning is declared by
// the caller's configuration rather than fixed by the format itself.
package fmi

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"osmgraph/pkg/config"
	"osmgraph/pkg/errs"
	"osmgraph/pkg/graph"
)

// Read decodes an fmi file from r into a graph.RawGraph, using cfg's
// parsing column declarations and generation rules. path is used only to
// tag ParseError; it need not be a real filesystem path.
func Read(r io.Reader, path string, cfg *config.ParsingConfig) (*graph.RawGraph, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	next := func() (string, bool) {
		for sc.Scan() {
			lineNo++
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			return line, true
		}
		return "", false
	}

	header, ok := next()
	if !ok {
		return nil, &errs.ParseError{File: path, Line: lineNo, Reason: "missing header line"}
	}
	counts := strings.Fields(header)
	if len(counts) < 2 {
		return nil, &errs.ParseError{File: path, Line: lineNo, Reason: "header needs at least node-count and edge-count"}
	}
	// Header layout: metric-count node-count edge-count [has-ch].
	offset := 0
	if len(counts) >= 3 {
		offset = 1 // a leading metric-count field is present
	}
	numNodes, err := strconv.Atoi(counts[offset])
	if err != nil {
		return nil, &errs.ParseError{File: path, Line: lineNo, Reason: "node count: " + err.Error()}
	}
	numEdges, err := strconv.Atoi(counts[offset+1])
	if err != nil {
		return nil, &errs.ParseError{File: path, Line: lineNo, Reason: "edge count: " + err.Error()}
	}
	hasCH := len(counts) > offset+2 && counts[offset+2] == "1"

	raw, err := cfg.RawGraphOptions()
	if err != nil {
		return nil, err
	}

	nodes := make([]graph.RawNode, numNodes)
	var nodeLevels []uint32
	if hasCH {
		nodeLevels = make([]uint32, numNodes)
	}
	for i := 0; i < numNodes; i++ {
		line, ok := next()
		if !ok {
			return nil, &errs.ParseError{File: path, Line: lineNo, Reason: fmt.Sprintf("expected %d node lines, found %d", numNodes, i)}
		}
		n, level, err := parseNodeLine(line, cfg.Nodes)
		if err != nil {
			return nil, &errs.ParseError{File: path, Line: lineNo, Reason: err.Error()}
		}
		nodes[i] = n
		if hasCH {
			nodeLevels[i] = level
		}
	}

	edges := make([]graph.RawEdge, numEdges)
	var shortcutA, shortcutB []int32
	if hasCH {
		shortcutA = make([]int32, numEdges)
		shortcutB = make([]int32, numEdges)
	}
	for i := 0; i < numEdges; i++ {
		line, ok := next()
		if !ok {
			return nil, &errs.ParseError{File: path, Line: lineNo, Reason: fmt.Sprintf("expected %d edge lines, found %d", numEdges, i)}
		}
		e, a, b, err := parseEdgeLine(line, cfg.Edges.Data)
		if err != nil {
			return nil, &errs.ParseError{File: path, Line: lineNo, Reason: err.Error()}
		}
		edges[i] = e
		if hasCH {
			shortcutA[i] = a
			shortcutB[i] = b
		}
	}

	raw.Nodes = nodes
	raw.Edges = edges
	raw.NodeLevels = nodeLevels
	raw.EdgeShortcutA = shortcutA
	raw.EdgeShortcutB = shortcutB
	return &raw, nil
}

// ReadFile opens path and decodes it with Read.
func ReadFile(path string, cfg *config.ParsingConfig) (*graph.RawGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.IoError{Path: path, Err: err}
	}
	defer f.Close()
	return Read(f, path, cfg)
}

func parseNodeLine(line string, cols []config.ColumnSpec) (graph.RawNode, uint32, error) {
	tokens := strings.Fields(line)
	if len(cols) > 0 && len(tokens) != len(cols) {
		return graph.RawNode{}, 0, fmt.Errorf("node line has %d columns, config declares %d", len(tokens), len(cols))
	}
	var n graph.RawNode
	var level uint32
	for i, c := range cols {
		tok := tokens[i]
		if c.Meta == nil {
			continue
		}
		switch c.Meta.Info {
		case "node-id":
			v, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return graph.RawNode{}, 0, fmt.Errorf("node-id: %w", err)
			}
			n.ExtID = v
		case "lat":
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return graph.RawNode{}, 0, fmt.Errorf("lat: %w", err)
			}
			n.Lat = v
		case "lon":
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return graph.RawNode{}, 0, fmt.Errorf("lon: %w", err)
			}
			n.Lon = v
		case "level":
			v, err := strconv.ParseUint(tok, 10, 32)
			if err != nil {
				return graph.RawNode{}, 0, fmt.Errorf("level: %w", err)
			}
			level = uint32(v)
		}
	}
	return n, level, nil
}

func parseEdgeLine(line string, cols []config.ColumnSpec) (graph.RawEdge, int32, int32, error) {
	tokens := strings.Fields(line)
	if len(cols) > 0 && len(tokens) != len(cols) {
		return graph.RawEdge{}, 0, 0, fmt.Errorf("edge line has %d columns, config declares %d", len(tokens), len(cols))
	}
	e := graph.RawEdge{ExtID: -1, Data: make(map[string]float64)}
	shortcutA, shortcutB := graph.NoShortcut, graph.NoShortcut
	for i, c := range cols {
		tok := tokens[i]
		switch {
		case c.Meta != nil:
			switch c.Meta.Info {
			case "src-id":
				v, err := strconv.ParseInt(tok, 10, 64)
				if err != nil {
					return graph.RawEdge{}, 0, 0, fmt.Errorf("src-id: %w", err)
				}
				e.From = v
			case "dst-id":
				v, err := strconv.ParseInt(tok, 10, 64)
				if err != nil {
					return graph.RawEdge{}, 0, 0, fmt.Errorf("dst-id: %w", err)
				}
				e.To = v
			case "edge-id":
				v, err := strconv.ParseInt(tok, 10, 64)
				if err != nil {
					return graph.RawEdge{}, 0, 0, fmt.Errorf("edge-id: %w", err)
				}
				e.ExtID = v
			case "shortcut-a":
				v, err := strconv.ParseInt(tok, 10, 32)
				if err != nil {
					return graph.RawEdge{}, 0, 0, fmt.Errorf("shortcut-a: %w", err)
				}
				shortcutA = int32(v)
			case "shortcut-b":
				v, err := strconv.ParseInt(tok, 10, 32)
				if err != nil {
					return graph.RawEdge{}, 0, 0, fmt.Errorf("shortcut-b: %w", err)
				}
				shortcutB = int32(v)
			}
		case c.Metric != nil:
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return graph.RawEdge{}, 0, 0, fmt.Errorf("metric %s: %w", c.Metric.ID, err)
			}
			e.Data[c.Metric.ID] = v
		}
	}
	return e, shortcutA, shortcutB, nil
}

// Write encodes a built graph to fmi text format according to cfg's
// column layout, optionally including CH levels and shortcut children.
func Write(w io.Writer, g *graph.Graph, cfg config.GraphWriteConfig) error {
	bw := bufio.NewWriter(w)

	hasCH := g.HasCH()
	chFlag := 0
	if hasCH {
		chFlag = 1
	}
	if _, err := fmt.Fprintf(bw, "%d %d %d %d\n", len(g.Metrics), g.NumNodes, g.NumEdges, chFlag); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := uint32(0); i < g.NumNodes; i++ {
		if err := writeNodeLine(bw, g, i, cfg.Nodes, hasCH); err != nil {
			return fmt.Errorf("write node %d: %w", i, err)
		}
	}
	for e := uint32(0); e < g.NumEdges; e++ {
		if err := writeEdgeLine(bw, g, e, cfg.Edges.Data, hasCH); err != nil {
			return fmt.Errorf("write edge %d: %w", e, err)
		}
	}

	return bw.Flush()
}

func writeNodeLine(bw *bufio.Writer, g *graph.Graph, i uint32, cols []config.ColumnSpec, hasCH bool) error {
	fields := make([]string, 0, len(cols))
	for _, c := range cols {
		if c.Meta == nil {
			fields = append(fields, "0")
			continue
		}
		switch c.Meta.Info {
		case "node-id":
			fields = append(fields, strconv.FormatInt(g.NodeExtID[i], 10))
		case "lat":
			fields = append(fields, strconv.FormatFloat(g.NodeLat[i], 'f', -1, 64))
		case "lon":
			fields = append(fields, strconv.FormatFloat(g.NodeLon[i], 'f', -1, 64))
		case "level":
			if hasCH {
				fields = append(fields, strconv.FormatUint(uint64(g.Levels[i]), 10))
			} else {
				fields = append(fields, "0")
			}
		default:
			fields = append(fields, "0")
		}
	}
	_, err := fmt.Fprintln(bw, strings.Join(fields, " "))
	return err
}

func writeEdgeLine(bw *bufio.Writer, g *graph.Graph, e uint32, cols []config.ColumnSpec, hasCH bool) error {
	fields := make([]string, 0, len(cols))
	for _, c := range cols {
		switch {
		case c.Meta != nil:
			switch c.Meta.Info {
			case "src-id":
				fields = append(fields, strconv.FormatInt(g.NodeExtID[g.Src[e]], 10))
			case "dst-id":
				fields = append(fields, strconv.FormatInt(g.NodeExtID[g.Dst[e]], 10))
			case "edge-id":
				fields = append(fields, strconv.FormatInt(g.ExtEdgeID[e], 10))
			case "shortcut-a":
				if hasCH {
					fields = append(fields, strconv.FormatInt(int64(g.ShortcutA[e]), 10))
				} else {
					fields = append(fields, "-1")
				}
			case "shortcut-b":
				if hasCH {
					fields = append(fields, strconv.FormatInt(int64(g.ShortcutB[e]), 10))
				} else {
					fields = append(fields, "-1")
				}
			default:
				fields = append(fields, "0")
			}
		case c.Metric != nil:
			col, ok := g.Column(c.Metric.ID)
			if !ok {
				return &errs.MissingInput{ID: c.Metric.ID}
			}
			value := g.Metric(col, e)
			if mean, normalized := g.Registry.Mean(c.Metric.ID); normalized {
				value *= mean
			}
			fields = append(fields, strconv.FormatFloat(value, 'f', -1, 64))
		default:
			fields = append(fields, "0")
		}
	}
	_, err := fmt.Fprintln(bw, strings.Join(fields, " "))
	return err
}

// WriteFile writes g to path in fmi format atomically, via a temp file
// plus rename, matching graph.WriteBinary's crash-safety pattern.
func WriteFile(path string, g *graph.Graph, cfg config.GraphWriteConfig) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return &errs.IoError{Path: tmpPath, Err: err}
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	if err := Write(f, g, cfg); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return &errs.IoError{Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &errs.IoError{Path: path, Err: err}
	}
	return nil
}
