package osm

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"osmgraph/pkg/graph"
)

// Category describes a vehicle class's road-accessibility rules and
// default-speed table, the config-supplied `vehicles.category` /
// `are_drivers_picky` option. Car ships as the built-in
// default.
type Category struct {
	Name            string
	Accessible      func(osm.Tags) bool
	Direction       func(osm.Tags) (forward, backward bool)
	DefaultSpeedKMH map[string]float64
	// PickyDrivers drops low-grade road classes (service ways, living
	// streets) that a driver would only take as a last resort.
	PickyDrivers bool
}

// pickyAvoided lists highway tag values a picky driver refuses.
var pickyAvoided = map[string]bool{
	"service":       true,
	"living_street": true,
}

// carHighways lists highway tag values accessible by car.
var carHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
}

// carDefaultSpeedKMH gives a fallback KilometersPerHour per highway type
// when a way carries no usable `maxspeed` tag.
var carDefaultSpeedKMH = map[string]float64{
	"motorway":       100,
	"motorway_link":  60,
	"trunk":          80,
	"trunk_link":     50,
	"primary":        60,
	"primary_link":   40,
	"secondary":      50,
	"secondary_link": 35,
	"tertiary":       40,
	"tertiary_link":  30,
	"unclassified":   30,
	"residential":    30,
	"living_street":  15,
	"service":        15,
}

// CarCategory is the built-in Car vehicle category.
var CarCategory = Category{
	Name:            "Car",
	Accessible:      isCarAccessible,
	Direction:       directionFlags,
	DefaultSpeedKMH: carDefaultSpeedKMH,
}

// isCarAccessible returns true if the way is drivable by car.
func isCarAccessible(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if !carHighways[hw] {
		return false
	}

	// Skip area highways (pedestrian plazas).
	if tags.Find("area") == "yes" {
		return false
	}

	// Skip restricted access.
	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	if tags.Find("motor_vehicle") == "no" {
		return false
	}

	return true
}

// directionFlags returns (forward, backward) based on highway type and oneway tags.
func directionFlags(tags osm.Tags) (forward, backward bool) {
	// Default: bidirectional.
	forward = true
	backward = true

	hw := tags.Find("highway")

	// Implied oneway for motorways and roundabouts.
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	// Explicit oneway tag overrides.
	oneway := tags.Find("oneway")
	switch oneway {
	case "yes", "true", "1":
		forward = true
		backward = false
	case "-1", "reverse":
		forward = false
		backward = true
	case "no":
		forward = true
		backward = true
	case "reversible":
		// Time-dependent — skip entirely.
		forward = false
		backward = false
	}

	return forward, backward
}

// parseMaxspeed extracts a KilometersPerHour value from a way's
// `maxspeed` tag. Accepts a bare number (km/h), a "N mph" suffix, or
// falls back to the category's per-highway default when the tag is
// absent, non-numeric ("none", "walk", "signals"), or zero.
func parseMaxspeed(tags osm.Tags, highway string, cat Category) float64 {
	raw := strings.TrimSpace(tags.Find("maxspeed"))
	if raw != "" {
		fields := strings.Fields(raw)
		if v, err := strconv.ParseFloat(fields[0], 64); err == nil && v > 0 {
			if len(fields) > 1 && strings.EqualFold(fields[1], "mph") {
				v *= 1.60934
			}
			return v
		}
	}
	if v, ok := cat.DefaultSpeedKMH[highway]; ok {
		return v
	}
	return 30
}

// parseLanes extracts a LaneCount value from a way's `lanes` tag,
// falling back to 1 when absent or unparseable.
func parseLanes(tags osm.Tags) float64 {
	raw := strings.TrimSpace(tags.Find("lanes"))
	if raw == "" {
		return 1
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
		return v
	}
	return 1
}

// wayInfo holds parsed way data collected during Pass 1.
type wayInfo struct {
	NodeIDs   []osm.NodeID
	Forward   bool
	Backward  bool
	Highway   string
	SpeedKMH  float64
	LaneCount float64
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only edges with both endpoints inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	BBox     BBox     // if non-zero, filter edges to this bounding box
	Category Category // vehicle category; zero value means CarCategory
}

// Parse reads an OSM PBF file and returns raw nodes and directed edges
// ready for graph.Build. Each edge's Data carries KilometersPerHour (from
// the way's `maxspeed` tag, or the category's per-highway default) and
// LaneCount (from `lanes`, default 1) — the metric registry's generation
// DAG derives Kilometers (Haversine) and Hours (Calc) from these at build
// time. The reader is consumed twice (seeks back to start for the second
// pass), so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) (*graph.RawGraph, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	cat := opt.Category
	if cat.Accessible == nil {
		cat = CarCategory
	}
	useBBox := !opt.BBox.IsZero()

	// Pass 1: Scan ways to collect referenced node IDs and way info.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		obj := scanner.Object()
		w, ok := obj.(*osm.Way)
		if !ok {
			continue
		}

		if !cat.Accessible(w.Tags) {
			continue
		}
		if cat.PickyDrivers && pickyAvoided[w.Tags.Find("highway")] {
			continue
		}

		if len(w.Nodes) < 2 {
			continue
		}

		fwd, bwd := cat.Direction(w.Tags)
		if !fwd && !bwd {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}

		highway := w.Tags.Find("highway")
		ways = append(ways, wayInfo{
			NodeIDs:   nodeIDs,
			Forward:   fwd,
			Backward:  bwd,
			Highway:   highway,
			SpeedKMH:  parseMaxspeed(w.Tags, highway, cat),
			LaneCount: parseLanes(w.Tags),
		})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 1 complete: %d ways, %d referenced nodes", len(ways), len(referencedNodes))

	// Pass 2: Scan nodes to collect coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	nodeLat := make(map[osm.NodeID]float64, len(referencedNodes))
	nodeLon := make(map[osm.NodeID]float64, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		obj := scanner.Object()
		n, ok := obj.(*osm.Node)
		if !ok {
			continue
		}

		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}

		nodeLat[n.ID] = n.Lat
		nodeLon[n.ID] = n.Lon
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 2 complete: %d node coordinates collected", len(nodeLat))

	// Build raw nodes, restricted to those referenced by a kept way.
	rawNodes := make([]graph.RawNode, 0, len(nodeLat))
	for id := range referencedNodes {
		lat, latOk := nodeLat[id]
		lon, lonOk := nodeLon[id]
		if !latOk || !lonOk {
			continue
		}
		rawNodes = append(rawNodes, graph.RawNode{ExtID: int64(id), Lat: lat, Lon: lon})
	}

	// Build edges from ways.
	var edges []graph.RawEdge
	var skippedEdges int
	var bboxFiltered int

	for _, w := range ways {
		for i := 0; i < len(w.NodeIDs)-1; i++ {
			fromID := w.NodeIDs[i]
			toID := w.NodeIDs[i+1]

			fromLat, fromOk := nodeLat[fromID]
			fromLon := nodeLon[fromID]
			toLat, toOk := nodeLat[toID]
			toLon := nodeLon[toID]

			if !fromOk || !toOk {
				skippedEdges++
				continue
			}

			// Bounding box filter: skip edges with any endpoint outside.
			if useBBox && (!opt.BBox.Contains(fromLat, fromLon) || !opt.BBox.Contains(toLat, toLon)) {
				bboxFiltered++
				continue
			}

			data := map[string]float64{
				"KilometersPerHour": w.SpeedKMH,
				"LaneCount":         w.LaneCount,
			}

			if w.Forward {
				edges = append(edges, graph.RawEdge{From: int64(fromID), To: int64(toID), ExtID: -1, Data: data})
			}
			if w.Backward {
				edges = append(edges, graph.RawEdge{From: int64(toID), To: int64(fromID), ExtID: -1, Data: data})
			}
		}
	}

	if skippedEdges > 0 {
		log.Printf("Warning: skipped %d edges due to missing node coordinates", skippedEdges)
	}
	if bboxFiltered > 0 {
		log.Printf("Filtered %d edges outside bounding box", bboxFiltered)
	}
	log.Printf("Built %d directed edges", len(edges))

	return &graph.RawGraph{
		Nodes: rawNodes,
		Edges: edges,
	}, nil
}
