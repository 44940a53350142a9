package routing

import "osmgraph/pkg/graph"

const maxUnpackDepth = 100

// UnpackEdges expands a path of edge indices, replacing every CH shortcut
// with the pair of child edges it contracts, recursively, until only
// original edges remain. Uses an explicit stack to avoid recursion depth
// limits on pathological contraction chains.
func UnpackEdges(g *graph.Graph, path []uint32) []uint32 {
	if !g.HasCH() {
		return path
	}

	type stackItem struct {
		edge  uint32
		depth int
	}

	result := make([]uint32, 0, len(path))
	for i := len(path) - 1; i >= 0; i-- {
		stack := []stackItem{{path[i], 0}}
		var expanded []uint32
		for len(stack) > 0 {
			item := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if !g.IsShortcut(item.edge) || item.depth > maxUnpackDepth {
				expanded = append(expanded, item.edge)
				continue
			}

			a := g.ShortcutA[item.edge]
			b := g.ShortcutB[item.edge]
			// Push b first so a pops first, preserving a-then-b order.
			stack = append(stack, stackItem{uint32(b), item.depth + 1})
			stack = append(stack, stackItem{uint32(a), item.depth + 1})
		}
		// expanded holds this path edge's original edges in source-to-target
		// order; prepend rather than append since we're walking path backwards.
		result = append(expanded, result...)
	}
	return result
}
