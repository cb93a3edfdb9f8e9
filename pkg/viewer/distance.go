package viewer

import (
	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/model"
)

// Unreachable is the distance of a cell with no path to the selection
const Unreachable = -1

// Distances returns the number of links between each cell of v and the
// nearest selected cell, ignoring link direction. Cells that cannot be
// reached get Unreachable.
func Distances(v *model.Graph, selected ...cellid.ID) map[cellid.ID]int {
	// Build adjacency list (undirected graph for distance computation)
	adjacency := make(map[cellid.ID][]cellid.ID)
	for _, e := range v.Edges {
		from, to := edgeCells(v, e)
		if from == "" || to == "" || from == to {
			continue
		}
		adjacency[from] = append(adjacency[from], to)
		adjacency[to] = append(adjacency[to], from)
	}

	distances := make(map[cellid.ID]int)
	var queue []cellid.ID
	for _, id := range selected {
		if _, ok := v.Nodes[ClusterID(id)]; !ok {
			continue
		}
		if _, seen := distances[id]; !seen {
			distances[id] = 0
			queue = append(queue, id)
		}
	}

	// BFS traversal
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, neighbour := range adjacency[current] {
			if _, seen := distances[neighbour]; !seen {
				distances[neighbour] = distances[current] + 1
				queue = append(queue, neighbour)
			}
		}
	}

	for _, n := range v.Nodes {
		if n.Type != model.NodeCell {
			continue
		}
		id := cellid.ID(n.Cell)
		if _, ok := distances[id]; !ok {
			distances[id] = Unreachable
		}
	}
	return distances
}

// edgeCells resolves the cells an edge runs between through the cells of
// its endpoints
func edgeCells(v *model.Graph, e *model.Edge) (cellid.ID, cellid.ID) {
	var from, to cellid.ID
	if n, ok := v.Nodes[e.Source]; ok {
		from = cellid.ID(n.Cell)
	}
	if n, ok := v.Nodes[e.Target]; ok {
		to = cellid.ID(n.Cell)
	}
	return from, to
}

// limitRadius drops every cell further than radius links from selected. The
// nodes of a cell share its distance, which is recorded on the cluster.
func limitRadius(v *model.Graph, selected cellid.ID, radius int) {
	distances := Distances(v, selected)
	for id, n := range v.Nodes {
		d := distances[cellid.ID(n.Cell)]
		if d == Unreachable || d > radius {
			delete(v.Nodes, id)
			continue
		}
		if n.Type == model.NodeCell {
			n.Metadata["distance"] = d
		}
	}

	kept := v.Edges[:0]
	for _, e := range v.Edges {
		if v.HasNode(e.Source) && v.HasNode(e.Target) {
			kept = append(kept, e)
		}
	}
	v.Edges = kept
}
