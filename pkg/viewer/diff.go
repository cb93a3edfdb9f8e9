package viewer

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ritzau/dfgraph/pkg/model"
)

// GraphDiff is what changed between two renders of the same view. A viewer
// that missed the older render receives the full graph instead.
type GraphDiff struct {
	Session       string        `json:"session"`
	From          uint64        `json:"from"`
	To            uint64        `json:"to"`
	AddedNodes    []*model.Node `json:"addedNodes"`
	RemovedNodes  []string      `json:"removedNodes"`  // Node IDs
	ModifiedNodes []*model.Node `json:"modifiedNodes"` // Nodes with changed properties
	AddedEdges    []*model.Edge `json:"addedEdges"`
	RemovedEdges  []string      `json:"removedEdges"` // Edge keys (source|target|type)
	FullGraph     bool          `json:"fullGraph"`    // True if this is a full graph, not a diff
}

// Empty reports whether the diff carries no change
func (d *GraphDiff) Empty() bool {
	return !d.FullGraph &&
		len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 && len(d.ModifiedNodes) == 0 &&
		len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// ComputeDiff computes the difference between two renders. Results are
// sorted by node id and edge key.
func ComputeDiff(old, next *model.Graph) *GraphDiff {
	// If no old render, return full graph
	if old == nil {
		diff := &GraphDiff{
			Session:       next.Session,
			To:            next.Revision,
			AddedNodes:    make([]*model.Node, 0, len(next.Nodes)),
			RemovedNodes:  []string{},
			ModifiedNodes: []*model.Node{},
			AddedEdges:    slices.Clone(next.Edges),
			RemovedEdges:  []string{},
			FullGraph:     true,
		}
		for _, id := range next.NodeIDs() {
			diff.AddedNodes = append(diff.AddedNodes, next.Nodes[id])
		}
		return diff
	}

	diff := &GraphDiff{
		Session:       next.Session,
		From:          old.Revision,
		To:            next.Revision,
		AddedNodes:    make([]*model.Node, 0),
		RemovedNodes:  make([]string, 0),
		ModifiedNodes: make([]*model.Node, 0),
		AddedEdges:    make([]*model.Edge, 0),
		RemovedEdges:  make([]string, 0),
	}

	// Find added and modified nodes
	for _, id := range next.NodeIDs() {
		node := next.Nodes[id]
		if prev, exists := old.Nodes[id]; exists {
			if !nodesEqual(prev, node) {
				diff.ModifiedNodes = append(diff.ModifiedNodes, node)
			}
		} else {
			diff.AddedNodes = append(diff.AddedNodes, node)
		}
	}

	// Find removed nodes
	for _, id := range old.NodeIDs() {
		if !next.HasNode(id) {
			diff.RemovedNodes = append(diff.RemovedNodes, id)
		}
	}

	oldEdges := indexEdges(old)
	newEdges := indexEdges(next)
	for _, key := range slices.Sorted(maps.Keys(newEdges)) {
		if _, exists := oldEdges[key]; !exists {
			diff.AddedEdges = append(diff.AddedEdges, newEdges[key])
		}
	}
	for _, key := range slices.Sorted(maps.Keys(oldEdges)) {
		if _, exists := newEdges[key]; !exists {
			diff.RemovedEdges = append(diff.RemovedEdges, key)
		}
	}

	return diff
}

func indexEdges(g *model.Graph) map[string]*model.Edge {
	index := make(map[string]*model.Edge, len(g.Edges))
	for _, e := range g.Edges {
		index[EdgeKey(e)] = e
	}
	return index
}

// EdgeKey creates a unique key for an edge
func EdgeKey(e *model.Edge) string {
	return fmt.Sprintf("%s|%s|%s", e.Source, e.Target, e.Type)
}

// nodesEqual compares what a viewer draws; layout metadata is ignored
func nodesEqual(a, b *model.Node) bool {
	return a.ID == b.ID &&
		a.Label == b.Label &&
		a.Type == b.Type &&
		a.Parent == b.Parent &&
		a.Selected == b.Selected &&
		a.Metadata["state"] == b.Metadata["state"] &&
		a.Metadata["role"] == b.Metadata["role"] &&
		a.Metadata["distance"] == b.Metadata["distance"]
}
