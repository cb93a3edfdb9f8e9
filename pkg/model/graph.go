package model

import "slices"

// Node types
const (
	NodeCell   = "cell"   // cluster holding a cell's exports
	NodeAnchor = "anchor" // invisible <id>-Cell node that receives dataflow edges
	NodeExport = "export" // one exported name of a cell
)

// Edge types
const (
	EdgeLink     = "link"
	EdgeRejected = "rejected" // link on a cycle the kernel refused to run
)

// Graph is the node and edge set a viewer draws. It is derived from a graph
// snapshot and never written back.
type Graph struct {
	Session  string           `json:"session"`
	Revision uint64           `json:"revision"`
	Nodes    map[string]*Node `json:"nodes"`
	Edges    []*Edge          `json:"edges"`
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make([]*Edge, 0),
	}
}

// Node is a cell cluster, a cell anchor or an export.
type Node struct {
	ID       string                 `json:"id"`
	Label    string                 `json:"label"`
	Type     string                 `json:"type"`
	Parent   string                 `json:"parent,omitempty"` // ID of the enclosing cell cluster
	Cell     string                 `json:"cell"`
	Selected bool                   `json:"selected,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Edge is a directed link from an export to the node that reads it.
type Edge struct {
	Source   string                 `json:"source"`
	Target   string                 `json:"target"`
	Type     string                 `json:"type"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AddNode adds a node to the graph. If a node with the same ID exists, it updates it.
func (g *Graph) AddNode(node *Node) {
	if node.Metadata == nil {
		node.Metadata = make(map[string]interface{})
	}
	g.Nodes[node.ID] = node
}

// HasNode reports whether a node with id exists
func (g *Graph) HasNode(id string) bool {
	_, ok := g.Nodes[id]
	return ok
}

// AddEdge adds an edge to the graph.
func (g *Graph) AddEdge(edge *Edge) {
	if edge.Metadata == nil {
		edge.Metadata = make(map[string]interface{})
	}
	g.Edges = append(g.Edges, edge)
}

// NodeIDs returns the node ids in sorted order
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Children returns the ids of the nodes whose parent is id, sorted
func (g *Graph) Children(id string) []string {
	var children []string
	for _, nid := range g.NodeIDs() {
		if g.Nodes[nid].Parent == id {
			children = append(children, nid)
		}
	}
	return children
}
