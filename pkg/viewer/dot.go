package viewer

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/ritzau/dfgraph/pkg/model"
)

type attrs []encoding.Attribute

func (a attrs) Attributes() []encoding.Attribute { return a }

type dotNode struct {
	id   int64
	node *model.Node
}

func (n dotNode) ID() int64     { return n.id }
func (n dotNode) DOTID() string { return n.node.ID }

func (n dotNode) Attributes() []encoding.Attribute {
	a := attrs{{Key: "label", Value: n.node.Label}}
	switch n.node.Type {
	case model.NodeCell:
		a = append(a, encoding.Attribute{Key: "shape", Value: "folder"})
		if n.node.Selected {
			a = append(a, encoding.Attribute{Key: "penwidth", Value: "2"})
		}
	case model.NodeAnchor:
		a = append(a, encoding.Attribute{Key: "shape", Value: "point"})
	default:
		a = append(a, encoding.Attribute{Key: "shape", Value: "box"})
	}
	return a
}

type dotEdge struct {
	from, to graph.Node
	attrs    attrs
}

func (e dotEdge) From() graph.Node                 { return e.from }
func (e dotEdge) To() graph.Node                   { return e.to }
func (e dotEdge) Attributes() []encoding.Attribute { return e.attrs }

func (e dotEdge) ReversedEdge() graph.Edge {
	return dotEdge{from: e.to, to: e.from, attrs: e.attrs}
}

type dotGraph struct {
	*simple.DirectedGraph
}

func (dotGraph) DOTAttributers() (g, n, e encoding.Attributer) {
	return attrs{{Key: "rankdir", Value: "LR"}, {Key: "compound", Value: "true"}}, attrs{}, attrs{}
}

// DOT renders a dependency view in Graphviz format. Containment of exports in
// their cell is drawn as a dashed edge from the cell node.
func DOT(v *model.Graph) ([]byte, error) {
	g := dotGraph{simple.NewDirectedGraph()}
	nodes := make(map[string]dotNode, len(v.Nodes))
	for i, id := range v.NodeIDs() {
		n := dotNode{id: int64(i), node: v.Nodes[id]}
		nodes[id] = n
		g.AddNode(n)
	}

	for _, id := range v.NodeIDs() {
		child := nodes[id]
		parent, ok := nodes[child.node.Parent]
		if !ok {
			continue
		}
		g.SetEdge(dotEdge{from: parent, to: child, attrs: attrs{
			{Key: "style", Value: "dashed"},
			{Key: "arrowhead", Value: "none"},
		}})
	}

	for _, e := range v.Edges {
		from, ok1 := nodes[e.Source]
		to, ok2 := nodes[e.Target]
		if !ok1 || !ok2 || from.id == to.id || g.HasEdgeFromTo(from.id, to.id) {
			continue
		}
		a := attrs{}
		if e.Type == model.EdgeRejected {
			a = append(a, encoding.Attribute{Key: "color", Value: "red"})
		}
		g.SetEdge(dotEdge{from: from, to: to, attrs: a})
	}

	name := "depview"
	if v.Session != "" {
		name = fmt.Sprintf("depview_%s", v.Session)
	}
	return dot.Marshal(g, name, "", "  ")
}
