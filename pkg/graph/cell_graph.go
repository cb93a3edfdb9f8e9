package graph

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/dfgraph"
)

// ErrUnorderable is returned by EvaluationOrder when the links contain a cycle
var ErrUnorderable = errors.New("cell links are not acyclic")

// CellGraph is the cell-level link graph. Edges point in the direction data
// flows: from the cell that exports a value to the cell that reads it.
type CellGraph struct {
	graph *simple.DirectedGraph
	ids   map[cellid.ID]int64 // cell id -> graph node id
	cells []cellid.ID         // graph node id -> cell id
}

// NewCellGraph creates an empty cell graph
func NewCellGraph() *CellGraph {
	return &CellGraph{
		graph: simple.NewDirectedGraph(),
		ids:   make(map[cellid.ID]int64),
	}
}

// AddCell adds a cell to the graph. Node ids follow insertion order.
func (cg *CellGraph) AddCell(id cellid.ID) {
	if _, exists := cg.ids[id]; exists {
		return
	}
	nid := int64(len(cg.cells))
	cg.ids[id] = nid
	cg.cells = append(cg.cells, id)
	cg.graph.AddNode(simple.Node(nid))
}

// AddDependency records that cell reads from upstream. Self links are ignored.
func (cg *CellGraph) AddDependency(cell, upstream cellid.ID) {
	if cell == upstream {
		return
	}
	cg.AddCell(upstream)
	cg.AddCell(cell)

	from, to := cg.ids[upstream], cg.ids[cell]
	if !cg.graph.HasEdgeFromTo(from, to) {
		cg.graph.SetEdge(cg.graph.NewEdge(cg.graph.Node(from), cg.graph.Node(to)))
	}
}

// Has reports whether the cell is in the graph
func (cg *CellGraph) Has(id cellid.ID) bool {
	_, ok := cg.ids[id]
	return ok
}

// CellOf returns the cell behind a graph node id
func (cg *CellGraph) CellOf(nid int64) (cellid.ID, bool) {
	if nid < 0 || nid >= int64(len(cg.cells)) {
		return "", false
	}
	return cg.cells[nid], true
}

// Graph returns the underlying directed graph
func (cg *CellGraph) Graph() *simple.DirectedGraph {
	return cg.graph
}

// Cells returns all cells in insertion order
func (cg *CellGraph) Cells() []cellid.ID {
	return slices.Clone(cg.cells)
}

// Edges returns all links as [upstream, downstream] pairs, ordered by upstream
// and then downstream insertion order.
func (cg *CellGraph) Edges() [][2]cellid.ID {
	var pairs [][2]int64
	iter := cg.graph.Edges()
	for iter.Next() {
		e := iter.Edge()
		pairs = append(pairs, [2]int64{e.From().ID(), e.To().ID()})
	}
	slices.SortFunc(pairs, func(a, b [2]int64) int {
		if a[0] != b[0] {
			return cmp.Compare(a[0], b[0])
		}
		return cmp.Compare(a[1], b[1])
	})

	edges := make([][2]cellid.ID, 0, len(pairs))
	for _, p := range pairs {
		edges = append(edges, [2]cellid.ID{cg.cells[p[0]], cg.cells[p[1]]})
	}
	return edges
}

// GetDependencies returns the cells the given cell reads from
func (cg *CellGraph) GetDependencies(id cellid.ID) []cellid.ID {
	nid, exists := cg.ids[id]
	if !exists {
		return nil
	}
	return cg.collect(cg.graph.To(nid))
}

// GetDependents returns the cells that read from the given cell
func (cg *CellGraph) GetDependents(id cellid.ID) []cellid.ID {
	nid, exists := cg.ids[id]
	if !exists {
		return nil
	}
	return cg.collect(cg.graph.From(nid))
}

func (cg *CellGraph) collect(iter graph.Nodes) []cellid.ID {
	var nids []int64
	for iter.Next() {
		nids = append(nids, iter.Node().ID())
	}
	slices.Sort(nids)

	out := make([]cellid.ID, 0, len(nids))
	for _, nid := range nids {
		out = append(out, cg.cells[nid])
	}
	return out
}

// EvaluationOrder returns the cells upstream first, breaking ties by insertion
// order. When the links contain a cycle, the cells that could be ordered are
// returned together with an error wrapping ErrUnorderable.
func (cg *CellGraph) EvaluationOrder() ([]cellid.ID, error) {
	sorted, err := topo.SortStabilized(cg.graph, byID)

	order := make([]cellid.ID, 0, len(sorted))
	for _, n := range sorted {
		if n == nil {
			continue
		}
		order = append(order, cg.cells[n.ID()])
	}

	var unorderable topo.Unorderable
	if errors.As(err, &unorderable) {
		return order, fmt.Errorf("%w: %d cycle(s)", ErrUnorderable, len(unorderable))
	}
	return order, err
}

func byID(nodes []graph.Node) {
	slices.SortFunc(nodes, func(a, b graph.Node) int {
		return cmp.Compare(a.ID(), b.ID())
	})
}

// BuildCellGraph builds the link graph of a snapshot. Cells are added in
// notebook order; links to cells the snapshot does not hold are dropped.
func BuildCellGraph(s *dfgraph.Snapshot) *CellGraph {
	cg := NewCellGraph()

	ordered := s.Ordered()
	for _, id := range ordered {
		cg.AddCell(id)
	}
	for _, id := range ordered {
		for _, up := range s.UpstreamCells(id) {
			if s.HasCell(up) {
				cg.AddDependency(id, up)
			}
		}
	}

	return cg
}
