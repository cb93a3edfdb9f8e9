// Package cycles finds cells whose links form a cycle. The kernel refuses to
// execute such links, so they only appear transiently, e.g. while a stale
// report is still in the graph, and viewers draw them as rejected.
package cycles

import (
	"slices"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/graph"
)

// CellCycle is a set of cells that read from each other, in insertion order
type CellCycle struct {
	Cells []cellid.ID `json:"cells"`
}

// Contains reports whether id is part of the cycle
func (c CellCycle) Contains(id cellid.ID) bool {
	return slices.Contains(c.Cells, id)
}

// FindCellCycles finds all cycles in the cell link graph
func FindCellCycles(cg *graph.CellGraph) []CellCycle {
	tarjan := NewTarjanSCC(cg.Graph())
	sccs := tarjan.FindSCCs()

	cycles := make([]CellCycle, 0)
	for _, scc := range sccs {
		slices.Sort(scc)
		cells := make([]cellid.ID, 0, len(scc))
		for _, nodeID := range scc {
			if id, ok := cg.CellOf(nodeID); ok {
				cells = append(cells, id)
			}
		}

		if len(cells) > 1 {
			cycles = append(cycles, CellCycle{Cells: cells})
		}
	}

	return cycles
}

// RejectedEdges returns the links of cg whose endpoints lie on the same cycle
func RejectedEdges(cg *graph.CellGraph, cycles []CellCycle) map[[2]cellid.ID]bool {
	member := make(map[cellid.ID]int)
	for i, c := range cycles {
		for _, id := range c.Cells {
			member[id] = i + 1
		}
	}

	rejected := make(map[[2]cellid.ID]bool)
	for _, e := range cg.Edges() {
		if m := member[e[0]]; m != 0 && m == member[e[1]] {
			rejected[e] = true
		}
	}
	return rejected
}
