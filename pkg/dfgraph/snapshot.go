package dfgraph

import (
	"slices"

	"github.com/ritzau/dfgraph/pkg/cellid"
)

// Snapshot is a detached copy of a graph for viewers. Mutating it never
// affects the graph it was taken from.
type Snapshot struct {
	Revision      uint64                               `json:"revision"`
	Cells         []cellid.ID                          `json:"cells"`
	Nodes         map[cellid.ID][]string               `json:"nodes"`
	InternalNodes map[cellid.ID][]string               `json:"internal_nodes"`
	Uplinks       map[cellid.ID]map[cellid.ID][]string `json:"uplinks"`
	Downlinks     map[cellid.ID][]cellid.ID            `json:"downlinks"`
	AllUpstreams  map[cellid.ID][]cellid.ID            `json:"all_upstreams"`
	Contents      map[cellid.ID]string                 `json:"contents"`
	Order         []cellid.ID                          `json:"order"`
	States        map[cellid.ID]State                  `json:"states"`
}

// Snapshot copies the current graph state
func (g *Graph) Snapshot() *Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := &Snapshot{
		Revision:      g.revision,
		Cells:         g.cells.items(),
		Nodes:         make(map[cellid.ID][]string, len(g.nodes)),
		InternalNodes: make(map[cellid.ID][]string, len(g.internalNodes)),
		Uplinks:       make(map[cellid.ID]map[cellid.ID][]string, len(g.uplinks)),
		Downlinks:     make(map[cellid.ID][]cellid.ID, len(g.downlinks)),
		AllUpstreams:  make(map[cellid.ID][]cellid.ID, len(g.upstreamList)),
		Contents:      make(map[cellid.ID]string, len(g.cellContents)),
		Order:         cloneIDs(g.cellOrder),
		States:        make(map[cellid.ID]State, len(g.states)),
	}
	for id, names := range g.nodes {
		s.Nodes[id] = cloneStrings(names)
	}
	for id, names := range g.internalNodes {
		s.InternalNodes[id] = cloneStrings(names)
	}
	for id, ups := range g.uplinks {
		s.Uplinks[id] = cloneUplinks(ups)
	}
	for id, downs := range g.downlinks {
		s.Downlinks[id] = cloneIDs(downs)
	}
	for id := range g.upstreamList {
		s.AllUpstreams[id] = g.getAllUpstreamsLocked(id)
	}
	for id, text := range g.cellContents {
		s.Contents[id] = text
	}
	for id, state := range g.states {
		s.States[id] = state
	}
	return s
}

// Upstreams flattens the uplinks of id the same way Graph.GetUpstreams does
func (s *Snapshot) Upstreams(id cellid.ID) []string {
	return flattenUplinks(s.Uplinks[id])
}

// UpstreamCells returns the cells id reads from directly
func (s *Snapshot) UpstreamCells(id cellid.ID) []cellid.ID {
	return sortedKeys(s.Uplinks[id])
}

// HasCell reports whether id was part of the graph when the snapshot was taken
func (s *Snapshot) HasCell(id cellid.ID) bool {
	return slices.Contains(s.Cells, id)
}

// State returns the classification of id at snapshot time
func (s *Snapshot) State(id cellid.ID) State {
	if st, ok := s.States[id]; ok {
		return st
	}
	return StateNone
}

// Ordered returns the cells in notebook order. Cells missing from the recorded
// order follow in reported order.
func (s *Snapshot) Ordered() []cellid.ID {
	out := make([]cellid.ID, 0, len(s.Cells))
	placed := newIDSet()
	for _, id := range s.Order {
		if s.HasCell(id) && placed.add(id) {
			out = append(out, id)
		}
	}
	for _, id := range s.Cells {
		if placed.add(id) {
			out = append(out, id)
		}
	}
	return out
}
