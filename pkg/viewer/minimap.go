package viewer

import (
	"cmp"
	"slices"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/dfgraph"
)

// MinimapRow is one cell of the minimap, in notebook order
type MinimapRow struct {
	ID    cellid.ID     `json:"id"`
	Text  string        `json:"text"`
	State dfgraph.State `json:"state"`
}

// MinimapEdge links a cell to a cell that reads from it
type MinimapEdge struct {
	Source      cellid.ID `json:"source"`
	Destination cellid.ID `json:"destination"`
}

// Minimap is the compact one-row-per-cell view of a notebook
type Minimap struct {
	Revision uint64        `json:"revision"`
	Cells    []MinimapRow  `json:"cells"`
	Edges    []MinimapEdge `json:"edges"`
}

// Activation is what the minimap highlights when a row is clicked. Cells that
// read from the active cell move left, cells it reads from move right.
type Activation struct {
	Active cellid.ID   `json:"active"`
	Left   []cellid.ID `json:"left"`
	Right  []cellid.ID `json:"right"`
}

// BuildMinimap lays out the cells of a snapshot in notebook order. Edges are
// sorted by the row of their source, then of their destination.
func BuildMinimap(s *dfgraph.Snapshot) *Minimap {
	ordered := s.Ordered()
	row := make(map[cellid.ID]int, len(ordered))
	m := &Minimap{
		Revision: s.Revision,
		Cells:    make([]MinimapRow, 0, len(ordered)),
		Edges:    make([]MinimapEdge, 0),
	}

	for i, id := range ordered {
		row[id] = i
		m.Cells = append(m.Cells, MinimapRow{ID: id, Text: s.Contents[id], State: s.State(id)})
	}
	for _, id := range ordered {
		for _, up := range s.UpstreamCells(id) {
			if _, ok := row[up]; ok && up != id {
				m.Edges = append(m.Edges, MinimapEdge{Source: up, Destination: id})
			}
		}
	}

	slices.SortFunc(m.Edges, func(a, b MinimapEdge) int {
		return cmp.Or(
			cmp.Compare(row[a.Source], row[b.Source]),
			cmp.Compare(row[a.Destination], row[b.Destination]),
		)
	})
	return m
}

// Activate returns the edges touching id split by direction
func (m *Minimap) Activate(id cellid.ID) Activation {
	a := Activation{Active: id, Left: []cellid.ID{}, Right: []cellid.ID{}}
	for _, e := range m.Edges {
		if e.Source == id {
			a.Left = append(a.Left, e.Destination)
		}
		if e.Destination == id {
			a.Right = append(a.Right, e.Source)
		}
	}
	return a
}
