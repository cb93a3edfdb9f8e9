package dfgraph

import (
	"slices"

	"github.com/ritzau/dfgraph/pkg/cellid"
)

// SeedCell is one cell of a notebook that was opened before anything ran
type SeedCell struct {
	ID      cellid.ID `json:"id"`
	Source  string    `json:"source"`
	Outputs []string  `json:"outputs"`
	Tag     string    `json:"tag,omitempty"`
}

// Seed recovers links from the name$ref references written in each cell's
// source. References are resolved through tags when a table is given, and
// otherwise only match the ids of the supplied cells. Self references and
// references that resolve to nothing are ignored.
func Seed(cells []SeedCell, tags *cellid.Tags) *Graph {
	s := Snapshot{
		Nodes:     make(map[cellid.ID][]string, len(cells)),
		Uplinks:   make(map[cellid.ID]map[cellid.ID][]string, len(cells)),
		Downlinks: make(map[cellid.ID][]cellid.ID, len(cells)),
		Contents:  make(map[cellid.ID]string, len(cells)),
	}

	present := newIDSet()
	for _, c := range cells {
		if present.add(c.ID) {
			s.Cells = append(s.Cells, c.ID)
			s.Order = append(s.Order, c.ID)
		}
		s.Nodes[c.ID] = dedupe(c.Outputs)
		s.Contents[c.ID] = c.Source
		s.Uplinks[c.ID] = make(map[cellid.ID][]string)
		s.Downlinks[c.ID] = []cellid.ID{}
	}

	resolve := func(target string) (cellid.ID, bool) {
		if tags != nil {
			id, err := tags.Resolve(target)
			return id, err == nil && present.has(id)
		}
		id := cellid.ID(target)
		return id, cellid.Valid(target) && present.has(id)
	}

	for _, c := range cells {
		for _, ref := range cellid.ParseReferences(c.Source) {
			up, ok := resolve(ref.Target)
			if !ok || up == c.ID {
				continue
			}
			if !slices.Contains(s.Uplinks[c.ID][up], ref.Name) {
				s.Uplinks[c.ID][up] = append(s.Uplinks[c.ID][up], ref.Name)
			}
			if !slices.Contains(s.Downlinks[up], c.ID) {
				s.Downlinks[up] = append(s.Downlinks[up], c.ID)
			}
		}
	}

	return NewFrom(s)
}
