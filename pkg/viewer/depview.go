// Package viewer derives what the dependency viewer and the minimap draw from
// a graph snapshot. Nothing here writes back to a graph.
package viewer

import (
	"slices"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/cycles"
	"github.com/ritzau/dfgraph/pkg/dfgraph"
	"github.com/ritzau/dfgraph/pkg/graph"
	"github.com/ritzau/dfgraph/pkg/model"
)

// AnchorSuffix names the invisible node of a cell that dataflow edges point at
const AnchorSuffix = "-Cell"

const clusterPrefix = "cluster_"

// Options select how the dependency view is drawn
type Options struct {
	// Dataflow draws every cell and points edges at the reading cell. When
	// false, cells without exports are hidden and edges fan out to each export
	// of the reading cell.
	Dataflow bool `json:"dataflow"`
	// Selected highlights one cell with its immediate neighbours
	Selected cellid.ID `json:"selected,omitempty"`
	// Radius hides cells more than this many links away from Selected.
	// Zero shows every cell.
	Radius int `json:"radius,omitempty"`
}

// DefaultOptions is the view the toggle starts in
func DefaultOptions() Options {
	return Options{Dataflow: true}
}

// ClusterID is the node id of the cluster that holds a cell's exports
func ClusterID(id cellid.ID) string {
	return clusterPrefix + string(id)
}

// AnchorID is the node id dataflow edges into a cell point at
func AnchorID(id cellid.ID) string {
	return string(id) + AnchorSuffix
}

// ExportID is the node id of one export. It matches the upstream labels the
// graph reports, so an export named after its own cell is the bare id.
func ExportID(id cellid.ID, name string) string {
	if name == string(id) {
		return name
	}
	return string(id) + name
}

type link struct {
	source   string
	target   string
	from, to cellid.ID
}

// DepView builds the node and edge set of the dependency viewer. Links whose
// endpoints have no node are dropped; links on a cycle are kept but typed as
// rejected.
func DepView(session string, s *dfgraph.Snapshot, opts Options) *model.Graph {
	g := model.NewGraph()
	g.Session = session
	g.Revision = s.Revision

	cells := s.Ordered()
	var shown []cellid.ID
	var links []link

	for _, id := range cells {
		outs := s.Nodes[id]
		if !opts.Dataflow && len(outs) == 0 {
			continue
		}
		shown = append(shown, id)

		selfExport := slices.Contains(outs, string(id))
		for _, up := range s.Upstreams(id) {
			from := labelCell(up)
			switch {
			case selfExport:
				links = append(links, link{source: up, target: string(id), from: from, to: id})
			case opts.Dataflow:
				links = append(links, link{source: up, target: AnchorID(id), from: from, to: id})
			default:
				for _, name := range outs {
					links = append(links, link{source: up, target: ExportID(id, name), from: from, to: id})
				}
			}
		}
	}

	withAnchor := opts.Dataflow || opts.Selected != ""
	for _, id := range shown {
		cluster := ClusterID(id)
		g.AddNode(&model.Node{
			ID:       cluster,
			Label:    "Cell[" + string(id) + "]",
			Type:     model.NodeCell,
			Cell:     string(id),
			Selected: id == opts.Selected,
			Metadata: map[string]interface{}{"state": string(s.State(id))},
		})
		if withAnchor {
			g.AddNode(&model.Node{
				ID:     AnchorID(id),
				Label:  "Cell[" + string(id) + "]",
				Type:   model.NodeAnchor,
				Parent: cluster,
				Cell:   string(id),
			})
		}
		for _, name := range s.Nodes[id] {
			label := name
			if name == string(id) {
				label = "Out[" + name + "]"
			}
			g.AddNode(&model.Node{
				ID:     ExportID(id, name),
				Label:  label,
				Type:   model.NodeExport,
				Parent: cluster,
				Cell:   string(id),
			})
		}
	}

	if opts.Selected != "" {
		markNeighbours(g, s, opts.Selected)
	}

	rejected := cycles.RejectedEdges(cellGraph(s))
	for _, l := range links {
		if !g.HasNode(l.source) || !g.HasNode(l.target) {
			continue
		}
		kind := model.EdgeLink
		if rejected[[2]cellid.ID{l.from, l.to}] {
			kind = model.EdgeRejected
		}
		g.AddEdge(&model.Edge{
			Source: l.source,
			Target: l.target,
			Type:   kind,
			Metadata: map[string]interface{}{
				"from": string(l.from),
				"to":   string(l.to),
			},
		})
	}

	if opts.Selected != "" && opts.Radius > 0 {
		limitRadius(g, opts.Selected, opts.Radius)
	}
	return g
}

// labelCell recovers the cell of a flattened upstream label
func labelCell(label string) cellid.ID {
	if len(label) <= cellid.Length {
		return cellid.ID(label)
	}
	return cellid.ID(label[:cellid.Length])
}

func cellGraph(s *dfgraph.Snapshot) (*graph.CellGraph, []cycles.CellCycle) {
	cg := graph.BuildCellGraph(s)
	return cg, cycles.FindCellCycles(cg)
}

func markNeighbours(g *model.Graph, s *dfgraph.Snapshot, selected cellid.ID) {
	for _, up := range s.UpstreamCells(selected) {
		if n, ok := g.Nodes[ClusterID(up)]; ok {
			n.Metadata["role"] = "upstream"
		}
	}
	for _, id := range s.Cells {
		if !slices.Contains(s.UpstreamCells(id), selected) {
			continue
		}
		if n, ok := g.Nodes[ClusterID(id)]; ok {
			n.Metadata["role"] = "downstream"
		}
	}
}
