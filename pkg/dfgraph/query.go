package dfgraph

import (
	"maps"
	"slices"

	"github.com/ritzau/dfgraph/pkg/cellid"
)

// UpstreamPair is one consumed value and the cell it was read from
type UpstreamPair struct {
	Name string    `json:"name"`
	Cell cellid.ID `json:"cell"`
}

// GetCells returns the cell ids the kernel reported, in the order reported
func (g *Graph) GetCells() []cellid.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cells.items()
}

// HasCell reports whether id is currently part of the graph
func (g *Graph) HasCell(id cellid.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cells.has(id)
}

// GetNodes returns the names id exports
func (g *Graph) GetNodes(id cellid.ID) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return cloneStrings(g.nodes[id])
}

// GetInternalNodes returns the symbols id defines without exporting them
func (g *Graph) GetInternalNodes(id cellid.ID) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return cloneStrings(g.internalNodes[id])
}

// GetUpstreams flattens the uplinks of id into edge labels. A value named after
// its upstream cell stays bare; anything else is prefixed with the upstream id.
func (g *Graph) GetUpstreams(id cellid.ID) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return flattenUplinks(g.uplinks[id])
}

// GetImmUpstreams returns the cells id reads from directly
func (g *Graph) GetImmUpstreams(id cellid.ID) []cellid.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return sortedKeys(g.uplinks[id])
}

// GetImmUpstreamNames returns the value names id consumes, across all upstreams
func (g *Graph) GetImmUpstreamNames(id cellid.ID) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ups := g.uplinks[id]
	names := []string{}
	for _, up := range sortedKeys(ups) {
		names = append(names, ups[up]...)
	}
	return names
}

// GetImmUpstreamPairs returns every consumed value together with its source cell
func (g *Graph) GetImmUpstreamPairs(id cellid.ID) []UpstreamPair {
	g.mu.Lock()
	defer g.mu.Unlock()
	ups := g.uplinks[id]
	pairs := []UpstreamPair{}
	for _, up := range sortedKeys(ups) {
		for _, name := range ups[up] {
			pairs = append(pairs, UpstreamPair{Name: name, Cell: up})
		}
	}
	return pairs
}

// GetDownstreams returns the cells that read from id directly
func (g *Graph) GetDownstreams(id cellid.ID) []cellid.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return cloneIDs(g.downlinks[id])
}

// GetText returns the source id was last executed with, or ""
func (g *Graph) GetText(id cellid.ID) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cellContents[id]
}

// Order returns the notebook position of each cell as last reported
func (g *Graph) Order() []cellid.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return cloneIDs(g.cellOrder)
}

func flattenUplinks(ups map[cellid.ID][]string) []string {
	labels := []string{}
	for _, up := range sortedKeys(ups) {
		for _, name := range ups[up] {
			if name == string(up) {
				labels = append(labels, name)
			} else {
				labels = append(labels, string(up)+name)
			}
		}
	}
	return labels
}

func sortedKeys[V any](m map[cellid.ID]V) []cellid.ID {
	keys := slices.Sorted(maps.Keys(m))
	if keys == nil {
		return []cellid.ID{}
	}
	return keys
}

// dedupe drops repeated names, keeping first occurrences. The kernel rejects
// duplicate exports before reporting, so this only guards malformed input.
func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

func cloneIDs(s []cellid.ID) []cellid.ID {
	if s == nil {
		return []cellid.ID{}
	}
	return slices.Clone(s)
}

func cloneUplinks(ups map[cellid.ID][]string) map[cellid.ID][]string {
	out := make(map[cellid.ID][]string, len(ups))
	for up, names := range ups {
		out[up] = cloneStrings(names)
	}
	return out
}
