// Package dfgraph tracks which named values each notebook cell exports, which
// upstream cells it reads them from, and which cells read from it.
//
// The graph never evaluates code. It records the outcome of each completed
// execution as reported by the kernel and answers the queries viewers need:
// immediate and transitive upstreams and downstreams, exports, internal symbols
// and staleness. Every method holds the graph lock for its whole body, so a
// reader never observes a partially applied update.
package dfgraph

import (
	"slices"
	"sync"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/logging"
)

// Update is the outcome of one successful cell execution
type Update struct {
	Cells         []cellid.ID            `json:"cells"`          // every cell id the kernel knows
	CellID        cellid.ID              `json:"cell_id"`        // the executed cell
	Nodes         []string               `json:"nodes"`          // exported value names
	Uplinks       map[cellid.ID][]string `json:"uplinks"`        // upstream cell -> names consumed from it
	Downlinks     []cellid.ID            `json:"downlinks"`      // cells that directly read from this one
	AllUpstreams  []cellid.ID            `json:"all_upstreams"`  // transitive upstreams, computed by the kernel
	InternalNodes []string               `json:"internal_nodes"` // locals that are not exported
}

// DownUpdate replaces the direct downstream list of one upstream cell.
// Key is the kernel's raw identifier and is truncated to the canonical length.
type DownUpdate struct {
	Key  string      `json:"key"`
	Data []cellid.ID `json:"data"`
}

// CacheObserver is told about downstream closure cache lookups
type CacheObserver interface {
	CacheHit()
	CacheMiss()
}

type closure struct {
	ids   []cellid.ID
	epoch uint64
}

// Graph is the dependency graph of one notebook session
type Graph struct {
	mu sync.Mutex

	cells         *idSet
	nodes         map[cellid.ID][]string
	internalNodes map[cellid.ID][]string
	uplinks       map[cellid.ID]map[cellid.ID][]string
	downlinks     map[cellid.ID][]cellid.ID
	cellContents  map[cellid.ID]string
	cellOrder     []cellid.ID

	// downstreamLists holds memoized transitive closures. An entry is only
	// trusted while its epoch matches the graph's epoch.
	downstreamLists map[cellid.ID]closure
	upstreamList    map[cellid.ID][]cellid.ID
	epoch           uint64

	states   map[cellid.ID]State
	previous map[cellid.ID]State
	executed map[cellid.ID]bool
	changed  bool
	revision uint64
	observer CacheObserver
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		cells:           newIDSet(),
		nodes:           make(map[cellid.ID][]string),
		internalNodes:   make(map[cellid.ID][]string),
		uplinks:         make(map[cellid.ID]map[cellid.ID][]string),
		downlinks:       make(map[cellid.ID][]cellid.ID),
		cellContents:    make(map[cellid.ID]string),
		downstreamLists: make(map[cellid.ID]closure),
		upstreamList:    make(map[cellid.ID][]cellid.ID),
		states:          make(map[cellid.ID]State),
		previous:        make(map[cellid.ID]State),
		executed:        make(map[cellid.ID]bool),
	}
}

// NewFrom creates a graph pre-populated from a snapshot, e.g. the links
// recovered from a notebook that was opened before anything executed.
// When more than one cell is supplied every cell starts out Stale and unexecuted.
func NewFrom(s Snapshot) *Graph {
	g := New()
	for _, id := range s.Cells {
		g.cells.add(id)
	}
	for id, names := range s.Nodes {
		g.nodes[id] = slices.Clone(names)
	}
	for id, names := range s.InternalNodes {
		g.internalNodes[id] = slices.Clone(names)
	}
	for id, ups := range s.Uplinks {
		g.uplinks[id] = cloneUplinks(ups)
	}
	for id, downs := range s.Downlinks {
		g.downlinks[id] = slices.Clone(downs)
	}
	for id, ups := range s.AllUpstreams {
		if len(ups) > 0 {
			g.upstreamList[id] = slices.Clone(ups)
		}
	}
	for id, text := range s.Contents {
		g.cellContents[id] = text
	}
	g.cellOrder = slices.Clone(s.Order)

	if g.cells.len() > 1 {
		for _, id := range g.cells.order {
			g.states[id] = StateStale
			g.executed[id] = false
		}
	}
	return g
}

// SetObserver installs a hook for closure cache hits and misses
func (g *Graph) SetObserver(o CacheObserver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observer = o
}

// UpdateGraph records the outcome of a cell execution, replacing everything
// previously known about that cell. It reports whether the update was applied;
// updates for deleted cells are discarded.
func (g *Graph) UpdateGraph(u Update) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.updateGraphLocked(u)
}

// Apply records an execution outcome and the downlink batch that accompanies
// it as one atomic step.
func (g *Graph) Apply(u Update, downs []DownUpdate) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.updateGraphLocked(u) {
		return false
	}
	g.updateDownLinksLocked(downs)
	return true
}

func (g *Graph) updateGraphLocked(u Update) bool {
	id := u.CellID
	if len(u.Cells) > 0 && !slices.Contains(u.Cells, id) {
		logging.Debug("discarding update for cell the kernel no longer lists", "cell", id)
		return false
	}

	if len(u.Cells) > 0 {
		cells := newIDSet()
		for _, c := range u.Cells {
			cells.add(c)
		}
		g.cells = cells
	}
	g.cells.add(id)

	g.nodes[id] = dedupe(u.Nodes)

	// Old upstreams get their downlinks reset; the kernel resupplies them.
	if old, ok := g.uplinks[id]; ok {
		for _, up := range sortedKeys(old) {
			if _, exists := g.downlinks[up]; exists {
				g.downlinks[up] = []cellid.ID{}
			}
		}
	}
	g.uplinks[id] = cloneUplinks(u.Uplinks)
	g.downlinks[id] = cloneIDs(u.Downlinks)
	g.internalNodes[id] = cloneStrings(u.InternalNodes)
	delete(g.downstreamLists, id)

	// An empty list means "no information", not "no upstreams".
	if len(u.AllUpstreams) > 0 {
		g.upstreamList[id] = slices.Clone(u.AllUpstreams)
	}

	g.touchLocked()
	g.updateFreshLocked(id, false)
	return true
}

// RemoveCell deletes a cell and every link that mentions it. Cached closures
// that could have contained it are invalidated. The id may come back through a
// later update whose cell list names it again.
func (g *Graph) RemoveCell(id cellid.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cells.has(id) {
		return
	}

	g.cells.remove(id)
	delete(g.nodes, id)
	delete(g.internalNodes, id)
	delete(g.downstreamLists, id)

	for _, down := range g.downlinks[id] {
		if ups, ok := g.uplinks[down]; ok {
			delete(ups, id)
		}
	}
	delete(g.downlinks, id)

	if ups, ok := g.uplinks[id]; ok {
		for _, up := range sortedKeys(ups) {
			if downs, exists := g.downlinks[up]; exists {
				g.downlinks[up] = slices.DeleteFunc(slices.Clone(downs), func(d cellid.ID) bool {
					return d == id
				})
			}
		}
	}
	delete(g.uplinks, id)

	if allUps, ok := g.upstreamList[id]; ok {
		delete(g.upstreamList, id)
		for _, up := range allUps {
			delete(g.downstreamLists, up)
		}
	}

	delete(g.cellContents, id)
	delete(g.states, id)
	delete(g.previous, id)
	delete(g.executed, id)
	g.cellOrder = slices.DeleteFunc(g.cellOrder, func(c cellid.ID) bool { return c == id })

	g.epoch++
	g.touchLocked()
}

// UpdateDownLinks applies a batch of downstream lists from the kernel. Records
// for cells the graph does not hold are ignored. Afterwards the whole closure
// cache is invalidated.
func (g *Graph) UpdateDownLinks(downs []DownUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateDownLinksLocked(downs)
}

func (g *Graph) updateDownLinksLocked(downs []DownUpdate) {
	for _, d := range downs {
		id := cellid.Truncate(d.Key)
		if !g.cells.has(id) || d.Data == nil {
			continue
		}
		g.downlinks[id] = cloneIDs(d.Data)
	}
	g.epoch++
	g.touchLocked()
}

// SetInternalNodes replaces the internal symbol list of a cell
func (g *Graph) SetInternalNodes(id cellid.ID, names []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.internalNodes[id] = cloneStrings(names)
	g.touchLocked()
}

// UpdateCellContents replaces the recorded source text of every cell
func (g *Graph) UpdateCellContents(contents map[cellid.ID]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cellContents = make(map[cellid.ID]string, len(contents))
	for id, text := range contents {
		g.cellContents[id] = text
	}
	g.touchLocked()
}

// SetCellContent records the source text a single cell was executed with
func (g *Graph) SetCellContent(id cellid.ID, text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cellContents[id] = text
	g.touchLocked()
}

// UpdateOrder records the notebook position of each cell. Raw shell ids are
// truncated to canonical form.
func (g *Graph) UpdateOrder(order []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cellOrder = make([]cellid.ID, 0, len(order))
	for _, raw := range order {
		g.cellOrder = append(g.cellOrder, cellid.Truncate(raw))
	}
	g.touchLocked()
}

// Revision increments on every mutation
func (g *Graph) Revision() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.revision
}

// WasChanged reports whether the graph changed since a viewer last rendered it
func (g *Graph) WasChanged() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.changed
}

// MarkViewed clears the changed flag after a viewer rebuilt itself
func (g *Graph) MarkViewed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.changed = false
}

func (g *Graph) touchLocked() {
	g.changed = true
	g.revision++
}
