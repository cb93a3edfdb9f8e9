// Package manager keeps one dependency graph per notebook session, tracks
// which session has focus and which cell is active, and tells viewers when a
// graph changes.
package manager

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/dfgraph"
	"github.com/ritzau/dfgraph/pkg/logging"
	"github.com/ritzau/dfgraph/pkg/metrics"
	"github.com/ritzau/dfgraph/pkg/pubsub"
)

// NoSession is the current session before any notebook took focus
const NoSession = "None"

// ErrUnknownSession is returned by session-scoped mutations for unregistered sessions
var ErrUnknownSession = errors.New("unknown session")

var log = logging.New("manager")

// Option configures a Manager
type Option func(*Manager)

// WithMetrics instruments the manager and every graph it registers
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

type session struct {
	// mu serializes multi-step mutations (a report with deletions, a removal
	// and its tag cleanup) so they reach the graph in arrival order.
	mu    sync.Mutex
	graph *dfgraph.Graph
	tags  *cellid.Tags
}

// Manager is the registry of session graphs. Construct one per host process
// and pass it to whatever needs graph lookup.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session
	current  string
	active   cellid.ID
	previous cellid.ID

	publisher pubsub.Publisher
	metrics   *metrics.Metrics
}

// New creates an empty manager. publisher may be nil when nothing listens.
func New(publisher pubsub.Publisher, opts ...Option) *Manager {
	m := &Manager{
		sessions:  make(map[string]*session),
		current:   NoSession,
		publisher: publisher,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register attaches g to id. The first registration wins; later ones are
// ignored and Register reports false.
func (m *Manager) Register(id string, g *dfgraph.Graph) bool {
	return m.register(id, g, cellid.NewTags(g.HasCell))
}

func (m *Manager) register(id string, g *dfgraph.Graph, tags *cellid.Tags) bool {
	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return false
	}
	s := &session{graph: g, tags: tags}
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	if m.metrics != nil {
		g.SetObserver(m.metrics)
		m.metrics.Sessions.Set(float64(count))
	}
	log.Debug("graph registered", "session", id)
	m.publishSessions(pubsub.EventRegistered, pubsub.SessionStatus{Session: id})
	return true
}

// CreateGraph registers an empty graph for id unless one exists, and returns
// whichever graph is registered.
func (m *Manager) CreateGraph(id string) *dfgraph.Graph {
	m.Register(id, dfgraph.New())
	g, _ := m.Graph(id)
	return g
}

// Seed registers a graph recovered from cell sources for a notebook that was
// opened before anything executed. Tags carried by the cells are bound first,
// so references may name a cell by id or by tag. An existing graph is kept.
func (m *Manager) Seed(id string, cells []dfgraph.SeedCell) (*dfgraph.Graph, bool) {
	if s, ok := m.lookup(id); ok {
		return s.graph, false
	}

	var g *dfgraph.Graph
	present := make(map[cellid.ID]bool, len(cells))
	for _, c := range cells {
		present[c.ID] = true
	}
	tags := cellid.NewTags(func(cell cellid.ID) bool {
		if g != nil {
			return g.HasCell(cell)
		}
		return present[cell]
	})
	for _, c := range cells {
		if c.Tag == "" {
			continue
		}
		if err := tags.Bind(c.Tag, c.ID); err != nil {
			log.Warn("ignoring seed tag", "session", id, "cell", c.ID, "error", err)
		}
	}

	g = dfgraph.Seed(cells, tags)
	if !m.register(id, g, tags) {
		existing, _ := m.Graph(id)
		return existing, false
	}
	m.publishGraph(id, g, pubsub.EventSeeded)
	return g, true
}

// Unregister drops a session, e.g. when its kernel shuts down
func (m *Manager) Unregister(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	if m.current == id {
		m.current = NoSession
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if ok && m.metrics != nil {
		m.metrics.Sessions.Set(float64(count))
	}
	return ok
}

// Graph returns the graph registered for id
func (m *Manager) Graph(id string) (*dfgraph.Graph, bool) {
	s, ok := m.lookup(id)
	if !ok {
		return nil, false
	}
	return s.graph, true
}

// Tags returns the tag table of a session
func (m *Manager) Tags(id string) (*cellid.Tags, bool) {
	s, ok := m.lookup(id)
	if !ok {
		return nil, false
	}
	return s.tags, true
}

// Sessions lists registered session ids in sorted order
func (m *Manager) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Focus makes id the current session, as when the user switches notebooks.
// NoSession and "" are ignored.
func (m *Manager) Focus(id string) {
	if id == "" || id == NoSession {
		return
	}
	m.mu.Lock()
	m.current = id
	m.mu.Unlock()

	log.Debug("focus changed", "session", id)
	m.publishSessions(pubsub.EventFocus, pubsub.SessionStatus{Session: id})
}

// Current returns the focused session, NoSession before any focus
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// UpdateActive records the newly active cell and the one that was left
func (m *Manager) UpdateActive(active, previous cellid.ID) {
	m.mu.Lock()
	m.active = active
	m.previous = previous
	current := m.current
	m.mu.Unlock()

	m.publishSessions(pubsub.EventFocus, pubsub.SessionStatus{
		Session:  current,
		Active:   active.String(),
		Previous: previous.String(),
	})
}

// Active returns the active cell and the one active before it
func (m *Manager) Active() (active, previous cellid.ID) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, m.previous
}

// ActiveCellChanged re-checks the staleness of the cell the user just left.
// If its live source differs from the text it last executed with it becomes
// Stale; if it matches again and the cell is Stale, the staleness is reverted.
func (m *Manager) ActiveCellChanged(left cellid.ID, liveSource string, next cellid.ID) {
	if left != "" {
		if liveSource != m.GetText(left) {
			m.MarkStale(left)
		} else if m.GetStale(left) == dfgraph.StateStale {
			m.RevertStale(left)
		}
	}
	m.UpdateActive(next, left)
}

// GetText returns the executed source of id in the current graph, "" when no
// graph is registered for the current session.
func (m *Manager) GetText(id cellid.ID) string {
	g, ok := m.currentGraph()
	if !ok {
		return ""
	}
	return g.GetText(id)
}

// GetStale returns the state of id in the current graph, StateNone when no
// graph is registered for the current session.
func (m *Manager) GetStale(id cellid.ID) dfgraph.State {
	g, ok := m.currentGraph()
	if !ok {
		return dfgraph.StateNone
	}
	return g.State(id)
}

// MarkStale flags id in the current graph; a no-op without one
func (m *Manager) MarkStale(id cellid.ID) {
	sid, g, ok := m.currentEntry()
	if !ok {
		return
	}
	g.MarkStale(id)
	m.count("stale")
	m.publishGraph(sid, g, pubsub.EventStale, id)
}

// RevertStale undoes MarkStale in the current graph; a no-op without one
func (m *Manager) RevertStale(id cellid.ID) {
	sid, g, ok := m.currentEntry()
	if !ok {
		return
	}
	g.RevertStale(id)
	m.count("fresh")
	m.publishGraph(sid, g, pubsub.EventFresh, id)
}

// UpdateOrder records the notebook order of the current graph; a no-op without one
func (m *Manager) UpdateOrder(order []string) {
	id, g, ok := m.currentEntry()
	if !ok {
		return
	}
	g.UpdateOrder(order)
	m.count("order")
	m.publishGraph(id, g, pubsub.EventOrder)
}

// UpdateSessionOrder records the notebook order of a specific session
func (m *Manager) UpdateSessionOrder(id string, order []string) error {
	s, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("update order of %s: %w", id, ErrUnknownSession)
	}
	s.graph.UpdateOrder(order)
	m.count("order")
	m.publishGraph(id, s.graph, pubsub.EventOrder)
	return nil
}

// RemoveCell deletes a cell from a session graph, along with its tag
func (m *Manager) RemoveCell(id string, cell cellid.ID) error {
	s, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("remove %s from %s: %w", cell, id, ErrUnknownSession)
	}
	s.mu.Lock()
	s.graph.RemoveCell(cell)
	s.tags.Unbind(cell)
	s.mu.Unlock()

	log.Debug("cell removed", "session", id, "cell", cell)
	m.count("remove")
	m.publishGraph(id, s.graph, pubsub.EventRemoved, cell)
	return nil
}

// UpdateContents replaces the recorded source text of every cell in a session
func (m *Manager) UpdateContents(id string, contents map[cellid.ID]string) error {
	s, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("update contents of %s: %w", id, ErrUnknownSession)
	}
	s.graph.UpdateCellContents(contents)
	m.count("contents")
	m.publishGraph(id, s.graph, pubsub.EventContents)
	return nil
}

// UpdateDownLinks applies a downlink batch that arrived outside an execution report
func (m *Manager) UpdateDownLinks(id string, downs []dfgraph.DownUpdate) error {
	s, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("update downlinks of %s: %w", id, ErrUnknownSession)
	}
	s.graph.UpdateDownLinks(downs)
	m.count("downlinks")
	m.publishGraph(id, s.graph, pubsub.EventDownlinks)
	return nil
}

// BindTag assigns a symbolic tag to a cell of a session
func (m *Manager) BindTag(id, tag string, cell cellid.ID) error {
	s, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("tag %s in %s: %w", cell, id, ErrUnknownSession)
	}
	return s.tags.Bind(tag, cell)
}

func (m *Manager) lookup(id string) (*session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) currentEntry() (string, *dfgraph.Graph, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[m.current]
	if !ok {
		return m.current, nil, false
	}
	return m.current, s.graph, true
}

func (m *Manager) currentGraph() (*dfgraph.Graph, bool) {
	_, g, ok := m.currentEntry()
	return g, ok
}

func (m *Manager) count(kind string) {
	if m.metrics != nil {
		m.metrics.Mutations.WithLabelValues(kind).Inc()
	}
}

func (m *Manager) publishGraph(id string, g *dfgraph.Graph, eventType string, cells ...cellid.ID) {
	if m.publisher == nil {
		return
	}
	change := pubsub.GraphChange{Session: id, Revision: g.Revision()}
	for _, c := range cells {
		change.Cells = append(change.Cells, c.String())
	}
	if err := m.publisher.Publish(pubsub.GraphTopic(id), eventType, change); err != nil {
		log.Warn("failed to publish graph change", "session", id, "type", eventType, "error", err)
	}
}

func (m *Manager) publishSessions(eventType string, status pubsub.SessionStatus) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(pubsub.SessionsTopic, eventType, status); err != nil {
		log.Warn("failed to publish session change", "type", eventType, "error", err)
	}
}
