package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/cycles"
	"github.com/ritzau/dfgraph/pkg/dfgraph"
	"github.com/ritzau/dfgraph/pkg/execution"
	"github.com/ritzau/dfgraph/pkg/graph"
	"github.com/ritzau/dfgraph/pkg/logging"
	"github.com/ritzau/dfgraph/pkg/manager"
	"github.com/ritzau/dfgraph/pkg/metrics"
	"github.com/ritzau/dfgraph/pkg/model"
	"github.com/ritzau/dfgraph/pkg/pubsub"
	"github.com/ritzau/dfgraph/pkg/viewer"
)

// Options configures a Server
type Options struct {
	RenderCache  int              // entries in the dependency view cache
	ReplayBuffer int              // events buffered per topic for late subscribers
	Metrics      *metrics.Metrics // nil disables /metrics
}

// Server represents the web server
type Server struct {
	router     *mux.Router
	manager    *manager.Manager
	publisher  *pubsub.SSEPublisher
	renderer   *viewer.Renderer
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// SessionsResponse lists the registered sessions and the focused one
type SessionsResponse struct {
	Current  string   `json:"current"`
	Sessions []string `json:"sessions"`
}

// CellInfo is everything the graph knows about one cell
type CellInfo struct {
	ID            cellid.ID              `json:"id"`
	Exists        bool                   `json:"exists"`
	State         dfgraph.State          `json:"state"`
	Text          string                 `json:"text"`
	Nodes         []string               `json:"nodes"`
	InternalNodes []string               `json:"internal_nodes"`
	Upstreams     []string               `json:"upstreams"`
	ImmUpstreams  []dfgraph.UpstreamPair `json:"imm_upstreams"`
	Downstreams   []cellid.ID            `json:"downstreams"`
	AllUpstreams  []cellid.ID            `json:"all_upstreams"`
	AllDownstream []cellid.ID            `json:"all_downstream"`
}

// CellSummary is one row of the cell list
type CellSummary struct {
	ID    cellid.ID     `json:"id"`
	State dfgraph.State `json:"state"`
	Nodes []string      `json:"nodes"`
}

// ActiveRequest reports that the user moved from one cell to another
type ActiveRequest struct {
	Left   string `json:"left"`
	Source string `json:"source"` // live text of the cell that was left
	Next   string `json:"next"`
}

// ActiveResponse returns the state of the cell that was left
type ActiveResponse struct {
	Left  cellid.ID     `json:"left"`
	State dfgraph.State `json:"state"`
}

// ReportResponse tells the kernel bridge what happened to a report
type ReportResponse struct {
	Outcome manager.Outcome `json:"outcome"`
}

// CyclesResponse lists link cycles and the evaluation order of the rest
type CyclesResponse struct {
	Cycles []cycles.CellCycle `json:"cycles"`
	Order  []cellid.ID        `json:"order"`
	Error  string             `json:"error,omitempty"`
}

// MinimapResponse is the minimap plus the highlight of an optional active cell
type MinimapResponse struct {
	*viewer.Minimap
	Activation *viewer.Activation `json:"activation,omitempty"`
}

// NewServer creates a new web server around a manager and the publisher the
// manager announces changes on.
func NewServer(mgr *manager.Manager, publisher *pubsub.SSEPublisher, opts Options) (*Server, error) {
	replay := opts.ReplayBuffer
	if replay <= 0 {
		replay = 1
	}

	// sessions: replay only the current focus
	publisher.ConfigureTopic(pubsub.SessionsTopic, pubsub.TopicConfig{
		BufferSize: replay,
		ReplayAll:  false,
	})
	// graph/<session>: replay only the latest revision; viewers re-read the graph anyway
	publisher.ConfigurePrefix(pubsub.GraphTopic(""), pubsub.TopicConfig{
		BufferSize: replay,
		ReplayAll:  false,
	})

	var observer viewer.CacheObserver
	if opts.Metrics != nil {
		observer = opts.Metrics
	}
	renderer, err := viewer.NewRenderer(opts.RenderCache, observer)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    mux.NewRouter(),
		manager:   mgr,
		publisher: publisher,
		renderer:  renderer,
		metrics:   opts.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Viewers are served from notebook front ends on other origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the routed handler, wrapped in request logging
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	// Subscription endpoints
	s.router.HandleFunc("/api/subscribe", s.handleSubscribeSessions).Methods("GET")
	s.router.HandleFunc("/api/subscribe/{session}", s.handleSubscribeGraph).Methods("GET")
	s.router.HandleFunc("/api/ws/{session}", s.handleWebSocket).Methods("GET")

	s.router.HandleFunc("/api/sessions", s.handleSessions).Methods("GET")

	api := s.router.PathPrefix("/api/sessions").Subrouter()
	api.HandleFunc("/{session}", s.handleRegister).Methods("PUT")
	api.HandleFunc("/{session}", s.handleUnregister).Methods("DELETE")
	api.HandleFunc("/{session}/focus", s.handleFocus).Methods("POST")
	api.HandleFunc("/{session}/reports", s.handleReport).Methods("POST")
	api.HandleFunc("/{session}/downlinks", s.handleDownlinks).Methods("POST")
	api.HandleFunc("/{session}/active", s.handleActive).Methods("POST")
	api.HandleFunc("/{session}/order", s.handleOrder).Methods("PUT")
	api.HandleFunc("/{session}/contents", s.handleContents).Methods("PUT")
	api.HandleFunc("/{session}/seed", s.handleSeed).Methods("POST")
	api.HandleFunc("/{session}/tags/{tag}", s.handleTag).Methods("PUT")

	// Read routes; more specific routes must come first
	api.HandleFunc("/{session}/cells", s.handleCells).Methods("GET")
	api.HandleFunc("/{session}/cells/{cell}", s.handleCell).Methods("GET")
	api.HandleFunc("/{session}/cells/{cell}", s.handleRemoveCell).Methods("DELETE")
	api.HandleFunc("/{session}/depview.dot", s.handleDepViewDOT).Methods("GET")
	api.HandleFunc("/{session}/depview", s.handleDepView).Methods("GET")
	api.HandleFunc("/{session}/minimap", s.handleMinimap).Methods("GET")
	api.HandleFunc("/{session}/cycles", s.handleCycles).Methods("GET")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

func (s *Server) handleSubscribeSessions(w http.ResponseWriter, r *http.Request) {
	s.streamSSE(w, r, pubsub.SessionsTopic)
}

func (s *Server) handleSubscribeGraph(w http.ResponseWriter, r *http.Request) {
	s.streamSSE(w, r, pubsub.GraphTopic(mux.Vars(r)["session"]))
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, topic string) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*") // CORS support

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	for event := range sub.Events() {
		if err := pubsub.WriteSSE(w, event); err != nil {
			logging.DebugContext(r.Context(), "SSE client went away", "topic", topic, "error", err)
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	topic := pubsub.GraphTopic(mux.Vars(r)["session"])

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		logging.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		logging.ErrorContext(r.Context(), "websocket subscribe failed", "topic", topic, "error", err)
		return
	}
	defer sub.Close()

	if err := pubsub.StreamWS(r.Context(), conn, sub); err != nil {
		logging.DebugContext(r.Context(), "websocket stream ended", "topic", topic, "error", err)
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SessionsResponse{
		Current:  s.manager.Current(),
		Sessions: s.manager.Sessions(),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	session := mux.Vars(r)["session"]
	status := http.StatusOK
	if _, ok := s.manager.Graph(session); !ok {
		status = http.StatusCreated
	}
	g := s.manager.CreateGraph(session)
	writeJSON(w, status, g.Snapshot())
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	session := mux.Vars(r)["session"]
	if !s.manager.Unregister(session) {
		http.Error(w, fmt.Sprintf("Session not found: %s", session), http.StatusNotFound)
		return
	}
	s.publisher.Forget(pubsub.GraphTopic(session))
	s.renderer.Purge()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	s.manager.Focus(mux.Vars(r)["session"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	session := mux.Vars(r)["session"]

	var rep execution.Report
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		http.Error(w, fmt.Sprintf("Invalid report: %v", err), http.StatusBadRequest)
		return
	}
	if rep.Session == "" {
		rep.Session = session
	}
	if rep.Session != session {
		http.Error(w, fmt.Sprintf("Report for session %s posted to %s", rep.Session, session), http.StatusBadRequest)
		return
	}

	outcome, err := s.manager.ApplyReport(r.Context(), &rep)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{Outcome: outcome})
}

func (s *Server) handleDownlinks(w http.ResponseWriter, r *http.Request) {
	session := mux.Vars(r)["session"]

	var list []execution.DownstreamUpdate
	if !decodeBody(w, r, &list) {
		return
	}
	if err := execution.ValidateDownstreams(list); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.manager.UpdateDownLinks(session, execution.DownUpdates(list)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	session := mux.Vars(r)["session"]

	var req ActiveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, ok := s.manager.Graph(session); !ok {
		http.Error(w, fmt.Sprintf("Session not found: %s", session), http.StatusNotFound)
		return
	}

	// Cell switches only happen in the notebook that has focus
	s.manager.Focus(session)
	left := truncateOptional(req.Left)
	s.manager.ActiveCellChanged(left, req.Source, truncateOptional(req.Next))
	writeJSON(w, http.StatusOK, ActiveResponse{Left: left, State: s.manager.GetStale(left)})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var order []string
	if !decodeBody(w, r, &order) {
		return
	}
	if err := s.manager.UpdateSessionOrder(mux.Vars(r)["session"], order); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContents(w http.ResponseWriter, r *http.Request) {
	var raw map[string]string
	if !decodeBody(w, r, &raw) {
		return
	}
	contents := make(map[cellid.ID]string, len(raw))
	for id, text := range raw {
		contents[cellid.Truncate(id)] = text
	}
	if err := s.manager.UpdateContents(mux.Vars(r)["session"], contents); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	var cells []dfgraph.SeedCell
	if !decodeBody(w, r, &cells) {
		return
	}
	for i := range cells {
		cells[i].ID = cellid.Truncate(string(cells[i].ID))
	}

	g, created := s.manager.Seed(mux.Vars(r)["session"], cells)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, g.Snapshot())
}

func (s *Server) handleTag(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		Cell string `json:"cell"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.manager.BindTag(vars["session"], vars["tag"], cellid.Truncate(body.Cell)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveCell(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.manager.RemoveCell(vars["session"], cellid.Truncate(vars["cell"])); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCells(w http.ResponseWriter, r *http.Request) {
	g, ok := s.manager.Graph(mux.Vars(r)["session"])
	if !ok {
		writeJSON(w, http.StatusOK, []CellSummary{})
		return
	}

	snap := g.Snapshot()
	cells := make([]CellSummary, 0, len(snap.Cells))
	for _, id := range snap.Ordered() {
		nodes := snap.Nodes[id]
		if nodes == nil {
			nodes = []string{}
		}
		cells = append(cells, CellSummary{ID: id, State: snap.State(id), Nodes: nodes})
	}
	writeJSON(w, http.StatusOK, cells)
}

func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := cellid.Truncate(vars["cell"])

	info := CellInfo{
		ID:            id,
		State:         dfgraph.StateNone,
		Nodes:         []string{},
		InternalNodes: []string{},
		Upstreams:     []string{},
		ImmUpstreams:  []dfgraph.UpstreamPair{},
		Downstreams:   []cellid.ID{},
		AllUpstreams:  []cellid.ID{},
		AllDownstream: []cellid.ID{},
	}
	if g, ok := s.manager.Graph(vars["session"]); ok {
		info.Exists = g.HasCell(id)
		info.State = g.State(id)
		info.Text = g.GetText(id)
		info.Nodes = g.GetNodes(id)
		info.InternalNodes = g.GetInternalNodes(id)
		info.Upstreams = g.GetUpstreams(id)
		info.ImmUpstreams = g.GetImmUpstreamPairs(id)
		info.Downstreams = g.GetDownstreams(id)
		info.AllUpstreams = g.GetAllUpstreams(id)
		info.AllDownstream = g.AllDownstream(id)
	}
	writeJSON(w, http.StatusOK, info)
}

func viewOptions(r *http.Request) viewer.Options {
	opts := viewer.DefaultOptions()
	q := r.URL.Query()
	if v := q.Get("dataflow"); v != "" {
		if dataflow, err := strconv.ParseBool(v); err == nil {
			opts.Dataflow = dataflow
		}
	}
	if v := q.Get("selected"); v != "" {
		opts.Selected = cellid.Truncate(v)
	}
	if v := q.Get("radius"); v != "" {
		if radius, err := strconv.Atoi(v); err == nil && radius > 0 {
			opts.Radius = radius
		}
	}
	return opts
}

func (s *Server) depView(r *http.Request) *model.Graph {
	session := mux.Vars(r)["session"]
	g, ok := s.manager.Graph(session)
	if !ok {
		empty := model.NewGraph()
		empty.Session = session
		return empty
	}
	return s.renderer.DepView(session, g, viewOptions(r))
}

// handleDepView serves the whole view, or with ?since=<revision> only what
// changed after that render
func (s *Server) handleDepView(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	if since == "" {
		writeJSON(w, http.StatusOK, s.depView(r))
		return
	}

	revision, err := strconv.ParseUint(since, 10, 64)
	if err != nil {
		http.Error(w, "since must be a revision number", http.StatusBadRequest)
		return
	}
	session := mux.Vars(r)["session"]
	g, ok := s.manager.Graph(session)
	if !ok {
		empty := model.NewGraph()
		empty.Session = session
		writeJSON(w, http.StatusOK, viewer.ComputeDiff(nil, empty))
		return
	}
	writeJSON(w, http.StatusOK, s.renderer.Diff(session, g, viewOptions(r), revision))
}

func (s *Server) handleDepViewDOT(w http.ResponseWriter, r *http.Request) {
	out, err := viewer.DOT(s.depView(r))
	if err != nil {
		logging.ErrorContext(r.Context(), "failed to render DOT", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.Header().Set("Content-Disposition", `attachment; filename="depview.dot"`)
	w.Write(out)
}

func (s *Server) handleMinimap(w http.ResponseWriter, r *http.Request) {
	snap := &dfgraph.Snapshot{}
	if g, ok := s.manager.Graph(mux.Vars(r)["session"]); ok {
		snap = g.Snapshot()
	}

	resp := MinimapResponse{Minimap: viewer.BuildMinimap(snap)}
	if active := r.URL.Query().Get("active"); active != "" {
		a := resp.Activate(cellid.Truncate(active))
		resp.Activation = &a
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	resp := CyclesResponse{Cycles: []cycles.CellCycle{}, Order: []cellid.ID{}}
	g, ok := s.manager.Graph(mux.Vars(r)["session"])
	if !ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	cg := graph.BuildCellGraph(g.Snapshot())
	resp.Cycles = cycles.FindCellCycles(cg)
	order, err := cg.EvaluationOrder()
	resp.Order = order
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Start starts the web server on addr and blocks until it stops. A clean
// Shutdown returns nil.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logging.Info("starting web server", "url", "http://"+addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, manager.ErrUnknownSession):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, cellid.ErrTagTaken), errors.Is(err, cellid.ErrTagShadowsID):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func truncateOptional(raw string) cellid.ID {
	if raw == "" {
		return ""
	}
	return cellid.Truncate(raw)
}
