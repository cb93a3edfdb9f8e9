package manager

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/dfgraph"
	"github.com/ritzau/dfgraph/pkg/execution"
	"github.com/ritzau/dfgraph/pkg/metrics"
	"github.com/ritzau/dfgraph/pkg/pubsub"
)

const (
	cellA cellid.ID = "aaaaaaaa"
	cellB cellid.ID = "bbbbbbbb"
	cellC cellid.ID = "cccccccc"
)

func newTestManager(t *testing.T) (*Manager, *pubsub.SSEPublisher, *metrics.Metrics) {
	t.Helper()
	pub := pubsub.NewSSEPublisher()
	t.Cleanup(func() { pub.Close() })
	met := metrics.New()
	return New(pub, WithMetrics(met)), pub, met
}

func subscribe(t *testing.T, pub *pubsub.SSEPublisher, topic string) pubsub.Subscription {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sub, err := pub.Subscribe(ctx, topic)
	require.NoError(t, err)
	return sub
}

func nextEvent(t *testing.T, sub pubsub.Subscription) pubsub.Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return pubsub.Event{}
	}
}

// reportA executes cell A defining x
func reportA(session string) *execution.Report {
	return &execution.Report{
		Session: session,
		CellID:  "aaaaaaaa-1111-2222-3333-444444444444",
		Status:  execution.StatusOK,
		Cells:   []string{"aaaaaaaa"},
		Nodes:   []string{"x"},
		Source:  "x = 1",
	}
}

// reportB executes cell B reading A$x
func reportB(session string) *execution.Report {
	return &execution.Report{
		Session:           session,
		CellID:            "bbbbbbbb",
		Status:            execution.StatusOK,
		Cells:             []string{"aaaaaaaa", "bbbbbbbb"},
		Nodes:             []string{"y"},
		Links:             map[string][]string{"aaaaaaaa": {"x"}},
		UpstreamDeps:      []string{"aaaaaaaa"},
		ImmUpstreamDeps:   []string{"aaaaaaaa"},
		UpdateDownstreams: []execution.DownstreamUpdate{{Key: "aaaaaaaa", Data: []string{"bbbbbbbb"}}},
		Source:            "y = A$x + 1",
	}
}

func TestRegisterFirstWriterWins(t *testing.T) {
	m, _, met := newTestManager(t)
	first := dfgraph.New()

	assert.True(t, m.Register("s1", first))
	assert.False(t, m.Register("s1", dfgraph.New()))

	g, ok := m.Graph("s1")
	require.True(t, ok)
	assert.Same(t, first, g)
	assert.Same(t, first, m.CreateGraph("s1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.Sessions))

	m.CreateGraph("s0")
	assert.Equal(t, []string{"s0", "s1"}, m.Sessions())
	assert.Equal(t, 2.0, testutil.ToFloat64(met.Sessions))
}

func TestCurrentGraphSentinels(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.Equal(t, NoSession, m.Current())

	assert.Equal(t, "", m.GetText(cellA))
	assert.Equal(t, dfgraph.StateNone, m.GetStale(cellA))
	m.MarkStale(cellA)
	m.RevertStale(cellA)
	m.UpdateOrder([]string{"aaaaaaaa"})

	m.Focus("s1")
	assert.Equal(t, "s1", m.Current())
	assert.Equal(t, dfgraph.StateNone, m.GetStale(cellA), "focused session has no graph yet")

	m.Focus(NoSession)
	m.Focus("")
	assert.Equal(t, "s1", m.Current())
}

func TestSessionScopedMutationsRequireRegistration(t *testing.T) {
	m, _, _ := newTestManager(t)

	assert.ErrorIs(t, m.RemoveCell("nope", cellA), ErrUnknownSession)
	assert.ErrorIs(t, m.UpdateSessionOrder("nope", nil), ErrUnknownSession)
	assert.ErrorIs(t, m.UpdateContents("nope", nil), ErrUnknownSession)
	assert.ErrorIs(t, m.UpdateDownLinks("nope", nil), ErrUnknownSession)
	assert.ErrorIs(t, m.BindTag("nope", "t", cellA), ErrUnknownSession)
}

func TestApplyReportBuildsGraph(t *testing.T) {
	m, pub, met := newTestManager(t)
	ctx := context.Background()
	sub := subscribe(t, pub, pubsub.GraphTopic("s1"))

	outcome, err := m.ApplyReport(ctx, reportA("s1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	outcome, err = m.ApplyReport(ctx, reportB("s1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	g, ok := m.Graph("s1")
	require.True(t, ok)
	assert.Equal(t, []cellid.ID{cellA, cellB}, g.GetCells())
	assert.Equal(t, []cellid.ID{cellA}, g.GetImmUpstreams(cellB))
	assert.Equal(t, []cellid.ID{cellB}, g.AllDownstream(cellA))
	assert.Equal(t, "x = 1", g.GetText(cellA))
	assert.Equal(t, dfgraph.StateFresh, g.State(cellA))
	assert.Equal(t, dfgraph.StateFresh, g.State(cellB))
	assert.Equal(t, 2.0, testutil.ToFloat64(met.Mutations.WithLabelValues("update")))

	event := nextEvent(t, sub)
	assert.Equal(t, pubsub.EventUpdated, event.Type)
	var change pubsub.GraphChange
	require.NoError(t, json.Unmarshal(event.Data, &change))
	assert.Equal(t, "s1", change.Session)
	assert.Equal(t, []string{"aaaaaaaa"}, change.Cells)
}

func TestApplyReportFailureLeavesGraphUntouched(t *testing.T) {
	m, pub, met := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyReport(ctx, reportA("s1"))
	require.NoError(t, err)
	g, _ := m.Graph("s1")
	before := g.Revision()

	sub := subscribe(t, pub, pubsub.GraphTopic("s1"))
	outcome, err := m.ApplyReport(ctx, &execution.Report{
		Session:    "s1",
		CellID:     "bbbbbbbb",
		Status:     execution.StatusError,
		ErrorName:  "DuplicateNameError",
		ErrorValue: "x is already defined in aaaaaaaa",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, before, g.Revision())
	assert.False(t, g.HasCell(cellB))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.ExecutionFailed.WithLabelValues("duplicate_name")))

	// The replayed update comes first
	event := nextEvent(t, sub)
	if event.Type == pubsub.EventUpdated {
		event = nextEvent(t, sub)
	}
	assert.Equal(t, pubsub.EventExecutionFailed, event.Type)
	var failed pubsub.ExecutionFailed
	require.NoError(t, json.Unmarshal(event.Data, &failed))
	assert.Equal(t, "bbbbbbbb", failed.Cell)
	assert.Equal(t, "duplicate_name", failed.Kind)
}

func TestApplyReportDiscardsLateReport(t *testing.T) {
	m, _, met := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyReport(ctx, reportA("s1"))
	require.NoError(t, err)
	require.NoError(t, m.RemoveCell("s1", cellA))

	// The kernel's cell list no longer names the deleted cell
	late := reportA("s1")
	late.Cells = []string{"bbbbbbbb"}
	outcome, err := m.ApplyReport(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, outcome)

	g, _ := m.Graph("s1")
	assert.False(t, g.HasCell(cellA))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.DiscardedUpdates))

	// Restoring the cell under the same id brings it back
	outcome, err = m.ApplyReport(ctx, reportA("s1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.True(t, g.HasCell(cellA))
}

func TestApplyReportRemovesDeletedCells(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyReport(ctx, reportA("s1"))
	require.NoError(t, err)
	_, err = m.ApplyReport(ctx, reportB("s1"))
	require.NoError(t, err)
	require.NoError(t, m.BindTag("s1", "loader", cellA))

	rep := &execution.Report{
		Session:      "s1",
		CellID:       "cccccccc",
		Cells:        []string{"bbbbbbbb", "cccccccc"},
		Nodes:        []string{"z"},
		DeletedCells: []string{"aaaaaaaa"},
	}
	outcome, err := m.ApplyReport(ctx, rep)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	g, _ := m.Graph("s1")
	assert.False(t, g.HasCell(cellA))
	assert.True(t, g.HasCell(cellC))
	assert.Empty(t, g.GetImmUpstreams(cellB))

	tags, _ := m.Tags("s1")
	_, err = tags.Resolve("loader")
	assert.ErrorIs(t, err, cellid.ErrUnknownReference)
}

func TestApplyReportRejectsInvalidReport(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.ApplyReport(context.Background(), &execution.Report{CellID: "aaaaaaaa"})
	assert.ErrorIs(t, err, execution.ErrInvalidReport)
	assert.Empty(t, m.Sessions())
}

func TestApplyReportRejectsRepeatedExport(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyReport(ctx, reportA("s1"))
	require.NoError(t, err)
	g, _ := m.Graph("s1")
	before := g.Revision()

	rep := reportA("s1")
	rep.Nodes = []string{"x", "x"}
	outcome, err := m.ApplyReport(ctx, rep)
	assert.ErrorIs(t, err, execution.ErrInvalidReport)
	assert.NotEqual(t, OutcomeApplied, outcome)
	assert.Equal(t, before, g.Revision())
	assert.Equal(t, []string{"x"}, g.GetNodes(cellA))
}

func TestActiveCellChangedTracksStaleness(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyReport(ctx, reportA("s1"))
	require.NoError(t, err)
	_, err = m.ApplyReport(ctx, reportB("s1"))
	require.NoError(t, err)
	m.Focus("s1")

	m.ActiveCellChanged(cellA, "x = 2", cellB)
	assert.Equal(t, dfgraph.StateStale, m.GetStale(cellA))
	assert.Equal(t, dfgraph.StateUpstreamStale, m.GetStale(cellB))
	active, previous := m.Active()
	assert.Equal(t, cellB, active)
	assert.Equal(t, cellA, previous)

	m.ActiveCellChanged(cellA, "x = 1", cellC)
	assert.Equal(t, dfgraph.StateFresh, m.GetStale(cellA))
	assert.Equal(t, dfgraph.StateFresh, m.GetStale(cellB))
}

func TestSeedKeepsExistingGraph(t *testing.T) {
	m, _, _ := newTestManager(t)
	cells := []dfgraph.SeedCell{
		{ID: cellA, Source: "x = 1", Outputs: []string{"x"}},
		{ID: cellB, Source: "y = x$aaaaaaaa", Outputs: []string{"y"}},
	}

	g, created := m.Seed("s1", cells)
	require.True(t, created)
	assert.Equal(t, []cellid.ID{cellA}, g.GetImmUpstreams(cellB))
	assert.Equal(t, dfgraph.StateStale, g.State(cellA))

	again, created := m.Seed("s1", nil)
	assert.False(t, created)
	assert.Same(t, g, again)
}

func TestSeedResolvesTags(t *testing.T) {
	m, _, _ := newTestManager(t)
	cells := []dfgraph.SeedCell{
		{ID: cellA, Source: "x = 1", Outputs: []string{"x"}, Tag: "loader"},
		{ID: cellB, Source: "y = x$loader", Outputs: []string{"y"}},
		{ID: cellC, Source: "z = y$bbbbbbbb", Outputs: []string{"z"}, Tag: "loader"},
	}

	g, created := m.Seed("s1", cells)
	require.True(t, created)
	assert.Equal(t, []cellid.ID{cellA}, g.GetImmUpstreams(cellB))
	assert.Equal(t, []cellid.ID{cellB}, g.GetImmUpstreams(cellC))

	tags, ok := m.Tags("s1")
	require.True(t, ok)
	owner, err := tags.Resolve("loader")
	require.NoError(t, err)
	assert.Equal(t, cellA, owner)
	_, tagged := tags.Tag(cellC)
	assert.False(t, tagged, "second claim on a tag is dropped")
}

func TestUnregisterClearsFocus(t *testing.T) {
	m, _, met := newTestManager(t)
	m.CreateGraph("s1")
	m.Focus("s1")

	assert.True(t, m.Unregister("s1"))
	assert.False(t, m.Unregister("s1"))
	assert.Equal(t, NoSession, m.Current())
	assert.Equal(t, 0.0, testutil.ToFloat64(met.Sessions))
}
