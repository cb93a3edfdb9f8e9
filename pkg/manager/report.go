package manager

import (
	"context"

	"github.com/ritzau/dfgraph/pkg/execution"
	"github.com/ritzau/dfgraph/pkg/logging"
	"github.com/ritzau/dfgraph/pkg/pubsub"
)

// Outcome is what ApplyReport did with a report
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDiscarded Outcome = "discarded" // the cell was deleted while it ran
	OutcomeFailed    Outcome = "failed"    // the kernel aborted; the graph is untouched
)

// ApplyReport records one execution report in its session graph, creating the
// graph on the session's first report. Cells the kernel lists as deleted are
// removed first. A failed execution leaves the graph as it was and is
// published as execution_failed so the cell can show a tagged error.
func (m *Manager) ApplyReport(ctx context.Context, rep *execution.Report) (Outcome, error) {
	if err := rep.Validate(); err != nil {
		return "", err
	}
	ctx = logging.WithSession(ctx, rep.Session)

	m.CreateGraph(rep.Session)
	s, _ := m.lookup(rep.Session)

	s.mu.Lock()
	for _, cell := range rep.Deleted() {
		s.graph.RemoveCell(cell)
		s.tags.Unbind(cell)
		m.count("remove")
	}

	if f := rep.Failure(); f != nil {
		s.mu.Unlock()
		logging.WarnContext(ctx, "execution failed", "cell", f.Cell, "kind", f.Kind, "error", f.Error())
		if m.metrics != nil {
			m.metrics.ExecutionFailed.WithLabelValues(string(f.Kind)).Inc()
		}
		m.publishFailure(rep.Session, f)
		return OutcomeFailed, nil
	}

	cell := rep.Cell()
	applied := s.graph.Apply(rep.Update(), rep.DownlinkUpdates())
	if applied && rep.Source != "" {
		s.graph.SetCellContent(cell, rep.Source)
	}
	s.mu.Unlock()

	if !applied {
		logging.DebugContext(ctx, "discarding late report", "cell", cell)
		if m.metrics != nil {
			m.metrics.DiscardedUpdates.Inc()
		}
		return OutcomeDiscarded, nil
	}

	logging.DebugContext(ctx, "report applied", "cell", cell, "nodes", len(rep.Nodes))
	m.count("update")
	m.publishGraph(rep.Session, s.graph, pubsub.EventUpdated, cell)
	return OutcomeApplied, nil
}

func (m *Manager) publishFailure(id string, f *execution.Failure) {
	if m.publisher == nil {
		return
	}
	payload := pubsub.ExecutionFailed{
		Session: id,
		Cell:    f.Cell.String(),
		Kind:    string(f.Kind),
		Message: f.Error(),
	}
	if err := m.publisher.Publish(pubsub.GraphTopic(id), pubsub.EventExecutionFailed, payload); err != nil {
		log.Warn("failed to publish execution failure", "session", id, "error", err)
	}
}
