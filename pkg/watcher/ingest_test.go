package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/manager"
	"github.com/ritzau/dfgraph/pkg/metrics"
	"github.com/ritzau/dfgraph/pkg/pubsub"
)

const (
	reportA = `{"session": "s1", "cell_id": "aaaaaaaa", "status": "ok",
  "cells": ["aaaaaaaa"], "nodes": ["x"]}`
	reportB = `{"session": "s1", "cell_id": "bbbbbbbb", "status": "ok",
  "cells": ["aaaaaaaa", "bbbbbbbb"], "nodes": ["y"],
  "links": {"aaaaaaaa": ["x"]}, "imm_upstream_deps": ["aaaaaaaa"]}`
	reportFailed = `{"session": "s1", "cell_id": "cccccccc", "status": "error",
  "ename": "MultipleDefinitionError", "evalue": "x"}`
)

func newTestIngester(t *testing.T) (*Ingester, *manager.Manager, *metrics.Metrics) {
	t.Helper()
	pub := pubsub.NewSSEPublisher()
	t.Cleanup(func() { pub.Close() })
	met := metrics.New()
	m := manager.New(pub, manager.WithMetrics(met))
	return NewIngester(m, met), m, met
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIsReport(t *testing.T) {
	assert.True(t, IsReport("/spool/0001.json"))
	assert.False(t, IsReport("/spool/.0001.json"))
	assert.False(t, IsReport("/spool/0001.json.tmp"))
	assert.False(t, IsReport("notes.txt"))
}

func TestReplayAppliesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	// B is written first but sorts second
	writeFile(t, dir, "002-b.json", reportB)
	writeFile(t, dir, "001-a.json", reportA)
	writeFile(t, dir, "003-bad.json", "{")
	writeFile(t, dir, "004-failed.json", reportFailed)
	writeFile(t, dir, "readme.txt", "ignored")
	writeFile(t, dir, ".partial.json", "{")

	in, m, met := newTestIngester(t)
	res, err := in.Replay(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, Result{Applied: 2, Failed: 1, Malformed: 1}, res)

	g, ok := m.Graph("s1")
	require.True(t, ok)
	assert.Equal(t, []cellid.ID{"aaaaaaaa"}, g.GetImmUpstreams("bbbbbbbb"))
	assert.Equal(t, 2.0, testutil.ToFloat64(met.SpoolReports.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.SpoolReports.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.SpoolReports.WithLabelValues("failed")))
}

func TestIngestSkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "001-a.json", reportA)
	bad := writeFile(t, dir, "002-bad.json", "{")

	in, m, _ := newTestIngester(t)
	ctx := context.Background()
	assert.Equal(t, Result{Applied: 1, Malformed: 1}, in.Ingest(ctx, []string{a, bad}))

	g, _ := m.Graph("s1")
	rev := g.Revision()

	// The malformed file is retried, the applied one is not
	assert.Equal(t, Result{Skipped: 1, Malformed: 1}, in.Ingest(ctx, []string{a, a, bad}))
	assert.Equal(t, rev, g.Revision())

	// A finished write makes the file eligible again
	require.NoError(t, os.WriteFile(bad, []byte(reportB), 0o644))
	assert.Equal(t, Result{Skipped: 1, Applied: 1}, in.Ingest(ctx, []string{a, bad}))
	assert.True(t, g.HasCell("bbbbbbbb"))
}

func TestIngestSkipsVanishedFiles(t *testing.T) {
	in, _, _ := newTestIngester(t)
	res := in.Ingest(context.Background(), []string{filepath.Join(t.TempDir(), "gone.json")})
	assert.Equal(t, Result{Skipped: 1}, res)
}

func TestWatchPicksUpNewReports(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "001-a.json", reportA)

	in, m, _ := newTestIngester(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, Watch(ctx, dir, in, WatchOptions{
		QuietPeriod: 20 * time.Millisecond,
		MaxWait:     200 * time.Millisecond,
	}))

	g, ok := m.Graph("s1")
	require.True(t, ok, "existing reports are replayed before Watch returns")
	assert.True(t, g.HasCell("aaaaaaaa"))

	writeFile(t, dir, "002-b.json", reportB)
	assert.Eventually(t, func() bool {
		return g.HasCell("bbbbbbbb")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewSpoolWatcherRequiresDirectory(t *testing.T) {
	_, err := NewSpoolWatcher(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := writeFile(t, t.TempDir(), "x.json", reportA)
	_, err = NewSpoolWatcher(file)
	assert.Error(t, err)
}
