package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/ritzau/dfgraph/pkg/execution"
	"github.com/ritzau/dfgraph/pkg/logging"
	"github.com/ritzau/dfgraph/pkg/manager"
	"github.com/ritzau/dfgraph/pkg/metrics"
)

// outcomeMalformed labels spool files that could not be decoded
const outcomeMalformed = "malformed"

// Applier receives decoded reports; *manager.Manager satisfies it
type Applier interface {
	ApplyReport(ctx context.Context, rep *execution.Report) (manager.Outcome, error)
}

// Result tallies one ingest pass
type Result struct {
	Applied   int
	Discarded int
	Failed    int
	Malformed int
	Skipped   int
}

// Add folds other into r
func (r *Result) Add(other Result) {
	r.Applied += other.Applied
	r.Discarded += other.Discarded
	r.Failed += other.Failed
	r.Malformed += other.Malformed
	r.Skipped += other.Skipped
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// Ingester decodes spooled report files and applies them in file-name order.
// A file is applied once per distinct size and modification time, so repeated
// write events for the same report do not bump the graph twice.
type Ingester struct {
	applier Applier
	metrics *metrics.Metrics

	mu   sync.Mutex
	seen map[string]fileStamp
}

// NewIngester creates an ingester; met may be nil
func NewIngester(applier Applier, met *metrics.Metrics) *Ingester {
	return &Ingester{
		applier: applier,
		metrics: met,
		seen:    make(map[string]fileStamp),
	}
}

// Ingest applies the given report files. Failures are logged and counted,
// never returned: one bad file must not stop the rest of the batch.
func (in *Ingester) Ingest(ctx context.Context, paths []string) Result {
	sorted := slices.Clone(paths)
	slices.Sort(sorted)

	in.mu.Lock()
	defer in.mu.Unlock()

	var res Result
	for _, path := range slices.Compact(sorted) {
		if ctx.Err() != nil {
			break
		}
		in.ingestFile(ctx, path, &res)
	}
	return res
}

func (in *Ingester) ingestFile(ctx context.Context, path string, res *Result) {
	info, err := os.Stat(path)
	if err != nil {
		// Removed between the event and now
		logging.Debug("spool file vanished", "path", path, "error", err)
		res.Skipped++
		return
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}
	if prev, ok := in.seen[path]; ok && prev == stamp {
		res.Skipped++
		return
	}

	rep, err := decodeFile(path)
	if err == nil {
		var outcome manager.Outcome
		outcome, err = in.applier.ApplyReport(ctx, rep)
		if err == nil {
			in.seen[path] = stamp
			in.count(string(outcome))
			switch outcome {
			case manager.OutcomeApplied:
				res.Applied++
			case manager.OutcomeDiscarded:
				res.Discarded++
			case manager.OutcomeFailed:
				res.Failed++
			}
			logging.Debug("ingested report", "path", path, "outcome", outcome)
			return
		}
	}

	// Not marked as seen: a half-written file is retried on its next write
	logging.Warn("skipping malformed report", "path", path, "error", err)
	in.count(outcomeMalformed)
	res.Malformed++
}

func (in *Ingester) count(outcome string) {
	if in.metrics != nil {
		in.metrics.SpoolReports.WithLabelValues(outcome).Inc()
	}
}

func decodeFile(path string) (*execution.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", execution.ErrInvalidReport, err)
	}
	defer f.Close()
	return execution.Decode(f)
}

// Replay ingests every report already present in dir
func (in *Ingester) Replay(ctx context.Context, dir string) (Result, error) {
	paths, err := ListReports(dir)
	if err != nil {
		return Result{}, err
	}
	logging.Info("replaying spool", "path", dir, "reports", len(paths))
	return in.Ingest(ctx, paths), nil
}

// Run ingests each batch from events until the channel closes
func (in *Ingester) Run(ctx context.Context, events <-chan ChangeEvent) {
	for event := range events {
		res := in.Ingest(ctx, event.Paths)
		logging.Info("spool batch",
			"applied", res.Applied,
			"discarded", res.Discarded,
			"failed", res.Failed,
			"malformed", res.Malformed)
	}
}

// ListReports returns the report files in dir sorted by name
func ListReports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read spool: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsReport(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

// WatchOptions tunes Watch
type WatchOptions struct {
	QuietPeriod time.Duration
	MaxWait     time.Duration
}

// Watch replays dir and then keeps ingesting new reports until ctx is done.
// It returns once the watch is running.
func Watch(ctx context.Context, dir string, in *Ingester, opts WatchOptions) error {
	sw, err := NewSpoolWatcher(dir)
	if err != nil {
		return err
	}
	// Start watching before the replay so nothing written in between is lost
	if err := sw.Start(ctx); err != nil {
		return err
	}
	if _, err := in.Replay(ctx, dir); err != nil {
		return err
	}

	d := NewDebouncer(sw.Events(), opts.QuietPeriod, opts.MaxWait)
	d.Start(ctx)
	go in.Run(ctx, d.Output())
	return nil
}
