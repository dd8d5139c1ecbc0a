package engine

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/stagesync/internal/ir"
)

// BatchOptions configures RunBatch.
type BatchOptions struct {
	// Workers is the number of parallel workers. Values below 2 process
	// the batch sequentially.
	Workers int
}

// BatchReport is the outcome of a batch, one result per task in seq
// order.
type BatchReport struct {
	RunID     string       `json:"run_id" yaml:"run_id"`
	Results   []TaskResult `json:"results" yaml:"results"`
	Applied   int          `json:"applied" yaml:"applied"`
	Failed    int          `json:"failed" yaml:"failed"`
	Cancelled int          `json:"cancelled" yaml:"cancelled"`
}

// HasFailures reports whether any task failed.
func (r BatchReport) HasFailures() bool {
	return r.Failed > 0
}

func (r *BatchReport) tally() {
	r.Applied, r.Failed, r.Cancelled = 0, 0, 0
	for _, res := range r.Results {
		switch res.Status {
		case StatusApplied:
			r.Applied++
		case StatusFailed:
			r.Failed++
		case StatusCancelled:
			r.Cancelled++
		}
	}
}

// RunBatch processes tasks as one run. A failed task does not stop the
// batch; cancellation does, and the tasks that never started are
// reported as cancelled. The returned error is non-nil only on
// cancellation.
//
// Tasks of one entity are applied in seq order. With more than one
// worker, entities are spread over workers and each worker keeps its
// own translation memo.
func (d *Dispatcher) RunBatch(ctx context.Context, tasks []ir.Task, opts BatchOptions) (BatchReport, error) {
	stamped := make([]*ir.Task, len(tasks))
	for i := range tasks {
		stamped[i] = d.stamp(&tasks[i])
	}
	sort.SliceStable(stamped, func(i, j int) bool {
		return stamped[i].Seq < stamped[j].Seq
	})

	report := BatchReport{
		RunID:   d.runIDs.Generate(),
		Results: make([]TaskResult, len(stamped)),
	}
	for i, t := range stamped {
		report.Results[i] = TaskResult{
			Seq:       t.Seq,
			TaskType:  t.Type,
			EntityKey: t.EntityKey(),
			Status:    StatusCancelled,
			Reason:    "not started",
		}
	}

	lastSync := d.lastSyncSnapshot(stamped)

	d.logger.Info("batch starting",
		"run_id", report.RunID,
		"tasks", len(stamped),
		"workers", max(opts.Workers, 1))

	var err error
	if opts.Workers < 2 {
		err = d.runLane(ctx, d.newRunState(report.RunID, lastSync), stamped, indexes(len(stamped)), report.Results)
	} else {
		err = d.runParallel(ctx, report.RunID, lastSync, stamped, opts.Workers, report.Results)
	}

	report.tally()
	d.logger.Info("batch finished",
		"run_id", report.RunID,
		"applied", report.Applied,
		"failed", report.Failed,
		"cancelled", report.Cancelled)

	if err != nil {
		return report, fmt.Errorf("%w: run %s: %w", ErrCancelled, report.RunID, err)
	}
	return report, nil
}

// lastSyncSnapshot finds, per connector and entity, the last task that
// matched with SyncSnapshot.
func (d *Dispatcher) lastSyncSnapshot(tasks []*ir.Task) map[string]int64 {
	last := make(map[string]int64)
	for _, t := range tasks {
		for _, m := range d.registry.Match(t) {
			if m.ProcessType == ir.ProcessSyncSnapshot {
				last[syncKey(m.ConnectorName, t.EntityKey())] = t.Seq
			}
		}
	}
	return last
}

func indexes(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// runLane processes the tasks at idx in order and stops at cancellation.
func (d *Dispatcher) runLane(ctx context.Context, rs *runState, tasks []*ir.Task, idx []int, results []TaskResult) error {
	for _, i := range idx {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := d.process(ctx, rs, tasks[i])
		results[i] = res
		if err != nil && IsCancelled(err) {
			return err
		}
	}
	return nil
}

// runParallel groups tasks by entity key and runs the groups on a
// bounded errgroup. Each running group borrows a run state from a pool
// of one state per worker.
func (d *Dispatcher) runParallel(ctx context.Context, runID string, lastSync map[string]int64, tasks []*ir.Task, workers int, results []TaskResult) error {
	var (
		order []string
		lanes = make(map[string][]int)
	)
	for i, t := range tasks {
		key := t.EntityKey()
		if _, ok := lanes[key]; !ok {
			order = append(order, key)
		}
		lanes[key] = append(lanes[key], i)
	}

	pool := make(chan *runState, workers)
	for i := 0; i < workers; i++ {
		pool <- d.newRunState(runID, lastSync)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, key := range order {
		idx := lanes[key]
		g.Go(func() error {
			rs := <-pool
			defer func() { pool <- rs }()
			return d.runLane(gctx, rs, tasks, idx, results)
		})
	}
	return g.Wait()
}
