package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/reconcile"
	"github.com/roach88/stagesync/internal/store"
	"github.com/roach88/stagesync/internal/subscription"
	"github.com/roach88/stagesync/internal/translation"
)

// TaskStatus is the outcome of one task.
type TaskStatus string

const (
	StatusApplied   TaskStatus = "applied"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// TaskResult reports what happened to one task.
type TaskResult struct {
	Seq       int64       `json:"seq" yaml:"seq"`
	TaskType  ir.TaskType `json:"type" yaml:"type"`
	EntityKey string      `json:"entity" yaml:"entity"`
	Status    TaskStatus  `json:"status" yaml:"status"`
	Reason    string      `json:"reason,omitempty" yaml:"reason,omitempty"`

	// Queued counts asynchronous deliveries written to the outbound queue.
	Queued int `json:"queued,omitempty" yaml:"queued,omitempty"`
	// Delivered counts synchronous deliveries accepted by connectors.
	Delivered int `json:"delivered,omitempty" yaml:"delivered,omitempty"`
}

// Dispatcher replays tasks against a target store and hands them to the
// connectors whose subscriptions match.
//
// Thread-safety model:
//   - Enqueue, Stop: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Process: serialized internally; shares the Run loop's run state
//   - RunBatch: safe to call concurrently with other batches
type Dispatcher struct {
	store      *store.Store
	registry   *subscription.Registry
	connectors map[string]Connector
	types      *ir.ObjectTypes
	metrics    *Metrics
	clock      *Clock
	logger     *slog.Logger
	runIDs     RunIDGenerator
	queue      *taskQueue

	mu   sync.Mutex
	loop *runState // created on first use
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConnectors registers connector implementations by name. Connectors
// known to the registry without an implementation get a LogConnector.
func WithConnectors(connectors ...Connector) Option {
	return func(d *Dispatcher) {
		for _, c := range connectors {
			d.connectors[c.Name()] = c
		}
	}
}

// WithObjectTypes replaces the object type registry.
func WithObjectTypes(types *ir.ObjectTypes) Option {
	return func(d *Dispatcher) {
		d.types = types
	}
}

// WithMetrics enables Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithClock sets the clock that stamps tasks without a seq. Used to
// continue numbering after a previous batch.
func WithClock(c *Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithRunIDGenerator sets the run ID source. Defaults to UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(d *Dispatcher) {
		d.runIDs = g
	}
}

// New creates a Dispatcher over s. The registry must not be modified
// afterwards.
func New(s *store.Store, registry *subscription.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      s,
		registry:   registry,
		connectors: make(map[string]Connector),
		types:      ir.NewObjectTypes(),
		clock:      NewClock(),
		logger:     slog.Default(),
		runIDs:     UUIDv7Generator{},
		queue:      newTaskQueue(),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, name := range registry.Connectors() {
		if _, ok := d.connectors[name]; !ok {
			d.connectors[name] = NewLogConnector(name, d.logger)
		}
	}
	return d
}

// Clock returns the dispatcher's clock.
func (d *Dispatcher) Clock() *Clock {
	return d.clock
}

// runState is what one worker carries from task to task: its run ID, its
// translation memo and a lookup that follows the worker's current
// transaction.
type runState struct {
	runID  string
	lookup *boundLookup
	helper *translation.Helper

	// lastSync maps connector|entity to the last seq of the batch that
	// matched the connector with SyncSnapshot. Nil outside batches.
	lastSync map[string]int64
}

func (d *Dispatcher) newRunState(runID string, lastSync map[string]int64) *runState {
	lookup := &boundLookup{s: d.store}
	return &runState{
		runID:    runID,
		lookup:   lookup,
		helper:   translation.NewHelper(lookup, d.types, d.logger),
		lastSync: lastSync,
	}
}

// boundLookup points the translation helper at whichever store the
// current task writes through.
type boundLookup struct {
	s *store.Store
}

func (b *boundLookup) FindObject(ctx context.Context, q translation.Query) (ir.ID, error) {
	return b.s.FindObject(ctx, q)
}

func (b *boundLookup) FindSite(ctx context.Context, siteName string) (ir.ID, error) {
	return b.s.FindSite(ctx, siteName)
}

// Enqueue submits a task to the Run loop. Returns false once the
// dispatcher is stopped.
func (d *Dispatcher) Enqueue(t ir.Task) bool {
	return d.queue.Enqueue(t)
}

// Run processes enqueued tasks in FIFO order until ctx is cancelled or
// Stop is called. A failed task is logged and the loop moves on.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher starting")

	for {
		task, ok := d.queue.TryDequeue()
		if ok {
			res, err := d.Process(ctx, &task)
			if err != nil {
				if IsCancelled(err) {
					d.logger.Info("dispatcher stopping: task cancelled", "seq", res.Seq)
					d.queue.Close()
					return ctx.Err()
				}
				// Failures are already logged and recorded; a retry would
				// reorder the entity's log.
			}
			continue
		}

		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping: context cancelled")
			d.queue.Close()
			return ctx.Err()

		case <-d.queue.Wait():
			if d.queue.Len() == 0 {
				d.logger.Info("dispatcher stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue; Run returns once it is drained.
func (d *Dispatcher) Stop() {
	d.queue.Close()
}

// Process applies and delivers one task. Failures are returned as
// *RuntimeError, cancellation as an error satisfying IsCancelled. The
// outcome is recorded in the task log either way.
func (d *Dispatcher) Process(ctx context.Context, task *ir.Task) (TaskResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loop == nil {
		d.loop = d.newRunState(d.runIDs.Generate(), nil)
	}
	return d.process(ctx, d.loop, d.stamp(task))
}

// stamp copies the task and gives it a seq if it has none.
func (d *Dispatcher) stamp(task *ir.Task) *ir.Task {
	t := *task
	if t.Seq <= 0 {
		t.Seq = d.clock.Next()
	} else {
		d.clock.Observe(t.Seq)
	}
	return &t
}

func (d *Dispatcher) process(ctx context.Context, rs *runState, t *ir.Task) (TaskResult, error) {
	start := time.Now()
	res := TaskResult{
		Seq:       t.Seq,
		TaskType:  t.Type,
		EntityKey: t.EntityKey(),
		Status:    StatusApplied,
	}

	var err error
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else {
		matches := d.registry.Match(t)
		res.Queued, err = d.applyLocal(ctx, rs, t, matches)
		if err == nil {
			res.Delivered, err = d.deliver(ctx, rs, t, matches)
		}
	}
	err = classify(t, err)

	switch {
	case err == nil:
		d.logger.Debug("task applied",
			"seq", t.Seq,
			"type", t.Type,
			"entity", res.EntityKey,
			"queued", res.Queued,
			"delivered", res.Delivered)
	case IsCancelled(err):
		res.Status = StatusCancelled
		res.Reason = err.Error()
		d.logger.Info("task cancelled", "seq", t.Seq, "type", t.Type, "entity", res.EntityKey)
	default:
		res.Status = StatusFailed
		res.Reason = err.Error()
		d.logger.Error("task failed",
			"seq", t.Seq,
			"type", t.Type,
			"entity", res.EntityKey,
			"error", err)
	}

	d.writeLog(ctx, rs, t, res)
	d.metrics.recordTask(t.Type.String(), string(res.Status), time.Since(start))
	return res, err
}

// applyLocal runs the task's local changes and its asynchronous queue
// writes in one transaction. Failures roll back; cancellation commits
// what was done so far and is still reported.
func (d *Dispatcher) applyLocal(ctx context.Context, rs *runState, t *ir.Task, matches []subscription.Match) (int, error) {
	if err := rs.helper.LoadRecords(t.Payload); err != nil {
		return 0, NewInvalidPayloadError("%v", err)
	}

	tx, err := d.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	rs.lookup.s = tx.Store
	defer func() { rs.lookup.s = d.store }()

	a := &applier{
		st:      tx.Store,
		helper:  rs.helper,
		rec:     reconcile.New(tx.Store, rs.helper, d.logger),
		types:   d.types,
		logger:  d.logger,
		metrics: d.metrics,
	}
	err = a.apply(ctx, t)

	queued := 0
	if err == nil {
		queued, err = d.enqueueAsync(ctx, tx.Store, rs, t, matches)
	}

	if err != nil && !IsCancelled(err) {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Error("rollback failed", "seq", t.Seq, "error", rbErr)
		}
		rs.helper.Discard()
		return 0, err
	}
	if cErr := tx.Commit(); cErr != nil {
		rs.helper.Discard()
		return 0, cErr
	}
	rs.helper.Commit()
	return queued, err
}

// enqueueAsync writes one queue item per asynchronous match. Snapshot
// modes replace the connector's pending items for the same entity.
func (d *Dispatcher) enqueueAsync(ctx context.Context, st *store.Store, rs *runState, t *ir.Task, matches []subscription.Match) (int, error) {
	var (
		payload string
		hash    string
		queued  int
	)
	for _, m := range matches {
		if !m.ProcessType.IsAsync() {
			continue
		}
		if payload == "" {
			b, err := ir.MarshalCanonical(t.Payload)
			if err != nil {
				return queued, NewInvalidPayloadError("encode payload: %v", err)
			}
			payload = string(b)
			if hash, err = ir.TaskHash(t); err != nil {
				return queued, NewInvalidPayloadError("%v", err)
			}
		}

		superseded, err := st.Enqueue(ctx, store.QueueItem{
			Connector:   m.ConnectorName,
			ProcessType: m.ProcessType.String(),
			EntityKey:   t.EntityKey(),
			RunID:       rs.runID,
			TaskSeq:     t.Seq,
			TaskType:    t.Type.String(),
			TaskHash:    hash,
			Payload:     payload,
		}, m.ProcessType.IsSnapshot())
		if err != nil {
			return queued, err
		}
		queued++
		d.metrics.recordDelivery(m.ConnectorName, m.ProcessType.String(), "queued")
		d.metrics.recordSuperseded(m.ConnectorName, superseded)
		if superseded > 0 {
			d.logger.Debug("queued deliveries superseded",
				"connector", m.ConnectorName,
				"entity", t.EntityKey(),
				"count", superseded)
		}
	}
	return queued, nil
}

func syncKey(connector, entity string) string {
	return connector + "|" + entity
}

// deliver hands the committed task to every synchronous match. Inside a
// batch, SyncSnapshot matches are delivered only for the entity's last
// task. Every connector is tried; failures are joined.
func (d *Dispatcher) deliver(ctx context.Context, rs *runState, t *ir.Task, matches []subscription.Match) (int, error) {
	var (
		errs      []error
		delivered int
	)
	for _, m := range matches {
		if m.ProcessType.IsAsync() {
			continue
		}
		pt := m.ProcessType.String()
		if m.ProcessType == ir.ProcessSyncSnapshot && rs.lastSync != nil {
			if last, ok := rs.lastSync[syncKey(m.ConnectorName, t.EntityKey())]; ok && last != t.Seq {
				d.metrics.recordDelivery(m.ConnectorName, pt, "collapsed")
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		conn, ok := d.connectors[m.ConnectorName]
		if !ok {
			errs = append(errs, fmt.Errorf("connector %q is not registered", m.ConnectorName))
			continue
		}
		if err := conn.ProcessTask(ctx, t, m.ProcessType); err != nil {
			d.metrics.recordDelivery(m.ConnectorName, pt, "failed")
			errs = append(errs, fmt.Errorf("connector %s: %w", m.ConnectorName, err))
			continue
		}
		delivered++
		d.metrics.recordDelivery(m.ConnectorName, pt, "delivered")
	}

	if len(errs) > 0 {
		return delivered, &RuntimeError{
			Code:    ErrCodeDeliveryFailed,
			Message: "synchronous delivery failed after the task was applied",
			Err:     errors.Join(errs...),
		}
	}
	return delivered, nil
}

// writeLog records the outcome outside the task transaction so that
// failures are logged too.
func (d *Dispatcher) writeLog(ctx context.Context, rs *runState, t *ir.Task, res TaskResult) {
	hash, err := ir.TaskHash(t)
	if err != nil {
		d.logger.Warn("hash task", "seq", t.Seq, "error", err)
	}
	entry := store.TaskLogEntry{
		RunID:     rs.runID,
		TaskSeq:   t.Seq,
		TaskType:  t.Type.String(),
		EntityKey: res.EntityKey,
		TaskHash:  hash,
		Status:    string(res.Status),
		Reason:    res.Reason,
	}
	if err := d.store.WriteTaskLog(context.WithoutCancel(ctx), entry); err != nil {
		d.logger.Error("write task log", "seq", t.Seq, "error", err)
	}
}
