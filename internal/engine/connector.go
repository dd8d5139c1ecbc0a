package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/stagesync/internal/ir"
)

// Connector receives tasks matched by its subscriptions. Only synchronous
// process types call ProcessTask; asynchronous ones go through the
// store's outbound queue.
type Connector interface {
	Name() string
	ProcessTask(ctx context.Context, task *ir.Task, pt ir.ProcessType) error
}

// LogConnector logs every delivery. It is the default sink for connectors
// declared in configuration without an implementation.
type LogConnector struct {
	name   string
	logger *slog.Logger
}

// NewLogConnector returns a connector that logs at Info. A nil logger
// uses slog.Default().
func NewLogConnector(name string, logger *slog.Logger) *LogConnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogConnector{name: name, logger: logger}
}

func (c *LogConnector) Name() string { return c.name }

func (c *LogConnector) ProcessTask(_ context.Context, task *ir.Task, pt ir.ProcessType) error {
	c.logger.Info("task delivered",
		"connector", c.name,
		"process_type", pt,
		"seq", task.Seq,
		"type", task.Type,
		"entity", task.EntityKey())
	return nil
}

// Delivery is one synchronous delivery seen by a RecordingConnector.
type Delivery struct {
	Connector   string         `json:"connector" yaml:"connector"`
	Seq         int64          `json:"seq" yaml:"seq"`
	TaskType    ir.TaskType    `json:"type" yaml:"type"`
	EntityKey   string         `json:"entity" yaml:"entity"`
	ProcessType ir.ProcessType `json:"process_type" yaml:"process_type"`
}

// RecordingConnector remembers its deliveries. Fail, when set, decides
// whether a delivery is rejected. Safe for concurrent use.
type RecordingConnector struct {
	name string
	Fail func(task *ir.Task) error

	mu         sync.Mutex
	deliveries []Delivery
}

// NewRecordingConnector returns an empty recording connector.
func NewRecordingConnector(name string) *RecordingConnector {
	return &RecordingConnector{name: name}
}

func (c *RecordingConnector) Name() string { return c.name }

func (c *RecordingConnector) ProcessTask(_ context.Context, task *ir.Task, pt ir.ProcessType) error {
	if c.Fail != nil {
		if err := c.Fail(task); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries = append(c.deliveries, Delivery{
		Connector:   c.name,
		Seq:         task.Seq,
		TaskType:    task.Type,
		EntityKey:   task.EntityKey(),
		ProcessType: pt,
	})
	return nil
}

// Deliveries returns a copy of the recorded deliveries in arrival order.
func (c *RecordingConnector) Deliveries() []Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Delivery, len(c.deliveries))
	copy(out, c.deliveries)
	return out
}
