package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stagesync/internal/engine"
	"github.com/roach88/stagesync/internal/ir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is the CUE subscription configuration, inline.
	Config string `yaml:"config"`

	// RunID is the fixed run ID. Defaults to "scenario-run".
	RunID string `yaml:"run_id,omitempty"`

	// Workers is passed to RunBatch.
	Workers int `yaml:"workers,omitempty"`

	Seed Seed `yaml:"seed,omitempty"`

	// Fail lists synchronous deliveries the connectors reject.
	Fail []FailRule `yaml:"fail,omitempty"`

	Tasks []ir.BatchTask `yaml:"tasks"`

	Assertions []Assertion `yaml:"assertions"`
}

// Seed is target state created before the batch runs.
type Seed struct {
	Sites []string `yaml:"sites,omitempty"`
}

// FailRule makes Connector reject the task with sequence Seq.
type FailRule struct {
	Connector string `yaml:"connector"`
	Seq       int64  `yaml:"seq"`
}

// Assertion validates the batch outcome or the final state.
type Assertion struct {
	// Type is one of task_status, delivery_order, queue_count, final_state.
	Type string `yaml:"type"`

	// Seq and Status are used by task_status. Reason, when set, must be a
	// substring of the task's failure reason.
	Seq    int64  `yaml:"seq,omitempty"`
	Status string `yaml:"status,omitempty"`
	Reason string `yaml:"reason,omitempty"`

	// Connector is used by delivery_order and queue_count.
	Connector string `yaml:"connector,omitempty"`

	// Seqs is the exact synchronous delivery order (delivery_order).
	Seqs []int64 `yaml:"seqs,omitempty"`

	// Count is the number of pending queue items (queue_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect query the target store (final_state).
	// Expect is a subset match on the single matching row.
	Table  string                 `yaml:"table,omitempty"`
	Where  map[string]interface{} `yaml:"where,omitempty"`
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTaskStatus    = "task_status"
	AssertDeliveryOrder = "delivery_order"
	AssertQueueCount    = "queue_count"
	AssertFinalState    = "final_state"
)

var taskStatuses = []string{
	string(engine.StatusApplied),
	string(engine.StatusFailed),
	string(engine.StatusCancelled),
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// tasks converts the scenario's batch tasks.
func (s *Scenario) tasks() ([]ir.Task, error) {
	return ir.BatchFile{Tasks: s.Tasks}.ToTasks()
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Config == "" {
		return fmt.Errorf("config is required")
	}
	if len(s.Tasks) == 0 {
		return fmt.Errorf("tasks list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if _, err := s.tasks(); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}

	for i, rule := range s.Fail {
		if rule.Connector == "" || rule.Seq <= 0 {
			return fmt.Errorf("fail[%d]: connector and seq are required", i)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTaskStatus:
		if a.Seq <= 0 {
			return fmt.Errorf("assertions[%d]: seq is required for task_status", index)
		}
		if !slices.Contains(taskStatuses, a.Status) {
			return fmt.Errorf("assertions[%d]: status must be one of %v", index, taskStatuses)
		}
	case AssertDeliveryOrder:
		if a.Connector == "" {
			return fmt.Errorf("assertions[%d]: connector is required for delivery_order", index)
		}
	case AssertQueueCount:
		if a.Connector == "" {
			return fmt.Errorf("assertions[%d]: connector is required for queue_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for queue_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
