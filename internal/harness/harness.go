package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/stagesync/internal/compiler"
	"github.com/roach88/stagesync/internal/engine"
	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/store"
	"github.com/roach88/stagesync/internal/testutil"
)

// DefaultRunID is the run ID of scenarios that do not set one.
const DefaultRunID = "scenario-run"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion holds.
	Pass bool `json:"pass"`

	Report engine.BatchReport `json:"report"`

	// Deliveries are the synchronous deliveries, grouped by connector
	// name and in arrival order within a connector.
	Deliveries []engine.Delivery `json:"deliveries"`

	// State is the target store after the batch.
	State store.State `json:"state"`

	Errors []string `json:"errors,omitempty"`
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Run executes a scenario in a fresh in-memory store.
//
// Execution flow:
//  1. Compile and validate the configuration
//  2. Seed the store
//  3. Apply the batch with recording connectors
//  4. Snapshot the store and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	cfg, err := compiler.CompileConfig(cuecontext.New().CompileString(scenario.Config, cue.Filename(scenario.Name+".cue")))
	if err != nil {
		return nil, fmt.Errorf("compile config: %w", err)
	}
	if errs := compiler.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errs[0])
	}
	registry, types, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build config: %w", err)
	}

	tasks, err := scenario.tasks()
	if err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := seed(ctx, st, scenario.Seed); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	recorders := make([]*engine.RecordingConnector, 0, len(registry.Connectors()))
	connectors := make([]engine.Connector, 0, len(registry.Connectors()))
	for _, name := range registry.Connectors() {
		rc := engine.NewRecordingConnector(name)
		rc.Fail = failFunc(name, scenario.Fail)
		recorders = append(recorders, rc)
		connectors = append(connectors, rc)
	}

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	d := engine.New(st, registry,
		engine.WithConnectors(connectors...),
		engine.WithObjectTypes(types),
		engine.WithMetrics(engine.NewMetrics()),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	report, err := d.RunBatch(ctx, tasks, engine.BatchOptions{Workers: scenario.Workers})
	if err != nil {
		return nil, fmt.Errorf("run batch: %w", err)
	}

	result := &Result{Pass: true, Report: report, Deliveries: []engine.Delivery{}}
	for _, rc := range recorders {
		result.Deliveries = append(result.Deliveries, rc.Deliveries()...)
	}
	if result.State, err = st.Snapshot(ctx); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func seed(ctx context.Context, st *store.Store, s Seed) error {
	sites := append([]string(nil), s.Sites...)
	sort.Strings(sites)
	for _, name := range sites {
		if _, _, err := st.UpsertSite(ctx, store.Site{GUID: testutil.GUID("site/" + name), Name: name}); err != nil {
			return err
		}
	}
	return nil
}

func failFunc(connector string, rules []FailRule) func(*ir.Task) error {
	seqs := make(map[int64]bool)
	for _, r := range rules {
		if r.Connector == connector {
			seqs[r.Seq] = true
		}
	}
	if len(seqs) == 0 {
		return nil
	}
	return func(t *ir.Task) error {
		if seqs[t.Seq] {
			return fmt.Errorf("%s rejected task %d", connector, t.Seq)
		}
		return nil
	}
}
