// Package scenario runs what-if experiments: declarative modifications are
// applied to a frozen baseline fleet, the result is re-optimized, and the
// outcome is compared against a shared baseline optimization.
package scenario

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/signalsfoundry/rail-planner/internal/logging"
	"github.com/signalsfoundry/rail-planner/internal/observability"
	"github.com/signalsfoundry/rail-planner/model"
	"github.com/signalsfoundry/rail-planner/timectrl"
	"go.opentelemetry.io/otel/attribute"
)

// Optimizer is the subset of *optimizer.Optimizer the engine depends on.
type Optimizer interface {
	Optimize(ctx context.Context, trains []model.Train, schedules []model.TrainSchedule) model.OptimizationResult
}

// MetricsRecorder receives scenario counts. *observability.PlannerCollector
// satisfies it.
type MetricsRecorder interface {
	SetScenarioCount(n int)
	IncScenarioRuns()
}

// EngineOption customises Engine construction.
type EngineOption func(*Engine)

// WithClock sets the clock used to stamp CreatedAt.
func WithClock(c timectrl.Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

type entry struct {
	scenario *model.Scenario
	// seq breaks CreatedAt ties when listing.
	seq uint64
}

// Engine owns all scenarios and the cached baseline optimization.
type Engine struct {
	// mu guards scenarios, nextSeq and baseline. Runs hold it for the whole
	// optimize-and-store cycle so results for one scenario are never
	// interleaved.
	mu        sync.Mutex
	scenarios map[string]*entry
	nextSeq   uint64

	// baseline is computed lazily by the first run and reused by every
	// scenario until InvalidateBaseline is called.
	baseline *model.OptimizationResult

	optimizer Optimizer
	clock     timectrl.Clock
	log       logging.Logger
	metrics   MetricsRecorder
}

// NewEngine constructs an empty engine around opt.
func NewEngine(opt Optimizer, opts ...EngineOption) *Engine {
	e := &Engine{
		scenarios: make(map[string]*entry),
		optimizer: opt,
		clock:     timectrl.RealClock{},
		log:       logging.Noop(),
	}
	for _, o := range opts {
		if o != nil {
			o(e)
		}
	}
	return e
}

// CreateScenario stores a new scenario over a deep copy of baselineTrains and
// returns a copy of it.
func (e *Engine) CreateScenario(name, description string, baselineTrains []model.Train) *model.Scenario {
	trains := model.CloneTrains(baselineTrains)
	if trains == nil {
		trains = []model.Train{}
	}
	s := &model.Scenario{
		ID:             "scenario_" + uuid.NewString(),
		Name:           name,
		Description:    description,
		BaselineTrains: trains,
		Modifications:  []model.ScenarioModification{},
		CreatedAt:      e.clock.Now(),
	}

	e.mu.Lock()
	e.nextSeq++
	e.scenarios[s.ID] = &entry{scenario: s, seq: e.nextSeq}
	count := len(e.scenarios)
	out := s.Clone()
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SetScenarioCount(count)
	}
	e.log.Info(context.Background(), "scenario created",
		logging.ScenarioID(s.ID),
		logging.String("name", name),
		logging.Int("baseline_trains", len(trains)),
	)
	return out
}

// AddModification appends mod to the scenario under a fresh id and returns
// that id. It reports false when the scenario does not exist.
func (e *Engine) AddModification(scenarioID string, mod model.ScenarioModification) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.scenarios[scenarioID]
	if !ok {
		return "", false
	}
	added := model.CloneModifications([]model.ScenarioModification{mod})[0]
	added.ID = "mod_" + uuid.NewString()
	ent.scenario.Modifications = append(ent.scenario.Modifications, added)
	return added.ID, true
}

// RemoveModification drops the modification with modID. Removing an id that
// is not present still succeeds; only an unknown scenario reports false.
func (e *Engine) RemoveModification(scenarioID, modID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.scenarios[scenarioID]
	if !ok {
		return false
	}
	kept := ent.scenario.Modifications[:0]
	for _, m := range ent.scenario.Modifications {
		if m.ID != modID {
			kept = append(kept, m)
		}
	}
	ent.scenario.Modifications = kept
	return true
}

// RunScenario applies the scenario's modifications to a fresh copy of its
// baseline, optimizes the result and stores it on the scenario, replacing any
// earlier results. It reports false when the scenario does not exist.
func (e *Engine) RunScenario(ctx context.Context, scenarioID string) (*model.ScenarioResults, bool) {
	ctx, span := observability.StartSpan(ctx, "scenario.Run", "scenario", scenarioID)
	defer span.End()

	e.mu.Lock()
	ent, ok := e.scenarios[scenarioID]
	if !ok {
		e.mu.Unlock()
		return nil, false
	}
	s := ent.scenario

	modified := ApplyModifications(s.BaselineTrains, s.Modifications)
	result := e.optimizer.Optimize(ctx, modified, []model.TrainSchedule{})

	if e.baseline == nil {
		b := e.optimizer.Optimize(ctx, model.CloneTrains(s.BaselineTrains), []model.TrainSchedule{})
		e.baseline = &b
	}

	results := &model.ScenarioResults{
		OptimizationResult:     result,
		ImpactMetrics:          ComputeImpact(modified, s.BaselineTrains),
		ComparisonWithBaseline: CompareWithBaseline(result, *e.baseline),
	}
	s.Results = results
	out := results.Clone()
	// s is shared with AddModification; read nothing from it after unlock.
	modCount := len(s.Modifications)
	impact := results.ImpactMetrics
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Int("modifications", modCount),
		attribute.Int("affected_trains", impact.AffectedTrains),
	)
	if e.metrics != nil {
		e.metrics.IncScenarioRuns()
	}
	logging.FromContext(ctx, e.log).Info(ctx, "scenario run",
		logging.ScenarioID(scenarioID),
		logging.Int("total_delay_change", impact.TotalDelayChange),
		logging.Int("affected_trains", impact.AffectedTrains),
	)
	return out, true
}

// GetScenario returns a copy of the scenario.
func (e *Engine) GetScenario(id string) (*model.Scenario, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.scenarios[id]
	if !ok {
		return nil, false
	}
	return ent.scenario.Clone(), true
}

// DeleteScenario removes the scenario and reports whether it existed.
func (e *Engine) DeleteScenario(id string) bool {
	e.mu.Lock()
	_, ok := e.scenarios[id]
	delete(e.scenarios, id)
	count := len(e.scenarios)
	e.mu.Unlock()

	if ok && e.metrics != nil {
		e.metrics.SetScenarioCount(count)
	}
	return ok
}

// ListScenarios returns copies of every scenario, newest first.
func (e *Engine) ListScenarios() []*model.Scenario {
	e.mu.Lock()
	entries := make([]*entry, 0, len(e.scenarios))
	for _, ent := range e.scenarios {
		entries = append(entries, ent)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.scenario.CreatedAt.Equal(b.scenario.CreatedAt) {
			return a.scenario.CreatedAt.After(b.scenario.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]*model.Scenario, len(entries))
	for i, ent := range entries {
		out[i] = ent.scenario.Clone()
	}
	e.mu.Unlock()
	return out
}

// InvalidateBaseline drops the cached baseline optimization so the next run
// recomputes it. The cache assumes every scenario starts from an equivalent
// fleet; call this when that fleet changes.
func (e *Engine) InvalidateBaseline() {
	e.mu.Lock()
	e.baseline = nil
	e.mu.Unlock()
}

// Baseline returns the cached baseline optimization, if one has been
// computed.
func (e *Engine) Baseline() (model.OptimizationResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.baseline == nil {
		return model.OptimizationResult{}, false
	}
	b := *e.baseline
	b.Suggestions = append([]model.OptimizationSuggestion(nil), e.baseline.Suggestions...)
	return b, true
}
