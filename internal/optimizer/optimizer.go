// Package optimizer turns detected schedule conflicts into ranked
// delay and reroute suggestions with impact estimates.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/rail-planner/core"
	"github.com/signalsfoundry/rail-planner/internal/conflicts"
	"github.com/signalsfoundry/rail-planner/internal/logging"
	"github.com/signalsfoundry/rail-planner/internal/observability"
	"github.com/signalsfoundry/rail-planner/model"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds the freight reroute check settings. The check asks the router
// for CheckFrom -> CheckTo and suggests a reroute when the resulting cost is
// below EfficiencyThreshold.
type Config struct {
	CheckFrom           int     `yaml:"check_from"`
	CheckTo             int     `yaml:"check_to"`
	EfficiencyThreshold float64 `yaml:"efficiency_threshold"`
}

// DefaultConfig returns the standard check of station 1 to station 3 with a
// 0.5 hour threshold.
func DefaultConfig() Config {
	return Config{
		CheckFrom:           1,
		CheckTo:             3,
		EfficiencyThreshold: 0.5,
	}
}

// MetricsRecorder receives optimizer observations. *observability.PlannerCollector
// satisfies it.
type MetricsRecorder interface {
	ObserveOptimization(d time.Duration, conflicts int, suggestions []model.OptimizationSuggestion)
	ObserveRoute(reachable bool)
}

// Option customises an Optimizer.
type Option func(*Optimizer)

// WithConfig overrides the reroute check settings.
func WithConfig(cfg Config) Option {
	return func(o *Optimizer) { o.cfg = cfg }
}

// WithLogger sets the logger used for run summaries.
func WithLogger(log logging.Logger) Option {
	return func(o *Optimizer) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Optimizer) { o.metrics = m }
}

// Optimizer is stateless over its inputs and safe for concurrent use. The
// graph is only read.
type Optimizer struct {
	graph   *core.NetworkGraph
	cfg     Config
	log     logging.Logger
	metrics MetricsRecorder
}

// New constructs an Optimizer. A nil graph disables the freight reroute check.
func New(graph *core.NetworkGraph, opts ...Option) *Optimizer {
	o := &Optimizer{
		graph: graph,
		cfg:   DefaultConfig(),
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Config returns the active reroute check settings.
func (o *Optimizer) Config() Config { return o.cfg }

// Optimize detects platform conflicts among trains and schedules and proposes
// a delay for the lower-priority train of each, plus a reroute for every
// freight train the checked route favours. trains and schedules are not
// modified.
func (o *Optimizer) Optimize(ctx context.Context, trains []model.Train, schedules []model.TrainSchedule) model.OptimizationResult {
	start := time.Now()
	id := "opt_" + uuid.NewString()

	ctx, span := observability.StartSpan(ctx, "optimizer.Optimize", "optimization", id,
		attribute.Int("trains", len(trains)),
		attribute.Int("schedules", len(schedules)),
	)
	defer span.End()

	byID := make(map[int]model.Train, len(trains))
	for _, t := range trains {
		if _, ok := byID[t.ID]; !ok {
			byID[t.ID] = t
		}
	}

	found := conflicts.Detect(trains, schedules)

	suggestions := []model.OptimizationSuggestion{}
	totalDelayReduction := 0
	resolved := 0

	for i, c := range found {
		t1, ok1 := byID[c.Train1ID]
		t2, ok2 := byID[c.Train2ID]
		if !ok1 || !ok2 {
			continue
		}
		target, _ := conflicts.LowerPriority(t1, t2)
		delay := OptimalDelay(c.Severity)

		suggestions = append(suggestions, model.OptimizationSuggestion{
			ID:          fmt.Sprintf("sug_%d", i+1),
			Type:        model.SuggestDelay,
			TrainID:     target.ID,
			Description: fmt.Sprintf("Delay %s by %d minutes to resolve %s conflict", target.Number, delay, c.Type),
			Impact: model.Impact{
				DelayChange:       delay,
				ConflictsResolved: 1,
				ThroughputGain:    ThroughputGain(c.Type, c.Severity),
			},
			Confidence: Confidence(c.Severity, target.Priority),
		})

		totalDelayReduction += max(0, target.Delay-delay)
		resolved++
	}

	suggestions = append(suggestions, o.rerouteSuggestions(trains)...)

	throughput := 0
	for _, s := range suggestions {
		throughput += s.Impact.ThroughputGain
	}

	elapsed := time.Since(start)
	result := model.OptimizationResult{
		OptimizationID:        id,
		ConflictsResolved:     resolved,
		TotalDelayReduction:   totalDelayReduction,
		ThroughputImprovement: throughput,
		Suggestions:           suggestions,
		ExecutionTimeMs:       float64(elapsed.Microseconds()) / 1000,
	}

	span.SetAttributes(
		attribute.Int("conflicts", len(found)),
		attribute.Int("suggestions", len(suggestions)),
	)
	if o.metrics != nil {
		o.metrics.ObserveOptimization(elapsed, len(found), suggestions)
	}
	o.log.Debug(ctx, "optimization complete",
		logging.OptimizationID(id),
		logging.Int("conflicts", len(found)),
		logging.Int("suggestions", len(suggestions)),
		logging.Elapsed(elapsed),
	)
	return result
}

func (o *Optimizer) rerouteSuggestions(trains []model.Train) []model.OptimizationSuggestion {
	if o.graph == nil {
		return nil
	}
	var out []model.OptimizationSuggestion
	for _, t := range trains {
		if t.Type != model.TrainFreight {
			continue
		}
		route := o.graph.FindRoute(o.cfg.CheckFrom, o.cfg.CheckTo, t.Priority)
		if o.metrics != nil {
			o.metrics.ObserveRoute(route.Reachable())
		}
		if !route.Reachable() || route.TotalCost >= o.cfg.EfficiencyThreshold {
			continue
		}
		out = append(out, model.OptimizationSuggestion{
			ID:          fmt.Sprintf("route_%d", t.ID),
			Type:        model.SuggestReroute,
			TrainID:     t.ID,
			Description: fmt.Sprintf("Reroute %s via alternative path to reduce congestion", t.Number),
			Impact: model.Impact{
				DelayChange:       -5,
				ConflictsResolved: 0,
				ThroughputGain:    8,
			},
			Confidence: 0.85,
		})
	}
	return out
}

// OptimalDelay maps a severity onto the suggested hold in minutes.
func OptimalDelay(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return 15
	case model.SeverityHigh:
		return 10
	case model.SeverityMedium:
		return 5
	case model.SeverityLow:
		return 3
	default:
		return 5
	}
}

// ThroughputGain estimates the percentage gain from resolving a conflict.
func ThroughputGain(kind model.ConflictType, s model.Severity) int {
	base := 5.0
	switch kind {
	case model.ConflictTrackCapacity:
		base = 12
	case model.ConflictPlatform:
		base = 8
	}
	multiplier := 1.0
	switch s {
	case model.SeverityCritical:
		multiplier = 2
	case model.SeverityHigh:
		multiplier = 1.5
	}
	return int(math.Round(base * multiplier))
}

// Confidence scores a delay suggestion for a train of the given priority.
// The result is always within [0.5, 0.95].
func Confidence(s model.Severity, priority int) float64 {
	// Hundredths keep the arithmetic exact.
	c := 70
	switch s {
	case model.SeverityCritical:
		c += 20
	case model.SeverityHigh:
		c += 10
	}
	if priority >= 8 {
		c -= 10
	} else if priority <= 3 {
		c += 10
	}
	c = min(95, max(50, c))
	return float64(c) / 100
}
