package model

import "time"

// ModificationType is the kind of what-if change applied to a baseline fleet.
type ModificationType string

const (
	ModDelayTrain     ModificationType = "delay_train"
	ModBlockTrack     ModificationType = "block_track"
	ModChangePriority ModificationType = "change_priority"
	ModAddTrain       ModificationType = "add_train"
	ModCancelTrain    ModificationType = "cancel_train"
)

// ScenarioModification is one declarative change. TargetID is a train id for
// every type except block_track, where it names the track.
type ScenarioModification struct {
	ID          string           `json:"id" yaml:"id,omitempty"`
	Type        ModificationType `json:"type" yaml:"type"`
	TargetID    int              `json:"targetId" yaml:"target_id"`
	Parameters  map[string]any   `json:"parameters" yaml:"parameters"`
	Description string           `json:"description" yaml:"description"`
}

// ImpactMetrics are deltas between the modified and baseline fleets.
type ImpactMetrics struct {
	TotalDelayChange int `json:"totalDelayChange"`
	ConflictsChange  int `json:"conflictsChange"`
	ThroughputChange int `json:"throughputChange"`
	AffectedTrains   int `json:"affectedTrains"`
}

// BaselineComparison are deltas between the scenario optimization and the
// baseline optimization.
type BaselineComparison struct {
	DelayImprovement  int `json:"delayImprovement"`
	ConflictReduction int `json:"conflictReduction"`
	ThroughputGain    int `json:"throughputGain"`
}

// ScenarioResults is the outcome of the most recent scenario run.
type ScenarioResults struct {
	OptimizationResult     OptimizationResult `json:"optimizationResult"`
	ImpactMetrics          ImpactMetrics      `json:"impactMetrics"`
	ComparisonWithBaseline BaselineComparison `json:"comparisonWithBaseline"`
}

// Scenario is a named what-if experiment over a frozen baseline fleet.
type Scenario struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	BaselineTrains []Train                `json:"baselineTrains"`
	Modifications  []ScenarioModification `json:"modifications"`
	Results        *ScenarioResults       `json:"results,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// ScenarioTemplate is a ready-made list of modifications.
type ScenarioTemplate struct {
	Name          string                 `json:"name" yaml:"name"`
	Description   string                 `json:"description" yaml:"description"`
	Modifications []ScenarioModification `json:"modifications" yaml:"modifications"`
}

// Clone returns a deep copy of the scenario. Parameter maps are copied one
// level deep; nested values are shared and must be treated as read-only.
func (s *Scenario) Clone() *Scenario {
	if s == nil {
		return nil
	}
	out := *s
	out.BaselineTrains = CloneTrains(s.BaselineTrains)
	out.Modifications = CloneModifications(s.Modifications)
	out.Results = s.Results.Clone()
	return &out
}

// Clone returns a copy of r that shares no slices with it.
func (r *ScenarioResults) Clone() *ScenarioResults {
	if r == nil {
		return nil
	}
	out := *r
	out.OptimizationResult.Suggestions = append([]OptimizationSuggestion(nil), r.OptimizationResult.Suggestions...)
	return &out
}

// CloneModifications copies mods and their parameter maps.
func CloneModifications(mods []ScenarioModification) []ScenarioModification {
	if mods == nil {
		return nil
	}
	out := make([]ScenarioModification, len(mods))
	for i, m := range mods {
		out[i] = m
		if m.Parameters != nil {
			params := make(map[string]any, len(m.Parameters))
			for k, v := range m.Parameters {
				params[k] = v
			}
			out[i].Parameters = params
		}
	}
	return out
}
