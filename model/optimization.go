package model

// SuggestionType is the kind of action an optimization suggestion proposes.
type SuggestionType string

const (
	SuggestDelay            SuggestionType = "delay"
	SuggestReroute          SuggestionType = "reroute"
	SuggestPlatformChange   SuggestionType = "platform_change"
	SuggestPriorityOverride SuggestionType = "priority_override"
)

// Impact estimates what applying a suggestion would change.
// DelayChange is in minutes and signed; ThroughputGain is a percentage.
type Impact struct {
	DelayChange       int `json:"delayChange"`
	ConflictsResolved int `json:"conflictsResolved"`
	ThroughputGain    int `json:"throughputGain"`
}

// OptimizationSuggestion is a single proposed action for one train.
type OptimizationSuggestion struct {
	ID          string         `json:"id"`
	Type        SuggestionType `json:"type"`
	TrainID     int            `json:"trainId"`
	Description string         `json:"description"`
	Impact      Impact         `json:"impact"`
	Confidence  float64        `json:"confidence"`
}

// OptimizationResult is the output of one optimizer run.
type OptimizationResult struct {
	OptimizationID        string                   `json:"optimizationId"`
	ConflictsResolved     int                      `json:"conflictsResolved"`
	TotalDelayReduction   int                      `json:"totalDelayReduction"`
	ThroughputImprovement int                      `json:"throughputImprovement"`
	Suggestions           []OptimizationSuggestion `json:"suggestions"`
	ExecutionTimeMs       float64                  `json:"executionTimeMs"`
}
