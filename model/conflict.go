package model

import "time"

// ConflictType identifies what resource two trains are contending for.
type ConflictType string

const (
	ConflictCrossing      ConflictType = "crossing"
	ConflictPlatform      ConflictType = "platform"
	ConflictTrackCapacity ConflictType = "track_capacity"
	ConflictTiming        ConflictType = "timing"
)

// Severity is an ordinal urgency classification.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ConflictStatus is owned by whoever manages the conflict lifecycle; the
// detector only ever creates active conflicts.
type ConflictStatus string

const (
	ConflictActive   ConflictStatus = "active"
	ConflictResolved ConflictStatus = "resolved"
	ConflictIgnored  ConflictStatus = "ignored"
)

// Conflict records two trains contending for the same resource.
type Conflict struct {
	ID                   int            `json:"id"`
	Train1ID             int            `json:"train1Id"`
	Train2ID             int            `json:"train2Id"`
	Type                 ConflictType   `json:"conflictType"`
	Location             string         `json:"conflictLocation"`
	Time                 time.Time      `json:"conflictTime"`
	Severity             Severity       `json:"severity"`
	Status               ConflictStatus `json:"status"`
	ResolutionSuggestion string         `json:"resolutionSuggestion,omitempty"`
}
