package model

import "time"

// PositionStatus describes what a simulated train is doing.
type PositionStatus string

const (
	PositionMoving             PositionStatus = "moving"
	PositionStopped            PositionStatus = "stopped"
	PositionApproachingStation PositionStatus = "approaching_station"
)

// TrainPosition is a train's live location. Progress runs from 0 (track
// start) to 1 (track end). Speed is in km/h.
type TrainPosition struct {
	TrainID          int            `json:"trainId" yaml:"train_id"`
	TrainNumber      string         `json:"trainNumber" yaml:"train_number"`
	CurrentTrackID   int            `json:"currentTrackId" yaml:"current_track_id"`
	Progress         float64        `json:"progress" yaml:"progress"`
	Speed            float64        `json:"speed" yaml:"speed"`
	Status           PositionStatus `json:"status" yaml:"status"`
	NextStationID    int            `json:"nextStationId" yaml:"next_station_id"`
	EstimatedArrival time.Time      `json:"estimatedArrival" yaml:"-"`
}

// ConflictEventType is the kind of live conflict seen by the simulation.
type ConflictEventType string

const (
	CollisionRisk    ConflictEventType = "collision_risk"
	PlatformConflict ConflictEventType = "platform_conflict"
	SignalViolation  ConflictEventType = "signal_violation"
)

// ConflictEvent is a short-lived conflict observed during simulation.
type ConflictEvent struct {
	ID        string            `json:"id"`
	Type      ConflictEventType `json:"type"`
	Location  string            `json:"location"`
	TrainIDs  []int             `json:"trainIds"`
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
}

// SimulationEventType is the kind of entry in the simulation event log.
type SimulationEventType string

const (
	EventDeparture        SimulationEventType = "departure"
	EventArrival          SimulationEventType = "arrival"
	EventDelay            SimulationEventType = "delay"
	EventConflictResolved SimulationEventType = "conflict_resolved"
)

// SimulationEvent is one entry in the simulation event log. TrainID is 0 for
// system events.
type SimulationEvent struct {
	ID          string              `json:"id"`
	Type        SimulationEventType `json:"type"`
	TrainID     int                 `json:"trainId"`
	Location    string              `json:"location"`
	Timestamp   time.Time           `json:"timestamp"`
	Description string              `json:"description"`
}

// SimulationState is a point-in-time view of the live simulation. Events are
// ordered newest first.
type SimulationState struct {
	IsRunning      bool              `json:"isRunning"`
	CurrentTime    time.Time         `json:"currentTime"`
	TrainPositions []TrainPosition   `json:"trainPositions"`
	Conflicts      []ConflictEvent   `json:"conflicts"`
	Events         []SimulationEvent `json:"events"`
}

// Clone returns a deep copy of the state.
func (s SimulationState) Clone() SimulationState {
	out := s
	out.TrainPositions = make([]TrainPosition, len(s.TrainPositions))
	copy(out.TrainPositions, s.TrainPositions)
	out.Conflicts = make([]ConflictEvent, len(s.Conflicts))
	for i, c := range s.Conflicts {
		c.TrainIDs = append([]int(nil), c.TrainIDs...)
		out.Conflicts[i] = c
	}
	out.Events = make([]SimulationEvent, len(s.Events))
	copy(out.Events, s.Events)
	return out
}
