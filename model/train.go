package model

import "time"

// TrainType is the service class of a train.
type TrainType string

const (
	TrainExpress   TrainType = "express"
	TrainFreight   TrainType = "freight"
	TrainPassenger TrainType = "passenger"
	TrainLocal     TrainType = "local"
)

// TrainStatus is the operational status of a train.
type TrainStatus string

const (
	StatusScheduled TrainStatus = "scheduled"
	StatusRunning   TrainStatus = "running"
	StatusDelayed   TrainStatus = "delayed"
	StatusCancelled TrainStatus = "cancelled"
	StatusCompleted TrainStatus = "completed"
)

const (
	MinPriority = 1
	MaxPriority = 10
)

// Train is a single service. Priority ranges from 1 to 10, higher is more
// important. Delay is the cumulative delay in minutes.
type Train struct {
	ID              int         `json:"id" yaml:"id"`
	Number          string      `json:"trainNumber" yaml:"number"`
	Type            TrainType   `json:"trainType" yaml:"type"`
	Priority        int         `json:"priority" yaml:"priority"`
	Capacity        int         `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Status          TrainStatus `json:"currentStatus" yaml:"status"`
	CurrentLocation string      `json:"currentLocation,omitempty" yaml:"current_location,omitempty"`
	Delay           int         `json:"delay" yaml:"delay"`
}

// CloneTrains returns an independent copy of trains.
func CloneTrains(trains []Train) []Train {
	if trains == nil {
		return nil
	}
	out := make([]Train, len(trains))
	copy(out, trains)
	return out
}

// ClampPriority forces p into the valid priority range.
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// TrainSchedule is one stop (or pass) of a train at a station.
type TrainSchedule struct {
	ID                 int        `json:"id" yaml:"id"`
	TrainID            int        `json:"trainId" yaml:"train_id"`
	StationID          int        `json:"stationId" yaml:"station_id"`
	TrackID            int        `json:"trackId" yaml:"track_id"`
	ScheduledArrival   *time.Time `json:"scheduledArrival,omitempty" yaml:"scheduled_arrival,omitempty"`
	ScheduledDeparture *time.Time `json:"scheduledDeparture,omitempty" yaml:"scheduled_departure,omitempty"`
	ActualArrival      *time.Time `json:"actualArrival,omitempty" yaml:"actual_arrival,omitempty"`
	ActualDeparture    *time.Time `json:"actualDeparture,omitempty" yaml:"actual_departure,omitempty"`
	PlatformNumber     *int       `json:"platformNumber,omitempty" yaml:"platform_number,omitempty"`
	IsStop             bool       `json:"isStop" yaml:"is_stop"`
	SequenceOrder      int        `json:"sequenceOrder" yaml:"sequence_order"`
}

// Clone returns a copy of s that shares no pointers with it.
func (s TrainSchedule) Clone() TrainSchedule {
	s.ScheduledArrival = cloneTime(s.ScheduledArrival)
	s.ScheduledDeparture = cloneTime(s.ScheduledDeparture)
	s.ActualArrival = cloneTime(s.ActualArrival)
	s.ActualDeparture = cloneTime(s.ActualDeparture)
	if s.PlatformNumber != nil {
		p := *s.PlatformNumber
		s.PlatformNumber = &p
	}
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
