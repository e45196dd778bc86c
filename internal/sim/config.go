package sim

import (
	"math"
	"time"

	"github.com/signalsfoundry/rail-planner/model"
)

// Config holds the simulation constants. The zero value is not useful; start
// from DefaultConfig.
type Config struct {
	TickPeriod        time.Duration `yaml:"tick_period"`
	ConflictRetention time.Duration `yaml:"conflict_retention"`
	MaxEvents         int           `yaml:"max_events"`

	// ProximityThreshold and CriticalThreshold are progress-fraction
	// distances between two trains on the same track.
	ProximityThreshold float64 `yaml:"proximity_threshold"`
	CriticalThreshold  float64 `yaml:"critical_threshold"`

	// ProgressRate is the progress gained per tick at 100 km/h.
	ProgressRate float64 `yaml:"progress_rate"`
	// DelaySpeedPenalty is subtracted from a train's speed by DelayTrain.
	DelaySpeedPenalty float64 `yaml:"delay_speed_penalty"`

	// NextTrack maps a track to the one a train moves onto when it reaches
	// the end. Tracks not listed lead to DefaultNextTrack.
	NextTrack        map[int]int `yaml:"next_track"`
	DefaultNextTrack int         `yaml:"default_next_track"`

	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// DefaultConfig returns the standard constants for the sample network.
func DefaultConfig() Config {
	return Config{
		TickPeriod:         time.Second,
		ConflictRetention:  30 * time.Second,
		MaxEvents:          50,
		ProximityThreshold: 0.1,
		CriticalThreshold:  0.05,
		ProgressRate:       0.002,
		DelaySpeedPenalty:  20,
		NextTrack: map[int]int{
			1: 5,
			2: 1,
			3: 4,
			4: 2,
			5: 3,
		},
		DefaultNextTrack: 1,
		SubscriberBuffer: 8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickPeriod <= 0 {
		c.TickPeriod = d.TickPeriod
	}
	if c.ConflictRetention <= 0 {
		c.ConflictRetention = d.ConflictRetention
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	if c.ProximityThreshold <= 0 {
		c.ProximityThreshold = d.ProximityThreshold
	}
	if c.CriticalThreshold <= 0 {
		c.CriticalThreshold = d.CriticalThreshold
	}
	if c.ProgressRate <= 0 {
		c.ProgressRate = d.ProgressRate
	}
	if c.DelaySpeedPenalty < 0 {
		c.DelaySpeedPenalty = d.DelaySpeedPenalty
	}
	if c.NextTrack == nil {
		c.NextTrack = d.NextTrack
	}
	if c.DefaultNextTrack == 0 {
		c.DefaultNextTrack = d.DefaultNextTrack
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = d.SubscriberBuffer
	}
	return c
}

func (c Config) nextTrack(current int) int {
	if next, ok := c.NextTrack[current]; ok {
		return next
	}
	return c.DefaultNextTrack
}

// PositionSpec describes an initial train position with its arrival given
// relative to the engine's start time.
type PositionSpec struct {
	TrainID       int                  `yaml:"train_id"`
	TrainNumber   string               `yaml:"train_number"`
	TrackID       int                  `yaml:"track_id"`
	Progress      float64              `yaml:"progress"`
	Speed         float64              `yaml:"speed"`
	Status        model.PositionStatus `yaml:"status"`
	NextStationID int                  `yaml:"next_station_id"`
	ETAMinutes    int                  `yaml:"eta_minutes"`
}

// DefaultPositionSpecs is the sample fleet's live layout: two trains moving on
// tracks 1 and 2 and one stopped on track 3.
func DefaultPositionSpecs() []PositionSpec {
	return []PositionSpec{
		{TrainID: 1, TrainNumber: "EXP001", TrackID: 1, Progress: 0.3, Speed: 95, Status: model.PositionMoving, NextStationID: 2, ETAMinutes: 8},
		{TrainID: 3, TrainNumber: "PSG112", TrackID: 2, Progress: 0.6, Speed: 75, Status: model.PositionMoving, NextStationID: 3, ETAMinutes: 12},
		{TrainID: 4, TrainNumber: "LOC089", TrackID: 3, Progress: 0.1, Speed: 0, Status: model.PositionStopped, NextStationID: 4, ETAMinutes: 25},
	}
}

// PositionsFromSpecs resolves specs against now. Progress is clamped to
// [0, 1], so a moving train at 1 arrives on the first tick. Speed is floored
// at 0 and an empty status becomes moving.
func PositionsFromSpecs(specs []PositionSpec, now time.Time) []model.TrainPosition {
	out := make([]model.TrainPosition, 0, len(specs))
	for _, s := range specs {
		status := s.Status
		if status == "" {
			status = model.PositionMoving
		}
		out = append(out, model.TrainPosition{
			TrainID:          s.TrainID,
			TrainNumber:      s.TrainNumber,
			CurrentTrackID:   s.TrackID,
			Progress:         clampProgress(s.Progress),
			Speed:            max(0, s.Speed),
			Status:           status,
			NextStationID:    s.NextStationID,
			EstimatedArrival: now.Add(time.Duration(s.ETAMinutes) * time.Minute),
		})
	}
	return out
}

func clampProgress(p float64) float64 {
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
