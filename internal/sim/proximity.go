package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/rail-planner/model"
)

// DetectProximity returns a collision_risk event for every pair of trains on
// the same track whose progress differs by less than cfg.ProximityThreshold.
// Pairs closer than cfg.CriticalThreshold are critical, the rest high.
// Tracks are visited in order of first appearance in positions.
func DetectProximity(positions []model.TrainPosition, now time.Time, cfg Config) []model.ConflictEvent {
	var order []int
	byTrack := make(map[int][]model.TrainPosition)
	for _, p := range positions {
		if _, ok := byTrack[p.CurrentTrackID]; !ok {
			order = append(order, p.CurrentTrackID)
		}
		byTrack[p.CurrentTrackID] = append(byTrack[p.CurrentTrackID], p)
	}

	var events []model.ConflictEvent
	for _, track := range order {
		trains := byTrack[track]
		for i := 0; i < len(trains); i++ {
			for j := i + 1; j < len(trains); j++ {
				distance := math.Abs(trains[i].Progress - trains[j].Progress)
				if distance >= cfg.ProximityThreshold {
					continue
				}
				severity := model.SeverityHigh
				if distance < cfg.CriticalThreshold {
					severity = model.SeverityCritical
				}
				events = append(events, model.ConflictEvent{
					ID:        fmt.Sprintf("conflict_%d_%d_%s", trains[i].TrainID, trains[j].TrainID, uuid.NewString()),
					Type:      model.CollisionRisk,
					Location:  fmt.Sprintf("Track %d", track),
					TrainIDs:  []int{trains[i].TrainID, trains[j].TrainID},
					Severity:  severity,
					Timestamp: now,
				})
			}
		}
	}
	return events
}

// retainConflicts keeps events younger than retention.
func retainConflicts(events []model.ConflictEvent, now time.Time, retention time.Duration) []model.ConflictEvent {
	kept := make([]model.ConflictEvent, 0, len(events))
	for _, ev := range events {
		if now.Sub(ev.Timestamp) < retention {
			kept = append(kept, ev)
		}
	}
	return kept
}
