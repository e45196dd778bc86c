// Package conflicts finds trains whose schedules contend for the same
// platform and classifies how urgent each clash is.
package conflicts

import (
	"fmt"
	"strconv"
	"time"

	"github.com/signalsfoundry/rail-planner/model"
)

// UnassignedPlatform is the platform label used for schedules that do not
// name a platform. All such schedules at a station share one key.
const UnassignedPlatform = "unassigned"

type occupancy struct {
	trainID int
	start   time.Time
	end     time.Time
}

// Detect returns one platform conflict for every pair of schedules that
// share a (station, platform) key and whose [arrival, departure) intervals
// overlap. Schedules missing an arrival or a departure are ignored, as are
// pairs where either train is absent from trains. Conflict ids are
// sequential from 1 in emission order.
func Detect(trains []model.Train, schedules []model.TrainSchedule) []model.Conflict {
	byID := make(map[int]model.Train, len(trains))
	for _, t := range trains {
		if _, ok := byID[t.ID]; !ok {
			byID[t.ID] = t
		}
	}

	var keys []string
	groups := make(map[string][]occupancy)
	for _, s := range schedules {
		if s.ScheduledArrival == nil || s.ScheduledDeparture == nil {
			continue
		}
		key := PlatformKey(s)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], occupancy{
			trainID: s.TrainID,
			start:   *s.ScheduledArrival,
			end:     *s.ScheduledDeparture,
		})
	}

	conflicts := []model.Conflict{}
	for _, key := range keys {
		occ := groups[key]
		for i := 0; i < len(occ); i++ {
			for j := i + 1; j < len(occ); j++ {
				a, b := occ[i], occ[j]
				if !overlaps(a, b) {
					continue
				}
				t1, ok1 := byID[a.trainID]
				t2, ok2 := byID[b.trainID]
				if !ok1 || !ok2 {
					continue
				}
				at := a.start
				if b.start.Before(at) {
					at = b.start
				}
				conflicts = append(conflicts, model.Conflict{
					ID:                   len(conflicts) + 1,
					Train1ID:             a.trainID,
					Train2ID:             b.trainID,
					Type:                 model.ConflictPlatform,
					Location:             key,
					Time:                 at,
					Severity:             Severity(t1, t2),
					Status:               model.ConflictActive,
					ResolutionSuggestion: ResolutionSuggestion(t1, t2, model.ConflictPlatform),
				})
			}
		}
	}
	return conflicts
}

// PlatformKey is the "<station>-<platform>" label that groups schedules.
func PlatformKey(s model.TrainSchedule) string {
	platform := UnassignedPlatform
	if s.PlatformNumber != nil {
		platform = strconv.Itoa(*s.PlatformNumber)
	}
	return fmt.Sprintf("%d-%s", s.StationID, platform)
}

func overlaps(a, b occupancy) bool {
	return a.start.Before(b.end) && b.start.Before(a.end)
}

// Severity grades a conflict between two trains. The first matching rule
// wins: max priority >= 9 or combined delay > 15 is critical, >= 7 or > 10 is
// high, >= 5 or > 5 is medium, anything else is low.
func Severity(t1, t2 model.Train) model.Severity {
	maxPriority := max(t1.Priority, t2.Priority)
	totalDelay := t1.Delay + t2.Delay

	switch {
	case maxPriority >= 9 || totalDelay > 15:
		return model.SeverityCritical
	case maxPriority >= 7 || totalDelay > 10:
		return model.SeverityHigh
	case maxPriority >= 5 || totalDelay > 5:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// LowerPriority splits a pair into (lower, higher). On equal priority t2 is
// treated as the lower one.
func LowerPriority(t1, t2 model.Train) (lower, higher model.Train) {
	if t1.Priority < t2.Priority {
		return t1, t2
	}
	return t2, t1
}

// ResolutionSuggestion is the operator-facing remedy for a conflict of the
// given type between t1 and t2.
func ResolutionSuggestion(t1, t2 model.Train, kind model.ConflictType) string {
	lower, higher := LowerPriority(t1, t2)

	switch kind {
	case model.ConflictPlatform:
		return fmt.Sprintf("Delay %s by 5-10 minutes or reassign to alternative platform", lower.Number)
	case model.ConflictTrackCapacity:
		return fmt.Sprintf("Hold %s at previous station until %s clears the section", lower.Number, higher.Number)
	case model.ConflictCrossing:
		return fmt.Sprintf("Give precedence to %s at junction", higher.Number)
	default:
		return fmt.Sprintf("Prioritize %s over %s", higher.Number, lower.Number)
	}
}
