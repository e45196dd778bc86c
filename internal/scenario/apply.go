package scenario

import (
	"fmt"

	"github.com/signalsfoundry/rail-planner/model"
)

// Parameter keys understood by ApplyModifications.
const (
	ParamDelayMinutes     = "delayMinutes"
	ParamNewPriority      = "newPriority"
	ParamTrainNumber      = "trainNumber"
	ParamTrainType        = "trainType"
	ParamPriority         = "priority"
	ParamAffectedTrainIDs = "affectedTrainIds"
	ParamAdditionalDelay  = "additionalDelay"
	ParamDuration         = "duration"
)

const (
	defaultAddedPriority    = 5
	defaultBlockTrackDelay  = 15
	defaultAddedTrainPrefix = "NEW"
)

// ApplyModifications returns a new fleet with mods applied in order. The
// baseline slice is never modified. Unknown modification types and targets
// that are not in the working fleet are ignored. A priority parameter that is
// present counts even when it is 0; it is clamped to MinPriority.
func ApplyModifications(baseline []model.Train, mods []model.ScenarioModification) []model.Train {
	trains := model.CloneTrains(baseline)
	if trains == nil {
		trains = []model.Train{}
	}

	for _, mod := range mods {
		switch mod.Type {
		case model.ModDelayTrain:
			if t := findTrain(trains, mod.TargetID); t != nil {
				minutes, _ := intParam(mod.Parameters, ParamDelayMinutes)
				t.Delay = max(0, t.Delay+minutes)
				t.Status = model.StatusDelayed
			}

		case model.ModChangePriority:
			if t := findTrain(trains, mod.TargetID); t != nil {
				if p, ok := intParam(mod.Parameters, ParamNewPriority); ok {
					t.Priority = model.ClampPriority(p)
				}
			}

		case model.ModCancelTrain:
			kept := trains[:0]
			for _, t := range trains {
				if t.ID != mod.TargetID {
					kept = append(kept, t)
				}
			}
			trains = kept

		case model.ModAddTrain:
			number, ok := stringParam(mod.Parameters, ParamTrainNumber)
			if !ok {
				number = fmt.Sprintf("%s%d", defaultAddedTrainPrefix, mod.TargetID)
			}
			kind := model.TrainPassenger
			if v, ok := stringParam(mod.Parameters, ParamTrainType); ok {
				kind = model.TrainType(v)
			}
			priority := defaultAddedPriority
			if p, ok := intParam(mod.Parameters, ParamPriority); ok {
				priority = model.ClampPriority(p)
			}
			trains = append(trains, model.Train{
				ID:       mod.TargetID,
				Number:   number,
				Type:     kind,
				Priority: priority,
				Status:   model.StatusScheduled,
				Delay:    0,
			})

		case model.ModBlockTrack:
			affected := intSetParam(mod.Parameters, ParamAffectedTrainIDs)
			if len(affected) == 0 {
				continue
			}
			extra, ok := intParam(mod.Parameters, ParamAdditionalDelay)
			if !ok {
				extra = defaultBlockTrackDelay
			}
			for i := range trains {
				if _, hit := affected[trains[i].ID]; hit {
					trains[i].Delay = max(0, trains[i].Delay+extra)
					trains[i].Status = model.StatusDelayed
				}
			}
		}
	}
	return trains
}

func findTrain(trains []model.Train, id int) *model.Train {
	for i := range trains {
		if trains[i].ID == id {
			return &trains[i]
		}
	}
	return nil
}

// ComputeImpact compares a modified fleet with its baseline. ConflictsChange
// counts trains in delayed status, not recomputed conflicts. AffectedTrains
// only walks the modified fleet, so cancelled trains are not counted.
func ComputeImpact(modified, baseline []model.Train) model.ImpactMetrics {
	baseByID := make(map[int]model.Train, len(baseline))
	baseDelay, baseDelayed := 0, 0
	for _, t := range baseline {
		if _, ok := baseByID[t.ID]; !ok {
			baseByID[t.ID] = t
		}
		baseDelay += t.Delay
		if t.Status == model.StatusDelayed {
			baseDelayed++
		}
	}

	modDelay, modDelayed, affected := 0, 0, 0
	for _, t := range modified {
		modDelay += t.Delay
		if t.Status == model.StatusDelayed {
			modDelayed++
		}
		b, ok := baseByID[t.ID]
		if !ok || b.Delay != t.Delay || b.Status != t.Status {
			affected++
		}
	}

	return model.ImpactMetrics{
		TotalDelayChange: modDelay - baseDelay,
		ConflictsChange:  modDelayed - baseDelayed,
		ThroughputChange: len(modified) - len(baseline),
		AffectedTrains:   affected,
	}
}

// CompareWithBaseline reports how a scenario optimization differs from the
// baseline optimization.
func CompareWithBaseline(scenario, baseline model.OptimizationResult) model.BaselineComparison {
	return model.BaselineComparison{
		DelayImprovement:  baseline.TotalDelayReduction - scenario.TotalDelayReduction,
		ConflictReduction: scenario.ConflictsResolved - baseline.ConflictsResolved,
		ThroughputGain:    scenario.ThroughputImprovement - baseline.ThroughputImprovement,
	}
}
