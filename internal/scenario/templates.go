package scenario

import "github.com/signalsfoundry/rail-planner/model"

// ListScenarioTemplates returns the built-in template catalog. Each call
// returns fresh values the caller may modify.
func (e *Engine) ListScenarioTemplates() []model.ScenarioTemplate {
	return Templates()
}

// Templates is the built-in catalog: express delay, track block, priority
// override and added service.
func Templates() []model.ScenarioTemplate {
	return []model.ScenarioTemplate{
		{
			Name:        "Express Train Delay",
			Description: "Test impact of a 15-minute delay on the highest priority express train",
			Modifications: []model.ScenarioModification{{
				Type:        model.ModDelayTrain,
				TargetID:    1,
				Parameters:  map[string]any{ParamDelayMinutes: 15},
				Description: "Delay EXP001 by 15 minutes",
			}},
		},
		{
			Name:        "Track Maintenance Block",
			Description: "Simulate blocking Main Line North for 30 minutes",
			Modifications: []model.ScenarioModification{{
				Type:     model.ModBlockTrack,
				TargetID: 1,
				Parameters: map[string]any{
					ParamDuration:         30,
					ParamAffectedTrainIDs: []int{1, 3},
					ParamAdditionalDelay:  20,
				},
				Description: "Block Main Line North, affecting EXP001 and PSG112",
			}},
		},
		{
			Name:        "Emergency Priority Override",
			Description: "Boost local train priority to maximum for emergency transport",
			Modifications: []model.ScenarioModification{{
				Type:        model.ModChangePriority,
				TargetID:    4,
				Parameters:  map[string]any{ParamNewPriority: 10},
				Description: "Increase LOC089 priority to maximum (10)",
			}},
		},
		{
			Name:        "Additional Express Service",
			Description: "Add an extra express train during peak hours",
			Modifications: []model.ScenarioModification{{
				Type:     model.ModAddTrain,
				TargetID: 5,
				Parameters: map[string]any{
					ParamTrainNumber: "EXP003",
					ParamTrainType:   string(model.TrainExpress),
					ParamPriority:    8,
				},
				Description: "Add EXP003 express service",
			}},
		},
	}
}
