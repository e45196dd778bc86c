package kb

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/signalsfoundry/rail-planner/core"
	"github.com/signalsfoundry/rail-planner/model"
	"gopkg.in/yaml.v3"
)

// FleetSummary reports what a fleet file contributed.
type FleetSummary struct {
	TrainIDs  []int
	Schedules int
}

type fleetFile struct {
	Trains    []model.Train         `json:"trains" yaml:"trains"`
	Schedules []model.TrainSchedule `json:"schedules" yaml:"schedules"`
}

// Load decodes trains and schedules from r into the KB. format is "json" or
// "yaml". Trains are added before schedules, so a file may list them in
// either order.
func (kb *KnowledgeBase) Load(r io.Reader, format string) (*FleetSummary, error) {
	if r == nil {
		return nil, fmt.Errorf("load fleet: reader is nil")
	}

	var payload fleetFile
	switch strings.ToLower(format) {
	case "json":
		if err := json.NewDecoder(r).Decode(&payload); err != nil {
			return nil, fmt.Errorf("load fleet: decode json: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&payload); err != nil {
			return nil, fmt.Errorf("load fleet: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("load fleet: unsupported format %q", format)
	}

	summary := &FleetSummary{TrainIDs: make([]int, 0, len(payload.Trains))}
	for _, t := range payload.Trains {
		if t.Status == "" {
			t.Status = model.StatusScheduled
		}
		if err := kb.AddTrain(t); err != nil {
			return nil, fmt.Errorf("load fleet: %w", err)
		}
		summary.TrainIDs = append(summary.TrainIDs, t.ID)
	}
	for _, s := range payload.Schedules {
		if err := kb.AddSchedule(s); err != nil {
			return nil, fmt.Errorf("load fleet: %w", err)
		}
		summary.Schedules++
	}
	return summary, nil
}

// LoadFile opens path and loads it, choosing the decoder by extension.
func (kb *KnowledgeBase) LoadFile(path string) (*FleetSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fleet file %q: %w", path, err)
	}
	defer f.Close()
	return kb.Load(f, core.FormatFromPath(path))
}

// SampleTrains is the four-train demonstration fleet used when no fleet file
// is configured.
func SampleTrains() []model.Train {
	return []model.Train{
		{ID: 1, Number: "EXP001", Type: model.TrainExpress, Priority: 9, Status: model.StatusRunning},
		{ID: 2, Number: "FRT205", Type: model.TrainFreight, Priority: 3, Status: model.StatusScheduled},
		{ID: 3, Number: "PSG112", Type: model.TrainPassenger, Priority: 6, Status: model.StatusRunning, Delay: 3},
		{ID: 4, Number: "LOC089", Type: model.TrainLocal, Priority: 4, Status: model.StatusDelayed, Delay: 12},
	}
}

// Seed adds trains, stopping at the first error.
func (kb *KnowledgeBase) Seed(trains []model.Train) error {
	for _, t := range trains {
		if err := kb.AddTrain(t); err != nil {
			return err
		}
	}
	return nil
}
