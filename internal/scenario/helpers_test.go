package scenario

import (
	"testing"

	"github.com/signalsfoundry/rail-planner/core"
	"github.com/signalsfoundry/rail-planner/model"
)

func sampleGraphForReroute(t *testing.T) *core.NetworkGraph {
	t.Helper()
	g, err := core.BuildGraph(
		[]model.Station{
			{ID: 1, Code: "CTR", PlatformCount: 6},
			{ID: 2, Code: "NTH", PlatformCount: 4},
			{ID: 3, Code: "STH", PlatformCount: 3},
		},
		[]model.Track{
			{ID: 1, FromStationID: 1, ToStationID: 2, Type: model.TrackDouble, DistanceKm: 15.5, MaxSpeedKmh: 120},
			{ID: 2, FromStationID: 1, ToStationID: 3, Type: model.TrackSingle, DistanceKm: 12.3, MaxSpeedKmh: 100},
		},
	)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	return g
}
