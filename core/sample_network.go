package core

import "github.com/signalsfoundry/rail-planner/model"

// SampleNetwork returns the five-station demonstration network: a central
// station with four spokes and one north-east link.
func SampleNetwork() ([]model.Station, []model.Track) {
	stations := []model.Station{
		{ID: 1, Code: "CTR", Name: "Central Station", PlatformCount: 6},
		{ID: 2, Code: "NTH", Name: "North Junction", PlatformCount: 4},
		{ID: 3, Code: "STH", Name: "South Terminal", PlatformCount: 3},
		{ID: 4, Code: "EST", Name: "East Station", PlatformCount: 2},
		{ID: 5, Code: "WST", Name: "West Hub", PlatformCount: 5},
	}
	tracks := []model.Track{
		{ID: 1, Name: "Main Line North", FromStationID: 1, ToStationID: 2, Type: model.TrackDouble, DistanceKm: 15.5, MaxSpeedKmh: 120},
		{ID: 2, Name: "Main Line South", FromStationID: 1, ToStationID: 3, Type: model.TrackSingle, DistanceKm: 12.3, MaxSpeedKmh: 100},
		{ID: 3, Name: "East Branch", FromStationID: 1, ToStationID: 4, Type: model.TrackSingle, DistanceKm: 8.7, MaxSpeedKmh: 80},
		{ID: 4, Name: "West Connector", FromStationID: 1, ToStationID: 5, Type: model.TrackDouble, DistanceKm: 11.2, MaxSpeedKmh: 110, IsJunction: true},
		{ID: 5, Name: "North-East Link", FromStationID: 2, ToStationID: 4, Type: model.TrackSingle, DistanceKm: 18.9, MaxSpeedKmh: 90, IsJunction: true},
	}
	return stations, tracks
}

// SampleGraph builds SampleNetwork. The sample is valid, so the only
// possible error comes from opts.
func SampleGraph(opts ...GraphOption) (*NetworkGraph, error) {
	stations, tracks := SampleNetwork()
	return BuildGraph(stations, tracks, opts...)
}
