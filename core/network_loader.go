package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalsfoundry/rail-planner/model"
	"gopkg.in/yaml.v3"
)

// NetworkSummary is a small summary of what was loaded from a network file.
// It's mainly useful for logging from main().
type NetworkSummary struct {
	StationIDs []int
	TrackIDs   []int
}

// file shapes stay unexported so the on-disk format can evolve separately
// from model.
type networkFile struct {
	Stations []stationFile `json:"stations" yaml:"stations"`
	Tracks   []trackFile   `json:"tracks" yaml:"tracks"`
}

type stationFile struct {
	ID            int     `json:"id" yaml:"id"`
	Code          string  `json:"code" yaml:"code"`
	Name          string  `json:"name" yaml:"name"`
	Latitude      float64 `json:"latitude" yaml:"latitude"`
	Longitude     float64 `json:"longitude" yaml:"longitude"`
	PlatformCount *int    `json:"platform_count" yaml:"platform_count"` // optional; defaults to 1
}

type trackFile struct {
	ID          int     `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	From        int     `json:"from_station_id" yaml:"from_station_id"`
	To          int     `json:"to_station_id" yaml:"to_station_id"`
	Type        string  `json:"type" yaml:"type"`
	DistanceKm  float64 `json:"distance_km" yaml:"distance_km"`
	MaxSpeedKmh float64 `json:"max_speed_kmh" yaml:"max_speed_kmh"`
	IsJunction  bool    `json:"is_junction" yaml:"is_junction"`
}

// LoadNetwork decodes stations and tracks from r and builds the graph.
// format is "json" or "yaml"; anything else is an error.
func LoadNetwork(r io.Reader, format string, opts ...GraphOption) (*NetworkGraph, *NetworkSummary, error) {
	if r == nil {
		return nil, nil, fmt.Errorf("LoadNetwork: reader is nil")
	}

	var payload networkFile
	switch strings.ToLower(format) {
	case "json":
		if err := json.NewDecoder(r).Decode(&payload); err != nil {
			return nil, nil, fmt.Errorf("LoadNetwork: decode json: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&payload); err != nil {
			return nil, nil, fmt.Errorf("LoadNetwork: decode yaml: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("LoadNetwork: unsupported format %q", format)
	}

	summary := &NetworkSummary{
		StationIDs: make([]int, 0, len(payload.Stations)),
		TrackIDs:   make([]int, 0, len(payload.Tracks)),
	}

	stations := make([]model.Station, 0, len(payload.Stations))
	for _, s := range payload.Stations {
		platforms := 1
		if s.PlatformCount != nil && *s.PlatformCount > 0 {
			platforms = *s.PlatformCount
		}
		stations = append(stations, model.Station{
			ID:            s.ID,
			Code:          s.Code,
			Name:          s.Name,
			Latitude:      s.Latitude,
			Longitude:     s.Longitude,
			PlatformCount: platforms,
		})
		summary.StationIDs = append(summary.StationIDs, s.ID)
	}

	tracks := make([]model.Track, 0, len(payload.Tracks))
	for _, t := range payload.Tracks {
		tracks = append(tracks, model.Track{
			ID:            t.ID,
			Name:          t.Name,
			FromStationID: t.From,
			ToStationID:   t.To,
			Type:          trackTypeFromString(t.Type),
			DistanceKm:    t.DistanceKm,
			MaxSpeedKmh:   t.MaxSpeedKmh,
			IsJunction:    t.IsJunction,
		})
		summary.TrackIDs = append(summary.TrackIDs, t.ID)
	}

	g, err := BuildGraph(stations, tracks, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadNetwork: %w", err)
	}
	return g, summary, nil
}

// LoadNetworkFile opens path and loads it, choosing the decoder by file
// extension (.json, .yaml, .yml).
func LoadNetworkFile(path string, opts ...GraphOption) (*NetworkGraph, *NetworkSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open network file %q: %w", path, err)
	}
	defer f.Close()
	return LoadNetwork(f, FormatFromPath(path), opts...)
}

// FormatFromPath maps a file extension onto a decoder name. Unknown
// extensions default to yaml.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

// trackTypeFromString is tolerant: unknown or empty values map to single
// track, the most restrictive capacity.
func trackTypeFromString(s string) model.TrackType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "double":
		return model.TrackDouble
	case "multiple", "multi":
		return model.TrackMultiple
	default:
		return model.TrackSingle
	}
}
