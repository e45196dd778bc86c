package model

// TrackType classifies a track section by how many trains it can carry at once.
type TrackType string

const (
	TrackSingle   TrackType = "single"
	TrackDouble   TrackType = "double"
	TrackMultiple TrackType = "multiple"
)

// Capacity returns the number of capacity units the track type provides.
// Unknown types are treated as single track.
func (t TrackType) Capacity() int {
	switch t {
	case TrackDouble:
		return 4
	case TrackMultiple:
		return 6
	default:
		return 2
	}
}

// Track connects two stations. Both directions are traversable.
type Track struct {
	ID            int       `json:"id" yaml:"id"`
	Name          string    `json:"trackName" yaml:"name"`
	FromStationID int       `json:"fromStationId" yaml:"from_station_id"`
	ToStationID   int       `json:"toStationId" yaml:"to_station_id"`
	Type          TrackType `json:"trackType" yaml:"type"`
	DistanceKm    float64   `json:"distanceKm" yaml:"distance_km"`
	MaxSpeedKmh   float64   `json:"maxSpeedKmh" yaml:"max_speed_kmh"`
	IsJunction    bool      `json:"isJunction" yaml:"is_junction"`
}

// Weight is the travel time over the track in hours. A track without a
// positive speed limit has zero weight.
func (t Track) Weight() float64 {
	if t.MaxSpeedKmh <= 0 {
		return 0
	}
	return t.DistanceKm / t.MaxSpeedKmh
}
