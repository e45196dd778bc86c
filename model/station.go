package model

// Station is a stop on the rail network.
type Station struct {
	ID            int     `json:"id" yaml:"id"`
	Code          string  `json:"stationCode" yaml:"code"`
	Name          string  `json:"stationName" yaml:"name"`
	Latitude      float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude     float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	PlatformCount int     `json:"platformCount" yaml:"platform_count"`
}
