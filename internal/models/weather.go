package models

import "time"

// Coordinate is a geographic position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// WeatherSnapshot is one reading from the rain endpoint. PrecipitationMM is never negative.
type WeatherSnapshot struct {
	Raining         bool    `json:"raining"`
	WeatherCode     string  `json:"weather_code"`
	PrecipitationMM float64 `json:"precipitation"`
}

// MonitorState is a copy of the monitor's internal state.
type MonitorState struct {
	IsMonitoring   bool             `json:"isMonitoring"`
	LastRainStatus bool             `json:"lastRainStatus"`
	LastSnapshot   *WeatherSnapshot `json:"lastSnapshot,omitempty"`
	LastLocation   *Coordinate      `json:"lastLocation,omitempty"`
}

// WeatherUpdate is published after every successful cycle.
type WeatherUpdate struct {
	Snapshot  WeatherSnapshot `json:"snapshot"`
	Location  Coordinate      `json:"location"`
	Timestamp time.Time       `json:"timestamp"`
}

// RainAlert is published on a transition into the raining state.
type RainAlert struct {
	ID              string     `json:"id"`
	PrecipitationMM float64    `json:"precipitation"`
	WeatherCode     string     `json:"weatherCode"`
	Location        Coordinate `json:"location"`
	Timestamp       time.Time  `json:"timestamp"`
}
