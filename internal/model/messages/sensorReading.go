package messages

import "time"

// SensorReading is the snapshot a flood station publishes on the sensors feed.
// DistanceCM is the distance from the probe to the water surface: lower means higher water.
type SensorReading struct {
	StationID   string    `json:"station_id,omitempty"`
	Temperature float64   `json:"temperature"`   // °C
	Humidity    float64   `json:"humidity"`      // %
	DistanceCM  float64   `json:"distance_cm"`   // cm
	FlowRateLPM float64   `json:"flow_rate_lpm"` // L/min
	Timestamp   time.Time `json:"timestamp,omitempty"`
}
