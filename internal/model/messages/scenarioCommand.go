package messages

import "time"

// ScenarioCommand switches the simulated weather of a station.
// A positive Duration reverts to the previous scenario once it elapses.
type ScenarioCommand struct {
	StationID string        `json:"station_id,omitempty"`
	Scenario  string        `json:"scenario"`
	Duration  time.Duration `json:"duration,omitempty"`
	Timestamp time.Time     `json:"timestamp,omitempty"`
}
