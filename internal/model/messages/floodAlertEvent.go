package messages

import "time"

// FloodAlertEvent is published by the monitor every time a reading classifies above "normal".
type FloodAlertEvent struct {
	ID        string        `json:"id"`
	StationID string        `json:"station_id"`
	Level     string        `json:"level"` // caution | warning | critical
	Title     string        `json:"title"` // "WARNING ALERT"
	Message   string        `json:"message"`
	Color     string        `json:"color"`
	Reading   SensorReading `json:"reading"`
	Timestamp time.Time     `json:"timestamp"`
}
