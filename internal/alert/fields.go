package alert

import (
	"math"

	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
)

// FieldStatus is the card shown for one sensor channel.
type FieldStatus struct {
	Field    Field   `json:"field"`
	Title    string  `json:"title"`
	Unit     string  `json:"unit"`
	Emoji    string  `json:"emoji"`
	Value    float64 `json:"value"`
	Color    Color   `json:"color"`
	GaugePct float64 `json:"gauge_pct"`
}

type fieldMeta struct {
	title, unit, emoji string
}

var meta = map[Field]fieldMeta{
	FieldTemperature: {"Temperature", "°C", "🌡️"},
	FieldHumidity:    {"Humidity", "%", "💧"},
	FieldDistance:    {"Water Level", "cm", "📏"},
	FieldFlowRate:    {"Flow Rate", "L/min", "🌊"},
}

// Title returns the display name, e.g. "Water Level" for distance_cm.
func (f Field) Title() string { return meta[f].title }

// Unit returns the display unit.
func (f Field) Unit() string { return meta[f].unit }

// Emoji returns the card glyph; unknown fields get a generic chart.
func (f Field) Emoji() string {
	if m, ok := meta[f]; ok {
		return m.emoji
	}
	return "📊"
}

// Value extracts f from r.
func Value(r messages.SensorReading, f Field) float64 {
	switch f {
	case FieldTemperature:
		return r.Temperature
	case FieldHumidity:
		return r.Humidity
	case FieldDistance:
		return r.DistanceCM
	case FieldFlowRate:
		return r.FlowRateLPM
	}
	return 0
}

// GaugePercent is the fill of the card progress bar, in [0,100].
// Temperature spans 0..50°C, flow 0..25 L/min, distance is inverted over 0..30cm.
func GaugePercent(f Field, v float64) float64 {
	var pct float64
	switch f {
	case FieldHumidity:
		pct = v
	case FieldTemperature:
		pct = v / 50 * 100
	case FieldDistance:
		pct = 100 - v/30*100
	case FieldFlowRate:
		pct = v / 25 * 100
	}
	if math.IsNaN(pct) {
		return 0
	}
	return math.Max(0, math.Min(pct, 100))
}

// Statuses builds the four cards for r. A nil reading has no cards.
func (c *Classifier) Statuses(r *messages.SensorReading) []FieldStatus {
	if r == nil {
		return nil
	}
	out := make([]FieldStatus, 0, len(Fields))
	for _, f := range Fields {
		v := Value(*r, f)
		out = append(out, FieldStatus{
			Field:    f,
			Title:    f.Title(),
			Unit:     f.Unit(),
			Emoji:    f.Emoji(),
			Value:    v,
			Color:    c.StatusColor(f, v),
			GaugePct: GaugePercent(f, v),
		})
	}
	return out
}
