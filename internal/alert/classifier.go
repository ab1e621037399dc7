package alert

import (
	"strings"

	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
)

// Level is the overall severity of a reading, ordered by increasing risk.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelCaution  Level = "caution"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Rank orders levels: normal=0 .. critical=3. Unknown levels rank as normal.
func (l Level) Rank() int {
	switch l {
	case LevelCaution:
		return 1
	case LevelWarning:
		return 2
	case LevelCritical:
		return 3
	}
	return 0
}

// Title is the banner headline, e.g. "CRITICAL ALERT".
func (l Level) Title() string { return strings.ToUpper(string(l)) + " ALERT" }

// Emoji is the status glyph shown next to the level.
func (l Level) Emoji() string {
	switch l {
	case LevelCritical:
		return "🚨"
	case LevelWarning, LevelCaution:
		return "⚠️"
	}
	return "✅"
}

// Color is a display color key consumed by dashboards.
type Color string

const (
	ColorGreen  Color = "#4CAF50"
	ColorOrange Color = "#FF9800"
	ColorRed    Color = "#F44336"
)

const (
	MsgNoData   = "No data available"
	MsgCritical = "CRITICAL ALERT: All parameters indicate severe flood risk!"
	MsgWarning  = "WARNING: Water levels and flow rate indicate high flood risk!"
	MsgCaution  = "CAUTION: Environmental conditions may lead to flooding!"
	MsgNormal   = "All parameters normal"
)

// Classification is the result of evaluating one reading.
type Classification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Color   Color  `json:"color"`
}

// Classifier evaluates readings against a fixed threshold table.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	thresholds Thresholds
}

func NewClassifier(t Thresholds) *Classifier { return &Classifier{thresholds: t} }

// Thresholds returns the table the classifier was built with.
func (c *Classifier) Thresholds() Thresholds { return c.thresholds }

// Classify maps a reading to a level. First match wins:
// all four fields in danger, then distance+flow in danger, then
// temperature+humidity past warning. A nil reading is "normal" with no data.
func (c *Classifier) Classify(r *messages.SensorReading) Classification {
	if r == nil {
		return Classification{Level: LevelNormal, Message: MsgNoData, Color: ColorGreen}
	}
	t := c.thresholds

	tempDanger := r.Temperature >= t.Temperature.Danger
	humidityDanger := r.Humidity >= t.Humidity.Danger
	distanceDanger := r.DistanceCM <= t.DistanceCM.Danger
	flowDanger := r.FlowRateLPM >= t.FlowRateLPM.Danger

	switch {
	case tempDanger && humidityDanger && distanceDanger && flowDanger:
		return Classification{Level: LevelCritical, Message: MsgCritical, Color: ColorRed}
	case distanceDanger && flowDanger:
		return Classification{Level: LevelWarning, Message: MsgWarning, Color: ColorOrange}
	case r.Temperature >= t.Temperature.Warning && r.Humidity >= t.Humidity.Warning:
		return Classification{Level: LevelCaution, Message: MsgCaution, Color: ColorOrange}
	}
	return Classification{Level: LevelNormal, Message: MsgNormal, Color: ColorGreen}
}

// StatusColor colors a single field value. Danger is checked before warning.
func (c *Classifier) StatusColor(f Field, v float64) Color {
	th := c.thresholds.For(f)
	if f.Inverted() {
		if v <= th.Danger {
			return ColorRed
		}
		if v <= th.Warning {
			return ColorOrange
		}
		return ColorGreen
	}
	if v >= th.Danger {
		return ColorRed
	}
	if v >= th.Warning {
		return ColorOrange
	}
	return ColorGreen
}

var defaultClassifier = NewClassifier(DefaultThresholds())

// Classify evaluates r against DefaultThresholds.
func Classify(r *messages.SensorReading) Classification { return defaultClassifier.Classify(r) }

// StatusColor colors v against DefaultThresholds.
func StatusColor(f Field, v float64) Color { return defaultClassifier.StatusColor(f, v) }
