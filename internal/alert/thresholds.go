// Package alert classifies flood sensor readings into severity levels.
package alert

import "fmt"

// Field names a sensor channel, using the same keys as the JSON payload.
type Field string

const (
	FieldTemperature Field = "temperature"
	FieldHumidity    Field = "humidity"
	FieldDistance    Field = "distance_cm"
	FieldFlowRate    Field = "flow_rate_lpm"
)

// Fields lists the channels in display order.
var Fields = []Field{FieldTemperature, FieldHumidity, FieldDistance, FieldFlowRate}

// Inverted reports whether a lower value means higher risk.
func (f Field) Inverted() bool { return f == FieldDistance }

// Threshold is the two-tier cutoff of a single field.
type Threshold struct {
	Warning float64 `json:"warning" mapstructure:"warning"`
	Danger  float64 `json:"danger" mapstructure:"danger"`
}

// Thresholds is the per-field threshold table.
type Thresholds struct {
	Temperature Threshold `json:"temperature" mapstructure:"temperature"`
	Humidity    Threshold `json:"humidity" mapstructure:"humidity"`
	DistanceCM  Threshold `json:"distance_cm" mapstructure:"distance_cm"`
	FlowRateLPM Threshold `json:"flow_rate_lpm" mapstructure:"flow_rate_lpm"`
}

// DefaultThresholds returns the table the stations were calibrated with.
// Temperature danger sits below warning; see Inconsistencies.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Temperature: Threshold{Warning: 28, Danger: 25},
		Humidity:    Threshold{Warning: 80, Danger: 90},
		DistanceCM:  Threshold{Warning: 5, Danger: 3},
		FlowRateLPM: Threshold{Warning: 5, Danger: 20},
	}
}

// For returns the threshold of f. Unknown fields get the zero Threshold.
func (t Thresholds) For(f Field) Threshold {
	switch f {
	case FieldTemperature:
		return t.Temperature
	case FieldHumidity:
		return t.Humidity
	case FieldDistance:
		return t.DistanceCM
	case FieldFlowRate:
		return t.FlowRateLPM
	}
	return Threshold{}
}

// Inconsistency describes a field whose danger cutoff is less severe than its warning cutoff.
type Inconsistency struct {
	Field   Field   `json:"field"`
	Warning float64 `json:"warning"`
	Danger  float64 `json:"danger"`
}

func (i Inconsistency) String() string {
	if i.Field.Inverted() {
		return fmt.Sprintf("%s: danger %.4g is above warning %.4g", i.Field, i.Danger, i.Warning)
	}
	return fmt.Sprintf("%s: danger %.4g is below warning %.4g", i.Field, i.Danger, i.Warning)
}

// Inconsistencies lists fields where a value can be "danger" without being "warning".
// The table is still used as is; callers are expected to surface the list.
func (t Thresholds) Inconsistencies() []Inconsistency {
	var out []Inconsistency
	for _, f := range Fields {
		th := t.For(f)
		bad := th.Danger < th.Warning
		if f.Inverted() {
			bad = th.Danger > th.Warning
		}
		if bad {
			out = append(out, Inconsistency{Field: f, Warning: th.Warning, Danger: th.Danger})
		}
	}
	return out
}
