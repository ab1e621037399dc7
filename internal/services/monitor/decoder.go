package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
)

// ErrIncompleteReading is returned when a payload lacks one of the four sensor fields
// or carries a non-numeric value for it.
var ErrIncompleteReading = errors.New("incomplete sensor reading")

// DecodeReading parses a sensors-feed payload.
// An empty payload or JSON null is an absent reading: (nil, nil).
// Numbers may also arrive as numeric strings, as some station firmwares send them.
func DecodeReading(payload []byte) (*messages.SensorReading, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decode reading: %w", err)
	}

	r := &messages.SensorReading{}
	var missing, invalid []string
	for _, f := range alert.Fields {
		v, ok := raw[string(f)]
		if !ok || isNull(v) {
			missing = append(missing, string(f))
			continue
		}
		n, err := parseNumber(v)
		if err != nil {
			invalid = append(invalid, string(f))
			continue
		}
		setField(r, f, n)
	}
	if len(missing) > 0 || len(invalid) > 0 {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing "+strings.Join(missing, ","))
		}
		if len(invalid) > 0 {
			parts = append(parts, "non-numeric "+strings.Join(invalid, ","))
		}
		return nil, fmt.Errorf("%w: %s", ErrIncompleteReading, strings.Join(parts, "; "))
	}

	if v, ok := raw["station_id"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &r.StationID); err != nil {
			return nil, fmt.Errorf("decode station_id: %w", err)
		}
	}
	if v, ok := raw["timestamp"]; ok && !isNull(v) {
		var ts time.Time
		if err := json.Unmarshal(v, &ts); err != nil {
			return nil, fmt.Errorf("decode timestamp: %w", err)
		}
		r.Timestamp = ts
	}
	return r, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func parseNumber(v json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", ".")), 64)
	if err != nil {
		return 0, err
	}
	// JSON cannot carry NaN or ±Inf back out.
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return f, nil
}

func setField(r *messages.SensorReading, f alert.Field, v float64) {
	switch f {
	case alert.FieldTemperature:
		r.Temperature = v
	case alert.FieldHumidity:
		r.Humidity = v
	case alert.FieldDistance:
		r.DistanceCM = v
	case alert.FieldFlowRate:
		r.FlowRateLPM = v
	}
}
