package monitor

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodeReadingAbsent(t *testing.T) {
	for _, in := range []string{"", "   ", "null", " null\n"} {
		r, err := DecodeReading([]byte(in))
		if err != nil || r != nil {
			t.Fatalf("%q: expected absent reading, got %+v, %v", in, r, err)
		}
	}
}

func TestDecodeReadingComplete(t *testing.T) {
	payload := `{"station_id":"river-north","temperature":21.5,"humidity":"64,5",` +
		`"distance_cm":12,"flow_rate_lpm":"3.2","timestamp":"2025-03-01T10:00:00Z","battery":88}`
	r, err := DecodeReading([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.StationID != "river-north" || r.Temperature != 21.5 || r.Humidity != 64.5 ||
		r.DistanceCM != 12 || r.FlowRateLPM != 3.2 {
		t.Fatalf("unexpected reading %+v", r)
	}
	if !r.Timestamp.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp: got %s", r.Timestamp)
	}
}

func TestDecodeReadingIncomplete(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    []string
	}{
		{"missing fields", `{"temperature":20,"humidity":50}`, []string{"missing distance_cm,flow_rate_lpm"}},
		{"null field", `{"temperature":20,"humidity":null,"distance_cm":4,"flow_rate_lpm":2}`, []string{"missing humidity"}},
		{"non numeric", `{"temperature":"hot","humidity":50,"distance_cm":true,"flow_rate_lpm":2}`, []string{"non-numeric temperature,distance_cm"}},
		{"both", `{"temperature":"x","humidity":50,"distance_cm":4}`, []string{"missing flow_rate_lpm", "non-numeric temperature"}},
		{"nan string", `{"temperature":"NaN","humidity":50,"distance_cm":15,"flow_rate_lpm":2}`, []string{"non-numeric temperature"}},
		{"infinite strings", `{"temperature":20,"humidity":"Inf","distance_cm":"-Inf","flow_rate_lpm":"+inf"}`, []string{"non-numeric humidity,distance_cm,flow_rate_lpm"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := DecodeReading([]byte(tc.payload))
			if !errors.Is(err, ErrIncompleteReading) {
				t.Fatalf("expected ErrIncompleteReading, got %v", err)
			}
			if r != nil {
				t.Fatalf("no reading expected on error, got %+v", r)
			}
			for _, w := range tc.want {
				if !strings.Contains(err.Error(), w) {
					t.Fatalf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestDecodeReadingMalformed(t *testing.T) {
	_, err := DecodeReading([]byte(`{"temperature":`))
	if err == nil || errors.Is(err, ErrIncompleteReading) {
		t.Fatalf("expected a plain decode error, got %v", err)
	}
	if _, err := DecodeReading([]byte(`[1,2,3]`)); err == nil {
		t.Fatalf("arrays are not readings")
	}
}
