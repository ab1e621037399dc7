package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
	"github.com/LeonardoBeccarini/flood_monitor/internal/services/monitor"
)

func newClassifyFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "classify"}
	f := cmd.Flags()
	f.Float64("temperature", 0, "")
	f.Float64("humidity", 0, "")
	f.Float64("distance", 0, "")
	f.Float64("flow", 0, "")
	f.String("json", "", "")
	if err := f.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestClassifyFromFlags(t *testing.T) {
	cmd := newClassifyFlags(t, "--temperature", "26", "--humidity", "92", "--distance", "2", "--flow", "21")
	payload, err := classifyInput(cmd, strings.NewReader(""))
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	res, err := classify(alert.NewClassifier(alert.DefaultThresholds()), payload)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Classification.Level != alert.LevelCritical || res.Title != "CRITICAL ALERT" || res.StatusEmoji != "🚨" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Fields) != 4 || len(res.ThresholdWarnings) != 1 {
		t.Fatalf("fields=%d warnings=%v", len(res.Fields), res.ThresholdWarnings)
	}
}

func TestClassifyPartialFlags(t *testing.T) {
	cmd := newClassifyFlags(t, "--temperature", "26", "--flow", "21")
	_, err := classifyInput(cmd, strings.NewReader(""))
	if err == nil || !strings.Contains(err.Error(), "--humidity, --distance") {
		t.Fatalf("expected missing flags error, got %v", err)
	}
}

func TestClassifyFromStdinAndJSON(t *testing.T) {
	c := alert.NewClassifier(alert.DefaultThresholds())

	stdin := bytes.NewBufferString(`{"temperature":30,"humidity":85,"distance_cm":15,"flow_rate_lpm":2}`)
	payload, err := classifyInput(newClassifyFlags(t), stdin)
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	res, err := classify(c, payload)
	if err != nil || res.Classification.Level != alert.LevelCaution {
		t.Fatalf("stdin: got %+v, %v", res.Classification, err)
	}

	payload, err = classifyInput(newClassifyFlags(t, "--json", "null"), strings.NewReader(""))
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	res, err = classify(c, payload)
	if err != nil || res.Classification.Message != alert.MsgNoData || res.Fields == nil || res.Reading != nil {
		t.Fatalf("null reading: got %+v, %v", res, err)
	}

	payload, _ = classifyInput(newClassifyFlags(t, "--json", `{"temperature":20}`), strings.NewReader(""))
	if _, err := classify(c, payload); !errors.Is(err, monitor.ErrIncompleteReading) {
		t.Fatalf("expected incomplete reading error, got %v", err)
	}
}
