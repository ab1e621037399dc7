package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/flood_monitor/internal/services/monitor"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify one reading and print the result as JSON",
	Long: `Classify a reading given either by the four value flags or as a JSON document.

Examples:
  flood-monitor classify --temperature 26 --humidity 92 --distance 2 --flow 21
  flood-monitor classify --json '{"temperature":20,"humidity":50,"distance_cm":15,"flow_rate_lpm":2}'
  echo '{"temperature":20,"humidity":50,"distance_cm":15,"flow_rate_lpm":2}' | flood-monitor classify`,
	Args: cobra.NoArgs,
	RunE: runClassify,
}

var valueFlags = map[alert.Field]string{
	alert.FieldTemperature: "temperature",
	alert.FieldHumidity:    "humidity",
	alert.FieldDistance:    "distance",
	alert.FieldFlowRate:    "flow",
}

func init() {
	f := classifyCmd.Flags()
	f.Float64("temperature", 0, "temperature in °C")
	f.Float64("humidity", 0, "relative humidity in %")
	f.Float64("distance", 0, "distance from sensor to water surface in cm")
	f.Float64("flow", 0, "water flow rate in L/min")
	f.String("json", "", `reading as JSON ("-" reads stdin)`)
}

type classifyResult struct {
	Reading           *messages.SensorReading `json:"reading"`
	Classification    alert.Classification    `json:"classification"`
	Title             string                  `json:"title"`
	StatusEmoji       string                  `json:"status_emoji"`
	Fields            []alert.FieldStatus     `json:"fields"`
	ThresholdWarnings []string                `json:"threshold_warnings,omitempty"`
}

func runClassify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	c := alert.NewClassifier(cfg.Thresholds)

	payload, err := classifyInput(cmd, os.Stdin)
	if err != nil {
		return err
	}
	res, err := classify(c, payload)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// classifyInput returns the JSON payload from --json, the value flags or stdin, in that order.
func classifyInput(cmd *cobra.Command, stdin io.Reader) ([]byte, error) {
	flags := cmd.Flags()
	if doc, _ := flags.GetString("json"); doc != "" {
		if doc == "-" {
			return io.ReadAll(stdin)
		}
		return []byte(doc), nil
	}

	var set, missing []string
	values := map[string]float64{}
	for _, f := range alert.Fields {
		name := valueFlags[f]
		if !flags.Changed(name) {
			missing = append(missing, "--"+name)
			continue
		}
		v, err := flags.GetFloat64(name)
		if err != nil {
			return nil, err
		}
		values[string(f)] = v
		set = append(set, name)
	}
	if len(set) == 0 {
		return io.ReadAll(stdin)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return json.Marshal(values)
}

func classify(c *alert.Classifier, payload []byte) (classifyResult, error) {
	r, err := monitor.DecodeReading(payload)
	if err != nil {
		return classifyResult{}, err
	}
	cl := c.Classify(r)
	fields := c.Statuses(r)
	if fields == nil {
		fields = []alert.FieldStatus{}
	}
	res := classifyResult{
		Reading:        r,
		Classification: cl,
		Title:          cl.Level.Title(),
		StatusEmoji:    cl.Level.Emoji(),
		Fields:         fields,
	}
	for _, inc := range c.Thresholds().Inconsistencies() {
		res.ThresholdWarnings = append(res.ThresholdWarnings, inc.String())
	}
	return res, nil
}
