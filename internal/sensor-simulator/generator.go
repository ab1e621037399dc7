package sensor_simulator

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
)

// Scenario names a weather pattern the generator drifts toward.
type Scenario string

const (
	ScenarioCalm   Scenario = "calm"
	ScenarioRising Scenario = "rising"
	ScenarioStorm  Scenario = "storm"
)

// pull is the share of the gap to the target closed at every step.
const pull = 0.35

type channel struct {
	noise    float64
	min, max float64
}

// order: temperature, humidity, distance_cm, flow_rate_lpm
var channels = [4]channel{
	{noise: 0.3, min: -20, max: 50},
	{noise: 1.0, min: 0, max: 100},
	{noise: 0.15, min: 0, max: 40},
	{noise: 0.5, min: 0, max: 60},
}

var targets = map[Scenario][4]float64{
	ScenarioCalm:   {18, 55, 20, 2},
	ScenarioRising: {20, 70, 2, 24},
	ScenarioStorm:  {27, 97, 1, 30},
}

// ParseScenario accepts a scenario name case-insensitively.
func ParseScenario(s string) (Scenario, error) {
	sc := Scenario(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := targets[sc]; !ok {
		return "", fmt.Errorf("unknown scenario %q (want calm, rising or storm)", s)
	}
	return sc, nil
}

// Generator produces readings for one station with a bounded random walk.
type Generator struct {
	mu       sync.Mutex
	station  string
	scenario Scenario
	values   [4]float64
	rng      *rand.Rand
	now      func() time.Time
}

// NewGenerator starts at the calm targets; seed 0 picks a time-based seed.
func NewGenerator(station string, scenario Scenario, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if _, ok := targets[scenario]; !ok {
		scenario = ScenarioCalm
	}
	return &Generator{
		station:  station,
		scenario: scenario,
		values:   targets[ScenarioCalm],
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
}

func (g *Generator) Scenario() Scenario {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scenario
}

// SetScenario switches the target and returns the previous scenario.
func (g *Generator) SetScenario(s Scenario) Scenario {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev := g.scenario
	g.scenario = s
	return prev
}

// Next advances the walk one step.
func (g *Generator) Next() messages.SensorReading {
	g.mu.Lock()
	defer g.mu.Unlock()

	target := targets[g.scenario]
	for i, ch := range channels {
		v := g.values[i] + (target[i]-g.values[i])*pull + g.rng.NormFloat64()*ch.noise
		g.values[i] = math.Max(ch.min, math.Min(v, ch.max))
	}
	return messages.SensorReading{
		StationID:   g.station,
		Temperature: round1(g.values[0]),
		Humidity:    round1(g.values[1]),
		DistanceCM:  round1(g.values[2]),
		FlowRateLPM: round1(g.values[3]),
		Timestamp:   g.now().UTC(),
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
