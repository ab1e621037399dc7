package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
)

// pointWriter is the part of api.WriteAPI the writer needs.
type pointWriter interface {
	WritePoint(point *write.Point)
	Errors() <-chan error
}

// Querier is the part of api.QueryAPI used for /readings/recent.
type Querier interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

// ReadingToPoint encodes a reading as one point tagged by station.
func ReadingToPoint(measurement string, r messages.SensorReading) *write.Point {
	tags := map[string]string{}
	if r.StationID != "" {
		tags["station_id"] = r.StationID
	}
	fields := make(map[string]interface{}, len(alert.Fields))
	for _, f := range alert.Fields {
		fields[string(f)] = alert.Value(r, f)
	}
	return influxdb2.NewPoint(measurement, tags, fields, r.Timestamp)
}

// Writer sends readings to the async Influx write API and remembers the last write error
// for /healthz and /readyz.
type Writer struct {
	api         pointWriter
	measurement string
	log         *zap.Logger

	mu      sync.RWMutex
	lastErr time.Time
	written int64
}

func NewWriter(w pointWriter, measurement string, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	if measurement == "" {
		measurement = "sensor_reading"
	}
	ww := &Writer{
		api:         w,
		measurement: measurement,
		log:         log,
		lastErr:     time.Now().Add(-24 * time.Hour),
	}
	go func() {
		for err := range w.Errors() {
			if err == nil {
				continue
			}
			ww.mu.Lock()
			ww.lastErr = time.Now()
			ww.mu.Unlock()
			log.Warn("influx write error", zap.Error(err))
		}
	}()
	return ww
}

// Write enqueues r. Zero timestamps are stamped with the current time.
func (w *Writer) Write(r messages.SensorReading) {
	if w == nil {
		return
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	w.api.WritePoint(ReadingToPoint(w.measurement, r))
	w.mu.Lock()
	w.written++
	w.mu.Unlock()
}

// Written reports how many points were enqueued.
func (w *Writer) Written() int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.written
}

// LastErrorAge is the time since the last asynchronous write error.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return time.Since(t)
}

type recentParams struct {
	Minutes   int
	Limit     int
	TimeoutMS int
}

func parseRecent(q map[string][]string) recentParams {
	get := func(k string, def, min, max int) int {
		vals := q[k]
		if len(vals) == 0 {
			return def
		}
		n, err := strconv.Atoi(strings.TrimSpace(vals[0]))
		if err != nil {
			return def
		}
		if n < min {
			return min
		}
		if max > 0 && n > max {
			return max
		}
		return n
	}
	return recentParams{
		Minutes:   get("minutes", 60, 1, 7*24*60),
		Limit:     get("limit", 50, 1, 1000),
		TimeoutMS: get("timeout_ms", 2000, 200, 5000),
	}
}

func buildRecentFlux(bucket, measurement string, minutes, limit int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, minutes, measurement, limit)
}

// QueryRecent returns the newest readings first.
func QueryRecent(ctx context.Context, q Querier, bucket, measurement string, p recentParams) ([]messages.SensorReading, error) {
	res, err := q.Query(ctx, buildRecentFlux(bucket, measurement, p.Minutes, p.Limit))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	out := make([]messages.SensorReading, 0, p.Limit)
	for res.Next() {
		rec := res.Record()
		r := messages.SensorReading{Timestamp: rec.Time().UTC()}
		for _, f := range alert.Fields {
			setField(&r, f, toFloat(rec.ValueByKey(string(f))))
		}
		if s, ok := rec.ValueByKey("station_id").(string); ok {
			r.StationID = s
		}
		out = append(out, r)
	}
	if err := res.Err(); err != nil {
		return out, fmt.Errorf("influx iterate: %w", err)
	}
	return out, nil
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	return 0
}
