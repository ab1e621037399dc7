package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
)

// APIDeps wires the HTTP routes. Querier and Hub are optional.
type APIDeps struct {
	State       *State
	Thresholds  alert.Thresholds
	Health      HealthDeps
	Querier     Querier
	Bucket      string
	Measurement string
	Gatherer    prometheus.Gatherer
	Hub         *Hub
	Logger      *zap.Logger
}

type statusResponse struct {
	Snapshot
	Title             string   `json:"title"`
	StatusEmoji       string   `json:"status_emoji"`
	ThresholdWarnings []string `json:"threshold_warnings"`
}

type recentResponse struct {
	Minutes  int                      `json:"minutes"`
	Count    int                      `json:"count"`
	Readings []messages.SensorReading `json:"readings"`
}

// NewHTTPMux returns the monitor HTTP routes.
func NewHTTPMux(d APIDeps) *http.ServeMux {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	warnings := make([]string, 0)
	for _, inc := range d.Thresholds.Inconsistencies() {
		warnings = append(warnings, inc.String())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", d.Health.serveHealth)
	mux.HandleFunc("/readyz", d.Health.serveReady)

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		snap := d.State.Latest()
		writeJSON(w, http.StatusOK, statusResponse{
			Snapshot:          snap,
			Title:             snap.Classification.Level.Title(),
			StatusEmoji:       snap.Classification.Level.Emoji(),
			ThresholdWarnings: warnings,
		})
	})

	mux.HandleFunc("/readings/recent", func(w http.ResponseWriter, r *http.Request) {
		if d.Querier == nil {
			w.Header().Set("X-Error", "history-disabled")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "history disabled"})
			return
		}
		p := parseRecent(r.URL.Query())
		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
		defer cancel()

		readings, err := QueryRecent(ctx, d.Querier, d.Bucket, d.Measurement, p)
		if err != nil {
			d.Logger.Warn("recent readings query failed", zap.Error(err))
			w.Header().Set("X-Error", "influx-query-error")
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, recentResponse{Minutes: p.Minutes, Count: len(readings), Readings: readings})
	})

	mux.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	if d.Hub != nil {
		mux.HandleFunc("/ws", d.Hub.HandleWS)
	}
	return mux
}
