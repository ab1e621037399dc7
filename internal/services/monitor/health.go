package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name registered with the gRPC health service.
const ServiceName = "flood_monitor.Monitor"

// ConnChecker reports whether the broker connection is usable; mqtt.Client satisfies it.
type ConnChecker interface {
	IsConnectionOpen() bool
}

// HealthDeps are the dependencies probed by /healthz, /readyz and the gRPC health watcher.
// Writer is nil when history is disabled.
type HealthDeps struct {
	MQTT   ConnChecker
	Writer *Writer
	// RecentError is the window in which a write error marks the service degraded.
	RecentError time.Duration
}

func (d HealthDeps) mqttOK() bool { return d.MQTT != nil && d.MQTT.IsConnectionOpen() }

func (d HealthDeps) writeErrorRecent() bool {
	if d.Writer == nil {
		return false
	}
	window := d.RecentError
	if window <= 0 {
		window = 30 * time.Second
	}
	return d.Writer.LastErrorAge() <= window
}

// Ready is true when the broker is connected and history has not failed recently.
func (d HealthDeps) Ready() bool { return d.mqttOK() && !d.writeErrorRecent() }

type healthStatus struct {
	Status          string   `json:"status"`
	MQTTConnected   bool     `json:"mqtt_connected"`
	InfluxOK        bool     `json:"influx_ok"`
	LastWriteErrorS *float64 `json:"last_write_error_age_sec,omitempty"`
}

func (d HealthDeps) status() healthStatus {
	st := healthStatus{
		MQTTConnected: d.mqttOK(),
		InfluxOK:      !d.writeErrorRecent(),
	}
	if d.Writer != nil {
		age := d.Writer.LastErrorAge().Seconds()
		st.LastWriteErrorS = &age
	}
	switch {
	case st.MQTTConnected && st.InfluxOK:
		st.Status = "ok"
	case st.MQTTConnected || st.InfluxOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	return st
}

func (d HealthDeps) serveHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.status())
}

func (d HealthDeps) serveReady(w http.ResponseWriter, _ *http.Request) {
	ready := d.Ready()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, struct {
		Ready bool `json:"ready"`
	}{ready})
}

// WatchHealth mirrors probe into the gRPC health server every interval until ctx is done.
// On return both the overall and the named service are marked NOT_SERVING.
func WatchHealth(ctx context.Context, srv *health.Server, probe func() bool, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Second
	}
	set := func(s healthpb.HealthCheckResponse_ServingStatus) {
		srv.SetServingStatus("", s)
		srv.SetServingStatus(ServiceName, s)
	}
	update := func() {
		if probe() {
			set(healthpb.HealthCheckResponse_SERVING)
		} else {
			set(healthpb.HealthCheckResponse_NOT_SERVING)
		}
	}

	update()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			set(healthpb.HealthCheckResponse_NOT_SERVING)
			return
		case <-t.C:
			update()
		}
	}
}

// writeJSON encodes v before touching the response so an encode failure becomes a 500.
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encode response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(b, '\n'))
}
