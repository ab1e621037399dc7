package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
)

func readSnapshot(ctx context.Context, t *testing.T, c *websocket.Conn) wsMessage {
	t.Helper()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("ws decode: %v", err)
	}
	return msg
}

func TestHubPushesSnapshots(t *testing.T) {
	svc, err := NewService(Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	hub := NewHub(svc.State().Latest, nil)
	svc.broadcaster = hub

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHTTPMux(APIDeps{State: svc.State(), Hub: hub}))
	defer srv.Close()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	first := readSnapshot(ctx, t, conn)
	if first.Type != "snapshot" || first.Snapshot.Sequence != 0 || first.Snapshot.Classification.Message != alert.MsgNoData {
		t.Fatalf("unexpected initial message %+v", first)
	}

	for hub.Clients() == 0 {
		select {
		case <-ctx.Done():
			t.Fatalf("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := svc.Ingest(ctx, []byte(`{"temperature":26,"humidity":92,"distance_cm":2,"flow_rate_lpm":21}`)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	next := readSnapshot(ctx, t, conn)
	if next.Snapshot.Sequence != 1 || next.Snapshot.Classification.Level != alert.LevelCritical {
		t.Fatalf("unexpected pushed snapshot %+v", next.Snapshot)
	}
}

func TestHubForgetsClientsThatLeaveImmediately(t *testing.T) {
	hub := NewHub(func() Snapshot { return Snapshot{} }, nil)
	var handlers sync.WaitGroup
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.Add(1)
		defer handlers.Done()
		hub.HandleWS(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	for i := 0; i < 10; i++ {
		conn, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}

	done := make(chan struct{})
	go func() {
		handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatalf("handlers did not return after clients left")
	}
	if n := hub.Clients(); n != 0 {
		t.Fatalf("expected no registered clients, got %d", n)
	}
	hub.Broadcast(Snapshot{Sequence: 1})
}

func TestHubShutdownDropsClients(t *testing.T) {
	hub := NewHub(func() Snapshot { return Snapshot{} }, nil)
	runCtx, stop := context.WithCancel(context.Background())
	ran := make(chan struct{})
	go func() {
		hub.Run(runCtx)
		close(ran)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	readSnapshot(ctx, t, conn)
	if hub.Clients() != 1 {
		t.Fatalf("expected one client, got %d", hub.Clients())
	}

	stop()
	<-ran
	if hub.Clients() != 0 {
		t.Fatalf("shutdown left %d clients", hub.Clients())
	}
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatalf("connection should be closed after shutdown")
	}
}
