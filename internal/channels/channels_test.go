package channels

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rgledhill/netwatch/internal/bus"
	"github.com/rgledhill/netwatch/internal/connection"
)

// mockWSServer upgrades connections and records every inbound frame.
type mockWSServer struct {
	*httptest.Server

	mu     sync.Mutex
	frames []string

	// push delivers outbound frames to the most recent connection.
	pushMu sync.Mutex
	conn   *websocket.Conn
}

func newMockWSServer(t *testing.T) *mockWSServer {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	s := &mockWSServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		s.pushMu.Lock()
		s.conn = conn
		s.pushMu.Unlock()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.frames = append(s.frames, string(msg))
			s.mu.Unlock()
		}
	}))
	return s
}

func (s *mockWSServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *mockWSServer) push(t *testing.T, frame string) {
	t.Helper()
	s.pushMu.Lock()
	conn := s.conn
	s.pushMu.Unlock()
	if conn == nil {
		t.Fatal("push before any client connected")
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("push failed: %v", err)
	}
}

func (s *mockWSServer) receivedFrame(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.frames {
		if strings.Contains(f, substr) {
			return true
		}
	}
	return false
}

func testConnConfig(url string) connection.Config {
	cfg := connection.DefaultConfig()
	cfg.URL = url
	cfg.AutoReconnect = false
	cfg.HeartbeatInterval = 0
	cfg.ConnectTimeout = 2 * time.Second
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
	}{
		{"ws://nms.local:8000/ws", "/topology/", "ws://nms.local:8000/ws/topology/"},
		{"ws://nms.local:8000/ws/", "/alerts/", "ws://nms.local:8000/ws/alerts/"},
		{"wss://nms.local/ws", "/metrics/", "wss://nms.local/ws/metrics/"},
		{"ws://nms.local/ws", "wss://other.host/feed/", "wss://other.host/feed/"},
		{"ws://nms.local/ws", "ws://other.host/feed/", "ws://other.host/feed/"},
	}
	for _, tt := range tests {
		if got := ResolveEndpoint(tt.base, tt.path); got != tt.want {
			t.Errorf("ResolveEndpoint(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
		}
	}
}

func TestTopology_NodeEventUpdatesDerivedState(t *testing.T) {
	server := newMockWSServer(t)
	defer server.Close()

	b := bus.New(nil)
	defer b.Close()
	nodeEvents := b.Subscribe(bus.TopicNodeStatus)

	adapter := NewTopology(testConnConfig(server.wsURL()), nil, b, nil)
	adapter.Start()
	defer adapter.Stop()

	waitFor(t, 2*time.Second, "connected", func() bool {
		return adapter.State() == connection.StateConnected
	})

	server.push(t, `{"type":"gns3_event","event_data":{"event_type":"node.started","data":{"node_id":"n1"}}}`)

	waitFor(t, 2*time.Second, "derived node state", func() bool {
		_, ok := adapter.Node("n1")
		return ok
	})

	st, _ := adapter.Node("n1")
	if st.Status != "started" {
		t.Errorf("node n1 status = %q, want started", st.Status)
	}
	if st.LastUpdate.IsZero() {
		t.Error("node n1 LastUpdate is zero")
	}

	select {
	case msg := <-nodeEvents:
		ev, ok := msg.(NodeStatusEvent)
		if !ok || ev.NodeID != "n1" || ev.Status != "started" {
			t.Errorf("bus delivered %v, want n1/started", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for node status event")
	}
}

func TestTopology_LastWriteWins(t *testing.T) {
	server := newMockWSServer(t)
	defer server.Close()

	b := bus.New(nil)
	defer b.Close()

	adapter := NewTopology(testConnConfig(server.wsURL()), nil, b, nil)
	adapter.Start()
	defer adapter.Stop()

	waitFor(t, 2*time.Second, "connected", func() bool {
		return adapter.State() == connection.StateConnected
	})

	server.push(t, `{"type":"gns3_event","event_data":{"event_type":"node.started","data":{"node_id":"n1"}}}`)
	server.push(t, `{"type":"gns3_event","event_data":{"event_type":"node.stopped","data":{"node_id":"n1"}}}`)

	waitFor(t, 2*time.Second, "second update", func() bool {
		st, ok := adapter.Node("n1")
		return ok && st.Status == "stopped"
	})

	if got := len(adapter.Nodes()); got != 1 {
		t.Errorf("node map size = %d, want 1 (updated in place)", got)
	}
}

func TestTopology_SubscribesOnConnect(t *testing.T) {
	server := newMockWSServer(t)
	defer server.Close()

	b := bus.New(nil)
	defer b.Close()

	adapter := NewTopology(testConnConfig(server.wsURL()), []string{"node.started", "node.stopped"}, b, nil)
	adapter.Start()
	defer adapter.Stop()

	waitFor(t, 2*time.Second, "subscribe frame", func() bool {
		return server.receivedFrame(`"type":"subscribe"`)
	})
	waitFor(t, 2*time.Second, "snapshot request", func() bool {
		return server.receivedFrame(`"type":"request_topology"`)
	})

	if !server.receivedFrame(`"node.started"`) {
		t.Error("subscribe frame missing configured event names")
	}
}

func TestTopology_UnknownDiscriminatorIgnored(t *testing.T) {
	server := newMockWSServer(t)
	defer server.Close()

	b := bus.New(nil)
	defer b.Close()

	adapter := NewTopology(testConnConfig(server.wsURL()), nil, b, nil)
	adapter.Start()
	defer adapter.Stop()

	waitFor(t, 2*time.Second, "connected", func() bool {
		return adapter.State() == connection.StateConnected
	})

	server.push(t, `{"type":"link.quality_report","link_id":"l9"}`)
	server.push(t, `{"type":"gns3_event","event_data":{"event_type":"node.started","data":{"node_id":"n1"}}}`)

	waitFor(t, 2*time.Second, "known event applied", func() bool {
		_, ok := adapter.Node("n1")
		return ok
	})

	if got := len(adapter.Nodes()); got != 1 {
		t.Errorf("node map size = %d, want 1; unknown types must not create entries", got)
	}
	if adapter.State() != connection.StateConnected {
		t.Errorf("state = %v after unknown discriminator, want connected", adapter.State())
	}
}

func TestMetrics_UpdatesMergePerDevice(t *testing.T) {
	server := newMockWSServer(t)
	defer server.Close()

	b := bus.New(nil)
	defer b.Close()

	adapter := NewMetrics(testConnConfig(server.wsURL()), nil, b, nil)
	adapter.Start()
	defer adapter.Stop()

	waitFor(t, 2*time.Second, "connected", func() bool {
		return adapter.State() == connection.StateConnected
	})

	server.push(t, `{"type":"metrics_update","device_id":"d1","metrics":{"cpu":0.72,"mem":0.41}}`)
	server.push(t, `{"type":"device_status_update","device_id":"d1","status":"degraded"}`)

	waitFor(t, 2*time.Second, "merged device state", func() bool {
		st, ok := adapter.Device("d1")
		return ok && st.Status == "degraded" && st.Metrics != nil
	})

	st, _ := adapter.Device("d1")
	if st.Metrics["cpu"] != 0.72 {
		t.Errorf("cpu = %v, want 0.72", st.Metrics["cpu"])
	}
	if st.Status != "degraded" {
		t.Errorf("status = %q, want degraded", st.Status)
	}
}

func TestMetrics_RequestsSnapshotOnConnect(t *testing.T) {
	server := newMockWSServer(t)
	defer server.Close()

	b := bus.New(nil)
	defer b.Close()

	adapter := NewMetrics(testConnConfig(server.wsURL()), []string{"d1", "d2"}, b, nil)
	adapter.Start()
	defer adapter.Stop()

	waitFor(t, 2*time.Second, "get_metrics frame", func() bool {
		return server.receivedFrame(`"type":"get_metrics"`)
	})
	if !server.receivedFrame(`"d2"`) {
		t.Error("get_metrics frame missing configured device ids")
	}
}

func TestAlerts_Lifecycle(t *testing.T) {
	server := newMockWSServer(t)
	defer server.Close()

	b := bus.New(nil)
	defer b.Close()
	alertEvents := b.Subscribe(bus.TopicAlert)

	adapter := NewAlerts(testConnConfig(server.wsURL()), b, nil)
	adapter.Start()
	defer adapter.Stop()

	waitFor(t, 2*time.Second, "get_alerts on connect", func() bool {
		return server.receivedFrame(`"type":"get_alerts"`)
	})

	server.push(t, `{"type":"new_alert","alert":{"id":"a1","severity":"critical","source":"ids","message":"port scan detected"}}`)

	waitFor(t, 2*time.Second, "alert recorded", func() bool {
		rec, ok := adapter.Alert("a1")
		return ok && rec.State == AlertStateActive
	})

	select {
	case msg := <-alertEvents:
		ev, ok := msg.(AlertEvent)
		if !ok || ev.Alert.ID != "a1" || ev.State != AlertStateActive {
			t.Errorf("bus delivered %v, want active a1", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for alert event")
	}

	server.push(t, `{"type":"alert_acknowledged","alert_id":"a1","comment":"triaged"}`)

	waitFor(t, 2*time.Second, "acknowledge applied", func() bool {
		rec, _ := adapter.Alert("a1")
		return rec.State == AlertStateAcknowledged
	})

	rec, _ := adapter.Alert("a1")
	if rec.Comment != "triaged" {
		t.Errorf("comment = %q, want triaged", rec.Comment)
	}
	if rec.Alert.Severity != "critical" {
		t.Error("acknowledge must not discard the original alert fields")
	}
	if got := len(adapter.Alerts()); got != 1 {
		t.Errorf("alert map size = %d, want 1 (records are never deleted)", got)
	}
}

func TestAlerts_ActiveAlertsSnapshot(t *testing.T) {
	server := newMockWSServer(t)
	defer server.Close()

	b := bus.New(nil)
	defer b.Close()

	adapter := NewAlerts(testConnConfig(server.wsURL()), b, nil)
	adapter.Start()
	defer adapter.Stop()

	waitFor(t, 2*time.Second, "connected", func() bool {
		return adapter.State() == connection.StateConnected
	})

	server.push(t, `{"type":"active_alerts","alerts":[{"id":"a1","severity":"high"},{"id":"a2","severity":"low"}]}`)

	waitFor(t, 2*time.Second, "snapshot applied", func() bool {
		return len(adapter.Alerts()) == 2
	})
}

func TestAlerts_Actions(t *testing.T) {
	server := newMockWSServer(t)
	defer server.Close()

	b := bus.New(nil)
	defer b.Close()

	adapter := NewAlerts(testConnConfig(server.wsURL()), b, nil)
	adapter.Start()
	defer adapter.Stop()

	waitFor(t, 2*time.Second, "connected", func() bool {
		return adapter.State() == connection.StateConnected
	})

	if err := adapter.Acknowledge("a7", "on it"); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if err := adapter.Dismiss("a8"); err != nil {
		t.Fatalf("Dismiss failed: %v", err)
	}

	waitFor(t, 2*time.Second, "acknowledge frame", func() bool {
		return server.receivedFrame(`"type":"acknowledge"`) && server.receivedFrame(`"alert_id":"a7"`)
	})
	waitFor(t, 2*time.Second, "dismiss frame", func() bool {
		return server.receivedFrame(`"type":"dismiss"`) && server.receivedFrame(`"alert_id":"a8"`)
	})
}
