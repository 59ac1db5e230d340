package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rgledhill/netwatch/internal/connection"
)

// fakeSource is a canned StatsSource.
type fakeSource struct {
	name  string
	state connection.State
	stats connection.Stats
}

func (f fakeSource) Name() string            { return f.name }
func (f fakeSource) State() connection.State { return f.state }
func (f fakeSource) Stats() connection.Stats { return f.stats }

func TestConnectionCollector(t *testing.T) {
	topo := fakeSource{
		name:  "topology",
		state: connection.StateConnected,
		stats: connection.Stats{
			MessagesReceived:  42,
			MessagesSent:      7,
			ReconnectAttempts: 3,
			UptimeStartedAt:   time.Now().Add(-time.Minute),
			Errors: []connection.ErrorRecord{
				{Message: "read error"},
			},
		},
	}
	alerts := fakeSource{
		name:  "alerts",
		state: connection.StateDisconnected,
	}

	c := NewConnectionCollector(topo, alerts)

	expected := `
		# HELP netwatch_connection_up Whether the channel connection is established (1=connected)
		# TYPE netwatch_connection_up gauge
		netwatch_connection_up{channel="alerts"} 0
		netwatch_connection_up{channel="topology"} 1
		# HELP netwatch_messages_received_total Total messages received on the channel
		# TYPE netwatch_messages_received_total counter
		netwatch_messages_received_total{channel="alerts"} 0
		netwatch_messages_received_total{channel="topology"} 42
		# HELP netwatch_messages_sent_total Total messages sent on the channel
		# TYPE netwatch_messages_sent_total counter
		netwatch_messages_sent_total{channel="alerts"} 0
		netwatch_messages_sent_total{channel="topology"} 7
		# HELP netwatch_reconnect_attempts_total Total reconnect attempts on the channel
		# TYPE netwatch_reconnect_attempts_total counter
		netwatch_reconnect_attempts_total{channel="alerts"} 0
		netwatch_reconnect_attempts_total{channel="topology"} 3
		# HELP netwatch_connection_errors Number of retained error records for the channel
		# TYPE netwatch_connection_errors gauge
		netwatch_connection_errors{channel="alerts"} 0
		netwatch_connection_errors{channel="topology"} 1
	`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"netwatch_connection_up",
		"netwatch_messages_received_total",
		"netwatch_messages_sent_total",
		"netwatch_reconnect_attempts_total",
		"netwatch_connection_errors",
	)
	if err != nil {
		t.Errorf("unexpected collection result: %v", err)
	}
}

func TestConnectionCollector_Uptime(t *testing.T) {
	src := fakeSource{
		name:  "metrics",
		state: connection.StateConnected,
		stats: connection.Stats{
			UptimeStartedAt: time.Now().Add(-10 * time.Second),
		},
	}

	c := NewConnectionCollector(src)
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var uptime float64
	for _, mf := range families {
		if mf.GetName() == "netwatch_connection_uptime_seconds" {
			uptime = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	if uptime < 9 || uptime > 60 {
		t.Errorf("uptime = %v, want roughly 10 seconds", uptime)
	}
}

func TestNewRegistry_Gathers(t *testing.T) {
	reg := NewRegistry(fakeSource{name: "topology", state: connection.StateConnecting})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("registry gathered no metric families")
	}

	found := false
	for _, mf := range families {
		if mf.GetName() == "netwatch_connection_up" {
			found = true
		}
	}
	if !found {
		t.Error("netwatch_connection_up not gathered")
	}
}
