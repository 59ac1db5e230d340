package channels

import (
	"strings"
	"time"

	"github.com/rgledhill/netwatch/internal/envelope"
)

// Channel names, used for connection naming and bus topics.
const (
	NameTopology = "topology"
	NameMetrics  = "metrics"
	NameAlerts   = "alerts"
)

// ResolveEndpoint joins a relative channel path with the base socket URL.
// Fully-qualified ws:// and wss:// paths pass through unchanged.
func ResolveEndpoint(baseURL, path string) string {
	if strings.HasPrefix(path, "ws://") || strings.HasPrefix(path, "wss://") {
		return path
	}
	return strings.TrimRight(baseURL, "/") + path
}

// NodeStatus is the latest known state of one topology node.
type NodeStatus struct {
	Status     string
	LastUpdate time.Time
}

// NodeStatusEvent is published on bus.TopicNodeStatus.
type NodeStatusEvent struct {
	NodeID string
	Status string
	At     time.Time
}

// DeviceState is the latest known state of one monitored device.
type DeviceState struct {
	Status     string
	Metrics    map[string]float64
	LastUpdate time.Time
}

// DeviceMetricEvent is published on bus.TopicDeviceMetric.
type DeviceMetricEvent struct {
	DeviceID string
	Metrics  map[string]float64
	At       time.Time
}

// DeviceStatusEvent is published on bus.TopicDeviceStatus.
type DeviceStatusEvent struct {
	DeviceID string
	Status   string
	At       time.Time
}

// AlertState tracks what the server has confirmed about an alert.
type AlertState string

const (
	AlertStateActive       AlertState = "active"
	AlertStateAcknowledged AlertState = "acknowledged"
	AlertStateDismissed    AlertState = "dismissed"
)

// AlertRecord is the latest known state of one alert. Records stay in the
// derived map after acknowledge/dismiss so dashboards can show history.
type AlertRecord struct {
	Alert      envelope.Alert
	State      AlertState
	Comment    string
	LastUpdate time.Time
}

// AlertEvent is published on bus.TopicAlert.
type AlertEvent struct {
	Alert envelope.Alert
	State AlertState
	At    time.Time
}
