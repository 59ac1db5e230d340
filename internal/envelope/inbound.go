package envelope

import (
	"encoding/json"
	"strings"
)

// GNS3Event is a topology change pushed by the GNS3 compute backend.
// Older backends put event_type/data at the top level, newer ones nest
// them under event_data; EventType() and NodeData() handle both.
type GNS3Event struct {
	Type      string        `json:"type"`
	EventData gns3EventBody `json:"event_data"`
	gns3EventBody
}

type gns3EventBody struct {
	EventType string       `json:"event_type"`
	Data      GNS3NodeData `json:"data"`
}

// GNS3NodeData is the node payload inside a gns3_event.
type GNS3NodeData struct {
	NodeID    string `json:"node_id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

// EventType returns the event name, e.g. "node.started".
func (e GNS3Event) EventType() string {
	if e.EventData.EventType != "" {
		return e.EventData.EventType
	}
	return e.gns3EventBody.EventType
}

// NodeData returns the node payload from whichever shape the backend used.
func (e GNS3Event) NodeData() GNS3NodeData {
	if e.EventData.EventType != "" || e.EventData.Data != (GNS3NodeData{}) {
		return e.EventData.Data
	}
	return e.gns3EventBody.Data
}

// NodeStatusFromEvent maps a node event name to a node status, e.g.
// "node.started" → "started". Returns "" for non-node events.
func NodeStatusFromEvent(eventType string) string {
	rest, ok := strings.CutPrefix(eventType, "node.")
	if !ok {
		return ""
	}
	return rest
}

// TopologyResponse is a full topology snapshot sent in reply to a
// request_topology frame.
type TopologyResponse struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	ProjectID string         `json:"project_id"`
	Nodes     []TopologyNode `json:"nodes"`
}

// TopologyNode is one node in a topology snapshot.
type TopologyNode struct {
	NodeID string `json:"node_id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// MetricsUpdate carries the latest metric samples for one device.
type MetricsUpdate struct {
	Type      string             `json:"type"`
	DeviceID  string             `json:"device_id"`
	Metrics   map[string]float64 `json:"metrics"`
	Timestamp int64              `json:"timestamp"`
}

// DeviceStatusUpdate reports a device reachability change.
type DeviceStatusUpdate struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}

// GlobalUpdate is a bulk refresh of dashboard-wide state.
type GlobalUpdate struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Alert is a security/operational alert record.
type Alert struct {
	ID        string `json:"id"`
	Severity  string `json:"severity"`
	Source    string `json:"source"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// AlertNotification wraps a single alert (alert_notification / new_alert).
type AlertNotification struct {
	Type  string `json:"type"`
	Alert Alert  `json:"alert"`
}

// ActiveAlerts is the current set of unresolved alerts.
type ActiveAlerts struct {
	Type   string  `json:"type"`
	Alerts []Alert `json:"alerts"`
}

// AlertStateChange reports an acknowledge or dismiss applied server-side
// (alert_acknowledged / alert_dismissed).
type AlertStateChange struct {
	Type    string `json:"type"`
	AlertID string `json:"alert_id"`
	Comment string `json:"comment"`
}

// HeartbeatAck is the server reply to a heartbeat frame.
type HeartbeatAck struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
