package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Outbound discriminators.
const (
	TypeSubscribe       = "subscribe"
	TypeUnsubscribe     = "unsubscribe"
	TypeRequestTopology = "request_topology"
	TypeNodeAction      = "node_action"
	TypeGetMetrics      = "get_metrics"
	TypeGetAlerts       = "get_alerts"
	TypeHeartbeat       = "heartbeat"
	TypeAcknowledge     = "acknowledge"
	TypeDismiss         = "dismiss"
	TypeGetDetails      = "get_details"
)

// SubscriptionRequest subscribes to or unsubscribes from named event streams.
type SubscriptionRequest struct {
	Type          string   `json:"type"`
	RequestID     string   `json:"request_id"`
	Subscriptions []string `json:"subscriptions"`
}

// NewSubscribe builds a subscribe frame.
func NewSubscribe(subscriptions ...string) SubscriptionRequest {
	return SubscriptionRequest{
		Type:          TypeSubscribe,
		RequestID:     uuid.NewString(),
		Subscriptions: subscriptions,
	}
}

// NewUnsubscribe builds an unsubscribe frame.
func NewUnsubscribe(subscriptions ...string) SubscriptionRequest {
	return SubscriptionRequest{
		Type:          TypeUnsubscribe,
		RequestID:     uuid.NewString(),
		Subscriptions: subscriptions,
	}
}

// TopologyRequest asks for a full topology snapshot.
type TopologyRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	ProjectID string `json:"project_id,omitempty"`
}

// NewTopologyRequest builds a request_topology frame.
func NewTopologyRequest(projectID string) TopologyRequest {
	return TopologyRequest{
		Type:      TypeRequestTopology,
		RequestID: uuid.NewString(),
		ProjectID: projectID,
	}
}

// NodeActionRequest starts, stops, or restarts a node.
type NodeActionRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	ProjectID string `json:"project_id"`
	NodeID    string `json:"node_id"`
}

// NewNodeAction builds a node_action frame.
func NewNodeAction(action, projectID, nodeID string) NodeActionRequest {
	return NodeActionRequest{
		Type:      TypeNodeAction,
		RequestID: uuid.NewString(),
		Action:    action,
		ProjectID: projectID,
		NodeID:    nodeID,
	}
}

// SnapshotRequest asks for the current metric or alert state
// (get_metrics / get_alerts).
type SnapshotRequest struct {
	Type      string   `json:"type"`
	RequestID string   `json:"request_id"`
	DeviceIDs []string `json:"device_ids,omitempty"`
}

// NewMetricsRequest builds a get_metrics frame, optionally scoped to devices.
func NewMetricsRequest(deviceIDs ...string) SnapshotRequest {
	return SnapshotRequest{
		Type:      TypeGetMetrics,
		RequestID: uuid.NewString(),
		DeviceIDs: deviceIDs,
	}
}

// NewAlertsRequest builds a get_alerts frame.
func NewAlertsRequest() SnapshotRequest {
	return SnapshotRequest{
		Type:      TypeGetAlerts,
		RequestID: uuid.NewString(),
	}
}

// HeartbeatFrame is the periodic liveness signal.
type HeartbeatFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// NewHeartbeat builds a heartbeat frame with the current time.
func NewHeartbeat() HeartbeatFrame {
	return HeartbeatFrame{
		Type:      TypeHeartbeat,
		Timestamp: time.Now().UnixMilli(),
	}
}

// AlertActionRequest acknowledges, dismisses, or requests details for an alert.
type AlertActionRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	AlertID   string `json:"alert_id"`
	Comment   string `json:"comment,omitempty"`
}

// NewAlertAction builds an alert action frame; action is one of
// TypeAcknowledge, TypeDismiss, TypeGetDetails.
func NewAlertAction(action, alertID, comment string) AlertActionRequest {
	return AlertActionRequest{
		Type:      action,
		RequestID: uuid.NewString(),
		Action:    action,
		AlertID:   alertID,
		Comment:   comment,
	}
}
