package envelope

import (
	"encoding/json"
	"time"
)

// Inbound discriminators.
const (
	TypeGNS3Event          = "gns3_event"
	TypeTopologyResponse   = "topology_response"
	TypeMetricsUpdate      = "metrics_update"
	TypeAlertNotification  = "alert_notification"
	TypeActiveAlerts       = "active_alerts"
	TypeNewAlert           = "new_alert"
	TypeAlertAcknowledged  = "alert_acknowledged"
	TypeAlertDismissed     = "alert_dismissed"
	TypeGlobalUpdate       = "global_update"
	TypeDeviceStatusUpdate = "device_status_update"
	TypeHeartbeatAck       = "heartbeat_ack"
)

// Envelope is a single inbound frame.
//
// For valid JSON frames, Type holds the discriminator (possibly empty or
// unknown to every adapter) and Data holds the full frame for decoding into
// a typed payload. Frames that fail JSON parsing keep the payload in Text
// and report IsRaw() == true.
type Envelope struct {
	Type       string
	Data       json.RawMessage
	Text       string
	ReceivedAt time.Time
}

// Parse converts a frame into an Envelope. It never fails: malformed JSON
// is retained as raw text.
func Parse(data []byte) Envelope {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Envelope{Text: string(data), ReceivedAt: time.Now()}
	}
	return Envelope{
		Type:       head.Type,
		Data:       append(json.RawMessage(nil), data...),
		ReceivedAt: time.Now(),
	}
}

// IsRaw reports whether the frame failed structural parsing.
func (e Envelope) IsRaw() bool {
	return e.Data == nil
}

// Decode unmarshals the full frame into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Known reports whether the discriminator is one this package defines.
// Adapters ignore unknown discriminators instead of treating them as errors,
// so new server-side event types degrade gracefully.
func (e Envelope) Known() bool {
	switch e.Type {
	case TypeGNS3Event, TypeTopologyResponse, TypeMetricsUpdate,
		TypeAlertNotification, TypeActiveAlerts, TypeNewAlert,
		TypeAlertAcknowledged, TypeAlertDismissed, TypeGlobalUpdate,
		TypeDeviceStatusUpdate, TypeHeartbeatAck:
		return true
	}
	return false
}
