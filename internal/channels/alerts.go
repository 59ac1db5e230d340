package channels

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rgledhill/netwatch/internal/bus"
	"github.com/rgledhill/netwatch/internal/connection"
	"github.com/rgledhill/netwatch/internal/envelope"
)

// Alerts tracks security/operational alerts over the /alerts/ channel.
type Alerts struct {
	conn   *connection.Conn
	bus    bus.MessageBus
	logger *slog.Logger

	mu     sync.RWMutex
	alerts map[string]AlertRecord

	sub  bus.Subscription
	done chan struct{}
}

// NewAlerts creates the alerts adapter.
func NewAlerts(cfg connection.Config, b bus.MessageBus, logger *slog.Logger) *Alerts {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Name = NameAlerts
	return &Alerts{
		conn:   connection.New(cfg, b, logger),
		bus:    b,
		logger: logger.With("channel", NameAlerts),
		alerts: make(map[string]AlertRecord),
		done:   make(chan struct{}),
	}
}

// Start attaches to the bus and opens the connection.
func (a *Alerts) Start() {
	a.sub = a.bus.Subscribe(
		bus.ConnMessage(NameAlerts),
		bus.ConnState(NameAlerts),
	)
	go a.loop()
	a.conn.Connect()
}

// Stop closes the connection and detaches from the bus.
func (a *Alerts) Stop() {
	a.conn.Disconnect()
	a.bus.Unsubscribe(a.sub)
	close(a.done)
}

// RequestAlerts asks for the current set of active alerts.
func (a *Alerts) RequestAlerts() error {
	return a.conn.Send(envelope.NewAlertsRequest())
}

// Acknowledge marks an alert as acknowledged with an operator comment.
func (a *Alerts) Acknowledge(alertID, comment string) error {
	return a.conn.Send(envelope.NewAlertAction(envelope.TypeAcknowledge, alertID, comment))
}

// Dismiss removes an alert from the server's active set.
func (a *Alerts) Dismiss(alertID string) error {
	return a.conn.Send(envelope.NewAlertAction(envelope.TypeDismiss, alertID, ""))
}

// RequestDetails asks for the full record of one alert.
func (a *Alerts) RequestDetails(alertID string) error {
	return a.conn.Send(envelope.NewAlertAction(envelope.TypeGetDetails, alertID, ""))
}

// Alerts returns a copy of the derived alert map.
func (a *Alerts) Alerts() map[string]AlertRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]AlertRecord, len(a.alerts))
	for id, rec := range a.alerts {
		out[id] = rec
	}
	return out
}

// Alert returns the latest record for one alert.
func (a *Alerts) Alert(id string) (AlertRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.alerts[id]
	return rec, ok
}

// Name returns the channel name.
func (a *Alerts) Name() string { return NameAlerts }

// State returns the underlying connection state.
func (a *Alerts) State() connection.State { return a.conn.State() }

// Stats returns the underlying connection stats.
func (a *Alerts) Stats() connection.Stats { return a.conn.Stats() }

func (a *Alerts) loop() {
	for {
		select {
		case <-a.done:
			return
		case msg, ok := <-a.sub:
			if !ok {
				return
			}
			switch v := msg.(type) {
			case envelope.Envelope:
				a.handleEnvelope(v)
			case connection.StateChange:
				if v.State == connection.StateConnected {
					if err := a.RequestAlerts(); err != nil {
						a.logger.Warn("alerts snapshot request failed", "error", err)
					}
				}
			}
		}
	}
}

func (a *Alerts) handleEnvelope(env envelope.Envelope) {
	switch env.Type {
	case envelope.TypeAlertNotification, envelope.TypeNewAlert:
		var notif envelope.AlertNotification
		if err := env.Decode(&notif); err != nil {
			a.logger.Warn("bad alert payload", "type", env.Type, "error", err)
			return
		}
		if notif.Alert.ID == "" {
			return
		}
		a.upsert(notif.Alert, AlertStateActive, "")

	case envelope.TypeActiveAlerts:
		var active envelope.ActiveAlerts
		if err := env.Decode(&active); err != nil {
			a.logger.Warn("bad active_alerts payload", "error", err)
			return
		}
		for _, alert := range active.Alerts {
			if alert.ID == "" {
				continue
			}
			a.upsert(alert, AlertStateActive, "")
		}

	case envelope.TypeAlertAcknowledged:
		a.applyStateChange(env, AlertStateAcknowledged)

	case envelope.TypeAlertDismissed:
		a.applyStateChange(env, AlertStateDismissed)

	default:
		if !env.Known() {
			a.logger.Debug("ignoring unknown message type", "type", env.Type)
		}
	}
}

func (a *Alerts) upsert(alert envelope.Alert, state AlertState, comment string) {
	now := time.Now()
	a.mu.Lock()
	a.alerts[alert.ID] = AlertRecord{Alert: alert, State: state, Comment: comment, LastUpdate: now}
	a.mu.Unlock()
	a.bus.Publish(bus.TopicAlert, AlertEvent{Alert: alert, State: state, At: now})
}

// applyStateChange updates an existing record in place; state changes for
// alerts this adapter never saw create a stub record so the transition is
// still visible.
func (a *Alerts) applyStateChange(env envelope.Envelope, state AlertState) {
	var change envelope.AlertStateChange
	if err := env.Decode(&change); err != nil {
		a.logger.Warn("bad alert state change payload", "type", env.Type, "error", err)
		return
	}
	if change.AlertID == "" {
		return
	}

	now := time.Now()
	a.mu.Lock()
	rec := a.alerts[change.AlertID]
	if rec.Alert.ID == "" {
		rec.Alert.ID = change.AlertID
	}
	rec.State = state
	if change.Comment != "" {
		rec.Comment = change.Comment
	}
	rec.LastUpdate = now
	a.alerts[change.AlertID] = rec
	alert := rec.Alert
	a.mu.Unlock()

	a.bus.Publish(bus.TopicAlert, AlertEvent{Alert: alert, State: state, At: now})
}
