package channels

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rgledhill/netwatch/internal/bus"
	"github.com/rgledhill/netwatch/internal/connection"
	"github.com/rgledhill/netwatch/internal/envelope"
)

// Metrics tracks the latest metric samples and reachability per device over
// the /metrics/ channel.
type Metrics struct {
	conn   *connection.Conn
	bus    bus.MessageBus
	logger *slog.Logger

	// Device ids subscribed on every (re)connect; empty means everything.
	deviceIDs []string

	mu      sync.RWMutex
	devices map[string]DeviceState

	sub  bus.Subscription
	done chan struct{}
}

// NewMetrics creates the metrics adapter.
func NewMetrics(cfg connection.Config, deviceIDs []string, b bus.MessageBus, logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Name = NameMetrics
	return &Metrics{
		conn:      connection.New(cfg, b, logger),
		bus:       b,
		logger:    logger.With("channel", NameMetrics),
		deviceIDs: deviceIDs,
		devices:   make(map[string]DeviceState),
		done:      make(chan struct{}),
	}
}

// Start attaches to the bus and opens the connection.
func (m *Metrics) Start() {
	m.sub = m.bus.Subscribe(
		bus.ConnMessage(NameMetrics),
		bus.ConnState(NameMetrics),
	)
	go m.loop()
	m.conn.Connect()
}

// Stop closes the connection and detaches from the bus.
func (m *Metrics) Stop() {
	m.conn.Disconnect()
	m.bus.Unsubscribe(m.sub)
	close(m.done)
}

// RequestMetrics asks for the current samples, optionally scoped to devices.
func (m *Metrics) RequestMetrics(deviceIDs ...string) error {
	return m.conn.Send(envelope.NewMetricsRequest(deviceIDs...))
}

// Devices returns a copy of the derived device-state map.
func (m *Metrics) Devices() map[string]DeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]DeviceState, len(m.devices))
	for id, st := range m.devices {
		out[id] = st
	}
	return out
}

// Device returns the latest state for one device.
func (m *Metrics) Device(id string) (DeviceState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.devices[id]
	return st, ok
}

// Name returns the channel name.
func (m *Metrics) Name() string { return NameMetrics }

// State returns the underlying connection state.
func (m *Metrics) State() connection.State { return m.conn.State() }

// Stats returns the underlying connection stats.
func (m *Metrics) Stats() connection.Stats { return m.conn.Stats() }

func (m *Metrics) loop() {
	for {
		select {
		case <-m.done:
			return
		case msg, ok := <-m.sub:
			if !ok {
				return
			}
			switch v := msg.(type) {
			case envelope.Envelope:
				m.handleEnvelope(v)
			case connection.StateChange:
				if v.State == connection.StateConnected {
					m.onConnected()
				}
			}
		}
	}
}

func (m *Metrics) onConnected() {
	if err := m.RequestMetrics(m.deviceIDs...); err != nil {
		m.logger.Warn("metrics snapshot request failed", "error", err)
	}
}

func (m *Metrics) handleEnvelope(env envelope.Envelope) {
	switch env.Type {
	case envelope.TypeMetricsUpdate:
		var update envelope.MetricsUpdate
		if err := env.Decode(&update); err != nil {
			m.logger.Warn("bad metrics_update payload", "error", err)
			return
		}
		if update.DeviceID == "" {
			return
		}
		now := time.Now()
		m.mu.Lock()
		st := m.devices[update.DeviceID]
		st.Metrics = update.Metrics
		st.LastUpdate = now
		m.devices[update.DeviceID] = st
		m.mu.Unlock()
		m.bus.Publish(bus.TopicDeviceMetric, DeviceMetricEvent{DeviceID: update.DeviceID, Metrics: update.Metrics, At: now})

	case envelope.TypeDeviceStatusUpdate:
		var update envelope.DeviceStatusUpdate
		if err := env.Decode(&update); err != nil {
			m.logger.Warn("bad device_status_update payload", "error", err)
			return
		}
		if update.DeviceID == "" {
			return
		}
		now := time.Now()
		m.mu.Lock()
		st := m.devices[update.DeviceID]
		st.Status = update.Status
		st.LastUpdate = now
		m.devices[update.DeviceID] = st
		m.mu.Unlock()
		m.bus.Publish(bus.TopicDeviceStatus, DeviceStatusEvent{DeviceID: update.DeviceID, Status: update.Status, At: now})

	case envelope.TypeGlobalUpdate:
		var update envelope.GlobalUpdate
		if err := env.Decode(&update); err != nil {
			m.logger.Warn("bad global_update payload", "error", err)
			return
		}
		m.bus.Publish(bus.TopicGlobalUpdate, update)

	default:
		if !env.Known() {
			m.logger.Debug("ignoring unknown message type", "type", env.Type)
		}
	}
}
