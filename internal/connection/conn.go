package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rgledhill/netwatch/internal/bus"
	"github.com/rgledhill/netwatch/internal/envelope"
)

// reconnectGrace is the fixed delay between the forced close and the redial
// of a manual Reconnect.
const reconnectGrace = 100 * time.Millisecond

// Conn owns one persistent websocket and its lifecycle state machine.
// At most one live socket handle exists per Conn at any time; every teardown
// bumps an internal generation counter so goroutines and timers belonging to
// a previous socket cannot touch the new one.
type Conn struct {
	cfg    Config
	logger *slog.Logger
	bus    bus.MessageBus

	mu             sync.Mutex
	state          State
	sock           *websocket.Conn
	gen            uint64
	policy         *ReconnectPolicy
	history        *History
	stats          Stats
	lastMessage    *envelope.Envelope
	lastErr        error
	lastActivity   time.Time
	reconnectTimer *time.Timer

	// Write serialization
	writeMu sync.Mutex
}

// New creates a Conn. The bus may be nil (no fan-out, observers only),
// which the tests use.
func New(cfg Config, b bus.MessageBus, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = def.HistorySize
	}

	return &Conn{
		cfg:     cfg,
		logger:  logger.With("conn", cfg.Name),
		bus:     b,
		state:   StateDisconnected,
		policy:  NewReconnectPolicy(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, cfg.MaxReconnectAttempts),
		history: NewHistory(cfg.HistorySize),
	}
}

// Name returns the connection name used in logs and bus topics.
func (c *Conn) Name() string {
	return c.cfg.Name
}

// Connect starts a connection attempt. It is a no-op while an attempt is in
// flight or the socket is already up, and never blocks the caller: the
// outcome surfaces through State and the bus.
func (c *Conn) Connect() {
	c.mu.Lock()
	ev, ok := c.startDialLocked()
	c.mu.Unlock()

	if ok {
		c.publishState(ev)
	}
}

// connectIfCurrent is the reconnect-timer callback. A timer whose callback
// has already fired cannot be stopped, so the generation it was armed with
// is re-checked under the lock: Disconnect and Reconnect bump the
// generation, which neutralizes any in-flight callback and keeps a stale
// timer from reviving a deliberately closed connection.
func (c *Conn) connectIfCurrent(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("stale reconnect timer ignored")
		return
	}
	ev, ok := c.startDialLocked()
	c.mu.Unlock()

	if ok {
		c.publishState(ev)
	}
}

// startDialLocked moves to connecting and launches the dial goroutine for
// the current generation. Reports false when a dial is already in flight or
// the socket is up.
func (c *Conn) startDialLocked() (StateChange, bool) {
	if c.state == StateConnecting || c.state == StateConnected {
		c.logger.Debug("connect skipped", "state", c.state)
		return StateChange{}, false
	}
	c.stopReconnectTimerLocked()
	gen := c.gen
	ev := c.setStateLocked(StateConnecting, nil)
	go c.dial(gen)
	return ev, true
}

// Disconnect closes the socket with a normal closure code, cancels every
// pending timer, and disables automatic reconnection until Reconnect.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.stopReconnectTimerLocked()
	c.policy.Exhaust()
	sock := c.sock
	c.sock = nil
	ev := c.setStateLocked(StateDisconnected, nil)
	c.mu.Unlock()

	closeSocket(sock)
	c.publishState(ev)
	c.logger.Info("disconnected")
}

// Reconnect resets the attempt counter, force-closes the current socket, and
// redials after a short grace delay. Always permitted, even after the
// automatic policy is exhausted.
func (c *Conn) Reconnect() {
	c.mu.Lock()
	c.gen++
	c.stopReconnectTimerLocked()
	c.policy.Reset()
	sock := c.sock
	c.sock = nil
	ev := c.setStateLocked(StateDisconnected, nil)
	gen := c.gen
	c.reconnectTimer = time.AfterFunc(reconnectGrace, func() { c.connectIfCurrent(gen) })
	c.mu.Unlock()

	closeSocket(sock)
	c.publishState(ev)
	c.logger.Info("manual reconnect")
}

// Send serializes msg (structs are JSON-encoded; strings and byte slices
// pass through) and writes it as a text frame. It returns ErrNotConnected
// without queueing when the socket is not connected; callers must not assume
// delivery.
func (c *Conn) Send(msg any) error {
	c.mu.Lock()
	if c.state != StateConnected || c.sock == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	sock := c.sock
	c.mu.Unlock()

	var data []byte
	switch m := msg.(type) {
	case []byte:
		data = m
	case string:
		data = []byte(m)
	default:
		var err error
		data, err = json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
	}

	c.writeMu.Lock()
	sock.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err := sock.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		c.mu.Lock()
		c.recordErrorLocked(err)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.stats.MessagesSent++
	c.mu.Unlock()
	return nil
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the socket is up.
func (c *Conn) IsConnected() bool {
	return c.State() == StateConnected
}

// IsConnecting reports whether a connection attempt is in flight.
func (c *Conn) IsConnecting() bool {
	return c.State() == StateConnecting
}

// Err returns the most recent transport error, nil after a successful
// connect.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// LastMessage returns the most recent envelope that passed the filter.
func (c *Conn) LastMessage() (envelope.Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastMessage == nil {
		return envelope.Envelope{}, false
	}
	return *c.lastMessage, true
}

// History returns a copy of the bounded message history, newest first.
func (c *Conn) History() []envelope.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Snapshot()
}

// Stats returns a copy of the diagnostic counters.
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.Errors = append([]ErrorRecord(nil), c.stats.Errors...)
	return out
}

// dial performs the websocket handshake for the given generation.
func (c *Conn) dial(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}
	sock, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)

	c.mu.Lock()
	if gen != c.gen || c.state != StateConnecting {
		// Superseded by Disconnect or Reconnect while dialing.
		c.mu.Unlock()
		if err == nil {
			sock.Close()
		}
		return
	}

	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w after %v", ErrConnectTimeout, c.cfg.ConnectTimeout)
		}
		c.recordErrorLocked(err)
		ev := c.setStateLocked(StateError, err)
		c.scheduleReconnectLocked()
		c.mu.Unlock()

		c.publishState(ev)
		c.logger.Warn("connect failed", "url", c.cfg.URL, "error", err)
		return
	}

	c.sock = sock
	c.policy.Reset()
	c.stats.UptimeStartedAt = time.Now()
	c.lastActivity = time.Now()
	ev := c.setStateLocked(StateConnected, nil)
	c.mu.Unlock()

	c.publishState(ev)
	c.logger.Info("connected", "url", c.cfg.URL)

	go c.readLoop(sock, gen)
	if c.cfg.HeartbeatInterval > 0 {
		go c.heartbeatLoop(gen)
	}
}

// readLoop reads frames until the socket dies, then runs the close handling
// for this generation.
func (c *Conn) readLoop(sock *websocket.Conn, gen uint64) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		c.handleMessage(gen, data)
	}
}

// handleMessage parses one inbound frame and surfaces it.
func (c *Conn) handleMessage(gen uint64, data []byte) {
	env := envelope.Parse(data)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.stats.MessagesReceived++
	c.lastActivity = time.Now()
	if c.cfg.Filter != nil && !c.cfg.Filter(env) {
		c.mu.Unlock()
		return
	}
	c.lastMessage = &env
	c.history.Push(env)
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(bus.ConnMessage(c.cfg.Name), env)
	}
}

// handleClose tears down the socket of the given generation. A close with
// the normal status code is expected and leaves the Conn disconnected; any
// other error is unclean and engages the reconnect policy.
func (c *Conn) handleClose(gen uint64, err error) {
	clean := websocket.IsCloseError(err, websocket.CloseNormalClosure)

	c.mu.Lock()
	if gen != c.gen {
		// Deliberate teardown already handled this socket.
		c.mu.Unlock()
		return
	}
	c.gen++
	sock := c.sock
	c.sock = nil

	var ev StateChange
	if clean {
		ev = c.setStateLocked(StateDisconnected, nil)
	} else {
		c.recordErrorLocked(err)
		ev = c.setStateLocked(StateError, err)
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	closeSocket(sock)
	c.publishState(ev)
	if clean {
		c.logger.Info("connection closed")
	} else {
		c.logger.Warn("connection lost", "error", err)
	}
}

// heartbeatLoop sends periodic liveness frames and verifies the server is
// answering: if no inbound traffic (heartbeat_ack included) arrives within
// two intervals, the connection is stale and gets force-closed so the
// reconnect policy can take over.
func (c *Conn) heartbeatLoop(gen uint64) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		idle := time.Since(c.lastActivity)
		c.mu.Unlock()

		if idle > 2*c.cfg.HeartbeatInterval {
			c.logger.Warn("heartbeat not acknowledged, closing stale connection", "idle", idle)
			c.handleClose(gen, ErrStaleConnection)
			return
		}

		if err := c.Send(envelope.NewHeartbeat()); err != nil {
			return
		}
	}
}

// scheduleReconnectLocked arms the reconnect timer if the policy permits.
func (c *Conn) scheduleReconnectLocked() {
	if !c.cfg.AutoReconnect {
		return
	}
	delay, ok := c.policy.Next()
	if !ok {
		c.logger.Warn("reconnect attempts exhausted", "attempts", c.policy.Attempts())
		return
	}
	c.stats.ReconnectAttempts++
	c.stats.LastReconnect = time.Now()
	c.logger.Info("scheduling reconnect", "attempt", c.policy.Attempts(), "delay", delay)
	gen := c.gen
	c.reconnectTimer = time.AfterFunc(delay, func() { c.connectIfCurrent(gen) })
}

func (c *Conn) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Conn) setStateLocked(s State, err error) StateChange {
	c.state = s
	if err != nil {
		c.lastErr = err
	} else if s == StateConnected {
		c.lastErr = nil
	}
	return StateChange{
		Name:  c.cfg.Name,
		State: s,
		Err:   errString(err),
		At:    time.Now(),
	}
}

func (c *Conn) recordErrorLocked(err error) {
	c.stats.Errors = append(c.stats.Errors, ErrorRecord{At: time.Now(), Message: err.Error()})
	if len(c.stats.Errors) > maxErrorRecords {
		c.stats.Errors = c.stats.Errors[len(c.stats.Errors)-maxErrorRecords:]
	}
}

func (c *Conn) publishState(ev StateChange) {
	if c.bus != nil {
		c.bus.Publish(bus.ConnState(c.cfg.Name), ev)
	}
}

func closeSocket(sock *websocket.Conn) {
	if sock == nil {
		return
	}
	sock.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	sock.Close()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
