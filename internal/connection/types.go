package connection

import (
	"errors"
	"time"

	"github.com/rgledhill/netwatch/internal/envelope"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrConnectTimeout  = errors.New("connect timeout")
	ErrStaleConnection = errors.New("connection stale (no heartbeat ack)")
)

// State is the lifecycle state of a Conn.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// StateChange is published on the bus whenever a Conn changes state.
type StateChange struct {
	Name  string
	State State
	Err   string // last error message, empty on clean transitions
	At    time.Time
}

// ErrorRecord is one entry in the bounded error history.
type ErrorRecord struct {
	At      time.Time
	Message string
}

// maxErrorRecords bounds Stats.Errors.
const maxErrorRecords = 10

// Stats are diagnostic counters for one Conn. Mutated only by the Conn that
// owns the socket; callers get copies.
type Stats struct {
	MessagesReceived  int64
	MessagesSent      int64
	ReconnectAttempts int64
	LastReconnect     time.Time
	UptimeStartedAt   time.Time
	Errors            []ErrorRecord
}

// Config configures a Conn. Immutable after construction.
type Config struct {
	// Name identifies the connection in logs and bus topics.
	Name string

	// URL is the fully-qualified ws:// or wss:// endpoint.
	URL string

	// AutoReconnect enables policy-driven reconnection after unclean closes.
	AutoReconnect bool

	// MaxReconnectAttempts caps consecutive automatic reconnect attempts.
	MaxReconnectAttempts int

	// ReconnectBaseDelay and ReconnectMaxDelay bound the backoff schedule.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// HeartbeatInterval is the liveness-frame period; 0 disables heartbeat.
	HeartbeatInterval time.Duration

	// ConnectTimeout bounds the connecting phase.
	ConnectTimeout time.Duration

	// WriteTimeout is the per-send write deadline.
	WriteTimeout time.Duration

	// HistorySize bounds the message history ring.
	HistorySize int

	// Filter, when set, drops envelopes returning false before they reach
	// history, LastMessage, or the bus. Dropped frames still count toward
	// MessagesReceived.
	Filter func(envelope.Envelope) bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AutoReconnect:        true,
		MaxReconnectAttempts: 10,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		ConnectTimeout:       10 * time.Second,
		WriteTimeout:         5 * time.Second,
		HistorySize:          100,
	}
}
