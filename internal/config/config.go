package config

import "time"

// Config is the top-level configuration for netwatchd.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Database   DBConfig         `yaml:"database"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InstanceConfig identifies this daemon instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig points at the realtime backend.
type ServerConfig struct {
	// WSURL is the base websocket URL; relative channel paths resolve
	// against it (e.g. ws://nms.local:8000/ws + /alerts/).
	WSURL string `yaml:"ws_url"`
}

// ConnectionConfig holds socket lifecycle settings shared by all channels.
type ConnectionConfig struct {
	AutoReconnect        *bool         `yaml:"auto_reconnect"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	HistorySize          int           `yaml:"history_size"`
}

// ChannelsConfig configures the per-domain channel adapters.
type ChannelsConfig struct {
	Topology ChannelConfig `yaml:"topology"`
	Metrics  ChannelConfig `yaml:"metrics"`
	Alerts   ChannelConfig `yaml:"alerts"`
}

// ChannelConfig configures a single channel adapter.
type ChannelConfig struct {
	// Path is the endpoint path (e.g. /topology/) or a fully-qualified
	// ws:// / wss:// URL overriding server.ws_url.
	Path string `yaml:"path"`

	// Subscriptions sent on connect (event names for topology, device ids
	// for metrics; unused for alerts).
	Subscriptions []string `yaml:"subscriptions"`
}

// DBConfig holds Postgres settings for the event archive.
// Archiving is disabled when Host is empty.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether the archive database is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// ArchiveConfig holds batching settings for the event archive writer.
type ArchiveConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
