package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL                = "ws://localhost:8000/ws"
	DefaultMaxReconnectAttempts = 10
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultConnectTimeout       = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultHistorySize          = 100
	DefaultTopologyPath         = "/topology/"
	DefaultMetricsPath          = "/metrics/"
	DefaultAlertsPath           = "/alerts/"
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultMetricsPort          = 9090
	DefaultMetricsHTTPPath      = "/metrics"
	DefaultLogLevel             = "info"
)

func (c *Config) applyDefaults() {
	if c.Server.WSURL == "" {
		c.Server.WSURL = DefaultWSURL
	}

	// Connection defaults
	if c.Connection.AutoReconnect == nil {
		enabled := true
		c.Connection.AutoReconnect = &enabled
	}
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Connection.ConnectTimeout == 0 {
		c.Connection.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.HistorySize == 0 {
		c.Connection.HistorySize = DefaultHistorySize
	}

	// Channel defaults
	if c.Channels.Topology.Path == "" {
		c.Channels.Topology.Path = DefaultTopologyPath
	}
	if c.Channels.Metrics.Path == "" {
		c.Channels.Metrics.Path = DefaultMetricsPath
	}
	if c.Channels.Alerts.Path == "" {
		c.Channels.Alerts.Path = DefaultAlertsPath
	}

	// Database defaults (only meaningful when archiving is enabled)
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Archive defaults
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsHTTPPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}
