package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultStatusPath       = "/"
	DefaultSnapshotPath     = "/state/"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 60 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultBufferSize       = 1000
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultInitialJitter    = 1 * time.Second
	DefaultRetryInterval    = 1 * time.Second
	DefaultCheckTimeout     = 5 * time.Second
	DefaultDriftTolerance   = 10 * time.Second
	DefaultEndTolerance     = 1 * time.Second
	DefaultPlayerRetry      = 1 * time.Second
	DefaultMuteRetry        = 100 * time.Millisecond
	DefaultStartPoll        = 100 * time.Millisecond
	DefaultDurationPoll     = 250 * time.Millisecond
	DefaultDebugAddr        = "127.0.0.1:8086"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// ApplyDefaults fills every unset optional field.
func (c *ClientConfig) ApplyDefaults() {
	// Connection defaults
	conn := &c.Connection
	if conn.StatusPath == "" {
		conn.StatusPath = DefaultStatusPath
	}
	if conn.SnapshotPath == "" {
		conn.SnapshotPath = DefaultSnapshotPath
	}
	if conn.HandshakeTimeout == 0 {
		conn.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if conn.PingInterval == 0 {
		conn.PingInterval = DefaultPingInterval
	}
	if conn.PingTimeout == 0 {
		conn.PingTimeout = DefaultPingTimeout
	}
	if conn.WriteTimeout == 0 {
		conn.WriteTimeout = DefaultWriteTimeout
	}
	if conn.BufferSize == 0 {
		conn.BufferSize = DefaultBufferSize
	}
	if conn.HTTPTimeout == 0 {
		conn.HTTPTimeout = DefaultHTTPTimeout
	}
	if conn.MaxRetries == 0 {
		conn.MaxRetries = DefaultMaxRetries
	}

	// Reconnect defaults
	if c.Reconnect.InitialJitter == 0 {
		c.Reconnect.InitialJitter = DefaultInitialJitter
	}
	if c.Reconnect.RetryInterval == 0 {
		c.Reconnect.RetryInterval = DefaultRetryInterval
	}
	if c.Reconnect.CheckTimeout == 0 {
		c.Reconnect.CheckTimeout = DefaultCheckTimeout
	}

	// Media defaults
	m := &c.Media
	if m.DriftTolerance == 0 {
		m.DriftTolerance = DefaultDriftTolerance
	}
	if m.EndTolerance == 0 {
		m.EndTolerance = DefaultEndTolerance
	}
	if m.PlayerRetry == 0 {
		m.PlayerRetry = DefaultPlayerRetry
	}
	if m.MuteRetry == 0 {
		m.MuteRetry = DefaultMuteRetry
	}
	if m.StartPoll == 0 {
		m.StartPoll = DefaultStartPoll
	}
	if m.DurationPoll == 0 {
		m.DurationPoll = DefaultDurationPoll
	}

	// Debug and logging defaults
	if c.Debug.Addr == "" {
		c.Debug.Addr = DefaultDebugAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
