package config

import "time"

// ClientConfig is the root configuration for a sync client.
type ClientConfig struct {
	Client     IdentityConfig   `yaml:"client"`
	Connection ConnectionConfig `yaml:"connection"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
	Media      MediaConfig      `yaml:"media"`
	Debug      DebugConfig      `yaml:"debug"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// IdentityConfig identifies this participant to the relay.
type IdentityConfig struct {
	UserID  string `yaml:"user_id"`
	Key     string `yaml:"key"`      // Socket key, inline
	KeyFile string `yaml:"key_file"` // Path to a file holding the socket key
	Room    string `yaml:"room"`
}

// ConnectionConfig holds relay socket and origin settings.
type ConnectionConfig struct {
	URL              string        `yaml:"url"`    // Relay websocket URL
	Origin           string        `yaml:"origin"` // Hosting origin base URL
	StatusPath       string        `yaml:"status_path"`
	SnapshotPath     string        `yaml:"snapshot_path"`
	FetchSnapshot    bool          `yaml:"fetch_snapshot"` // Seed roots from the origin before joining
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
	HTTPTimeout      time.Duration `yaml:"http_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
}

// ReconnectConfig holds liveness polling settings.
type ReconnectConfig struct {
	InitialJitter time.Duration `yaml:"initial_jitter"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	CheckTimeout  time.Duration `yaml:"check_timeout"`
}

// MediaConfig holds playback sync settings.
type MediaConfig struct {
	MediaID        string        `yaml:"media_id"`
	Duration       float64       `yaml:"duration"` // Seconds, for the headless player
	GroupControl   bool          `yaml:"group_control"`
	DriftTolerance time.Duration `yaml:"drift_tolerance"`
	EndTolerance   time.Duration `yaml:"end_tolerance"`
	PlayerRetry    time.Duration `yaml:"player_retry"`
	MuteRetry      time.Duration `yaml:"mute_retry"`
	StartPoll      time.Duration `yaml:"start_poll"`
	DurationPoll   time.Duration `yaml:"duration_poll"`
}

// DebugConfig holds the debug HTTP server settings.
type DebugConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
