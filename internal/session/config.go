package session

import (
	"net/http"
	"time"

	"github.com/rickgao/roomsync/internal/auth"
	"github.com/rickgao/roomsync/internal/config"
	"github.com/rickgao/roomsync/internal/connection"
	"github.com/rickgao/roomsync/internal/mediasync"
	"github.com/rickgao/roomsync/internal/model"
	"github.com/rickgao/roomsync/internal/reconnect"
)

// Config configures a Session.
type Config struct {
	Connection connection.ManagerConfig
	Reconnect  reconnect.Config
	Media      mediasync.Config

	// MediaDuration is the length in seconds of the headless player attached
	// when Media.MediaID is set and no player is supplied. Zero is unknown.
	MediaDuration float64

	Origin        string // Hosting origin base URL, for status and snapshots
	StatusPath    string
	SnapshotPath  string
	FetchSnapshot bool // Seed roots from the origin before joining
	HTTPTimeout   time.Duration
	MaxRetries    int

	Roots []model.RootSpec // Trees to register; nil means model.DefaultRoots
}

// DefaultConfig returns a Config with component defaults.
func DefaultConfig() Config {
	return Config{
		Connection:   connection.DefaultManagerConfig(),
		Reconnect:    reconnect.DefaultConfig(),
		Media:        mediasync.DefaultConfig(),
		StatusPath:   config.DefaultStatusPath,
		SnapshotPath: config.DefaultSnapshotPath,
		HTTPTimeout:  config.DefaultHTTPTimeout,
		MaxRetries:   config.DefaultMaxRetries,
	}
}

// FromConfig maps a loaded client configuration and credentials onto a
// session Config.
func FromConfig(cfg *config.ClientConfig, creds *auth.Credentials) Config {
	c := DefaultConfig()

	conn := cfg.Connection
	c.Connection.Key = creds.Key
	c.Connection.UserID = creds.UserID
	c.Connection.RoomID = cfg.Client.Room
	c.Connection.Client.URL = conn.URL
	c.Connection.Client.HandshakeTimeout = conn.HandshakeTimeout
	c.Connection.Client.PingInterval = conn.PingInterval
	c.Connection.Client.PingTimeout = conn.PingTimeout
	c.Connection.Client.WriteTimeout = conn.WriteTimeout
	c.Connection.Client.BufferSize = conn.BufferSize
	if conn.Origin != "" {
		c.Connection.Client.Header = http.Header{"Origin": {conn.Origin}}
	}

	c.Origin = conn.Origin
	c.StatusPath = conn.StatusPath
	c.SnapshotPath = conn.SnapshotPath
	c.FetchSnapshot = conn.FetchSnapshot
	c.HTTPTimeout = conn.HTTPTimeout
	c.MaxRetries = conn.MaxRetries

	c.Reconnect = reconnect.Config{
		InitialJitter: cfg.Reconnect.InitialJitter,
		RetryInterval: cfg.Reconnect.RetryInterval,
		CheckTimeout:  cfg.Reconnect.CheckTimeout,
	}

	media := cfg.Media
	c.Media.MediaID = media.MediaID
	c.Media.GroupControl = media.GroupControl
	c.Media.DriftTolerance = media.DriftTolerance
	c.Media.EndTolerance = media.EndTolerance
	c.Media.PlayerRetry = media.PlayerRetry
	c.Media.MuteRetry = media.MuteRetry
	c.Media.StartPoll = media.StartPoll
	c.Media.DurationPoll = media.DurationPoll
	c.MediaDuration = media.Duration

	return c
}
