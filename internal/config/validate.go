package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Client.UserID == "" {
		return errors.New("client.user_id is required")
	}
	if c.Client.Key == "" && c.Client.KeyFile == "" {
		return errors.New("client.key or client.key_file is required")
	}
	if c.Client.Key != "" && c.Client.KeyFile != "" {
		return errors.New("client.key and client.key_file are mutually exclusive")
	}
	if c.Client.Room == "" {
		return errors.New("client.room is required")
	}

	if err := validateURL("connection.url", c.Connection.URL, "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL("connection.origin", c.Connection.Origin, "http", "https"); err != nil {
		return err
	}
	if c.Connection.BufferSize < 1 {
		return errors.New("connection.buffer_size must be >= 1")
	}
	if c.Connection.MaxRetries < 0 {
		return errors.New("connection.max_retries must be >= 0")
	}
	if c.Connection.PingTimeout < c.Connection.PingInterval {
		return fmt.Errorf("connection.ping_timeout (%v) cannot be shorter than ping_interval (%v)",
			c.Connection.PingTimeout, c.Connection.PingInterval)
	}

	if c.Reconnect.InitialJitter < 0 || c.Reconnect.RetryInterval <= 0 {
		return errors.New("reconnect intervals must be positive")
	}

	if c.Media.Duration < 0 {
		return errors.New("media.duration must be >= 0")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %s, got %q", field, strings.Join(schemes, ", "), u.Scheme)
}
