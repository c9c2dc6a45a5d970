// Package auth loads the credentials a client presents to the relay.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rickgao/roomsync/internal/wire"
)

// Errors
var (
	ErrMissingUserID = errors.New("user id is required")
	ErrMissingKey    = errors.New("socket key is required")
	ErrAmbiguousKey  = errors.New("socket key given both inline and as a file")
)

// Credentials identify a participant on the relay socket.
type Credentials struct {
	UserID string
	Key    string // Socket key issued by the hosting origin
}

// LoadCredentials builds credentials from an inline key or a key file.
// Exactly one of key and keyPath must be set.
func LoadCredentials(userID, key, keyPath string) (*Credentials, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	switch {
	case key != "" && keyPath != "":
		return nil, ErrAmbiguousKey
	case keyPath != "":
		k, err := LoadKey(keyPath)
		if err != nil {
			return nil, fmt.Errorf("load socket key: %w", err)
		}
		key = k
	case key == "":
		return nil, ErrMissingKey
	}

	return &Credentials{UserID: userID, Key: key}, nil
}

// LoadKey reads a socket key from a file. Surrounding whitespace is ignored.
func LoadKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%s: %w", path, ErrMissingKey)
	}
	return key, nil
}

// AuthMessage returns the auth command sent when the socket opens.
func (c *Credentials) AuthMessage() wire.Auth {
	return wire.Auth{Key: c.Key, ID: c.UserID}
}

// String hides the key.
func (c *Credentials) String() string {
	return fmt.Sprintf("user=%s key=%s", c.UserID, redact(c.Key))
}

func redact(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
