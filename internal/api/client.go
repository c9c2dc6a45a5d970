package api

import (
	"log/slog"
	"net/http"
	"time"
)

// Client talks HTTP to the origin that hosts the relay.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	statusPath   string
	snapshotPath string

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a client for baseURL. token, when set, is sent as a
// bearer credential.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		statusPath:   "/",
		snapshotPath: "/state/",
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration for snapshot fetches.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithStatusPath sets the path probed by Status.
func WithStatusPath(path string) ClientOption {
	return func(c *Client) {
		c.statusPath = path
	}
}

// WithSnapshotPath sets the prefix the room id is appended to by Snapshot.
func WithSnapshotPath(prefix string) ClientOption {
	return func(c *Client) {
		c.snapshotPath = prefix
	}
}
