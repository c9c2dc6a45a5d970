package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/roomsync/internal/clock"
)

// Status sends one HEAD request to the status path. A nil error means the
// origin answered with a 2xx status. It does not retry.
func (c *Client) Status(ctx context.Context) error {
	// Cache-busting parameter so intermediaries cannot answer for a dead origin.
	query := url.Values{"_": {strconv.FormatInt(time.Now().UnixMilli(), 10)}}
	_, err := c.doRequest(ctx, http.MethodHead, c.statusPath, query)
	return err
}

// Check implements reconnect.Checker.
func (c *Client) Check(ctx context.Context) error {
	return c.Status(ctx)
}

// Snapshot is the state of a room at a point in the relay's history.
type Snapshot struct {
	Timestamp clock.Timestamp            `json:"timestamp"`
	Roots     map[string]json.RawMessage `json:"roots"`
}

// Snapshot fetches the current state of room. Joining with the returned
// timestamp replays only what happened after it.
func (c *Client) Snapshot(ctx context.Context, room string) (*Snapshot, error) {
	var snap Snapshot
	if err := c.get(ctx, c.snapshotPath+url.PathEscape(room), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
