package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"connectrpc.com/connect"

	"github.com/qqoqto/travel-planner/pkg/treeapi"
)

// Ensure Client implements Store
var _ Store = (*Client)(nil)

var errStreamClosed = errors.New("subscription stream closed by server")

// Client implements Store against a TreeService server.
// It has no retry policy: a broken subscription is reported once and ends.
type Client struct {
	api           treeapi.TreeServiceClient
	participantID string
}

// NewClient wraps a TreeService client. participantID is sent with every call
// for attribution in server logs and may be empty.
func NewClient(api treeapi.TreeServiceClient, participantID string) *Client {
	return &Client{api: api, participantID: participantID}
}

// Dial builds a Client for the server at baseURL.
func Dial(httpClient connect.HTTPClient, baseURL, participantID string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return NewClient(treeapi.NewTreeServiceClient(httpClient, baseURL), participantID)
}

func (c *Client) annotate(h http.Header) {
	if c.participantID != "" {
		h.Set(treeapi.ParticipantHeader, c.participantID)
	}
}

// Write replaces the value at path.
func (c *Client) Write(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	req := connect.NewRequest(&treeapi.WriteRequest{Path: path, Value: raw})
	c.annotate(req.Header())
	if _, err := c.api.Write(ctx, req); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Append stores value under a new key of path.
func (c *Client) Append(ctx context.Context, path string, value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	req := connect.NewRequest(&treeapi.AppendRequest{Path: path, Value: raw})
	c.annotate(req.Header())
	resp, err := c.api.Append(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return resp.Msg.Key, nil
}

// Delete removes the value at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	req := connect.NewRequest(&treeapi.DeleteRequest{Path: path})
	c.annotate(req.Header())
	if _, err := c.api.Delete(ctx, req); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// Subscribe opens a server stream for path and forwards every snapshot to h
// from a background goroutine.
func (c *Client) Subscribe(ctx context.Context, path string, h Handler) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)

	req := connect.NewRequest(&treeapi.SubscribeRequest{Path: path})
	c.annotate(req.Header())
	stream, err := c.api.Subscribe(ctx, req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}

	var stopped atomic.Bool
	go func() {
		defer stream.Close()
		for stream.Receive() {
			if stopped.Load() {
				return
			}
			h(Snapshot{Path: path, Value: stream.Msg().Value}, nil)
		}
		if stopped.Load() || ctx.Err() != nil {
			return
		}
		err := stream.Err()
		if err == nil {
			err = errStreamClosed
		}
		slog.Warn("Subscription ended", "path", path, "error", err)
		h(Snapshot{Path: path}, fmt.Errorf("subscription to %s failed: %w", path, err))
	}()

	return func() {
		stopped.Store(true)
		cancel()
	}, nil
}
