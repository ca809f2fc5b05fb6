package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/capatazlib/go-evstream/inspect/api"
)

// Client talks to an inspector server
type Client struct {
	host       string
	httpClient *http.Client
}

// NewClient returns a Client for the inspector listening on the given host
// (e.g. http://localhost:4784)
func NewClient(host string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{host: host, httpClient: httpClient}
}

func (c *Client) get(ctx context.Context, path string, caller string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", caller, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", caller, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e := api.Error{}
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
			e.Error = "unknown error"
		}
		return fmt.Errorf("failed to %s: %s (%d)", caller, e.Error, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", caller, err)
	}
	return nil
}

// ListStreams returns the statistics of every registered stream
func (c *Client) ListStreams(ctx context.Context) (api.Streams, error) {
	var streams api.Streams
	err := c.get(ctx, "/streams", "list streams", &streams)
	return streams, err
}

// GetStream returns the statistics of the stream with the given name
func (c *Client) GetStream(ctx context.Context, name string) (api.Stream, error) {
	var st api.Stream
	err := c.get(ctx, "/streams/"+url.PathEscape(name), "get stream", &st)
	return st, err
}

// History returns the latest n events of the stream with the given name
func (c *Client) History(ctx context.Context, name string, n int) (api.History, error) {
	var history api.History
	path := "/streams/" + url.PathEscape(name) + "/history?n=" + strconv.Itoa(n)
	err := c.get(ctx, path, "get history", &history)
	return history, err
}
