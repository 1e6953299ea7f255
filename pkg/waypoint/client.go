package waypoint

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/teslashibe/go-rebel/internal/httpc"
)

// Client talks to the waypoint routes of a server. It implements Store.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for a server at baseURL (http://host:port).
// A nil http client uses the shared one.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = httpc.Client
	}
	return &Client{base: strings.TrimRight(baseURL, "/") + "/waypoints", http: hc}
}

// Save uploads a document.
func (c *Client) Save(ctx context.Context, name string, doc json.RawMessage) error {
	if err := validate(name, doc); err != nil {
		return err
	}
	return httpc.PostJSON(ctx, c.http, c.base+"/save/"+url.PathEscape(name), doc, nil)
}

// Load downloads a document. Server 400s map to ErrNotFound.
func (c *Client) Load(ctx context.Context, name string) (json.RawMessage, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	var doc json.RawMessage
	err := httpc.GetJSON(ctx, c.http, c.base+"/load/"+url.PathEscape(name), &doc)
	var se *httpc.StatusError
	if errors.As(err, &se) && se.Code == http.StatusBadRequest {
		return nil, ErrNotFound
	}
	return doc, err
}

// All downloads every document.
func (c *Client) All(ctx context.Context) (map[string]json.RawMessage, error) {
	all := make(map[string]json.RawMessage)
	if err := httpc.GetJSON(ctx, c.http, c.base+"/all", &all); err != nil {
		return nil, err
	}
	return all, nil
}
