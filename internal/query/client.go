package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client calls the external read-only query endpoint: GET <endpoint>?sql=<statement>.
type Client struct {
	http     *resty.Client
	endpoint string
}

func NewClient(endpoint, token string, timeout time.Duration) *Client {
	http := resty.New().SetTimeout(timeout)
	if token != "" {
		http.SetAuthToken(token)
	}
	return &Client{http: http, endpoint: endpoint}
}

func (c *Client) Run(ctx context.Context, sql string) ([]Row, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("query endpoint is not configured")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam("sql", sql).
		Get(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("query endpoint request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("query endpoint returned %d: %s", resp.StatusCode(), resp.String())
	}

	// Numbers stay json.Number so ids and amounts pass through unrounded.
	dec := json.NewDecoder(bytes.NewReader(resp.Body()))
	dec.UseNumber()
	var rows []Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode query rows: %w", err)
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}
