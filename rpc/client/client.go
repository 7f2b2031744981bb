// Package client is a typed HTTP client for lendingd.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"

	"isolend/rpc"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string `json:"error"`
	Kind    string `json:"kind"`
	Op      *int   `json:"op"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lendingd: %d", e.Status)
	if e.Kind != "" {
		fmt.Fprintf(&b, " %s", e.Kind)
	}
	if e.Op != nil {
		fmt.Fprintf(&b, " (op %d)", *e.Op)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Client talks to one lendingd endpoint.
type Client struct {
	http *resty.Client
}

// New returns a client for baseURL. token may be empty for read-only use.
func New(baseURL, token string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(defaultTimeout)
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{http: c}
}

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) *Client {
	c.http.SetTimeout(d)
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("lendingd: %s %s: %w", method, path, err)
	}
	if !resp.IsSuccess() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if err := json.Unmarshal(resp.Body(), apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(resp.Body()))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("lendingd: decode %s: %w", path, err)
	}
	return nil
}

// Batch submits ops as one atomic batch.
func (c *Client) Batch(ctx context.Context, ops ...rpc.Op) (*rpc.BatchResponse, error) {
	var out rpc.BatchResponse
	if err := c.do(ctx, resty.MethodPost, "/v1/batch", rpc.BatchRequest{Ops: ops}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Protocol fetches the registry.
func (c *Client) Protocol(ctx context.Context) (*rpc.ProtocolView, error) {
	var out rpc.ProtocolView
	if err := c.do(ctx, resty.MethodGet, "/v1/protocol", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Markets lists every market.
func (c *Client) Markets(ctx context.Context) ([]rpc.MarketView, error) {
	var out []rpc.MarketView
	if err := c.do(ctx, resty.MethodGet, "/v1/markets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Market fetches one market with interest accrued to now.
func (c *Client) Market(ctx context.Context, id common.Hash) (*rpc.MarketView, error) {
	var out rpc.MarketView
	if err := c.do(ctx, resty.MethodGet, "/v1/markets/"+id.Hex(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Position fetches owner's position in market id.
func (c *Client) Position(ctx context.Context, id common.Hash, owner common.Address) (*rpc.PositionView, error) {
	var out rpc.PositionView
	path := "/v1/markets/" + id.Hex() + "/positions/" + owner.Hex()
	if err := c.do(ctx, resty.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Authorization fetches the grant from authorizer to authorized.
func (c *Client) Authorization(ctx context.Context, authorizer, authorized common.Address) (*rpc.AuthorizationView, error) {
	var out rpc.AuthorizationView
	path := "/v1/authorizations/" + authorizer.Hex() + "/" + authorized.Hex()
	if err := c.do(ctx, resty.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance fetches owner's balance of mint.
func (c *Client) Balance(ctx context.Context, mint, owner common.Address) (*rpc.BalanceView, error) {
	var out rpc.BalanceView
	if err := c.do(ctx, resty.MethodGet, "/v1/balances/"+mint.Hex()+"/"+owner.Hex(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EventQuery filters archived events.
type EventQuery struct {
	Market string
	Type   string
	Batch  string
	After  uint
	Limit  int
}

func (q EventQuery) encode() string {
	v := url.Values{}
	if q.Market != "" {
		v.Set("market", q.Market)
	}
	if q.Type != "" {
		v.Set("type", q.Type)
	}
	if q.Batch != "" {
		v.Set("batch", q.Batch)
	}
	if q.After > 0 {
		v.Set("after", strconv.FormatUint(uint64(q.After), 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// Events lists archived events.
func (c *Client) Events(ctx context.Context, q EventQuery) ([]rpc.ArchivedEvent, error) {
	var out []rpc.ArchivedEvent
	if err := c.do(ctx, resty.MethodGet, "/v1/events"+q.encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
