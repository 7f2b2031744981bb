// Package feed queries a remote price service over HTTP and caches quotes
// for a short window.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/holiman/uint256"
	"golang.org/x/sync/singleflight"

	"isolend/native/lending"
)

// Config describes the remote price endpoint.
type Config struct {
	BaseURL  string        `toml:"BaseURL"`
	APIKey   string        `toml:"APIKey"`
	Timeout  time.Duration `toml:"Timeout"`
	CacheTTL time.Duration `toml:"CacheTTL"`
	CacheCap int           `toml:"CacheCap"`
}

// Quote is the JSON body served by the price endpoint.
type Quote struct {
	Price     string `json:"price"`
	Timestamp uint64 `json:"timestamp"`
}

type cached struct {
	price *uint256.Int
	ts    uint64
}

// Client fetches quotes from GET {BaseURL}/v1/prices/{ref}.
type Client struct {
	http  *resty.Client
	cache gcache.Cache
	ttl   time.Duration
	sf    singleflight.Group
}

// New builds a client. A zero CacheTTL disables caching.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("price feed: base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	capacity := cfg.CacheCap
	if capacity <= 0 {
		capacity = 256
	}
	client := resty.New().
		SetBaseURL(base).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		client.SetHeader("X-Api-Key", key)
	}
	return &Client{
		http:  client,
		cache: gcache.New(capacity).LRU().Build(),
		ttl:   cfg.CacheTTL,
	}, nil
}

// Price implements lending.PriceOracle.
func (c *Client) Price(ref common.Address) (*uint256.Int, uint64, error) {
	key := ref.Hex()
	if c.ttl > 0 {
		if v, err := c.cache.Get(key); err == nil {
			if q, ok := v.(cached); ok {
				return q.price.Clone(), q.ts, nil
			}
		}
	}
	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.fetch(context.Background(), key)
	})
	if err != nil {
		return nil, 0, err
	}
	q := v.(cached)
	if c.ttl > 0 {
		_ = c.cache.SetWithExpire(key, q, c.ttl)
	}
	return q.price.Clone(), q.ts, nil
}

func (c *Client) fetch(ctx context.Context, ref string) (cached, error) {
	var body Quote
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("ref", ref).
		SetResult(&body).
		Get("/v1/prices/{ref}")
	if err != nil {
		return cached{}, fmt.Errorf("%w: %v", lending.ErrOracleUnavailable, err)
	}
	if !resp.IsSuccess() {
		return cached{}, fmt.Errorf("%w: %s returned %s", lending.ErrOracleUnavailable, ref, resp.Status())
	}
	price, err := lending.ParseAmount(strings.TrimSpace(body.Price))
	if err != nil {
		return cached{}, fmt.Errorf("%w: malformed price %q", lending.ErrOracleUnavailable, body.Price)
	}
	if body.Timestamp == 0 {
		return cached{}, errors.Join(lending.ErrOracleUnavailable, fmt.Errorf("quote for %s has no timestamp", ref))
	}
	return cached{price: price, ts: body.Timestamp}, nil
}
