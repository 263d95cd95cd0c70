// Package external calls the third-party data API fronted by the cache.
package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/AzielCF/az-users/resilience/domain"
)

const DefaultTimeout = 5 * time.Second

// Config holds the settings of the external API client.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client implements domain.ExternalSource with a single GET request per call.
type Client struct {
	url     string
	timeout time.Duration
	http    *fasthttp.Client
}

var _ domain.ExternalSource = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("external API URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		http: &fasthttp.Client{
			Name:                     "az-users",
			ReadTimeout:              cfg.Timeout,
			WriteTimeout:             cfg.Timeout,
			MaxIdleConnDuration:      30 * time.Second,
			NoDefaultUserAgentHeader: true,
		},
	}, nil
}

// FetchOnce performs one GET. Timeouts, transport errors and non-2xx
// responses are failures. The call ends at the earlier of the context
// deadline and the configured timeout.
func (c *Client) FetchOnce(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	req.Header.SetContentType("application/json")

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		logrus.WithError(err).Errorf("[EXTERNAL] request to %s failed", c.url)
		return nil, fmt.Errorf("external API request failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		logrus.Errorf("[EXTERNAL] %s answered %d", c.url, status)
		return nil, fmt.Errorf("external API request failed: status %d", status)
	}

	// resp is returned to the pool, its body must not escape
	body := append([]byte(nil), resp.Body()...)
	logrus.Debugf("[EXTERNAL] fetched %s from %s", humanize.Bytes(uint64(len(body))), c.url)
	return body, nil
}
