package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kiro-gateway/gateway/pkg/internal/retry"
)

// Client issues the single HTTPS call spec §4.I describes: a JSON body
// with Content-Type/Authorization headers, returning the response
// status, headers, and a streaming byte reader. Grounded on
// pkg/internal/http.Client, whose transport settings its default
// http.Client mirrors; requests are built directly with net/http, adding
// the upstream's fixed User-Agent, bearer-token wiring, and
// retry-on-transient-failure behavior via pkg/internal/retry.
type Client struct {
	http      *http.Client
	endpoint  string
	userAgent string
	retryCfg  retry.Config
	log       *zap.Logger
}

// Config configures the upstream client.
type Config struct {
	Endpoint   string
	UserAgent  string
	Timeout    time.Duration
	RetryCfg   retry.Config
	HTTPClient *http.Client
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "kiro-gateway/1.0"
	}
	retryCfg := cfg.RetryCfg
	if retryCfg.MaxRetries == 0 {
		retryCfg = retry.DefaultConfig()
		retryCfg.MaxRetries = 2
	}
	return &Client{
		http:      httpClient,
		endpoint:  cfg.Endpoint,
		userAgent: userAgent,
		retryCfg:  retryCfg,
		log:       log,
	}
}

// Response is the upstream's raw response: status, headers, and a
// streaming body the caller must Close. For non-2xx statuses the body
// is still returned so the caller can surface the error payload
// (spec §7's UpstreamNon2xx policy distinguishes streaming vs
// non-streaming handling, which belongs to the caller, not this type).
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Send posts body to the upstream endpoint with the given bearer token.
// Transient network failures (not 4xx/5xx responses, which are returned
// to the caller rather than retried) are retried with backoff per
// internal/retry, since a mid-handshake network blip should not surface
// as a credential failure to the pool.
func (c *Client) Send(ctx context.Context, accessToken string, body []byte) (*Response, error) {
	var resp *Response
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("building upstream request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/vnd.amazon.eventstream")

		httpResp, doErr := c.http.Do(req)
		if doErr != nil {
			return doErr
		}
		resp = &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: httpResp.Body}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

