package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/model"
	"github.com/c360/convstreams/pkg/retry"
)

const callbackUserAgent = "convstreams-callback/1.0"

// CallbackPayload is the body POSTed to callback URIs.
type CallbackPayload struct {
	Result     string          `json:"result"`
	HTTPStatus int             `json:"httpStatus"`
	Data       *model.Analysis `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// OKPayload wraps a completed analysis.
func OKPayload(analysis *model.Analysis) *CallbackPayload {
	return &CallbackPayload{
		Result:     "ok",
		HTTPStatus: http.StatusOK,
		Data:       analysis,
	}
}

// ErrorPayload wraps a processing failure.
func ErrorPayload(status int, message string) *CallbackPayload {
	return &CallbackPayload{
		Result:     "error",
		HTTPStatus: status,
		Error:      message,
	}
}

// CallbackClient delivers result payloads to callback URIs. Transport
// errors are retried with backoff; HTTP error statuses are not, since the
// endpoint did receive the payload.
type CallbackClient struct {
	httpClient *http.Client
	retryCfg   retry.Config
	logger     *slog.Logger
}

// CallbackOption configures a CallbackClient
type CallbackOption func(*CallbackClient) error

// WithCallbackLogger sets the logger.
func WithCallbackLogger(logger *slog.Logger) CallbackOption {
	return func(c *CallbackClient) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMaxRetries bounds delivery attempts for transport errors.
func WithMaxRetries(n int) CallbackOption {
	return func(c *CallbackClient) error {
		if n > 0 {
			c.retryCfg.MaxAttempts = n
		}
		return nil
	}
}

// WithCallbackTimeout bounds each delivery attempt.
func WithCallbackTimeout(d time.Duration) CallbackOption {
	return func(c *CallbackClient) error {
		if d > 0 {
			c.httpClient.Timeout = d
		}
		return nil
	}
}

// WithTransport overrides the HTTP transport, mainly for tests.
func WithTransport(rt http.RoundTripper) CallbackOption {
	return func(c *CallbackClient) error {
		if rt != nil {
			c.httpClient.Transport = rt
		}
		return nil
	}
}

// WithRetryDelay shortens the backoff, mainly for tests.
func WithRetryDelay(initial, max time.Duration) CallbackOption {
	return func(c *CallbackClient) error {
		if initial > 0 {
			c.retryCfg.InitialDelay = initial
		}
		if max > 0 {
			c.retryCfg.MaxDelay = max
		}
		return nil
	}
}

// WithProxy routes callback traffic through an HTTP proxy.
func WithProxy(proxyURL string) CallbackOption {
	return func(c *CallbackClient) error {
		if proxyURL == "" {
			return nil
		}
		u, err := url.Parse(proxyURL)
		if err != nil {
			return errors.WrapInvalid(err, "CallbackClient", "WithProxy", "parse proxy url")
		}
		c.httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
		return nil
	}
}

// NewCallbackClient creates a callback delivery client.
func NewCallbackClient(opts ...CallbackOption) (*CallbackClient, error) {
	c := &CallbackClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Deliver POSTs the payload to the callback URI. It retries transport
// errors up to the configured attempts; a non-2xx response is logged and
// returned without retry. The returned error always wraps
// errors.ErrDeliveryFailed.
func (c *CallbackClient) Deliver(ctx context.Context, uri string, payload *CallbackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.WrapInvalid(err, "CallbackClient", "Deliver", "marshal payload")
	}

	err = retry.Do(ctx, c.retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
		if err != nil {
			return retry.NonRetryable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", callbackUserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("callback attempt failed", "uri", uri, "error", err)
			return err // transport error, retried
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// the endpoint answered; resending the same payload won't help
			c.logger.Warn("callback endpoint rejected payload",
				"uri", uri, "status", resp.StatusCode)
			return retry.NonRetryable(fmt.Errorf("callback endpoint returned %d", resp.StatusCode))
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(
			fmt.Errorf("%w: %s", errors.ErrDeliveryFailed, err.Error()),
			"CallbackClient", "Deliver", "post callback")
	}
	return nil
}
