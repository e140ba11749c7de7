package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/model"
)

func TestDeliverPostsOKPayload(t *testing.T) {
	var got CallbackPayload
	var contentType, userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		userAgent = r.Header.Get("User-Agent")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := NewCallbackClient()
	require.NoError(t, err)

	analysis := model.NewAnalysis("conv-1", "client-a", time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC))
	require.NoError(t, c.Deliver(context.Background(), server.URL, OKPayload(analysis)))

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, callbackUserAgent, userAgent)
	assert.Equal(t, "ok", got.Result)
	assert.Equal(t, http.StatusOK, got.HTTPStatus)
	require.NotNil(t, got.Data)
	assert.Equal(t, "conv-1", got.Data.Conversation)
	assert.NotNil(t, got.Data.Tokens, "empty token list serializes as [], not null")
}

func TestDeliverErrorPayload(t *testing.T) {
	var got CallbackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	c, err := NewCallbackClient()
	require.NoError(t, err)

	require.NoError(t, c.Deliver(context.Background(), server.URL,
		ErrorPayload(http.StatusInternalServerError, "pipeline exploded")))

	assert.Equal(t, "error", got.Result)
	assert.Equal(t, http.StatusInternalServerError, got.HTTPStatus)
	assert.Equal(t, "pipeline exploded", got.Error)
	assert.Nil(t, got.Data)
}

func TestDeliverDoesNotRetryHTTPErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c, err := NewCallbackClient(WithMaxRetries(5), WithRetryDelay(time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	err = c.Deliver(context.Background(), server.URL, ErrorPayload(500, "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDeliveryFailed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "HTTP error statuses are terminal")
}

// flakyTransport fails with a transport error until failures is exhausted.
type flakyTransport struct {
	failures int32
	inner    http.RoundTripper
	attempts int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&f.attempts, 1)
	if n <= atomic.LoadInt32(&f.failures) {
		return nil, fmt.Errorf("connection reset")
	}
	return f.inner.RoundTrip(req)
}

func TestDeliverRetriesTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	flaky := &flakyTransport{failures: 2, inner: http.DefaultTransport}
	c, err := NewCallbackClient(
		WithMaxRetries(3),
		WithTransport(flaky),
		WithRetryDelay(time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, c.Deliver(context.Background(), server.URL, ErrorPayload(500, "x")),
		"third attempt succeeds")
	assert.Equal(t, int32(3), atomic.LoadInt32(&flaky.attempts))
}

func TestDeliverExhaustionReportsDeliveryFailed(t *testing.T) {
	flaky := &flakyTransport{failures: 99, inner: http.DefaultTransport}
	c, err := NewCallbackClient(
		WithMaxRetries(2),
		WithTransport(flaky),
		WithRetryDelay(time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)

	err = c.Deliver(context.Background(), "http://callback.invalid/cb", ErrorPayload(500, "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDeliveryFailed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&flaky.attempts))
}
